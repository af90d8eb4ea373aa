package db

import (
	"context"
	"fmt"
	"strings"

	"TableSync/internal/connection"
	"TableSync/internal/logger"
)

// CustomDB opens any registered database/sql driver by name. It has no native
// bulk upsert, so rows are written one at a time.
type CustomDB struct {
	sqlBase
	driver string
}

func customDialect(driver string) sqlDialect {
	switch strings.ToLower(driver) {
	case "mysql":
		return mysqlDialect()
	case "postgres", "pgx", "kingbase":
		return postgresDialect()
	case "sqlserver", "mssql":
		return sqlServerDialect()
	case "oracle":
		return oracleDialect()
	default:
		return sqlDialect{name: driver, quote: quoteDouble, placeholder: questionPlaceholder, maxDeleteIDs: 500}
	}
}

func (c *CustomDB) Connect(config connection.ConnectionConfig) error {
	if config.Driver == "" || config.DSN == "" {
		return fmt.Errorf("driver and dsn are required for custom connection")
	}
	c.driver = config.Driver
	c.dialect = customDialect(config.Driver)
	return c.open(config.Driver, config.DSN, config)
}

func (c *CustomDB) GetTables(ctx context.Context) ([]string, error) {
	tables, err := c.queryStrings(ctx, `SELECT table_name FROM information_schema.tables
WHERE table_type = 'BASE TABLE' AND table_schema NOT IN ('information_schema', 'pg_catalog', 'sys', 'mysql', 'performance_schema')`)
	if err == nil {
		return tables, nil
	}
	logger.Warnf("自定义驱动 %s 不支持 information_schema，尝试 sqlite_master：%v", c.driver, err)
	return c.queryStrings(ctx, "SELECT name FROM sqlite_master WHERE type='table'")
}

func (c *CustomDB) GetColumns(ctx context.Context, tableName string) ([]connection.ColumnDefinition, error) {
	_, table := splitSchemaTable(tableName)
	query := fmt.Sprintf(`SELECT column_name, data_type, is_nullable, ''
FROM information_schema.columns WHERE table_name = %s ORDER BY ordinal_position`, c.dialect.placeholder(1))
	return scanColumnDefinitions(ctx, &c.sqlBase, query, table)
}

// UpsertRow updates the row by key and inserts it when nothing matched.
func (c *CustomDB) UpsertRow(ctx context.Context, tableName, keyColumn string, columns []string, values []interface{}) error {
	return c.updateThenInsert(ctx, tableName, keyColumn, columns, values)
}
