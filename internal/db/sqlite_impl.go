package db

import (
	"context"
	"fmt"
	"strings"

	"TableSync/internal/connection"

	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	sqlBase
}

func sqliteDialect() sqlDialect {
	return sqlDialect{name: "sqlite", quote: quoteDouble, placeholder: questionPlaceholder, maxDeleteIDs: 500, maxParams: sqliteMaxParams}
}

// getDSN takes the database file path from Host, falling back to Database.
func (s *SQLiteDB) getDSN(config connection.ConnectionConfig) string {
	dsn := strings.TrimSpace(config.Host)
	if dsn == "" {
		dsn = strings.TrimSpace(config.Database)
	}
	return dsn
}

func (s *SQLiteDB) Connect(config connection.ConnectionConfig) error {
	s.dialect = sqliteDialect()
	dsn := s.getDSN(config)
	if dsn == "" {
		return fmt.Errorf("SQLite 数据库文件路径不能为空")
	}
	return s.open("sqlite", dsn, config)
}

func (s *SQLiteDB) GetTables(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
}

func (s *SQLiteDB) GetColumns(ctx context.Context, tableName string) ([]connection.ColumnDefinition, error) {
	table := strings.TrimSpace(tableName)
	if table == "" {
		return nil, fmt.Errorf("table name required")
	}
	query := `SELECT name, type,
	CASE WHEN "notnull" = 1 THEN 'NO' ELSE 'YES' END,
	CASE WHEN pk > 0 THEN 'PRI' ELSE '' END
FROM pragma_table_info(?) ORDER BY cid`
	return scanColumnDefinitions(ctx, &s.sqlBase, query, table)
}

// ReplaceRows writes a chunk as multi-row INSERT OR REPLACE statements.
func (s *SQLiteDB) ReplaceRows(ctx context.Context, batch connection.ReplaceBatch) error {
	if err := validateBatch(batch); err != nil {
		return err
	}
	if len(batch.Rows) == 0 {
		return nil
	}
	return s.splitByParams(batch, func(part connection.ReplaceBatch) error {
		values, args := s.multiRowValues(part)
		query := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES %s",
			s.quoteTable(part.Table), strings.Join(s.quoteColumns(part.Columns), ", "), values)
		if _, err := s.execContext(ctx, query, args...); err != nil {
			return fmt.Errorf("批量写入失败：%w", err)
		}
		return nil
	})
}

// Exec runs a statement without returning rows. Used to prepare fixtures.
func (s *SQLiteDB) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	return s.execContext(ctx, query, args...)
}
