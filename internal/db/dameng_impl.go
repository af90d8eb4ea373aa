package db

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"TableSync/internal/connection"
)

type DamengDB struct {
	sqlBase
}

func damengDialect() sqlDialect {
	return sqlDialect{name: "dameng", quote: quoteOracle, placeholder: questionPlaceholder, maxDeleteIDs: 1000, maxParams: defaultMaxParams}
}

func (d *DamengDB) getDSN(config connection.ConnectionConfig) string {
	// dm://user:password@host:port?schema=...
	address := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	escapedPassword := url.PathEscape(config.Password)
	q := url.Values{}
	if config.Database != "" {
		q.Set("schema", config.Database)
	}
	if escapedPassword != config.Password {
		// 达梦驱动要求：密码包含特殊字符时，password 需 PathEscape，并添加 escapeProcess=true 让驱动解码。
		q.Set("escapeProcess", "true")
	}

	dsn := fmt.Sprintf("dm://%s:%s@%s", config.User, escapedPassword, address)
	encoded := q.Encode()
	if encoded == "" {
		return dsn
	}
	return dsn + "?" + encoded
}

func (d *DamengDB) Connect(config connection.ConnectionConfig) error {
	d.dialect = damengDialect()
	localConfig, forwarder, err := forwardThroughSSH(config, "达梦数据库")
	if err != nil {
		return err
	}
	d.forwarder = forwarder
	return d.open("dm", d.getDSN(localConfig), config)
}

func (d *DamengDB) GetTables(ctx context.Context) ([]string, error) {
	return d.queryStrings(ctx, "SELECT TABLE_NAME FROM USER_TABLES ORDER BY TABLE_NAME")
}

func (d *DamengDB) GetColumns(ctx context.Context, tableName string) ([]connection.ColumnDefinition, error) {
	query := `SELECT COLUMN_NAME, DATA_TYPE,
	CASE NULLABLE WHEN 'Y' THEN 'YES' ELSE 'NO' END,
	''
FROM USER_TAB_COLUMNS WHERE TABLE_NAME = ? ORDER BY COLUMN_ID`
	return scanColumnDefinitions(ctx, &d.sqlBase, query, oracleIdent(strings.TrimSpace(tableName)))
}

// ReplaceRows shares the Oracle-style MERGE upsert.
func (d *DamengDB) ReplaceRows(ctx context.Context, batch connection.ReplaceBatch) error {
	return mergeFromDual(ctx, &d.sqlBase, batch)
}
