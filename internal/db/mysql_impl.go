package db

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"TableSync/internal/connection"
	"TableSync/internal/logger"
	"TableSync/internal/ssh"

	_ "github.com/go-sql-driver/mysql"
)

type MySQLDB struct {
	sqlBase
}

func mysqlDialect() sqlDialect {
	return sqlDialect{name: "mysql", quote: quoteBacktick, placeholder: questionPlaceholder, maxDeleteIDs: defaultMaxDeleteIDs, maxParams: defaultMaxParams}
}

func (m *MySQLDB) getDSN(config connection.ConnectionConfig) string {
	database := config.Database
	protocol := "tcp"
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)

	if config.UseSSH {
		netName, err := ssh.RegisterSSHNetwork(config.SSH)
		if err == nil {
			protocol = netName
		} else {
			logger.Warnf("注册 SSH 网络失败，将尝试直连：地址=%s:%d 用户=%s，原因：%v", config.Host, config.Port, config.User, err)
		}
	}

	timeout := getConnectTimeoutSeconds(config)

	return fmt.Sprintf("%s:%s@%s(%s)/%s?charset=utf8mb4&loc=Local&timeout=%ds&maxAllowedPacket=0",
		config.User, config.Password, protocol, address, url.PathEscape(database), timeout)
}

func (m *MySQLDB) Connect(config connection.ConnectionConfig) error {
	m.dialect = mysqlDialect()
	return m.open("mysql", m.getDSN(config), config)
}

func (m *MySQLDB) GetTables(ctx context.Context) ([]string, error) {
	return m.queryStrings(ctx, "SHOW TABLES")
}

func (m *MySQLDB) GetColumns(ctx context.Context, tableName string) ([]connection.ColumnDefinition, error) {
	query := `SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_KEY
FROM information_schema.COLUMNS
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
ORDER BY ORDINAL_POSITION`
	return scanColumnDefinitions(ctx, &m.sqlBase, query, tableName)
}

// MaxPacketBytes reads the server's max_allowed_packet.
func (m *MySQLDB) MaxPacketBytes(ctx context.Context) (int64, error) {
	stream, err := m.StreamSelect(ctx, "SHOW VARIABLES LIKE 'max_allowed_packet'")
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	if !stream.Next() {
		if err := stream.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("max_allowed_packet not reported")
	}
	vals := stream.Values()
	if len(vals) < 2 {
		return 0, fmt.Errorf("unexpected SHOW VARIABLES result")
	}
	return toInt64(vals[1])
}

// ReplaceRows writes a chunk as multi-row REPLACE INTO statements.
func (m *MySQLDB) ReplaceRows(ctx context.Context, batch connection.ReplaceBatch) error {
	if err := validateBatch(batch); err != nil {
		return err
	}
	if len(batch.Rows) == 0 {
		return nil
	}
	return m.splitByParams(batch, func(part connection.ReplaceBatch) error {
		values, args := m.multiRowValues(part)
		query := fmt.Sprintf("REPLACE INTO %s (%s) VALUES %s",
			m.quoteTable(part.Table), strings.Join(m.quoteColumns(part.Columns), ", "), values)
		if _, err := m.execContext(ctx, query, args...); err != nil {
			return fmt.Errorf("批量写入失败：%w", err)
		}
		return nil
	})
}

// MariaDB speaks the MySQL protocol and shares its write path.
type MariaDB struct {
	MySQLDB
}

// scanColumnDefinitions reads (name, type, nullable, key) rows in order.
func scanColumnDefinitions(ctx context.Context, b *sqlBase, query string, args ...interface{}) ([]connection.ColumnDefinition, error) {
	stream, err := b.StreamSelect(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var columns []connection.ColumnDefinition
	for stream.Next() {
		vals := stream.Values()
		col := connection.ColumnDefinition{}
		if len(vals) > 0 {
			col.Name = stringOf(vals[0])
		}
		if len(vals) > 1 {
			col.Type = stringOf(vals[1])
		}
		if len(vals) > 2 {
			col.Nullable = stringOf(vals[2])
		}
		if len(vals) > 3 {
			col.Key = stringOf(vals[3])
		}
		columns = append(columns, col)
	}
	return columns, stream.Err()
}

func stringOf(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
