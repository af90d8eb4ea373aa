package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"TableSync/internal/connection"
)

const defaultConnectTimeoutSeconds = 30

// getConnectTimeoutSeconds bounds dialing and the initial ping of every engine.
func getConnectTimeoutSeconds(config connection.ConnectionConfig) int {
	if config.Timeout > 0 {
		return config.Timeout
	}
	return defaultConnectTimeoutSeconds
}

func getConnectTimeout(config connection.ConnectionConfig) time.Duration {
	return time.Duration(getConnectTimeoutSeconds(config)) * time.Second
}

// Database is the handle the sync engine drives on both sides of a run.
type Database interface {
	Connect(config connection.ConnectionConfig) error
	Close() error
	Ping() error
	GetTables(ctx context.Context) ([]string, error)
	GetColumns(ctx context.Context, tableName string) ([]connection.ColumnDefinition, error)
	// MaxValue returns MAX(column) over the table, nil when the table is empty.
	MaxValue(ctx context.Context, tableName, column string) (interface{}, error)
	// SelectRows opens a streamed read; filter nil means every row.
	SelectRows(ctx context.Context, tableName string, filter *connection.RowFilter) (RowStream, error)
	CountRows(ctx context.Context, tableName string, filter *connection.RowFilter) (int64, error)
	SelectColumn(ctx context.Context, tableName, column string) ([]interface{}, error)
	DeleteByIDs(ctx context.Context, tableName, column string, ids []interface{}) (int64, error)
}

// RowStream is a single-pass cursor. Callers must Close it on every path.
type RowStream interface {
	Next() bool
	// Columns returns the column names of the current row.
	Columns() []string
	Values() []interface{}
	Err() error
	Close() error
}

// BulkReplacer writes a chunk of rows as one multi-row statement, replacing
// rows whose key already exists.
type BulkReplacer interface {
	ReplaceRows(ctx context.Context, batch connection.ReplaceBatch) error
}

// RowUpserter inserts or fully overwrites a single row.
type RowUpserter interface {
	UpsertRow(ctx context.Context, tableName, keyColumn string, columns []string, values []interface{}) error
}

// PacketSizer reports the largest statement the server accepts, in bytes.
type PacketSizer interface {
	MaxPacketBytes(ctx context.Context) (int64, error)
}

// Factory
func NewDatabase(dbType string) (Database, error) {
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "mysql":
		return &MySQLDB{}, nil
	case "mariadb":
		return &MariaDB{}, nil
	case "postgres":
		return &PostgresDB{}, nil
	case "vastbase":
		return &VastbaseDB{}, nil
	case "kingbase":
		return &KingbaseDB{}, nil
	case "sqlite":
		return &SQLiteDB{}, nil
	case "sqlserver":
		return &SqlServerDB{}, nil
	case "oracle":
		return &OracleDB{}, nil
	case "dameng":
		return &DamengDB{}, nil
	case "mongodb":
		return &MongoDB{}, nil
	case "custom":
		return &CustomDB{}, nil
	case "":
		// Default to MySQL when the type is omitted
		return &MySQLDB{}, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// SupportedTypes lists the values accepted by NewDatabase.
func SupportedTypes() []string {
	return []string{"mysql", "mariadb", "postgres", "vastbase", "kingbase", "sqlite", "sqlserver", "oracle", "dameng", "mongodb", "custom"}
}
