package db

import (
	"context"
	"fmt"
	"strings"

	"TableSync/internal/connection"

	_ "gitea.com/kingbase/gokb" // Registers "kingbase" driver
)

type KingbaseDB struct {
	sqlBase
}

func quoteConnValue(v string) string {
	if v == "" {
		return "''"
	}

	needsQuote := false
	for _, r := range v {
		switch r {
		case ' ', '\t', '\n', '\r', '\v', '\f', '\'', '\\':
			needsQuote = true
		}
		if needsQuote {
			break
		}
	}
	if !needsQuote {
		return v
	}

	var b strings.Builder
	b.Grow(len(v) + 2)
	b.WriteByte('\'')
	for _, r := range v {
		if r == '\\' || r == '\'' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('\'')
	return b.String()
}

func (k *KingbaseDB) getDSN(config connection.ConnectionConfig) string {
	// host=localhost port=54321 user=system password=... dbname=TEST sslmode=disable
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable connect_timeout=%d",
		quoteConnValue(config.Host),
		config.Port,
		quoteConnValue(config.User),
		quoteConnValue(config.Password),
		quoteConnValue(config.Database),
		getConnectTimeoutSeconds(config),
	)
}

func (k *KingbaseDB) Connect(config connection.ConnectionConfig) error {
	k.dialect = postgresDialect()
	localConfig, forwarder, err := forwardThroughSSH(config, "人大金仓")
	if err != nil {
		return err
	}
	k.forwarder = forwarder
	return k.open("kingbase", k.getDSN(localConfig), config)
}

func (k *KingbaseDB) GetTables(ctx context.Context) ([]string, error) {
	return pgTables(ctx, &k.sqlBase)
}

func (k *KingbaseDB) GetColumns(ctx context.Context, tableName string) ([]connection.ColumnDefinition, error) {
	return pgColumns(ctx, &k.sqlBase, tableName)
}

// ReplaceRows uses the PostgreSQL-compatible ON CONFLICT upsert.
func (k *KingbaseDB) ReplaceRows(ctx context.Context, batch connection.ReplaceBatch) error {
	return pgReplaceRows(ctx, &k.sqlBase, batch)
}
