package db

import (
	"TableSync/internal/connection"

	_ "github.com/lib/pq" // Vastbase is PostgreSQL compatible
)

// VastbaseDB is PostgreSQL compatible and reuses the lib/pq driver.
type VastbaseDB struct {
	PostgresDB
}

func (v *VastbaseDB) getDSN(config connection.ConnectionConfig) string {
	return postgresURL(config, "vastbase")
}

func (v *VastbaseDB) Connect(config connection.ConnectionConfig) error {
	v.dialect = postgresDialect()
	localConfig, forwarder, err := forwardThroughSSH(config, "Vastbase")
	if err != nil {
		return err
	}
	v.forwarder = forwarder
	return v.open("postgres", v.getDSN(localConfig), config)
}
