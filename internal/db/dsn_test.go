package db

import (
	"strings"
	"testing"

	"TableSync/internal/connection"
)

func TestPostgresDSN_EscapesPassword(t *testing.T) {
	p := &PostgresDB{}
	cfg := connection.ConnectionConfig{
		Type:     "postgres",
		Host:     "127.0.0.1",
		Port:     5432,
		User:     "user",
		Password: "p@ss:wo/rd",
		Database: "db",
	}

	dsn := p.getDSN(cfg)
	if strings.Contains(dsn, cfg.Password) {
		t.Fatalf("dsn 包含原始密码：%s", dsn)
	}
	if !strings.Contains(dsn, "p%40ss%3Awo%2Frd") {
		t.Fatalf("dsn 未正确转义密码：%s", dsn)
	}
	if !strings.Contains(dsn, "sslmode=disable") {
		t.Fatalf("dsn 缺少 sslmode 参数：%s", dsn)
	}
}

func TestOracleDSN_EscapesUserAndPassword(t *testing.T) {
	o := &OracleDB{}
	cfg := connection.ConnectionConfig{
		Type:     "oracle",
		Host:     "127.0.0.1",
		Port:     1521,
		User:     "u@ser",
		Password: "p@ss:wo/rd",
		Database: "svc/name",
	}

	dsn := o.getDSN(cfg)
	if strings.Contains(dsn, cfg.Password) {
		t.Fatalf("dsn 包含原始密码：%s", dsn)
	}
	if !strings.Contains(dsn, "u%40ser") || !strings.Contains(dsn, "p%40ss%3Awo%2Frd") {
		t.Fatalf("dsn 未正确转义 user/password：%s", dsn)
	}
	if !strings.Contains(dsn, "/svc%2Fname") {
		t.Fatalf("dsn 未正确转义 service：%s", dsn)
	}
}

func TestDamengDSN_EscapesPasswordAndEnablesEscapeProcess(t *testing.T) {
	d := &DamengDB{}
	cfg := connection.ConnectionConfig{
		Type:     "dameng",
		Host:     "127.0.0.1",
		Port:     5236,
		User:     "SYSDBA",
		Password: "p@ss:wo/rd",
		Database: "DBName",
	}

	dsn := d.getDSN(cfg)
	if strings.Contains(dsn, cfg.Password) {
		t.Fatalf("dsn 包含原始密码：%s", dsn)
	}
	if strings.Contains(dsn, "wo/rd") || !strings.Contains(dsn, "wo%2Frd") {
		t.Fatalf("dsn 未按达梦驱动要求转义密码（至少应转义 '/'）：%s", dsn)
	}
	if !strings.Contains(dsn, "escapeProcess=true") {
		t.Fatalf("dsn 缺少 escapeProcess=true：%s", dsn)
	}
	if !strings.Contains(dsn, "schema=DBName") {
		t.Fatalf("dsn 缺少 schema 参数：%s", dsn)
	}
}

func TestKingbaseDSN_QuotesPasswordWithSpaces(t *testing.T) {
	k := &KingbaseDB{}
	cfg := connection.ConnectionConfig{
		Type:     "kingbase",
		Host:     "127.0.0.1",
		Port:     54321,
		User:     "system",
		Password: "p@ss word",
		Database: "TEST",
	}

	dsn := k.getDSN(cfg)
	if !strings.Contains(dsn, "password='p@ss word'") {
		t.Fatalf("dsn 未对包含空格的密码进行引号包裹：%s", dsn)
	}
}

func TestSqlServerDSN_DefaultsToMaster(t *testing.T) {
	s := &SqlServerDB{}
	cfg := connection.ConnectionConfig{
		Type:     "sqlserver",
		Host:     "10.0.0.8",
		Port:     1433,
		User:     "sa",
		Password: "p@ss",
	}

	dsn := s.getDSN(cfg)
	if !strings.HasPrefix(dsn, "sqlserver://") {
		t.Fatalf("dsn 协议不正确：%s", dsn)
	}
	if !strings.Contains(dsn, "database=master") {
		t.Fatalf("dsn 未默认使用 master：%s", dsn)
	}
	if !strings.Contains(dsn, "connection+timeout=30") {
		t.Fatalf("dsn 缺少默认连接超时：%s", dsn)
	}
}

func TestMySQLDSN_UsesTimeoutAndCharset(t *testing.T) {
	m := &MySQLDB{}
	cfg := connection.ConnectionConfig{
		Type:     "mysql",
		Host:     "db.internal",
		Port:     3306,
		User:     "moodle",
		Password: "secret",
		Database: "moodle_report",
		Timeout:  12,
	}

	dsn := m.getDSN(cfg)
	if !strings.HasPrefix(dsn, "moodle:secret@tcp(db.internal:3306)/moodle_report?") {
		t.Fatalf("dsn 地址部分不正确：%s", dsn)
	}
	if !strings.Contains(dsn, "charset=utf8mb4") || !strings.Contains(dsn, "timeout=12s") {
		t.Fatalf("dsn 缺少字符集或超时参数：%s", dsn)
	}
}

func TestSQLiteDSN_FallsBackToDatabase(t *testing.T) {
	s := &SQLiteDB{}
	if got := s.getDSN(connection.ConnectionConfig{Database: " /tmp/a.db "}); got != "/tmp/a.db" {
		t.Fatalf("sqlite dsn 期望回退到 Database，实际=%q", got)
	}
	if got := s.getDSN(connection.ConnectionConfig{Host: "/tmp/b.db", Database: "/tmp/a.db"}); got != "/tmp/b.db" {
		t.Fatalf("sqlite dsn 应优先使用 Host，实际=%q", got)
	}
}

func TestNewDatabase_KnownAndUnknownTypes(t *testing.T) {
	for _, typ := range SupportedTypes() {
		if _, err := NewDatabase(typ); err != nil {
			t.Fatalf("类型 %s 应被支持：%v", typ, err)
		}
	}
	if _, err := NewDatabase("tdengine"); err == nil {
		t.Fatalf("未知类型应返回错误")
	}
}
