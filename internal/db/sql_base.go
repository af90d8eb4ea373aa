package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"TableSync/internal/connection"
	"TableSync/internal/logger"
	"TableSync/internal/ssh"
	"TableSync/internal/utils"
)

const (
	defaultMaxDeleteIDs = 1000
	// PostgreSQL, MySQL prepared statements and Oracle bind at most 65535 parameters.
	defaultMaxParams = 65535
	// SQLITE_MAX_VARIABLE_NUMBER since SQLite 3.32.
	sqliteMaxParams = 32766
	// SQL Server rejects statements with more than 2100 parameters.
	sqlServerMaxParams = 2000
)

// sqlDialect captures the per-engine differences of the shared database/sql code.
type sqlDialect struct {
	name        string
	quote       func(ident string) string
	placeholder func(n int) string // 1-based
	// maxDeleteIDs caps the ids bound into one DELETE ... IN (...) statement.
	maxDeleteIDs int
	// maxParams caps the parameters bound into one write statement; 0 means no split.
	maxParams int
}

func quoteBacktick(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func quoteDouble(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func questionPlaceholder(int) string { return "?" }

func dollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// sqlBase implements the engine-facing operations on top of database/sql.
// Engine files embed it and add DSN building, schema listing and the write path.
type sqlBase struct {
	conn        *sql.DB
	pingTimeout time.Duration
	dialect     sqlDialect
	forwarder   *ssh.LocalForwarder
}

func (b *sqlBase) open(driverName, dsn string, config connection.ConnectionConfig) error {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("打开数据库连接失败：%w", err)
	}
	b.conn = db
	b.pingTimeout = getConnectTimeout(config)

	// Force verification
	if err := b.Ping(); err != nil {
		_ = db.Close()
		b.conn = nil
		return fmt.Errorf("连接建立后验证失败：%w", err)
	}
	return nil
}

func (b *sqlBase) Close() error {
	if b.forwarder != nil {
		if err := b.forwarder.Close(); err != nil {
			logger.Warnf("关闭 %s SSH 端口转发失败：%v", b.dialect.name, err)
		}
		b.forwarder = nil
	}

	if b.conn != nil {
		err := b.conn.Close()
		b.conn = nil
		return err
	}
	return nil
}

func (b *sqlBase) Ping() error {
	if b.conn == nil {
		return fmt.Errorf("connection not open")
	}
	timeout := b.pingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := utils.ContextWithTimeout(timeout)
	defer cancel()
	return b.conn.PingContext(ctx)
}

func (b *sqlBase) quoteTable(name string) string {
	raw := strings.TrimSpace(name)
	parts := strings.Split(raw, ".")
	if len(parts) <= 1 {
		return b.dialect.quote(raw)
	}
	quoted := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		quoted = append(quoted, b.dialect.quote(part))
	}
	if len(quoted) == 0 {
		return b.dialect.quote(raw)
	}
	return strings.Join(quoted, ".")
}

func (b *sqlBase) quoteColumns(columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = b.dialect.quote(c)
	}
	return out
}

// placeholders renders count consecutive placeholders starting at position start (1-based).
func (b *sqlBase) placeholders(start, count int) string {
	parts := make([]string, count)
	for i := 0; i < count; i++ {
		parts[i] = b.dialect.placeholder(start + i)
	}
	return strings.Join(parts, ", ")
}

func (b *sqlBase) whereClause(filter *connection.RowFilter, start int) (string, []interface{}, error) {
	if filter == nil {
		return "", nil, nil
	}
	switch filter.Op {
	case ">", ">=":
	default:
		return "", nil, fmt.Errorf("unsupported filter operator: %q", filter.Op)
	}
	return fmt.Sprintf(" WHERE %s %s %s", b.dialect.quote(filter.Column), filter.Op, b.dialect.placeholder(start)), []interface{}{filter.Value}, nil
}

// StreamSelect runs a parameterized query and returns a streamed cursor over it.
func (b *sqlBase) StreamSelect(ctx context.Context, query string, args ...interface{}) (RowStream, error) {
	if b.conn == nil {
		return nil, fmt.Errorf("connection not open")
	}
	rows, err := b.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return newSQLRowStream(rows)
}

// QueryScalar returns the first column of the first row, nil when there is no row.
func (b *sqlBase) QueryScalar(ctx context.Context, query string, args ...interface{}) (interface{}, error) {
	if b.conn == nil {
		return nil, fmt.Errorf("connection not open")
	}
	rows, err := b.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types, _ := rows.ColumnTypes()
	if !rows.Next() {
		return nil, rows.Err()
	}
	var v interface{}
	if err := rows.Scan(&v); err != nil {
		return nil, err
	}
	typeName := ""
	if len(types) > 0 {
		typeName = types[0].DatabaseTypeName()
	}
	return normalizeQueryValueWithDBType(v, typeName), rows.Err()
}

func (b *sqlBase) execContext(ctx context.Context, query string, args ...interface{}) (int64, error) {
	if b.conn == nil {
		return 0, fmt.Errorf("connection not open")
	}
	res, err := b.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (b *sqlBase) queryStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	stream, err := b.StreamSelect(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var out []string
	for stream.Next() {
		vals := stream.Values()
		if len(vals) == 0 || vals[0] == nil {
			continue
		}
		out = append(out, fmt.Sprintf("%v", vals[0]))
	}
	return out, stream.Err()
}

func (b *sqlBase) MaxValue(ctx context.Context, tableName, column string) (interface{}, error) {
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", b.dialect.quote(column), b.quoteTable(tableName))
	return b.QueryScalar(ctx, query)
}

func (b *sqlBase) SelectRows(ctx context.Context, tableName string, filter *connection.RowFilter) (RowStream, error) {
	where, args, err := b.whereClause(filter, 1)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s%s", b.quoteTable(tableName), where)
	return b.StreamSelect(ctx, query, args...)
}

func (b *sqlBase) CountRows(ctx context.Context, tableName string, filter *connection.RowFilter) (int64, error) {
	where, args, err := b.whereClause(filter, 1)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", b.quoteTable(tableName), where)
	v, err := b.QueryScalar(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return toInt64(v)
}

func (b *sqlBase) SelectColumn(ctx context.Context, tableName, column string) ([]interface{}, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", b.dialect.quote(column), b.quoteTable(tableName))
	stream, err := b.StreamSelect(ctx, query)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var out []interface{}
	for stream.Next() {
		vals := stream.Values()
		if len(vals) == 0 {
			continue
		}
		out = append(out, vals[0])
	}
	return out, stream.Err()
}

func (b *sqlBase) DeleteByIDs(ctx context.Context, tableName, column string, ids []interface{}) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	limit := b.dialect.maxDeleteIDs
	if limit <= 0 {
		limit = defaultMaxDeleteIDs
	}

	var total int64
	for start := 0; start < len(ids); start += limit {
		end := start + limit
		if end > len(ids) {
			end = len(ids)
		}
		part := ids[start:end]
		query := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)",
			b.quoteTable(tableName), b.dialect.quote(column), b.placeholders(1, len(part)))
		n, err := b.execContext(ctx, query, part...)
		if err != nil {
			return total, fmt.Errorf("删除数据失败：%w", err)
		}
		total += n
	}
	return total, nil
}

// multiRowValues renders "(p, p), (p, p)" for a chunk and flattens its arguments.
func (b *sqlBase) multiRowValues(batch connection.ReplaceBatch) (string, []interface{}) {
	width := len(batch.Columns)
	groups := make([]string, 0, len(batch.Rows))
	args := make([]interface{}, 0, width*len(batch.Rows))
	pos := 1
	for _, row := range batch.Rows {
		groups = append(groups, "("+b.placeholders(pos, width)+")")
		pos += width
		args = append(args, row...)
	}
	return strings.Join(groups, ", "), args
}

// splitByParams hands write consecutive parts of batch small enough to stay
// within the dialect's parameter limit. A batch that already fits is passed as is.
func (b *sqlBase) splitByParams(batch connection.ReplaceBatch, write func(part connection.ReplaceBatch) error) error {
	limit := b.dialect.maxParams
	if limit <= 0 || len(batch.Rows)*len(batch.Columns) <= limit {
		return write(batch)
	}
	rowsPerStmt := limit / len(batch.Columns)
	if rowsPerStmt < 1 {
		return fmt.Errorf("表 %s 有 %d 列，超出 %s 单条语句 %d 个参数的上限", batch.Table, len(batch.Columns), b.dialect.name, limit)
	}
	for start := 0; start < len(batch.Rows); start += rowsPerStmt {
		end := start + rowsPerStmt
		if end > len(batch.Rows) {
			end = len(batch.Rows)
		}
		part := batch
		part.Rows = batch.Rows[start:end]
		if err := write(part); err != nil {
			return err
		}
	}
	return nil
}

func validateBatch(batch connection.ReplaceBatch) error {
	if strings.TrimSpace(batch.Table) == "" {
		return fmt.Errorf("table name required")
	}
	if len(batch.Columns) == 0 {
		return fmt.Errorf("no columns to write for table %s", batch.Table)
	}
	for i, row := range batch.Rows {
		if len(row) != len(batch.Columns) {
			return fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(batch.Columns))
		}
	}
	return nil
}

// updateThenInsert is the portable single-row upsert used by engines without a
// native merge statement.
func (b *sqlBase) updateThenInsert(ctx context.Context, tableName, keyColumn string, columns []string, values []interface{}) error {
	keyIdx := indexOfFold(columns, keyColumn)
	if keyIdx < 0 {
		return fmt.Errorf("key column %s missing from row", keyColumn)
	}

	sets := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns))
	pos := 1
	for i, c := range columns {
		if i == keyIdx {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", b.dialect.quote(c), b.dialect.placeholder(pos)))
		args = append(args, values[i])
		pos++
	}

	if len(sets) > 0 {
		args = append(args, values[keyIdx])
		query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
			b.quoteTable(tableName), strings.Join(sets, ", "), b.dialect.quote(columns[keyIdx]), b.dialect.placeholder(pos))
		n, err := b.execContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update error: %w", err)
		}
		if n > 0 {
			return nil
		}
	}

	// Zero affected rows is ambiguous: MySQL counts changed rows, so an update
	// that rewrites identical values reports 0 for an existing key.
	cnt, err := b.QueryScalar(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = %s",
		b.quoteTable(tableName), b.dialect.quote(columns[keyIdx]), b.dialect.placeholder(1)), values[keyIdx])
	if err != nil {
		return fmt.Errorf("count error: %w", err)
	}
	if n, _ := toInt64(cnt); n > 0 {
		return nil
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		b.quoteTable(tableName), strings.Join(b.quoteColumns(columns), ", "), b.placeholders(1, len(columns)))
	if _, err := b.execContext(ctx, query, values...); err != nil {
		return fmt.Errorf("insert error: %w", err)
	}
	return nil
}

func indexOfFold(list []string, name string) int {
	for i, v := range list {
		if strings.EqualFold(v, name) {
			return i
		}
	}
	return -1
}

func toInt64(v interface{}) (int64, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return val, nil
	case int32:
		return int64(val), nil
	case int:
		return int64(val), nil
	case uint64:
		return int64(val), nil
	case float64:
		return int64(val), nil
	case string:
		var n int64
		if _, err := fmt.Sscanf(strings.TrimSpace(val), "%d", &n); err != nil {
			return 0, fmt.Errorf("无法解析整数：%q", val)
		}
		return n, nil
	default:
		var n int64
		if _, err := fmt.Sscanf(strings.TrimSpace(fmt.Sprintf("%v", v)), "%d", &n); err != nil {
			return 0, fmt.Errorf("无法解析整数：%v(%T)", v, v)
		}
		return n, nil
	}
}
