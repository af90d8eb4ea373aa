package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"TableSync/internal/connection"

	"github.com/google/go-cmp/cmp"
)

// changedRowsDriver mimics MySQL's default affected-rows semantics: an UPDATE
// that writes identical values reports 0 rows. The first bound column is the key.
type changedRowsDriver struct{}

type changedRowsTable struct {
	mu         sync.Mutex
	rows       map[string][]string
	statements []string
}

var changedRowsTables sync.Map // dsn -> *changedRowsTable

func init() {
	sql.Register("tablesync_changedrows", changedRowsDriver{})
}

func (changedRowsDriver) Open(name string) (driver.Conn, error) {
	t, _ := changedRowsTables.LoadOrStore(name, &changedRowsTable{rows: map[string][]string{}})
	return &changedRowsConn{table: t.(*changedRowsTable)}, nil
}

type changedRowsConn struct {
	table *changedRowsTable
}

func (c *changedRowsConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}
func (c *changedRowsConn) Close() error              { return nil }
func (c *changedRowsConn) Begin() (driver.Tx, error) { return nil, errors.New("tx not supported") }

func argStrings(args []driver.NamedValue) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = fmt.Sprint(a.Value)
	}
	return out
}

func (c *changedRowsConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	t := c.table
	t.mu.Lock()
	defer t.mu.Unlock()
	vals := argStrings(args)

	switch {
	case strings.HasPrefix(query, "UPDATE"):
		t.statements = append(t.statements, "UPDATE")
		key := vals[len(vals)-1]
		cur, ok := t.rows[key]
		if !ok {
			return driver.RowsAffected(0), nil
		}
		next := append([]string{key}, vals[:len(vals)-1]...)
		if cmp.Equal(cur, next) {
			return driver.RowsAffected(0), nil
		}
		t.rows[key] = next
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(query, "INSERT"):
		t.statements = append(t.statements, "INSERT")
		if _, ok := t.rows[vals[0]]; ok {
			return nil, fmt.Errorf("Error 1062: Duplicate entry '%s' for key 'PRIMARY'", vals[0])
		}
		t.rows[vals[0]] = vals
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("unexpected statement: %s", query)
}

func (c *changedRowsConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	t := c.table
	t.mu.Lock()
	defer t.mu.Unlock()
	if !strings.HasPrefix(query, "SELECT COUNT(*)") {
		return nil, fmt.Errorf("unexpected query: %s", query)
	}
	t.statements = append(t.statements, "COUNT")
	var n int64
	if _, ok := t.rows[argStrings(args)[0]]; ok {
		n = 1
	}
	return &countRows{n: n}, nil
}

type countRows struct {
	n    int64
	done bool
}

func (r *countRows) Columns() []string { return []string{"count"} }
func (r *countRows) Close() error      { return nil }
func (r *countRows) Next(dest []driver.Value) error {
	if r.done {
		return io.EOF
	}
	r.done = true
	dest[0] = r.n
	return nil
}

func TestCustomUpsertRow_UnchangedRowIsNotReinserted(t *testing.T) {
	c := &CustomDB{}
	if err := c.Connect(connection.ConnectionConfig{Type: "custom", Driver: "tablesync_changedrows", DSN: t.Name()}); err != nil {
		t.Fatalf("连接失败：%v", err)
	}
	defer c.Close()
	v, _ := changedRowsTables.Load(t.Name())
	table := v.(*changedRowsTable)

	ctx := context.Background()
	columns := []string{"id", "name"}
	for i, values := range [][]interface{}{
		{int64(3), "quiz"},
		{int64(3), "quiz"}, // 与上次相同：UPDATE 影响 0 行
		{int64(3), "exam"},
	} {
		if err := c.UpsertRow(ctx, "mdl_grade_items", "id", columns, values); err != nil {
			t.Fatalf("第 %d 次写入失败：%v", i+1, err)
		}
	}

	want := []string{
		"UPDATE", "COUNT", "INSERT", // 新行
		"UPDATE", "COUNT", // 已存在且未变化，不应再次 INSERT
		"UPDATE", // 已存在且有变化
	}
	if diff := cmp.Diff(want, table.statements); diff != "" {
		t.Fatalf("执行的语句不符 (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"3", "exam"}, table.rows["3"]); diff != "" {
		t.Fatalf("行内容不符 (-want +got):\n%s", diff)
	}
}
