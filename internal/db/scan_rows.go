package db

import (
	"database/sql"
	"fmt"
)

// sqlRowStream adapts *sql.Rows to RowStream. A scan failure ends the stream
// with an error instead of silently dropping the row.
type sqlRowStream struct {
	rows     *sql.Rows
	columns  []string
	dbTypes  []string
	values   []interface{}
	scanErr  error
	finished bool
}

func newSQLRowStream(rows *sql.Rows) (*sqlRowStream, error) {
	columns, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	dbTypes := make([]string, len(columns))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			if i < len(dbTypes) {
				dbTypes[i] = ct.DatabaseTypeName()
			}
		}
	}
	return &sqlRowStream{rows: rows, columns: columns, dbTypes: dbTypes}, nil
}

func (s *sqlRowStream) Next() bool {
	if s.finished {
		return false
	}
	if !s.rows.Next() {
		s.finished = true
		return false
	}

	raw := make([]interface{}, len(s.columns))
	ptrs := make([]interface{}, len(s.columns))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := s.rows.Scan(ptrs...); err != nil {
		s.scanErr = fmt.Errorf("读取数据行失败：%w", err)
		s.finished = true
		return false
	}

	for i := range raw {
		raw[i] = normalizeQueryValueWithDBType(raw[i], s.dbTypes[i])
	}
	s.values = raw
	return true
}

func (s *sqlRowStream) Columns() []string     { return s.columns }
func (s *sqlRowStream) Values() []interface{} { return s.values }

func (s *sqlRowStream) Err() error {
	if s.scanErr != nil {
		return s.scanErr
	}
	return s.rows.Err()
}

func (s *sqlRowStream) Close() error {
	return s.rows.Close()
}

// SliceStream is an in-memory RowStream, used by adapters that materialize
// results and by tests.
type SliceStream struct {
	columns [][]string
	rows    [][]interface{}
	pos     int
	err     error
}

// NewSliceStream builds a stream where every row shares the same columns.
func NewSliceStream(columns []string, rows [][]interface{}) *SliceStream {
	cols := make([][]string, len(rows))
	for i := range rows {
		cols[i] = columns
	}
	return &SliceStream{columns: cols, rows: rows, pos: -1}
}

// NewSliceStreamWithError yields the given rows and then reports err.
func NewSliceStreamWithError(columns []string, rows [][]interface{}, err error) *SliceStream {
	s := NewSliceStream(columns, rows)
	s.err = err
	return s
}

// AppendRow adds a row with its own column set.
func (s *SliceStream) AppendRow(columns []string, values []interface{}) {
	s.columns = append(s.columns, columns)
	s.rows = append(s.rows, values)
}

func (s *SliceStream) Next() bool {
	if s.pos+1 >= len(s.rows) {
		s.pos = len(s.rows)
		return false
	}
	s.pos++
	return true
}

func (s *SliceStream) Columns() []string {
	if s.pos < 0 || s.pos >= len(s.rows) {
		return nil
	}
	return s.columns[s.pos]
}

func (s *SliceStream) Values() []interface{} {
	if s.pos < 0 || s.pos >= len(s.rows) {
		return nil
	}
	return s.rows[s.pos]
}

func (s *SliceStream) Err() error {
	if s.pos >= len(s.rows) {
		return s.err
	}
	return nil
}

func (s *SliceStream) Close() error { return nil }
