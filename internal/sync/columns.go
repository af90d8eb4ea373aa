package sync

import (
	"fmt"
	"strings"
)

// ColumnSet is the fixed column order used for every write of one table in one pass.
// It is derived from the first row and the destination schema.
type ColumnSet struct {
	table   string
	names   []string // destination spelling, destination order
	key     string
	srcIdx  []int    // position of names[i] in the sample row
	sample  []string // sample row columns, read order
	lookup  map[string]int
	dropped []string
}

// NormalizeColumns fixes the column order for a table pass. Order follows the
// destination schema restricted to the columns present on the sample row;
// destination-only columns are not written and source-only columns are
// dropped. With no schema the sample's own order is used. The key column is
// always kept.
func NormalizeColumns(table string, sample Row, schema []string, keyColumn string) (*ColumnSet, error) {
	if sample.Len() == 0 {
		return nil, &SchemaMismatchError{Table: table, RowNumber: 1, Reason: "首行没有任何列"}
	}

	lookup := make(map[string]int, sample.Len())
	for i, c := range sample.Columns() {
		lower := strings.ToLower(strings.TrimSpace(c))
		if _, dup := lookup[lower]; dup {
			return nil, &SchemaMismatchError{Table: table, RowNumber: 1, Reason: fmt.Sprintf("列 %s 重复", c)}
		}
		lookup[lower] = i
	}

	cs := &ColumnSet{table: table, lookup: lookup, sample: append([]string(nil), sample.Columns()...)}
	if len(schema) == 0 {
		cs.names = append([]string(nil), sample.Columns()...)
		cs.srcIdx = make([]int, len(cs.names))
		for i := range cs.srcIdx {
			cs.srcIdx[i] = i
		}
	} else {
		used := make(map[int]bool, len(schema))
		for _, col := range schema {
			idx, ok := lookup[strings.ToLower(strings.TrimSpace(col))]
			if !ok || used[idx] {
				continue
			}
			used[idx] = true
			cs.names = append(cs.names, col)
			cs.srcIdx = append(cs.srcIdx, idx)
		}
		for i, c := range sample.Columns() {
			if !used[i] {
				cs.dropped = append(cs.dropped, c)
			}
		}
	}

	for _, n := range cs.names {
		if strings.EqualFold(n, keyColumn) {
			cs.key = n
			break
		}
	}
	if cs.key == "" {
		return nil, &SchemaMismatchError{
			Table:     table,
			RowNumber: 1,
			Expected:  []string{keyColumn},
			Got:       sample.Columns(),
			Reason:    fmt.Sprintf("缺少主键列 %s（源表或目标表中不存在）", keyColumn),
		}
	}
	if len(cs.names) == 0 {
		return nil, &SchemaMismatchError{Table: table, RowNumber: 1, Reason: "源表与目标表没有共同列"}
	}
	return cs, nil
}

// Names returns the write order.
func (c *ColumnSet) Names() []string { return c.names }

// Key returns the key column in destination spelling.
func (c *ColumnSet) Key() string { return c.key }

// Dropped lists source columns the destination does not have.
func (c *ColumnSet) Dropped() []string { return c.dropped }

// Project checks that row carries the same column set as the sample and
// returns its values in write order. rowNumber is 1-based within the pass.
func (c *ColumnSet) Project(row Row, rowNumber int) ([]interface{}, error) {
	cols := row.Columns()
	if len(cols) != len(c.sample) {
		return nil, c.mismatch(row, rowNumber)
	}

	sameOrder := true
	for i, col := range cols {
		if !strings.EqualFold(col, c.sample[i]) {
			sameOrder = false
			break
		}
	}

	vals := row.Values()
	out := make([]interface{}, len(c.names))
	if sameOrder {
		for i, idx := range c.srcIdx {
			out[i] = vals[idx].Interface()
		}
		return out, nil
	}

	// Same set in another order: map by name.
	pos := make([]int, len(c.sample))
	seen := make([]bool, len(c.sample))
	for i, col := range cols {
		idx, ok := c.lookup[strings.ToLower(strings.TrimSpace(col))]
		if !ok || seen[idx] {
			return nil, c.mismatch(row, rowNumber)
		}
		seen[idx] = true
		pos[idx] = i
	}
	for i, idx := range c.srcIdx {
		out[i] = vals[pos[idx]].Interface()
	}
	return out, nil
}

func (c *ColumnSet) mismatch(row Row, rowNumber int) error {
	return &SchemaMismatchError{
		Table:     c.table,
		RowNumber: rowNumber,
		Expected:  append([]string(nil), c.sample...),
		Got:       append([]string(nil), row.Columns()...),
	}
}
