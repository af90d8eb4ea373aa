package sync

import (
	"context"
	"fmt"

	"TableSync/internal/connection"
	"TableSync/internal/db"
)

// Watermark is the resume point of one table: every destination row at or
// below Value is assumed present. It is read once, before extraction.
type Watermark struct {
	Column string
	Op     string // ">=" for watermark tables, ">" for append-only tables
	Value  Value
	// Empty is set when the destination table has no rows yet.
	Empty bool
}

// Filter returns the source predicate for this watermark. An empty destination
// still filters on 0 or -1, so rows whose watermark column is NULL are never
// read by any pass.
func (w Watermark) Filter() *connection.RowFilter {
	return &connection.RowFilter{Column: w.Column, Op: w.Op, Value: w.Value.Interface()}
}

func (w Watermark) String() string {
	if w.Empty {
		return fmt.Sprintf("%s %s %s（目标表为空）", w.Column, w.Op, w.Value)
	}
	return fmt.Sprintf("%s %s %s", w.Column, w.Op, w.Value)
}

// resolveWatermark reads MAX(timemodified) or MAX(id) from the destination table.
// An empty table yields 0 or -1 respectively.
func resolveWatermark(ctx context.Context, dest db.Database, table string, strategy Strategy, cfg SyncConfig) (Watermark, error) {
	var w Watermark
	var empty Value
	switch strategy {
	case StrategyWatermark:
		w = Watermark{Column: cfg.timeModifiedColumn(), Op: ">="}
		empty = IntValue(0)
	case StrategyAppendOnly:
		w = Watermark{Column: cfg.idColumn(), Op: ">"}
		empty = IntValue(-1)
	default:
		return Watermark{}, configErrorf("未知同步策略：%q", strategy)
	}

	raw, err := dest.MaxValue(ctx, table, w.Column)
	if err != nil {
		return Watermark{}, &ReadError{Table: table, Op: "读取水位线", Err: err}
	}
	v := ValueOf(raw)
	if v.IsNull() {
		w.Value = empty
		w.Empty = true
		return w, nil
	}
	// Text-protocol drivers return numbers as strings; compare numerically at the source.
	if n, ok := v.Int(); ok {
		v = IntValue(n)
	}
	w.Value = v
	return w, nil
}
