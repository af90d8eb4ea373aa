package sync

import (
	"context"
	"sort"
	"strings"

	"TableSync/internal/db"
)

type deletionResult struct {
	SourceCount int
	DestCount   int
	Deleted     []Value
	Removed     int64
}

// diffIDs returns the destination ids missing from the source, sorted.
// Both sets are held in memory in full.
func diffIDs(sourceIDs, destIDs []interface{}) []Value {
	src := make(map[string]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		src[ValueOf(id).Key()] = struct{}{}
	}

	var out []Value
	seen := make(map[string]struct{})
	for _, id := range destIDs {
		v := ValueOf(id)
		if v.IsNull() {
			continue
		}
		k := v.Key()
		if _, ok := src[k]; ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}

	sort.Slice(out, func(i, j int) bool {
		a, aok := out[i].Int()
		b, bok := out[j].Int()
		switch {
		case aok && bok:
			return a < b
		case aok != bok:
			return aok
		default:
			return out[i].String() < out[j].String()
		}
	})
	return out
}

// reconcileDeletions removes destination rows whose id no longer exists in the
// source, with a single delete-by-id-list call.
func reconcileDeletions(ctx context.Context, source, dest db.Database, spec TableSpec, idColumn string) (deletionResult, error) {
	var res deletionResult

	sourceIDs, err := source.SelectColumn(ctx, spec.Source, idColumn)
	if err != nil {
		return res, &ReadError{Table: spec.Source, Op: "读取源表主键", Err: err}
	}
	destIDs, err := dest.SelectColumn(ctx, spec.Dest, idColumn)
	if err != nil {
		return res, &ReadError{Table: spec.Dest, Op: "读取目标表主键", Err: err}
	}
	res.SourceCount = len(sourceIDs)
	res.DestCount = len(destIDs)

	res.Deleted = diffIDs(sourceIDs, destIDs)
	if len(res.Deleted) == 0 {
		return res, nil
	}

	ids := make([]interface{}, len(res.Deleted))
	for i, v := range res.Deleted {
		ids[i] = v.Interface()
	}
	n, err := dest.DeleteByIDs(ctx, spec.Dest, idColumn, ids)
	if err != nil {
		return res, &DeleteError{Table: spec.Dest, IDs: len(ids), Err: err}
	}
	res.Removed = n
	return res, nil
}

// formatIDs renders at most limit ids for a log line.
func formatIDs(ids []Value, limit int) string {
	parts := make([]string, 0, limit+1)
	for i, v := range ids {
		if i >= limit {
			parts = append(parts, "...")
			break
		}
		parts = append(parts, v.String())
	}
	return strings.Join(parts, ",")
}
