package sync

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustRow(t *testing.T, cols []string, vals ...interface{}) Row {
	t.Helper()
	row, err := NewRow(cols, vals)
	if err != nil {
		t.Fatalf("构造行失败：%v", err)
	}
	return row
}

func TestNormalizeColumns_FollowsDestinationOrder(t *testing.T) {
	sample := mustRow(t, []string{"timemodified", "name", "id", "extra"}, int64(1), "a", int64(9), "x")
	cs, err := NormalizeColumns("grade_items", sample, []string{"ID", "name", "timemodified", "dest_only"}, "id")
	if err != nil {
		t.Fatalf("NormalizeColumns 失败：%v", err)
	}
	if diff := cmp.Diff([]string{"ID", "name", "timemodified"}, cs.Names()); diff != "" {
		t.Fatalf("列顺序不符 (-want +got):\n%s", diff)
	}
	if cs.Key() != "ID" {
		t.Fatalf("主键列应使用目标端写法，实际=%s", cs.Key())
	}
	if diff := cmp.Diff([]string{"extra"}, cs.Dropped()); diff != "" {
		t.Fatalf("忽略列不符 (-want +got):\n%s", diff)
	}

	vals, err := cs.Project(sample, 1)
	if err != nil {
		t.Fatalf("Project 失败：%v", err)
	}
	if diff := cmp.Diff([]interface{}{int64(9), "a", int64(1)}, vals); diff != "" {
		t.Fatalf("投影结果不符 (-want +got):\n%s", diff)
	}
}

func TestNormalizeColumns_NoSchemaKeepsSampleOrder(t *testing.T) {
	sample := mustRow(t, []string{"b", "id", "a"}, 1, 2, 3)
	cs, err := NormalizeColumns("t", sample, nil, "id")
	if err != nil {
		t.Fatalf("NormalizeColumns 失败：%v", err)
	}
	if diff := cmp.Diff([]string{"b", "id", "a"}, cs.Names()); diff != "" {
		t.Fatalf("列顺序不符 (-want +got):\n%s", diff)
	}
}

func TestNormalizeColumns_MissingKey(t *testing.T) {
	sample := mustRow(t, []string{"name"}, "a")
	_, err := NormalizeColumns("t", sample, nil, "id")
	var mismatch *SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("缺少主键列应返回 SchemaMismatchError，实际=%v", err)
	}
}

func TestNormalizeColumns_DuplicateColumn(t *testing.T) {
	sample := mustRow(t, []string{"id", "ID"}, 1, 1)
	if _, err := NormalizeColumns("t", sample, nil, "id"); err == nil {
		t.Fatalf("重复列应返回错误")
	}
}

func TestProject_AcceptsReorderedRow(t *testing.T) {
	sample := mustRow(t, []string{"id", "name"}, int64(1), "a")
	cs, err := NormalizeColumns("t", sample, nil, "id")
	if err != nil {
		t.Fatalf("NormalizeColumns 失败：%v", err)
	}
	vals, err := cs.Project(mustRow(t, []string{"name", "id"}, "b", int64(2)), 2)
	if err != nil {
		t.Fatalf("同一列集合的不同顺序应被接受：%v", err)
	}
	if diff := cmp.Diff([]interface{}{int64(2), "b"}, vals); diff != "" {
		t.Fatalf("投影结果不符 (-want +got):\n%s", diff)
	}
}

func TestProject_RejectsDifferentColumnSet(t *testing.T) {
	sample := mustRow(t, []string{"id", "name"}, int64(1), "a")
	cs, err := NormalizeColumns("t", sample, nil, "id")
	if err != nil {
		t.Fatalf("NormalizeColumns 失败：%v", err)
	}

	for _, row := range []Row{
		mustRow(t, []string{"id"}, int64(2)),
		mustRow(t, []string{"id", "title"}, int64(2), "b"),
		mustRow(t, []string{"id", "name", "extra"}, int64(2), "b", "c"),
	} {
		_, err := cs.Project(row, 5)
		var mismatch *SchemaMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("列集合不同应返回 SchemaMismatchError：列=%v 错误=%v", row.Columns(), err)
		}
		if mismatch.RowNumber != 5 {
			t.Fatalf("行号错误：期望=5 实际=%d", mismatch.RowNumber)
		}
	}
}
