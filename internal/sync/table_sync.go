package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	stdsync "sync"
	"time"

	"TableSync/internal/db"
)

// tableRun carries one table through its states. It is discarded after the table finishes.
type tableRun struct {
	engine    *SyncEngine
	cfg       SyncConfig
	run       *SyncRunReport
	source    db.Database
	dest      db.Database
	spec      TableSpec
	replacer  db.BulkReplacer
	chunkSize int

	state  TableState
	report TableReport
}

func (t *tableRun) log(level, msg string) {
	t.engine.appendLog(t.cfg.JobID, t.run, level, msg)
}

func (t *tableRun) enter(state TableState) {
	t.state = state
}

// fail records the state the table was in and ends it as FAILED.
func (t *tableRun) fail(err error) TableReport {
	t.report.Status = StateFailed
	t.report.FailedIn = t.state
	t.report.Err = err
	t.report.Reason = err.Error()

	var mismatch *SchemaMismatchError
	var write *WriteError
	var del *DeleteError
	switch {
	case errors.As(err, &mismatch):
		t.log("error", fmt.Sprintf("  -> 表结构不一致，已放弃该表：%v", err))
	case errors.As(err, &write):
		t.log("error", fmt.Sprintf("  -> 写入失败：%v", err))
	case errors.As(err, &del):
		t.log("error", fmt.Sprintf("  -> 删除核对失败：%v", err))
	default:
		t.log("error", fmt.Sprintf("  -> 同步失败（阶段=%s）：%v", t.state, err))
	}
	return t.report
}

// execute runs RESOLVING_WATERMARK → EXTRACTING → WRITING → (RECONCILING_DELETIONS) → DONE.
// Any error ends the table as FAILED; earlier committed chunks are kept.
func (t *tableRun) execute(ctx context.Context) (report TableReport) {
	start := time.Now()
	defer func() { report.Duration = time.Since(start) }()

	t.report = TableReport{
		Source:    t.spec.Source,
		Dest:      t.spec.Dest,
		Strategy:  t.spec.Strategy,
		ChunkSize: t.chunkSize,
	}
	t.log("info", fmt.Sprintf("正在同步表：%s → %s（策略=%s）", t.spec.Source, t.spec.Dest, t.spec.Strategy))

	t.enter(StateResolvingWatermark)
	wm, err := resolveWatermark(ctx, t.dest, t.spec.Dest, t.spec.Strategy, t.cfg)
	if err != nil {
		return t.fail(err)
	}
	t.report.Watermark = wm.String()
	if wm.Empty {
		t.log("info", fmt.Sprintf("  -> 目标表为空，同步全部行（%s %s %s）", wm.Column, wm.Op, wm.Value))
	} else {
		t.log("info", fmt.Sprintf("  -> 同步 %s 的行", wm))
	}

	var schema []string
	if cols, err := t.dest.GetColumns(ctx, t.spec.Dest); err != nil {
		t.log("warn", fmt.Sprintf("  -> 读取目标表列信息失败，按源数据列写入：%v", err))
	} else {
		for _, c := range cols {
			schema = append(schema, c.Name)
		}
	}

	t.enter(StateExtracting)
	stream, err := t.source.SelectRows(ctx, t.spec.Source, wm.Filter())
	if err != nil {
		return t.fail(&ReadError{Table: t.spec.Source, Op: "读取源表", Err: err})
	}
	closeStream := stdsync.OnceValue(stream.Close)
	defer closeStream()

	t.enter(StateWriting)
	writer := &upsertWriter{
		replacer:  t.replacer,
		table:     t.spec.Dest,
		keyColumn: t.cfg.idColumn(),
		schema:    schema,
		chunkSize: t.chunkSize,
	}
	written, err := writer.write(ctx, stream)
	t.report.RowsSynced = written.Rows
	t.report.Chunks = written.Chunks
	t.report.DroppedColumns = written.Dropped
	if len(written.Dropped) > 0 {
		t.log("warn", fmt.Sprintf("  -> 目标表缺少字段 %d 个，已忽略：%s", len(written.Dropped), strings.Join(written.Dropped, ", ")))
	}
	if err != nil {
		return t.fail(err)
	}
	// Release the source cursor before the deletion pass queries the source again.
	if err := closeStream(); err != nil {
		t.log("warn", fmt.Sprintf("  -> 关闭源表游标失败：%v", err))
	}
	t.log("info", fmt.Sprintf("  -> 已同步 %d 行（%d 个分块，每块最多 %d 行），耗时 %.2f 秒",
		written.Rows, written.Chunks, t.chunkSize, time.Since(start).Seconds()))

	if t.spec.Strategy == StrategyWatermark && t.cfg.SyncDeletions {
		t.enter(StateReconcilingDeletions)
		res, err := reconcileDeletions(ctx, t.source, t.dest, t.spec, t.cfg.idColumn())
		if err != nil {
			return t.fail(err)
		}
		t.log("info", fmt.Sprintf("  -> 删除核对：源表 %d 行，目标表 %d 行", res.SourceCount, res.DestCount))
		if len(res.Deleted) > 0 {
			t.report.RowsDeleted = res.Removed
			t.log("info", fmt.Sprintf("  -> 已删除 %d 行：%s", res.Removed, formatIDs(res.Deleted, 20)))
		} else {
			t.log("info", "  -> 没有需要删除的行")
		}
	}

	t.enter(StateDone)
	t.report.Status = StateDone
	return t.report
}
