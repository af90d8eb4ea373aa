package sync

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// TableState is a step of the per-table state machine.
type TableState string

const (
	StateResolvingWatermark   TableState = "RESOLVING_WATERMARK"
	StateExtracting           TableState = "EXTRACTING"
	StateWriting              TableState = "WRITING"
	StateReconcilingDeletions TableState = "RECONCILING_DELETIONS"
	StateDone                 TableState = "DONE"
	StateSkipped              TableState = "SKIPPED"
	StateFailed               TableState = "FAILED"
)

// TableReport is the outcome of one table in a run.
type TableReport struct {
	Source         string        `json:"source"`
	Dest           string        `json:"dest"`
	Strategy       Strategy      `json:"strategy"`
	Status         TableState    `json:"status"`             // DONE / SKIPPED / FAILED
	FailedIn       TableState    `json:"failedIn,omitempty"` // state the table was in when it failed
	Watermark      string        `json:"watermark,omitempty"`
	ChunkSize      int           `json:"chunkSize,omitempty"`
	Chunks         int           `json:"chunks"`
	RowsSynced     int64         `json:"rowsSynced"`
	RowsDeleted    int64         `json:"rowsDeleted"`
	DroppedColumns []string      `json:"droppedColumns,omitempty"`
	Duration       time.Duration `json:"duration"`
	Reason         string        `json:"reason,omitempty"`
	Err            error         `json:"-"`
}

// SyncRunReport summarizes a run. Success is false only when the run could not
// start (configuration or connectivity); per-table failures are in Tables.
type SyncRunReport struct {
	RunID      string        `json:"runId"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Success    bool          `json:"success"`
	Message    string        `json:"message"`
	Tables     []TableReport `json:"tables"`
	Logs       []string      `json:"logs"`
	Err        error         `json:"-"`
}

// Totals sums synced and deleted rows over all tables.
func (r SyncRunReport) Totals() (synced, deleted int64) {
	for _, t := range r.Tables {
		synced += t.RowsSynced
		deleted += t.RowsDeleted
	}
	return synced, deleted
}

// Count returns the number of tables that ended in status.
func (r SyncRunReport) Count(status TableState) int {
	n := 0
	for _, t := range r.Tables {
		if t.Status == status {
			n++
		}
	}
	return n
}

// Table finds the report of a destination table.
func (r SyncRunReport) Table(dest string) (TableReport, bool) {
	for _, t := range r.Tables {
		if t.Dest == dest {
			return t, true
		}
	}
	return TableReport{}, false
}

func (r SyncRunReport) Summary() string {
	synced, deleted := r.Totals()
	p := message.NewPrinter(language.SimplifiedChinese)
	return p.Sprintf("同步结束：成功 %d 张表，跳过 %d 张，失败 %d 张；同步 %d 行，删除 %d 行；耗时 %.1f 秒",
		r.Count(StateDone), r.Count(StateSkipped), r.Count(StateFailed), synced, deleted,
		r.FinishedAt.Sub(r.StartedAt).Seconds())
}
