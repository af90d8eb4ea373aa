package sync

// SyncLogEvent is one log line of a run.
type SyncLogEvent struct {
	JobID   string `json:"jobId"`
	Level   string `json:"level"` // info/warn/error
	Message string `json:"message"`
	Ts      int64  `json:"ts"` // Unix milli
}

type SyncProgressEvent struct {
	JobID   string `json:"jobId"`
	Percent int    `json:"percent"`
	Current int    `json:"current"` // 已完成表数
	Total   int    `json:"total"`   // 总表数
	Table   string `json:"table,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

// Reporter receives run events. Every callback is optional and is only
// invoked for runs that carry a JobID.
type Reporter struct {
	OnLog      func(event SyncLogEvent)
	OnProgress func(event SyncProgressEvent)
	// OnTable is called once per table with its final report.
	OnTable func(report TableReport)
}
