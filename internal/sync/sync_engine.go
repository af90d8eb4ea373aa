package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"TableSync/internal/connection"
	"TableSync/internal/db"
	"TableSync/internal/logger"
)

type SyncEngine struct {
	reporter Reporter
	chunks   *chunkSizePolicy
}

// NewSyncEngine returns an engine whose derived chunk size is computed once
// and reused by every run of this engine.
func NewSyncEngine(reporter Reporter) *SyncEngine {
	return &SyncEngine{reporter: reporter, chunks: &chunkSizePolicy{}}
}

// RunSync validates cfg, connects both sides, syncs every configured table and
// closes both connections. Configuration and connectivity problems fail the
// whole run before any table is touched.
func (s *SyncEngine) RunSync(ctx context.Context, cfg SyncConfig) SyncRunReport {
	run := s.newRun(&cfg)
	specs := cfg.TableSpecs()
	totalTables := len(specs)
	s.progress(cfg.JobID, 0, totalTables, "", "开始同步")

	if err := cfg.Validate(); err != nil {
		logger.Error(err, "同步配置校验失败")
		return s.fail(cfg.JobID, 0, totalTables, run, err)
	}
	logger.Infof("开始数据同步：源=%s 目标=%s 表数量=%d", formatConnSummaryForSync(cfg.SourceConfig), formatConnSummaryForSync(cfg.TargetConfig), totalTables)

	source, dest, err := s.connect(cfg, &run)
	if err != nil {
		return s.fail(cfg.JobID, 0, totalTables, run, err)
	}
	defer func() {
		if err := closeBoth(source, dest); err != nil {
			logger.Error(err, "关闭数据库连接失败")
		}
	}()

	s.runAll(ctx, cfg, source, dest, &run)
	return run
}

// RunWithDatabases runs the coordinator over connections the caller owns.
func (s *SyncEngine) RunWithDatabases(ctx context.Context, cfg SyncConfig, source, dest db.Database) SyncRunReport {
	run := s.newRun(&cfg)
	if err := cfg.Validate(); err != nil {
		return s.fail(cfg.JobID, 0, len(cfg.TableSpecs()), run, err)
	}
	s.runAll(ctx, cfg, source, dest, &run)
	return run
}

func (s *SyncEngine) newRun(cfg *SyncConfig) SyncRunReport {
	run := SyncRunReport{Success: true, StartedAt: time.Now(), Tables: []TableReport{}, Logs: []string{}}
	if strings.TrimSpace(cfg.JobID) == "" {
		cfg.JobID = uuid.NewString()
	}
	run.RunID = cfg.JobID
	return run
}

// connect opens the source and then the destination. A failure on either side
// is a ConnectivityError; a source opened before a destination failure is closed.
func (s *SyncEngine) connect(cfg SyncConfig, run *SyncRunReport) (db.Database, db.Database, error) {
	sourceDB, err := db.NewDatabase(cfg.SourceConfig.Type)
	if err != nil {
		return nil, nil, configErrorf("初始化源数据库驱动失败：%v", err)
	}
	targetDB, err := db.NewDatabase(cfg.TargetConfig.Type)
	if err != nil {
		return nil, nil, configErrorf("初始化目标数据库驱动失败：%v", err)
	}

	s.appendLog(cfg.JobID, run, "info", fmt.Sprintf("正在连接源数据库: %s...", cfg.SourceConfig.Host))
	if err := sourceDB.Connect(cfg.SourceConfig); err != nil {
		logger.Error(err, "源数据库连接失败：%s", formatConnSummaryForSync(cfg.SourceConfig))
		return nil, nil, &ConnectivityError{Side: SideSource, Err: err}
	}

	s.appendLog(cfg.JobID, run, "info", fmt.Sprintf("正在连接目标数据库: %s...", cfg.TargetConfig.Host))
	if err := targetDB.Connect(cfg.TargetConfig); err != nil {
		logger.Error(err, "目标数据库连接失败：%s", formatConnSummaryForSync(cfg.TargetConfig))
		if cerr := sourceDB.Close(); cerr != nil {
			logger.Warnf("关闭源数据库连接失败：%v", cerr)
		}
		return nil, nil, &ConnectivityError{Side: SideDestination, Err: err}
	}
	return sourceDB, targetDB, nil
}

func closeBoth(source, dest db.Database) error {
	var err error
	if dest != nil {
		err = multierr.Append(err, dest.Close())
	}
	if source != nil {
		err = multierr.Append(err, source.Close())
	}
	return err
}

// runAll syncs the tables in order, watermark tables first. The destination
// table list is read once; a table missing from it is skipped without any
// query against it, and a failed table never stops the tables after it.
func (s *SyncEngine) runAll(ctx context.Context, cfg SyncConfig, source, dest db.Database, run *SyncRunReport) {
	specs := cfg.TableSpecs()
	totalTables := len(specs)
	defer func() { run.FinishedAt = time.Now() }()

	destTables, err := dest.GetTables(ctx)
	if err != nil {
		s.failInPlace(cfg.JobID, 0, totalTables, run, &ConnectivityError{Side: SideDestination, Err: fmt.Errorf("读取目标表列表失败：%w", err)})
		return
	}
	index := newTableIndex(destTables)

	replacer, native, err := replacerFor(dest)
	if err != nil {
		s.failInPlace(cfg.JobID, 0, totalTables, run, configErrorf("%v", err))
		return
	}
	if !native {
		s.appendLog(cfg.JobID, run, "warn", "目标驱动不支持批量写入，将逐行写入")
	}

	chunkSize := 0
	for i, spec := range specs {
		func() {
			s.progress(cfg.JobID, i, totalTables, spec.Dest, fmt.Sprintf("同步表(%d/%d)", i+1, totalTables))
			defer s.progress(cfg.JobID, i+1, totalTables, spec.Dest, "表处理完成")

			var report TableReport
			defer func() {
				run.Tables = append(run.Tables, report)
				if s.reporter.OnTable != nil {
					s.reporter.OnTable(report)
				}
			}()

			if err := ctx.Err(); err != nil {
				report = TableReport{Source: spec.Source, Dest: spec.Dest, Strategy: spec.Strategy,
					Status: StateFailed, FailedIn: StateResolvingWatermark, Err: err, Reason: err.Error()}
				s.appendLog(cfg.JobID, run, "error", fmt.Sprintf("表 %s 未执行：同步已取消", spec.Dest))
				return
			}

			name, ok := index.lookup(spec.Dest)
			if !ok {
				err := fmt.Errorf("%w：%s", ErrDestinationTableMissing, spec.Dest)
				report = TableReport{Source: spec.Source, Dest: spec.Dest, Strategy: spec.Strategy,
					Status: StateSkipped, Err: err, Reason: err.Error()}
				s.appendLog(cfg.JobID, run, "warn", fmt.Sprintf("目标表 %s 不存在，已跳过", spec.Dest))
				return
			}
			spec.Dest = name

			if chunkSize == 0 {
				var origin string
				chunkSize, origin = s.chunks.resolve(ctx, dest, cfg.ChunkSize)
				s.appendLog(cfg.JobID, run, "info", fmt.Sprintf("分块大小：%d 行（来源：%s）", chunkSize, origin))
			}

			t := &tableRun{
				engine:    s,
				cfg:       cfg,
				run:       run,
				source:    source,
				dest:      dest,
				spec:      spec,
				replacer:  replacer,
				chunkSize: chunkSize,
			}
			report = t.execute(ctx)
			if report.Err != nil {
				logger.Error(report.Err, "表同步失败：%s → %s", spec.Source, spec.Dest)
			}
		}()
	}

	run.FinishedAt = time.Now()
	run.Message = run.Summary()
	s.appendLog(cfg.JobID, run, "info", run.Message)
	s.progress(cfg.JobID, totalTables, totalTables, "", "同步完成")
}

// tableIndex resolves configured destination names against the listed tables:
// an exact match first, then a unique case-insensitive one.
type tableIndex struct {
	exact map[string]struct{}
	fold  map[string][]string
}

func newTableIndex(tables []string) tableIndex {
	idx := tableIndex{exact: make(map[string]struct{}, len(tables)), fold: make(map[string][]string, len(tables))}
	for _, t := range tables {
		idx.exact[t] = struct{}{}
		lower := strings.ToLower(t)
		idx.fold[lower] = append(idx.fold[lower], t)
	}
	return idx
}

func (idx tableIndex) lookup(name string) (string, bool) {
	if _, ok := idx.exact[name]; ok {
		return name, true
	}
	if matches := idx.fold[strings.ToLower(name)]; len(matches) == 1 {
		return matches[0], true
	}
	return "", false
}

func formatConnSummaryForSync(config connection.ConnectionConfig) string {
	timeoutSeconds := config.Timeout
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}

	dbName := strings.TrimSpace(config.Database)
	if dbName == "" {
		dbName = "(default)"
	}

	return fmt.Sprintf("类型=%s 地址=%s:%d 数据库=%s 用户=%s 超时=%ds",
		config.Type, config.Host, config.Port, dbName, config.User, timeoutSeconds)
}

func (s *SyncEngine) appendLog(jobID string, res *SyncRunReport, level string, msg string) {
	if res != nil {
		res.Logs = append(res.Logs, msg)
	}
	logger.Log(level, msg)
	if s.reporter.OnLog != nil && strings.TrimSpace(jobID) != "" {
		s.reporter.OnLog(SyncLogEvent{
			JobID:   jobID,
			Level:   level,
			Message: msg,
			Ts:      time.Now().UnixMilli(),
		})
	}
}

func (s *SyncEngine) progress(jobID string, current, total int, table string, stage string) {
	if s.reporter.OnProgress == nil || strings.TrimSpace(jobID) == "" {
		return
	}
	percent := 0
	if total <= 0 {
		if current > 0 {
			percent = 100
		}
	} else {
		if current < 0 {
			current = 0
		}
		if current > total {
			current = total
		}
		percent = (current * 100) / total
	}
	s.reporter.OnProgress(SyncProgressEvent{
		JobID:   jobID,
		Percent: percent,
		Current: current,
		Total:   total,
		Table:   table,
		Stage:   stage,
	})
}

func (s *SyncEngine) fail(jobID string, done, totalTables int, run SyncRunReport, err error) SyncRunReport {
	s.failInPlace(jobID, done, totalTables, &run, err)
	return run
}

func (s *SyncEngine) failInPlace(jobID string, done, totalTables int, run *SyncRunReport, err error) {
	run.Success = false
	run.Err = err
	run.Message = err.Error()
	run.FinishedAt = time.Now()
	s.appendLog(jobID, run, "error", "致命错误: "+err.Error())
	s.progress(jobID, done, totalTables, "", "同步失败")
}

// IsFatal reports whether err stopped a run before any table was processed.
func IsFatal(err error) bool {
	var conn *ConnectivityError
	return errors.Is(err, ErrConfiguration) || errors.As(err, &conn)
}
