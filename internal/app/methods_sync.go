package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TableSync/internal/logger"
	"TableSync/internal/redis"
	"TableSync/internal/sync"

	"github.com/google/uuid"
)

// ErrAlreadyRunning is returned when a run is requested while another holds the lock.
var ErrAlreadyRunning = errors.New("同步任务已在运行")

// RunSync executes one run in the foreground. A run-level failure
// (configuration, connectivity) is returned as the error; table failures are
// only in the report.
func (a *App) RunSync(ctx context.Context) (sync.SyncRunReport, error) {
	lease, err := a.acquire(ctx)
	if err != nil {
		return sync.SyncRunReport{}, err
	}
	report := a.runLocked(ctx, lease, uuid.NewString())
	if !report.Success {
		return report, report.Err
	}
	return report, nil
}

// TriggerSync starts a run in the background and returns its id at once.
// The lock is taken before returning so a concurrent trigger sees ErrAlreadyRunning.
func (a *App) TriggerSync() (string, error) {
	lease, err := a.acquire(a.ctx)
	if err != nil {
		return "", err
	}
	runID := uuid.NewString()
	a.runs.Add(1)
	go func() {
		defer a.runs.Done()
		a.runLocked(a.ctx, lease, runID)
	}()
	return runID, nil
}

func (a *App) acquire(ctx context.Context) (redis.Lease, error) {
	if a.lock == nil {
		return nil, fmt.Errorf("运行锁未初始化，请先调用 Startup")
	}
	lease, err := a.lock.Acquire(ctx, a.cfg.lockKey(), a.cfg.lockTTL())
	if errors.Is(err, redis.ErrLocked) {
		return nil, ErrAlreadyRunning
	}
	return lease, err
}

func (a *App) runLocked(ctx context.Context, lease redis.Lease, runID string) sync.SyncRunReport {
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			logger.Error(err, "释放运行锁失败：%s", lease.Key())
		}
	}()

	cfg := a.cfg.SyncConfig
	cfg.JobID = runID
	report := a.engine.RunSync(ctx, cfg)
	a.metrics.ObserveRun(report)
	a.setLast(report)

	if a.cfg.ReportDir != "" {
		path, err := ExportReport(report, a.cfg.ReportDir, a.cfg.reportFormat())
		if err != nil {
			logger.Error(err, "导出同步报告失败")
		} else {
			logger.Infof("同步报告已导出：%s", path)
		}
	}
	return report
}

// Analyze reports, per table, what a run would do without writing anything.
func (a *App) Analyze(ctx context.Context) sync.SyncAnalyzeResult {
	cfg := a.cfg.SyncConfig
	cfg.JobID = uuid.NewString()
	return a.engine.Analyze(ctx, cfg)
}

// TestConnection connects to the destination and lists which configured tables exist.
func (a *App) TestConnection(ctx context.Context) sync.DestinationCheck {
	return a.engine.CheckDestination(ctx, a.cfg.SyncConfig)
}
