package app

import (
	"context"
	"fmt"
	stdsync "sync"

	"TableSync/internal/logger"
	"TableSync/internal/redis"
	"TableSync/internal/ssh"
	"TableSync/internal/sync"
)

// App struct
type App struct {
	ctx     context.Context
	cfg     Config
	engine  *sync.SyncEngine
	lock    redis.RunLock
	metrics *Metrics

	mu       stdsync.Mutex // guards last and progress
	last     *sync.SyncRunReport
	progress *sync.SyncProgressEvent
	runs     stdsync.WaitGroup
}

// NewApp creates the host around one sync definition. The engine is shared
// by every run so the derived chunk size is computed once per process.
func NewApp(cfg Config) *App {
	a := &App{
		ctx:     context.Background(),
		cfg:     cfg,
		metrics: NewMetrics(),
	}
	a.engine = sync.NewSyncEngine(sync.Reporter{
		OnTable:    a.metrics.ObserveTable,
		OnProgress: a.onProgress,
	})
	return a
}

// Startup opens the run lock. The context bounds runs started by the
// scheduler and the HTTP trigger.
func (a *App) Startup(ctx context.Context) error {
	a.ctx = ctx
	if a.cfg.Redis != nil && a.cfg.Redis.Host != "" {
		lock, err := redis.NewRedisLock(*a.cfg.Redis, "")
		if err != nil {
			return fmt.Errorf("初始化 Redis 运行锁失败：%w", err)
		}
		a.lock = lock
		return nil
	}
	a.lock = redis.NewLocalLock()
	return nil
}

// Shutdown waits for background runs and releases shared resources.
func (a *App) Shutdown(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		a.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warnf("等待同步任务结束超时，强制退出")
	}

	if a.lock != nil {
		if err := a.lock.Close(); err != nil {
			logger.Error(err, "关闭运行锁失败")
		}
	}
	if err := ssh.CloseAllForwarders(); err != nil {
		logger.Error(err, "关闭 SSH 端口转发失败")
	}
}

// Metrics exposes the collectors for the HTTP server.
func (a *App) Metrics() *Metrics { return a.metrics }

// Wait blocks until every background run has finished.
func (a *App) Wait() { a.runs.Wait() }

func (a *App) setLast(report sync.SyncRunReport) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last = &report
}

// LastReport returns the report of the most recent finished run.
func (a *App) LastReport() (sync.SyncRunReport, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return sync.SyncRunReport{}, false
	}
	return *a.last, true
}

func (a *App) onProgress(ev sync.SyncProgressEvent) {
	a.metrics.ObserveProgress(ev)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.progress = &ev
}

// Progress returns the latest progress event of a run or analysis.
func (a *App) Progress() (sync.SyncProgressEvent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.progress == nil {
		return sync.SyncProgressEvent{}, false
	}
	return *a.progress, true
}
