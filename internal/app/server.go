package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"TableSync/internal/logger"

	"github.com/labstack/echo/v4"
	"github.com/robfig/cron/v3"
)

type messageResponse struct {
	Message string `json:"message"`
	RunID   string `json:"runId,omitempty"`
}

// NewServer builds the HTTP surface: an on-demand trigger, the last report,
// a destination check, health and metrics.
func (a *App) NewServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.POST("/api/sync", a.handleTrigger)
	e.GET("/api/sync/last", a.handleLastReport)
	e.GET("/api/sync/progress", a.handleProgress)
	e.GET("/api/check", a.handleCheck)
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, messageResponse{Message: "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(a.metrics.Handler()))
	return e
}

func (a *App) handleTrigger(c echo.Context) error {
	runID, err := a.TriggerSync()
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		return c.JSON(http.StatusConflict, messageResponse{Message: err.Error()})
	case err != nil:
		logger.Error(err, "触发同步失败")
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: err.Error()})
	}
	return c.JSON(http.StatusAccepted, messageResponse{Message: "同步任务已加入队列", RunID: runID})
}

func (a *App) handleLastReport(c echo.Context) error {
	report, ok := a.LastReport()
	if !ok {
		return c.JSON(http.StatusNotFound, messageResponse{Message: "尚未执行过同步"})
	}
	return c.JSON(http.StatusOK, report)
}

func (a *App) handleProgress(c echo.Context) error {
	ev, ok := a.Progress()
	if !ok {
		return c.JSON(http.StatusNotFound, messageResponse{Message: "尚未执行过同步"})
	}
	return c.JSON(http.StatusOK, ev)
}

func (a *App) handleCheck(c echo.Context) error {
	check := a.TestConnection(c.Request().Context())
	status := http.StatusOK
	if !check.Success {
		status = http.StatusBadGateway
	}
	return c.JSON(status, check)
}

// StartScheduler registers the configured cron schedule. The returned cron
// must be stopped by the caller.
func (a *App) StartScheduler(spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	_, err := c.AddFunc(spec, func() {
		report, err := a.RunSync(a.ctx)
		switch {
		case errors.Is(err, ErrAlreadyRunning):
			logger.Warnf("定时同步跳过：%v", err)
		case err != nil:
			logger.Error(err, "定时同步失败")
		default:
			logger.Infof("定时同步完成：%s", report.Message)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("解析定时表达式 %q 失败：%w", spec, err)
	}
	c.Start()
	logger.Infof("已启用定时同步：%s", spec)
	return c, nil
}

// Serve runs the scheduler and the HTTP server until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	if a.cfg.Schedule != "" {
		c, err := a.StartScheduler(a.cfg.Schedule)
		if err != nil {
			return err
		}
		defer func() { <-c.Stop().Done() }()
	}

	if a.cfg.Listen == "" {
		<-ctx.Done()
		return nil
	}

	e := a.NewServer()
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP 服务监听：%s", a.cfg.Listen)
		if err := e.Start(a.cfg.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("HTTP 服务启动失败：%w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
