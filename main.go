package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TableSync/internal/app"
	"TableSync/internal/logger"
	"TableSync/internal/utils"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type options struct {
	configPath         string
	timemodifiedTables string
	historyTables      string
	chunkSize          int
	deletions          bool
	reportDir          string
	reportFormat       string
	listen             string
	schedule           string
	verbose            bool
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", "tablesync.yaml", "配置文件路径（YAML 或 JSON）")
	fs.StringVar(&o.timemodifiedTables, "timemodified-tables", "", "按 timemodified 增量同步的表，逗号分隔，不含前缀")
	fs.StringVar(&o.historyTables, "history-tables", "", "只追加的历史表，逗号分隔，不含前缀")
	fs.IntVar(&o.chunkSize, "chunk-size", -1, "每个写入分块的行数，0 表示根据 max_allowed_packet 推导")
	fs.BoolVar(&o.deletions, "sync-deletions", false, "同步 timemodified 表中源表已删除的行")
	fs.StringVar(&o.reportDir, "report-dir", "", "同步报告导出目录")
	fs.StringVar(&o.reportFormat, "report-format", "", "同步报告格式：xlsx/csv/json/md")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "同时输出日志到标准错误")
}

// load reads the config file and applies flags that were set explicitly.
func (o *options) load(fs *pflag.FlagSet) (app.Config, error) {
	cfg, err := app.LoadConfig(o.configPath)
	if err != nil {
		return app.Config{}, err
	}
	if fs.Changed("timemodified-tables") {
		cfg.TimeModifiedTables = utils.SplitList(o.timemodifiedTables)
	}
	if fs.Changed("history-tables") {
		cfg.HistoryTables = utils.SplitList(o.historyTables)
	}
	if fs.Changed("chunk-size") {
		cfg.ChunkSize = o.chunkSize
	}
	if fs.Changed("sync-deletions") {
		cfg.SyncDeletions = o.deletions
	}
	if fs.Changed("report-dir") {
		cfg.ReportDir = o.reportDir
	}
	if fs.Changed("report-format") {
		cfg.ReportFormat = o.reportFormat
	}
	if fs.Changed("listen") {
		cfg.Listen = o.listen
	}
	if fs.Changed("schedule") {
		cfg.Schedule = o.schedule
	}
	if o.verbose {
		logger.Mirror(os.Stderr)
	}
	return cfg, nil
}

func main() {
	logger.Init()
	defer logger.Close()

	if err := newRootCommand().Execute(); err != nil {
		logger.Error(err, "命令执行失败")
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		logger.Close()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "tablesync",
		Short:         "增量同步源库表到目标库",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.addFlags(root.PersistentFlags())

	root.AddCommand(
		newRunCommand(opts),
		newServeCommand(opts),
		newAnalyzeCommand(opts),
		newTestConnectionCommand(opts),
	)
	return root
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func startApp(ctx context.Context, cmd *cobra.Command, opts *options) (*app.App, error) {
	cfg, err := opts.load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	a := app.NewApp(cfg)
	if err := a.Startup(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func shutdown(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.Shutdown(ctx)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "执行一次同步",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := startApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer shutdown(a)

			report, err := a.RunSync(ctx)
			for _, t := range report.Tables {
				line := fmt.Sprintf("%-10s %s → %s 同步=%d 删除=%d", t.Status, t.Source, t.Dest, t.RowsSynced, t.RowsDeleted)
				if t.Reason != "" {
					line += "  " + t.Reason
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.Message)
			return nil
		},
	}
}

func newServeCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "按定时表达式同步，并提供 HTTP 触发与指标接口",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := startApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer shutdown(a)
			return a.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&opts.listen, "listen", "", "HTTP 监听地址，如 :8080")
	cmd.Flags().StringVar(&opts.schedule, "schedule", "", "cron 定时表达式，如 \"*/10 * * * *\"")
	return cmd
}

func newAnalyzeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "分析每张表待同步与待删除的行数，不写入目标库",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := startApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer shutdown(a)

			res := a.Analyze(ctx)
			if err := printJSON(cmd, res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("%s", res.Message)
			}
			return nil
		},
	}
}

func newTestConnectionCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "测试目标库连接并检查配置的目标表是否存在",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := startApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer shutdown(a)

			check := a.TestConnection(ctx)
			if err := printJSON(cmd, check); err != nil {
				return err
			}
			if !check.Success {
				return fmt.Errorf("%s", check.Message)
			}
			return nil
		},
	}
}
