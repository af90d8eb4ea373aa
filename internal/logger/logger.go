package logger

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	envLogDir  = "TABLESYNC_LOG_DIR"
	appDirName = "TableSync"

	logFileName         = "tablesync.log"
	logRotateMaxMB      = 10
	logRotateMaxBackups = 10
)

var (
	once    sync.Once
	logMu   sync.Mutex
	logInst *log.Logger
	logFile *lumberjack.Logger
	logPath string
	fileOut io.Writer
	extra   []io.Writer
)

func Init() {
	once.Do(func() {
		path, out := initOutput()
		logMu.Lock()
		defer logMu.Unlock()
		logPath = path
		fileOut = out
		logInst = log.New(out, "", log.Ldate|log.Ltime|log.Lmicroseconds)
		logInst.Printf("[信息] 日志初始化完成，日志文件：%s", logPath)
	})
}

func Path() string {
	Init()
	logMu.Lock()
	defer logMu.Unlock()
	return logPath
}

// Mirror additionally copies every log line to w (e.g. os.Stderr for CLI runs).
func Mirror(w io.Writer) {
	Init()
	logMu.Lock()
	defer logMu.Unlock()
	if w == nil {
		return
	}
	extra = append(extra, w)
	logInst.SetOutput(io.MultiWriter(append([]io.Writer{fileOut}, extra...)...))
}

// SetOutput replaces every sink with w. Mainly used by tests.
func SetOutput(w io.Writer) {
	Init()
	logMu.Lock()
	defer logMu.Unlock()
	fileOut = w
	extra = nil
	logInst.SetOutput(w)
}

func Close() {
	Init()
	logMu.Lock()
	defer logMu.Unlock()
	if logInst != nil {
		logInst.SetOutput(os.Stderr)
	}
	fileOut = os.Stderr
	extra = nil
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

func Infof(format string, args ...any) {
	printf("信息", format, args...)
}

func Warnf(format string, args ...any) {
	printf("警告", format, args...)
}

func Errorf(format string, args ...any) {
	printf("错误", format, args...)
}

func Error(err error, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if err == nil {
		Errorf("%s", msg)
		return
	}
	Errorf("%s；错误链：%s", msg, ErrorChain(err))
}

// Log writes msg at the level used by sync reporters (info/warn/error).
func Log(level string, msg string) {
	switch level {
	case "warn":
		Warnf("%s", msg)
	case "error":
		Errorf("%s", msg)
	default:
		Infof("%s", msg)
	}
}

func ErrorChain(err error) string {
	if err == nil {
		return ""
	}

	var parts []string
	seen := map[string]struct{}{}
	cur := err
	truncated := false
	for i := 0; cur != nil && i < 20; i++ {
		s := cur.Error()
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			parts = append(parts, s)
		}
		cur = errors.Unwrap(cur)
	}
	if cur != nil {
		truncated = true
	}

	if len(parts) == 0 {
		return err.Error()
	}
	if truncated {
		parts = append(parts, "（错误链过长，已截断）")
	}
	return strings.Join(parts, " -> ")
}

func printf(level string, format string, args ...any) {
	Init()
	logMu.Lock()
	inst := logInst
	logMu.Unlock()
	if inst == nil {
		return
	}
	inst.Printf("[%s] %s", level, fmt.Sprintf(format, args...))
}

func initOutput() (string, io.Writer) {
	dir := strings.TrimSpace(os.Getenv(envLogDir))
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil || strings.TrimSpace(base) == "" {
			base = os.TempDir()
		}
		dir = filepath.Join(base, appDirName, "logs")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return filepath.Join(dir, logFileName), os.Stderr
	}
	sink := newFileSink(dir)
	logFile = sink
	return sink.Filename, sink
}

// newFileSink rotates tablesync.log into tablesync-<time>.log backups.
func newFileSink(dir string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, logFileName),
		MaxSize:    logRotateMaxMB,
		MaxBackups: logRotateMaxBackups,
		LocalTime:  true,
	}
}
