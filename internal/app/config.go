package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"TableSync/internal/connection"
	"TableSync/internal/sync"

	"sigs.k8s.io/yaml"
)

const (
	defaultLockTTL      = 2 * time.Hour
	defaultReportFormat = "xlsx"
)

// Config is the on-disk configuration: one sync definition plus how the host
// schedules, exposes and reports it.
type Config struct {
	sync.SyncConfig

	Schedule     string                       `json:"schedule,omitempty"` // cron 表达式，如 "*/5 * * * *" 或 "@every 10m"
	Listen       string                       `json:"listen,omitempty"`   // HTTP 触发地址，如 ":8080"
	Redis        *connection.ConnectionConfig `json:"redis,omitempty"`    // 未配置时使用进程内运行锁
	LockKey      string                       `json:"lockKey,omitempty"`
	LockTTL      int                          `json:"lockTTL,omitempty"` // 秒
	ReportDir    string                       `json:"reportDir,omitempty"`
	ReportFormat string                       `json:"reportFormat,omitempty"` // xlsx/csv/json/md
}

// LoadConfig reads a YAML or JSON file. ${VAR} references are expanded from
// the environment before parsing so passwords can stay out of the file.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("读取配置文件失败：%w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return Config{}, fmt.Errorf("解析配置文件 %s 失败：%w", path, err)
	}
	return cfg, nil
}

func (c Config) lockTTL() time.Duration {
	if c.LockTTL > 0 {
		return time.Duration(c.LockTTL) * time.Second
	}
	return defaultLockTTL
}

func (c Config) reportFormat() string {
	if f := strings.ToLower(strings.TrimSpace(c.ReportFormat)); f != "" {
		return f
	}
	return defaultReportFormat
}

// lockKey identifies the destination, so two configs writing the same
// database never run at the same time.
func (c Config) lockKey() string {
	if k := strings.TrimSpace(c.LockKey); k != "" {
		return k
	}
	t := c.TargetConfig
	return fmt.Sprintf("tablesync:run:%s:%s:%d:%s", strings.ToLower(t.Type), t.Host, t.Port, t.Database)
}
