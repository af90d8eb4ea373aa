package sync

import (
	"strings"
	"unicode"

	"TableSync/internal/connection"
	"TableSync/internal/db"
)

// Strategy selects how a table resumes and whether deletions are reconciled.
type Strategy string

const (
	// StrategyWatermark resumes at MAX(timemodified) and may reconcile deletions.
	StrategyWatermark Strategy = "timemodified"
	// StrategyAppendOnly resumes at MAX(id) and never deletes.
	StrategyAppendOnly Strategy = "history"
)

const (
	defaultIDColumn           = "id"
	defaultTimeModifiedColumn = "timemodified"
)

// TableSpec maps one source table to its destination table.
type TableSpec struct {
	Source   string   `json:"source"`
	Dest     string   `json:"dest,omitempty"`
	Strategy Strategy `json:"strategy"`
}

// SyncConfig defines one synchronization run. It is not modified once the run starts.
type SyncConfig struct {
	SourceConfig connection.ConnectionConfig `json:"sourceConfig"`
	TargetConfig connection.ConnectionConfig `json:"targetConfig"`

	// SourceTablePrefix is prepended to listed table names on the source side (e.g. "mdl_").
	SourceTablePrefix string `json:"sourceTablePrefix,omitempty"`
	// TableNamePrefix is prepended to the prefixed source name on the destination side.
	TableNamePrefix    string      `json:"tableNamePrefix,omitempty"`
	TimeModifiedTables []string    `json:"timemodifiedTables,omitempty"`
	HistoryTables      []string    `json:"historyTables,omitempty"`
	Tables             []TableSpec `json:"tables,omitempty"`

	ChunkSize          int    `json:"chunkSize,omitempty"` // 0 = 根据目标库 max_allowed_packet 推导
	SyncDeletions      bool   `json:"syncDeletions,omitempty"`
	IDColumn           string `json:"idColumn,omitempty"`
	TimeModifiedColumn string `json:"timeModifiedColumn,omitempty"`
	JobID              string `json:"jobId,omitempty"`
}

func (c SyncConfig) idColumn() string {
	if v := strings.TrimSpace(c.IDColumn); v != "" {
		return v
	}
	return defaultIDColumn
}

func (c SyncConfig) timeModifiedColumn() string {
	if v := strings.TrimSpace(c.TimeModifiedColumn); v != "" {
		return v
	}
	return defaultTimeModifiedColumn
}

// TableSpecs expands the configured lists into table specs, watermark tables first.
func (c SyncConfig) TableSpecs() []TableSpec {
	var specs []TableSpec
	add := func(name string, strategy Strategy) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		source := c.SourceTablePrefix + name
		specs = append(specs, TableSpec{Source: source, Dest: c.TableNamePrefix + source, Strategy: strategy})
	}
	for _, name := range c.TimeModifiedTables {
		add(name, StrategyWatermark)
	}
	for _, name := range c.HistoryTables {
		add(name, StrategyAppendOnly)
	}
	for _, t := range c.Tables {
		spec := TableSpec{
			Source:   strings.TrimSpace(t.Source),
			Dest:     strings.TrimSpace(t.Dest),
			Strategy: Strategy(strings.ToLower(strings.TrimSpace(string(t.Strategy)))),
		}
		if spec.Dest == "" {
			spec.Dest = c.TableNamePrefix + spec.Source
		}
		specs = append(specs, spec)
	}
	return orderByStrategy(specs)
}

// orderByStrategy runs the watermark group before the append-only group, keeping
// configured order within each group.
func orderByStrategy(specs []TableSpec) []TableSpec {
	out := make([]TableSpec, 0, len(specs))
	for _, s := range specs {
		if s.Strategy == StrategyWatermark {
			out = append(out, s)
		}
	}
	for _, s := range specs {
		if s.Strategy != StrategyWatermark {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks everything that can be checked without a connection.
func (c SyncConfig) Validate() error {
	if strings.TrimSpace(c.SourceConfig.Type) == "" {
		return configErrorf("未配置源数据库类型")
	}
	if strings.TrimSpace(c.TargetConfig.Type) == "" {
		return configErrorf("未配置目标数据库类型")
	}
	for _, side := range []connection.ConnectionConfig{c.SourceConfig, c.TargetConfig} {
		if _, err := db.NewDatabase(side.Type); err != nil {
			return configErrorf("%v", err)
		}
		if strings.EqualFold(strings.TrimSpace(side.Type), "custom") &&
			(strings.TrimSpace(side.Driver) == "" || strings.TrimSpace(side.DSN) == "") {
			return configErrorf("custom 类型需要同时配置 driver 和 dsn")
		}
	}
	if c.ChunkSize < 0 {
		return configErrorf("chunkSize 不能为负数：%d", c.ChunkSize)
	}
	for _, ident := range []string{c.idColumn(), c.timeModifiedColumn()} {
		if !isSafeIdentifier(ident) {
			return configErrorf("列名不合法：%q", ident)
		}
	}
	if c.TableNamePrefix != "" && !isSafeIdentifier(c.TableNamePrefix) {
		return configErrorf("目标表前缀不合法：%q", c.TableNamePrefix)
	}
	if c.SourceTablePrefix != "" && !isSafeIdentifier(c.SourceTablePrefix) {
		return configErrorf("源表前缀不合法：%q", c.SourceTablePrefix)
	}

	specs := c.TableSpecs()
	if len(specs) == 0 {
		return configErrorf("未配置任何需要同步的表")
	}
	seen := make(map[string]string, len(specs))
	for _, s := range specs {
		switch s.Strategy {
		case StrategyWatermark, StrategyAppendOnly:
		default:
			return configErrorf("表 %s 的同步策略未知：%q（可选 timemodified / history）", s.Source, s.Strategy)
		}
		if !isSafeIdentifier(s.Source) || !isSafeIdentifier(s.Dest) {
			return configErrorf("表名不合法：源=%q 目标=%q", s.Source, s.Dest)
		}
		lower := strings.ToLower(s.Dest)
		if prev, ok := seen[lower]; ok {
			return configErrorf("目标表 %s 被重复配置（源表 %s 与 %s）", s.Dest, prev, s.Source)
		}
		seen[lower] = s.Source
	}
	return nil
}

// isSafeIdentifier accepts letters, digits, '_', '$' and '.' separated qualifiers.
func isSafeIdentifier(s string) bool {
	if s == "" || strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") || strings.Contains(s, "..") {
		return false
	}
	for _, r := range s {
		switch {
		case r == '_', r == '$', r == '.':
		case unicode.IsLetter(r), unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}
