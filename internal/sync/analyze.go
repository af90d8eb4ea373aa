package sync

import (
	"context"
	"fmt"

	"TableSync/internal/db"
	"TableSync/internal/logger"
)

type TableDiffSummary struct {
	Source    string   `json:"source"`
	Dest      string   `json:"dest"`
	Strategy  Strategy `json:"strategy"`
	Exists    bool     `json:"exists"`
	CanSync   bool     `json:"canSync"`
	Watermark string   `json:"watermark,omitempty"`
	Pending   int64    `json:"pending"`           // 待同步行数
	Deletes   int      `json:"deletes,omitempty"` // 待删除行数（仅 timemodified 且开启 syncDeletions）
	Message   string   `json:"message,omitempty"`
}

type SyncAnalyzeResult struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Tables  []TableDiffSummary `json:"tables"`
}

// Analyze performs a dry run: for each table it resolves the watermark and
// counts the rows a real run would write and delete. Nothing is written.
func (s *SyncEngine) Analyze(ctx context.Context, cfg SyncConfig) SyncAnalyzeResult {
	result := SyncAnalyzeResult{Success: true, Tables: []TableDiffSummary{}}
	if err := cfg.Validate(); err != nil {
		return SyncAnalyzeResult{Success: false, Message: err.Error()}
	}

	specs := cfg.TableSpecs()
	totalTables := len(specs)
	s.progress(cfg.JobID, 0, totalTables, "", "差异分析开始")

	source, dest, err := s.connect(cfg, nil)
	if err != nil {
		return SyncAnalyzeResult{Success: false, Message: err.Error()}
	}
	defer func() {
		if err := closeBoth(source, dest); err != nil {
			logger.Error(err, "关闭数据库连接失败")
		}
	}()

	destTables, err := dest.GetTables(ctx)
	if err != nil {
		return SyncAnalyzeResult{Success: false, Message: "读取目标表列表失败: " + err.Error()}
	}
	index := newTableIndex(destTables)

	for i, spec := range specs {
		s.progress(cfg.JobID, i, totalTables, spec.Dest, fmt.Sprintf("分析表(%d/%d)", i+1, totalTables))
		result.Tables = append(result.Tables, s.analyzeTable(ctx, cfg, source, dest, index, spec))
	}

	s.progress(cfg.JobID, totalTables, totalTables, "", "差异分析完成")
	result.Message = fmt.Sprintf("已完成 %d 张表的差异分析", len(result.Tables))
	return result
}

func (s *SyncEngine) analyzeTable(ctx context.Context, cfg SyncConfig, source, dest db.Database, index tableIndex, spec TableSpec) TableDiffSummary {
	summary := TableDiffSummary{Source: spec.Source, Dest: spec.Dest, Strategy: spec.Strategy}

	name, ok := index.lookup(spec.Dest)
	if !ok {
		summary.Message = "目标表不存在，同步时将跳过"
		return summary
	}
	summary.Exists = true
	spec.Dest = name

	wm, err := resolveWatermark(ctx, dest, spec.Dest, spec.Strategy, cfg)
	if err != nil {
		summary.Message = err.Error()
		return summary
	}
	summary.Watermark = wm.String()

	pending, err := source.CountRows(ctx, spec.Source, wm.Filter())
	if err != nil {
		summary.Message = "统计源表待同步行数失败: " + err.Error()
		return summary
	}
	summary.Pending = pending

	if spec.Strategy == StrategyWatermark && cfg.SyncDeletions {
		sourceIDs, err := source.SelectColumn(ctx, spec.Source, cfg.idColumn())
		if err != nil {
			summary.Message = "读取源表主键失败: " + err.Error()
			return summary
		}
		destIDs, err := dest.SelectColumn(ctx, spec.Dest, cfg.idColumn())
		if err != nil {
			summary.Message = "读取目标表主键失败: " + err.Error()
			return summary
		}
		summary.Deletes = len(diffIDs(sourceIDs, destIDs))
	}

	summary.CanSync = true
	return summary
}

// DestinationCheck lists which configured destination tables exist.
type DestinationCheck struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Tables  []DestTableStatus `json:"tables"`
}

type DestTableStatus struct {
	Dest   string `json:"dest"`
	Exists bool   `json:"exists"`
}

// CheckDestination connects to the destination only and reports, per
// configured table, whether it exists there.
func (s *SyncEngine) CheckDestination(ctx context.Context, cfg SyncConfig) DestinationCheck {
	if err := cfg.Validate(); err != nil {
		return DestinationCheck{Message: err.Error()}
	}
	dest, err := db.NewDatabase(cfg.TargetConfig.Type)
	if err != nil {
		return DestinationCheck{Message: err.Error()}
	}
	if err := dest.Connect(cfg.TargetConfig); err != nil {
		logger.Error(err, "目标数据库连接失败：%s", formatConnSummaryForSync(cfg.TargetConfig))
		return DestinationCheck{Message: (&ConnectivityError{Side: SideDestination, Err: err}).Error()}
	}
	defer func() {
		if err := dest.Close(); err != nil {
			logger.Warnf("关闭目标数据库连接失败：%v", err)
		}
	}()
	return checkTables(ctx, cfg, dest)
}

func checkTables(ctx context.Context, cfg SyncConfig, dest db.Database) DestinationCheck {
	tables, err := dest.GetTables(ctx)
	if err != nil {
		return DestinationCheck{Message: "读取目标表列表失败: " + err.Error()}
	}
	index := newTableIndex(tables)
	check := DestinationCheck{Success: true}
	missing := 0
	for _, spec := range cfg.TableSpecs() {
		_, ok := index.lookup(spec.Dest)
		if !ok {
			missing++
		}
		check.Tables = append(check.Tables, DestTableStatus{Dest: spec.Dest, Exists: ok})
	}
	check.Message = fmt.Sprintf("目标库连接成功：共 %d 张表，已配置 %d 张，缺失 %d 张", len(tables), len(check.Tables), missing)
	return check
}
