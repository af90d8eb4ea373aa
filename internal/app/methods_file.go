package app

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"TableSync/internal/sync"

	"github.com/xuri/excelize/v2"
)

var reportColumns = []string{"源表", "目标表", "策略", "状态", "失败阶段", "水位线", "同步行数", "删除行数", "分块数", "分块大小", "忽略列", "耗时(秒)", "原因"}

func reportRecord(t sync.TableReport) []interface{} {
	return []interface{}{
		t.Source,
		t.Dest,
		string(t.Strategy),
		string(t.Status),
		string(t.FailedIn),
		t.Watermark,
		t.RowsSynced,
		t.RowsDeleted,
		t.Chunks,
		t.ChunkSize,
		strings.Join(t.DroppedColumns, ","),
		fmt.Sprintf("%.3f", t.Duration.Seconds()),
		t.Reason,
	}
}

// ExportReport writes report into dir as tablesync-<runId>.<format> and
// returns the file path. Supported formats: xlsx, csv, json, md.
func ExportReport(report sync.SyncRunReport, dir string, format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("创建报告目录失败：%w", err)
	}
	name := report.RunID
	if name == "" {
		name = report.StartedAt.Format("20060102-150405")
	}
	filename := filepath.Join(dir, fmt.Sprintf("tablesync-%s.%s", name, format))

	var err error
	switch format {
	case "xlsx":
		err = exportXLSX(report, filename)
	case "csv":
		err = exportCSV(report, filename)
	case "json":
		err = exportJSON(report, filename)
	case "md":
		err = exportMarkdown(report, filename)
	default:
		return "", fmt.Errorf("不支持的报告格式：%s", format)
	}
	if err != nil {
		return "", err
	}
	return filename, nil
}

func exportXLSX(report sync.SyncRunReport, filename string) error {
	f := excelize.NewFile()
	defer f.Close()

	const summary, tables, logs = "汇总", "表", "日志"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return err
	}
	synced, deleted := report.Totals()
	summaryRows := [][]interface{}{
		{"运行 ID", report.RunID},
		{"开始时间", report.StartedAt.Format("2006-01-02 15:04:05")},
		{"结束时间", report.FinishedAt.Format("2006-01-02 15:04:05")},
		{"是否成功", report.Success},
		{"结果", report.Message},
		{"同步行数", synced},
		{"删除行数", deleted},
	}
	for i, row := range summaryRows {
		if err := f.SetSheetRow(summary, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return fmt.Errorf("写入汇总失败：%w", err)
		}
	}

	if _, err := f.NewSheet(tables); err != nil {
		return err
	}
	header := make([]interface{}, len(reportColumns))
	for i, c := range reportColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(tables, "A1", &header); err != nil {
		return fmt.Errorf("写入表头失败：%w", err)
	}
	for i, t := range report.Tables {
		record := reportRecord(t)
		if err := f.SetSheetRow(tables, fmt.Sprintf("A%d", i+2), &record); err != nil {
			return fmt.Errorf("写入表报告失败：%w", err)
		}
	}

	if _, err := f.NewSheet(logs); err != nil {
		return err
	}
	for i, line := range report.Logs {
		if err := f.SetCellValue(logs, fmt.Sprintf("A%d", i+1), line); err != nil {
			return fmt.Errorf("写入日志失败：%w", err)
		}
	}

	if err := f.SaveAs(filename); err != nil {
		return fmt.Errorf("保存报告失败：%w", err)
	}
	return nil
}

func exportCSV(report sync.SyncRunReport, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(reportColumns); err != nil {
		return err
	}
	for _, t := range report.Tables {
		vals := reportRecord(t)
		record := make([]string, len(vals))
		for i, v := range vals {
			record[i] = fmt.Sprintf("%v", v)
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("写入失败：%w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func exportJSON(report sync.SyncRunReport, filename string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}

func exportMarkdown(report sync.SyncRunReport, filename string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# 同步报告 %s\n\n%s\n\n", report.RunID, report.Message)
	fmt.Fprintf(&b, "| %s |\n", strings.Join(reportColumns, " | "))
	seps := make([]string, len(reportColumns))
	for i := range seps {
		seps[i] = "---"
	}
	fmt.Fprintf(&b, "| %s |\n", strings.Join(seps, " | "))
	for _, t := range report.Tables {
		vals := reportRecord(t)
		cells := make([]string, len(vals))
		for i, v := range vals {
			s := fmt.Sprintf("%v", v)
			s = strings.ReplaceAll(s, "|", "\\|")
			s = strings.ReplaceAll(s, "\n", "<br>")
			cells[i] = s
		}
		fmt.Fprintf(&b, "| %s |\n", strings.Join(cells, " | "))
	}
	return os.WriteFile(filename, []byte(b.String()), 0o644)
}
