package logger

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestErrorChain_FlattensWrappedErrors(t *testing.T) {
	base := errors.New("连接被拒绝")
	wrapped := fmt.Errorf("写入分块失败：%w", base)
	outer := fmt.Errorf("表 grade_items 同步失败：%w", wrapped)

	chain := ErrorChain(outer)
	if !strings.Contains(chain, " -> 连接被拒绝") {
		t.Fatalf("错误链缺少根因：%s", chain)
	}
	if strings.Count(chain, "->") != 2 {
		t.Fatalf("错误链层级不正确：%s", chain)
	}
	if ErrorChain(nil) != "" {
		t.Fatalf("nil 错误应返回空字符串")
	}
}

func TestLog_RoutesLevels(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	Log("warn", "目标表缺失")
	Log("error", "写入失败")
	Log("info", "同步完成")

	out := buf.String()
	for _, want := range []string{"[警告] 目标表缺失", "[错误] 写入失败", "[信息] 同步完成"} {
		if !strings.Contains(out, want) {
			t.Fatalf("日志输出缺少 %q：%s", want, out)
		}
	}
}

func TestNewFileSink_WritesUnderDir(t *testing.T) {
	dir := t.TempDir()
	sink := newFileSink(dir)
	if sink.MaxSize != logRotateMaxMB || sink.MaxBackups != logRotateMaxBackups {
		t.Fatalf("轮转参数错误：%+v", sink)
	}
	if _, err := fmt.Fprintln(sink, "[信息] 同步完成"); err != nil {
		t.Fatalf("写入日志失败：%v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("关闭日志失败：%v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, logFileName))
	if err != nil {
		t.Fatalf("读取日志文件失败：%v", err)
	}
	if !strings.Contains(string(raw), "同步完成") {
		t.Fatalf("日志文件内容错误：%s", raw)
	}
}
