package sync

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks invalid run settings. A run that hits it touches no table.
	ErrConfiguration = errors.New("同步配置无效")
	// ErrDestinationTableMissing marks a configured table absent from the destination.
	ErrDestinationTableMissing = errors.New("目标表不存在")
)

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w：%s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// SchemaMismatchError reports a row whose columns differ from the first row of the pass.
type SchemaMismatchError struct {
	Table     string
	RowNumber int
	Expected  []string
	Got       []string
	Reason    string
}

func (e *SchemaMismatchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("表 %s 第 %d 行结构不一致：%s", e.Table, e.RowNumber, e.Reason)
	}
	return fmt.Sprintf("表 %s 第 %d 行结构不一致：期望列=[%s] 实际列=[%s]",
		e.Table, e.RowNumber, strings.Join(e.Expected, ","), strings.Join(e.Got, ","))
}

// WriteError reports a chunk the destination rejected. Chunks before it stay committed.
type WriteError struct {
	Table     string
	Chunk     int   // 1-based index of the rejected chunk
	Committed int64 // rows durably written by earlier chunks
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("写入表 %s 第 %d 个分块失败（此前已提交 %d 行）：%v", e.Table, e.Chunk, e.Committed, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// DeleteError reports a destination that rejected removing rows gone from the source.
// Rows written earlier in the same table stay committed.
type DeleteError struct {
	Table string
	IDs   int // ids in the rejected delete
	Err   error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("删除目标表 %s 中 %d 行多余数据失败：%v", e.Table, e.IDs, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }

// ReadError reports a failed query or cursor on either side while syncing one table.
type ReadError struct {
	Table string
	Op    string
	Err   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s失败：表=%s：%v", e.Op, e.Table, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// ConnectivityError reports a connection that could not be established or used at run start.
type ConnectivityError struct {
	Side string // source / destination
	Err  error
}

func (e *ConnectivityError) Error() string {
	side := "源"
	if e.Side == SideDestination {
		side = "目标"
	}
	return fmt.Sprintf("%s数据库连接失败：%v", side, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

const (
	SideSource      = "source"
	SideDestination = "destination"
)
