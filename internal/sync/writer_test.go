package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"TableSync/internal/db"

	"github.com/google/go-cmp/cmp"
)

func numberedStream(n int) *db.SliceStream {
	rows := make([][]interface{}, n)
	for i := range rows {
		rows[i] = []interface{}{int64(i + 1), fmt.Sprintf("row-%d", i+1)}
	}
	return db.NewSliceStream([]string{"id", "name"}, rows)
}

func TestUpsertWriter_SplitsIntoChunks(t *testing.T) {
	rep := &recordingReplacer{}
	var progress []int64
	w := &upsertWriter{replacer: rep, table: "t", keyColumn: "id", chunkSize: 7,
		onChunk: func(_ int, rows int64) { progress = append(progress, rows) }}

	res, err := w.write(context.Background(), numberedStream(20))
	if err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	if res.Rows != 20 || res.Chunks != 3 {
		t.Fatalf("统计错误：rows=%d chunks=%d", res.Rows, res.Chunks)
	}
	sizes := []int{}
	for _, b := range rep.batches {
		sizes = append(sizes, len(b.Rows))
		if b.KeyColumn != "id" || b.Table != "t" {
			t.Fatalf("批次元数据错误：%+v", b)
		}
	}
	if diff := cmp.Diff([]int{7, 7, 6}, sizes); diff != "" {
		t.Fatalf("分块大小不符 (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{7, 14, 20}, progress); diff != "" {
		t.Fatalf("进度回调不符 (-want +got):\n%s", diff)
	}
}

func TestUpsertWriter_EmptyStreamWritesNothing(t *testing.T) {
	rep := &recordingReplacer{}
	w := &upsertWriter{replacer: rep, table: "t", keyColumn: "id", chunkSize: 5}
	res, err := w.write(context.Background(), numberedStream(0))
	if err != nil {
		t.Fatalf("空数据不应报错：%v", err)
	}
	if res.Rows != 0 || rep.calls != 0 {
		t.Fatalf("空数据不应产生写入：rows=%d calls=%d", res.Rows, rep.calls)
	}
}

func TestUpsertWriter_FailedChunkKeepsEarlierChunks(t *testing.T) {
	rep := &recordingReplacer{failOn: 2}
	w := &upsertWriter{replacer: rep, table: "t", keyColumn: "id", chunkSize: 4}

	res, err := w.write(context.Background(), numberedStream(10))
	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("应返回 WriteError，实际=%v", err)
	}
	if werr.Chunk != 2 || werr.Committed != 4 {
		t.Fatalf("WriteError 内容错误：chunk=%d committed=%d", werr.Chunk, werr.Committed)
	}
	if res.Rows != 4 || rep.rowCount() != 4 {
		t.Fatalf("失败前应只提交首个分块：rows=%d 实际写入=%d", res.Rows, rep.rowCount())
	}
}

func TestUpsertWriter_SchemaMismatchStopsBeforeWrite(t *testing.T) {
	stream := db.NewSliceStream(nil, nil)
	stream.AppendRow([]string{"id", "name"}, []interface{}{int64(1), "a"})
	stream.AppendRow([]string{"id", "title"}, []interface{}{int64(2), "b"})

	rep := &recordingReplacer{}
	w := &upsertWriter{replacer: rep, table: "t", keyColumn: "id", chunkSize: 10}
	_, err := w.write(context.Background(), stream)
	var mismatch *SchemaMismatchError
	if !errors.As(err, &mismatch) || mismatch.RowNumber != 2 {
		t.Fatalf("第二行结构不同应返回 SchemaMismatchError，实际=%v", err)
	}
	if rep.calls != 0 {
		t.Fatalf("结构不一致时当前分块不应写入，实际调用 %d 次", rep.calls)
	}
}

func TestUpsertWriter_StreamErrorIsReadError(t *testing.T) {
	stream := db.NewSliceStreamWithError([]string{"id"}, [][]interface{}{{int64(1)}}, errors.New("connection reset"))
	w := &upsertWriter{replacer: &recordingReplacer{}, table: "t", keyColumn: "id", chunkSize: 10}
	_, err := w.write(context.Background(), stream)
	var rerr *ReadError
	if !errors.As(err, &rerr) {
		t.Fatalf("游标错误应返回 ReadError，实际=%v", err)
	}
}

func TestReplacerFor_RowByRowFallback(t *testing.T) {
	rec := &rowRecorder{}
	replacer, native, err := replacerFor(rec)
	if err != nil {
		t.Fatalf("replacerFor 失败：%v", err)
	}
	if native {
		t.Fatalf("只支持逐行写入的目标不应被视为批量写入")
	}

	w := &upsertWriter{replacer: replacer, table: "t", keyColumn: "id", chunkSize: 3}
	res, err := w.write(context.Background(), numberedStream(5))
	if err != nil {
		t.Fatalf("逐行写入失败：%v", err)
	}
	if res.Rows != 5 || len(rec.rows) != 5 {
		t.Fatalf("逐行写入行数错误：rows=%d 实际=%d", res.Rows, len(rec.rows))
	}

	if _, _, err := replacerFor(&stubDB{}); err == nil {
		t.Fatalf("不支持任何写入方式的目标应返回错误")
	}
}

func TestChunkSizePolicy(t *testing.T) {
	ctx := context.Background()

	p := &chunkSizePolicy{}
	if size, _ := p.resolve(ctx, &stubDB{}, 12); size != 12 {
		t.Fatalf("配置值应优先：%d", size)
	}
	if size, _ := p.resolve(ctx, &stubDB{}, 0); size != fallbackChunkSize {
		t.Fatalf("无法获取包大小时应使用默认值：%d", size)
	}

	cases := []struct {
		packet int64
		want   int
	}{
		{4 << 20, 20},  // 4MB / 200000
		{64 << 20, 50}, // 上限
		{1000, 1},      // 下限
	}
	for _, tc := range cases {
		p := &chunkSizePolicy{}
		if size, _ := p.resolve(ctx, sizedDB{&stubDB{packet: tc.packet}}, 0); size != tc.want {
			t.Fatalf("max_allowed_packet=%d 推导错误：期望=%d 实际=%d", tc.packet, tc.want, size)
		}
	}

	p = &chunkSizePolicy{}
	stub := &stubDB{packet: 4 << 20}
	p.resolve(ctx, sizedDB{stub}, 0)
	stub.packet = 64 << 20
	if size, _ := p.resolve(ctx, sizedDB{stub}, 0); size != 20 {
		t.Fatalf("推导结果应在进程内保持不变：%d", size)
	}
	if stub.sized != 1 {
		t.Fatalf("包大小只应查询一次，实际 %d 次", stub.sized)
	}

	p = &chunkSizePolicy{}
	if size, _ := p.resolve(ctx, sizedDB{&stubDB{sizeErr: errors.New("denied")}}, 0); size != fallbackChunkSize {
		t.Fatalf("查询失败应使用默认值：%d", size)
	}
}
