package sync

import (
	"context"
	"fmt"
	stdsync "sync"

	"TableSync/internal/connection"
	"TableSync/internal/db"
)

const (
	assumedBytesPerRow = 200000
	maxChunkSize       = 50
	fallbackChunkSize  = 5
)

// chunkSizePolicy derives the chunk size from the destination's packet limit on
// first use and keeps it for the life of the process.
type chunkSizePolicy struct {
	mu       stdsync.Mutex
	size     int
	origin   string
	resolved bool
}

// resolve returns the chunk size and a description of where it came from.
// A positive configured value always wins.
func (p *chunkSizePolicy) resolve(ctx context.Context, dest db.Database, configured int) (int, string) {
	if configured > 0 {
		return configured, "配置"
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return p.size, p.origin
	}

	p.size, p.origin = fallbackChunkSize, "默认值"
	if sizer, ok := dest.(db.PacketSizer); ok {
		if packet, err := sizer.MaxPacketBytes(ctx); err == nil && packet > 0 {
			p.size = clampChunkSize(packet / assumedBytesPerRow)
			p.origin = fmt.Sprintf("max_allowed_packet=%d", packet)
		}
	}
	p.resolved = true
	return p.size, p.origin
}

func clampChunkSize(n int64) int {
	if n > maxChunkSize {
		return maxChunkSize
	}
	if n < 1 {
		return 1
	}
	return int(n)
}

// rowByRowReplacer lets a destination without a native multi-row upsert accept
// whole chunks. It is slower but writes the same rows.
type rowByRowReplacer struct {
	upserter db.RowUpserter
}

func (r rowByRowReplacer) ReplaceRows(ctx context.Context, batch connection.ReplaceBatch) error {
	for i, row := range batch.Rows {
		if err := r.upserter.UpsertRow(ctx, batch.Table, batch.KeyColumn, batch.Columns, row); err != nil {
			return fmt.Errorf("逐行写入第 %d 行失败：%w", i+1, err)
		}
	}
	return nil
}

// replacerFor picks the destination's bulk path, or wraps its single-row path.
func replacerFor(dest db.Database) (db.BulkReplacer, bool, error) {
	if bulk, ok := dest.(db.BulkReplacer); ok {
		return bulk, true, nil
	}
	if single, ok := dest.(db.RowUpserter); ok {
		return rowByRowReplacer{upserter: single}, false, nil
	}
	return nil, false, fmt.Errorf("目标驱动既不支持批量写入也不支持逐行写入")
}

type writeResult struct {
	Rows    int64
	Chunks  int
	Dropped []string
}

// upsertWriter drains a row stream into the destination in chunks of at most
// chunkSize rows. Each chunk is one ReplaceRows call; a failed chunk stops the
// write and leaves earlier chunks committed.
type upsertWriter struct {
	replacer  db.BulkReplacer
	table     string
	keyColumn string
	schema    []string
	chunkSize int
	onChunk   func(chunk int, rows int64)
}

func (w *upsertWriter) write(ctx context.Context, stream db.RowStream) (writeResult, error) {
	var (
		res     writeResult
		cols    *ColumnSet
		pending [][]interface{}
		rowNum  int
	)
	if w.chunkSize < 1 {
		w.chunkSize = 1
	}

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		batch := connection.ReplaceBatch{
			Table:     w.table,
			KeyColumn: cols.Key(),
			Columns:   cols.Names(),
			Rows:      pending,
		}
		if err := w.replacer.ReplaceRows(ctx, batch); err != nil {
			return &WriteError{Table: w.table, Chunk: res.Chunks + 1, Committed: res.Rows, Err: err}
		}
		res.Chunks++
		res.Rows += int64(len(pending))
		if w.onChunk != nil {
			w.onChunk(res.Chunks, res.Rows)
		}
		pending = make([][]interface{}, 0, w.chunkSize)
		return nil
	}

	for stream.Next() {
		rowNum++
		row, err := NewRow(stream.Columns(), stream.Values())
		if err != nil {
			return res, &SchemaMismatchError{Table: w.table, RowNumber: rowNum, Reason: err.Error()}
		}
		if cols == nil {
			cols, err = NormalizeColumns(w.table, row, w.schema, w.keyColumn)
			if err != nil {
				return res, err
			}
			res.Dropped = cols.Dropped()
			pending = make([][]interface{}, 0, w.chunkSize)
		}
		vals, err := cols.Project(row, rowNum)
		if err != nil {
			return res, err
		}
		pending = append(pending, vals)
		if len(pending) >= w.chunkSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return res, &ReadError{Table: w.table, Op: "读取源数据", Err: err}
	}
	if err := flush(); err != nil {
		return res, err
	}
	return res, nil
}
