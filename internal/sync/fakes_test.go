package sync

import (
	"context"
	"errors"

	"TableSync/internal/connection"
	"TableSync/internal/db"
)

// recordingReplacer keeps every batch it accepts and rejects the failOn-th call.
type recordingReplacer struct {
	batches []connection.ReplaceBatch
	calls   int
	failOn  int
}

func (r *recordingReplacer) ReplaceRows(_ context.Context, batch connection.ReplaceBatch) error {
	r.calls++
	if r.failOn > 0 && r.calls == r.failOn {
		return errors.New("packet too large")
	}
	rows := make([][]interface{}, len(batch.Rows))
	copy(rows, batch.Rows)
	batch.Rows = rows
	r.batches = append(r.batches, batch)
	return nil
}

func (r *recordingReplacer) rowCount() int {
	n := 0
	for _, b := range r.batches {
		n += len(b.Rows)
	}
	return n
}

// rowRecorder only supports single-row upserts.
type rowRecorder struct {
	db.Database
	rows [][]interface{}
}

func (r *rowRecorder) UpsertRow(_ context.Context, _, _ string, _ []string, values []interface{}) error {
	r.rows = append(r.rows, values)
	return nil
}

// stubDB answers the few calls a unit under test makes; anything else panics
// through the nil embedded interface.
type stubDB struct {
	db.Database
	max     interface{}
	maxErr  error
	maxCol  string
	ids     []interface{}
	deleted []interface{}
	delErr  error
	packet  int64
	sizeErr error
	sized   int
}

func (s *stubDB) MaxValue(_ context.Context, _ string, column string) (interface{}, error) {
	s.maxCol = column
	return s.max, s.maxErr
}

func (s *stubDB) SelectColumn(context.Context, string, string) ([]interface{}, error) {
	return s.ids, nil
}

func (s *stubDB) DeleteByIDs(_ context.Context, _, _ string, ids []interface{}) (int64, error) {
	if s.delErr != nil {
		return 0, s.delErr
	}
	s.deleted = append(s.deleted, ids...)
	return int64(len(ids)), nil
}

// sizedDB adds the packet-size capability to stubDB.
type sizedDB struct {
	*stubDB
}

func (s sizedDB) MaxPacketBytes(context.Context) (int64, error) {
	s.sized++
	return s.packet, s.sizeErr
}
