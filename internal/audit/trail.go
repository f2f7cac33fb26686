// Package audit - журнал решений пайплайна: кольцевой буфер в памяти и
// необязательная асинхронная выгрузка в хранилище.
package audit

import (
	"context"
	"fmt"
)

// Trail - кольцо плюс необязательный приемник. Record никогда не блокируется на I/O.
type Trail struct {
	ring *Ring
	sink Auditor
}

func NewTrail(ring *Ring, sink Auditor) *Trail {
	if ring == nil {
		ring = NewRing(DefaultCapacity)
	}
	return &Trail{ring: ring, sink: sink}
}

func (t *Trail) Record(e Entry) {
	t.ring.Append(e)
	if t.sink != nil {
		t.sink.Log(e)
	}
}

func (t *Trail) Snapshot() []Entry { return t.ring.Snapshot() }

func (t *Trail) Ring() *Ring { return t.ring }

// Export синхронно пишет текущий снимок кольца в хранилище.
func (t *Trail) Export(ctx context.Context, store StorageInterface) (int, error) {
	entries := t.ring.Snapshot()
	if len(entries) == 0 {
		return 0, nil
	}
	if err := store.WriteBatch(ctx, entries); err != nil {
		return 0, fmt.Errorf("audit export: %w", err)
	}
	return len(entries), nil
}
