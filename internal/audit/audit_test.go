package audit_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/rootgw/internal/audit"
)

func entry(action string) audit.Entry {
	return audit.Entry{Action: action, At: time.Now()}
}

func TestRingEvictsOldest(t *testing.T) {
	r := audit.NewRing(3)
	for i := 0; i < 5; i++ {
		r.Append(entry(fmt.Sprintf("a%d", i)))
	}

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "a2", snap[0].Action)
	assert.Equal(t, "a4", snap[2].Action)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 3, r.Cap())
}

func TestRingDefaultCapacity(t *testing.T) {
	r := audit.NewRing(0)
	assert.Equal(t, audit.DefaultCapacity, r.Cap())
	assert.Empty(t, r.Snapshot())
}

func TestRingSnapshotIsCopy(t *testing.T) {
	r := audit.NewRing(2)
	r.Append(entry("a"))
	snap := r.Snapshot()
	snap[0].Action = "mutated"
	assert.Equal(t, "a", r.Snapshot()[0].Action)
}

func TestRingConcurrentAppend(t *testing.T) {
	r := audit.NewRing(100)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Append(entry("x"))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, r.Len())
}

type memStore struct {
	mu      sync.Mutex
	batches [][]audit.Entry
	fails   int
}

func (m *memStore) WriteBatch(_ context.Context, entries []audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fails > 0 {
		m.fails--
		return errors.New("db is down")
	}
	cp := make([]audit.Entry, len(entries))
	copy(cp, entries)
	m.batches = append(m.batches, cp)
	return nil
}

func (m *memStore) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func TestAgentFSFlushesOnStop(t *testing.T) {
	store := &memStore{}
	fs := audit.NewAgentFS(store, audit.AgentFSConfig{BatchSize: 10, FlushInterval: time.Hour}, zap.NewNop())
	fs.Start()

	for i := 0; i < 25; i++ {
		fs.Log(entry("a"))
	}
	fs.Stop()

	assert.Equal(t, 25, store.total())
	// после остановки записи отбрасываются без паники
	fs.Log(entry("late"))
	fs.Stop()
	assert.Equal(t, 25, store.total())
}

// Log из многих горутин во время Stop не паникует, и каждая запись либо
// записана, либо отброшена.
func TestAgentFSStopDuringConcurrentLog(t *testing.T) {
	for round := 0; round < 20; round++ {
		store := &memStore{}
		fs := audit.NewAgentFS(store, audit.AgentFSConfig{BufferSize: 10000, FlushInterval: time.Hour}, zap.NewNop())
		fs.Start()

		var wg sync.WaitGroup
		start := make(chan struct{})
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for i := 0; i < 200; i++ {
					fs.Log(entry("a"))
				}
			}()
		}
		close(start)
		assert.NotPanics(t, fs.Stop)
		wg.Wait()

		assert.LessOrEqual(t, store.total(), 8*200)
		assert.Zero(t, fs.Dropped())
	}
}

func TestAgentFSRetriesFlush(t *testing.T) {
	store := &memStore{fails: 2}
	fs := audit.NewAgentFS(store, audit.AgentFSConfig{FlushAttempts: 3, FlushInterval: time.Hour}, zap.NewNop())
	fs.Start()
	fs.Log(entry("a"))
	fs.Stop()

	assert.Equal(t, 1, store.total())
}

func TestAgentFSShedsLoad(t *testing.T) {
	store := &memStore{}
	fs := audit.NewAgentFS(store, audit.AgentFSConfig{BufferSize: 2}, zap.NewNop())
	// воркер не запущен: буфер переполняется
	for i := 0; i < 5; i++ {
		fs.Log(entry("a"))
	}
	assert.Equal(t, int64(3), fs.Dropped())
	assert.Equal(t, 1.0, fs.Utilization())
}

func TestTrailRecordAndExport(t *testing.T) {
	sinkStore := &memStore{}
	fs := audit.NewAgentFS(sinkStore, audit.AgentFSConfig{FlushInterval: time.Hour}, zap.NewNop())
	fs.Start()

	tr := audit.NewTrail(audit.NewRing(2), fs)
	tr.Record(entry("a"))
	tr.Record(entry("b"))
	tr.Record(entry("c"))
	fs.Stop()

	assert.Equal(t, 3, sinkStore.total())
	require.Len(t, tr.Snapshot(), 2)

	export := &memStore{}
	n, err := tr.Export(context.Background(), export)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "b", export.batches[0][0].Action)

	_, err = tr.Export(context.Background(), &memStore{fails: 1})
	assert.Error(t, err)
}
