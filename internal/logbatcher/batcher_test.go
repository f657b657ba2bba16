package logbatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
)

type fakeLogStore struct {
	mu      sync.Mutex
	batches [][]task.LogEntry
}

func (f *fakeLogStore) AppendBatch(ctx context.Context, entries []task.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]task.LogEntry, len(entries))
	copy(cp, entries)
	f.batches = append(f.batches, cp)
	return nil
}
func (f *fakeLogStore) ListByExecution(ctx context.Context, id string) ([]task.LogEntry, error) { return nil, nil }
func (f *fakeLogStore) CountByExecution(ctx context.Context, id string) (int, error)              { return 0, nil }
func (f *fakeLogStore) MarkHiveSyncedBatch(ctx context.Context, ids []int64, at time.Time) (int, error) {
	return 0, nil
}
func (f *fakeLogStore) FindUnsynced(ctx context.Context, limit int) ([]task.LogEntry, error) { return nil, nil }
func (f *fakeLogStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)    { return 0, nil }

func (f *fakeLogStore) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestBatcherFlushesOnFinish(t *testing.T) {
	store := &fakeLogStore{}
	b := New(store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.AddLog("exec-1", task.LogEntry{ExecutionID: "exec-1", Content: "hello"})
	b.Finish("exec-1")

	require.Eventually(t, func() bool { return store.total() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBatcherFlushesOnBatchSize(t *testing.T) {
	store := &fakeLogStore{}
	b := New(store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	for i := 0; i < BatchSize; i++ {
		b.AddLog("exec-1", task.LogEntry{ExecutionID: "exec-1", Content: "line"})
	}

	require.Eventually(t, func() bool { return store.total() == BatchSize }, time.Second, 5*time.Millisecond)
}

func TestBatcherAddLogAfterFinishIsStillFlushed(t *testing.T) {
	store := &fakeLogStore{}
	b := New(store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Finish("exec-1")
	require.Eventually(t, func() bool { return store.total() == 0 }, time.Second, 5*time.Millisecond)

	b.AddLog("exec-1", task.LogEntry{ExecutionID: "exec-1", Content: "late"})
	b.Shutdown()

	assert.Equal(t, 1, store.total())
}

func TestFinishSyncBlocksUntilFlushed(t *testing.T) {
	store := &fakeLogStore{}
	b := New(store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.AddLog("exec-1", task.LogEntry{ExecutionID: "exec-1", Content: "hello"})
	b.FinishSync("exec-1")

	assert.Equal(t, 1, store.total())
}

func TestShutdownFlushesAllBuffers(t *testing.T) {
	store := &fakeLogStore{}
	b := New(store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.AddLog("exec-1", task.LogEntry{ExecutionID: "exec-1", Content: "a"})
	b.AddLog("exec-2", task.LogEntry{ExecutionID: "exec-2", Content: "b"})
	b.Shutdown()

	assert.Equal(t, 2, store.total())
}
