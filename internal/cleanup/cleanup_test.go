package cleanup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/hive"
	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
)

type fakeLogStore struct {
	task.LogStore
	mu      sync.Mutex
	deleted chan time.Time
}

func (f *fakeLogStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case f.deleted <- cutoff:
	default:
	}
	return 3, nil
}

type fakeHiveStore struct {
	hive.Store
	mu             sync.Mutex
	staleIDs       []string
	deletedIDs     []string
	offlineIDs     []string
	failedForNode  map[string]int
	markOfflineErr error
}

func (f *fakeHiveStore) StaleProjectsForOnlineNodes(ctx context.Context, cutoff time.Time) ([]string, error) {
	return f.staleIDs, nil
}

func (f *fakeHiveStore) DeleteStaleProjects(ctx context.Context, ids []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedIDs = append(f.deletedIDs, ids...)
	return len(ids), nil
}

func (f *fakeHiveStore) MarkStaleOffline(ctx context.Context, threshold time.Duration, now time.Time) ([]string, error) {
	if f.markOfflineErr != nil {
		return nil, f.markOfflineErr
	}
	return f.offlineIDs, nil
}

func (f *fakeHiveStore) FailActiveForNode(ctx context.Context, nodeID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failedForNode == nil {
		f.failedForNode = map[string]int{}
	}
	f.failedForNode[nodeID]++
	return 2, nil
}

func TestLogPurgerRunsOnInterval(t *testing.T) {
	logs := &fakeLogStore{deleted: make(chan time.Time, 1)}
	w := &Workers{Logs: logs, LogRetention: time.Hour, LogPurgeInterval: 5 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)

	select {
	case <-logs.deleted:
	case <-time.After(time.Second):
		t.Fatal("log purger did not run")
	}
}

func TestStaleProjectSweepDeletesReportedStaleProjects(t *testing.T) {
	h := &fakeHiveStore{staleIDs: []string{"p1", "p2"}}
	w := &Workers{Hive: h, StaleProjectThreshold: time.Hour, StaleProjectInterval: 5 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.deletedIDs) >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestHeartbeatMonitorFailsAssignmentsForOfflineNodes(t *testing.T) {
	h := &fakeHiveStore{offlineIDs: []string{"node-1"}}
	w := &Workers{Hive: h, HeartbeatThreshold: time.Minute, HeartbeatInterval: 5 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.failedForNode["node-1"] > 0
	}, time.Second, 5*time.Millisecond)
}

func TestWorkersDisabledWhenStoresNil(t *testing.T) {
	w := &Workers{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
}
