package syncpub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
)

type fakeAttemptStore struct {
	task.AttemptStore
	mu      sync.Mutex
	unsynced []*task.TaskAttempt
	synced   []string
}

func (f *fakeAttemptStore) FindUnsynced(ctx context.Context, limit int) ([]*task.TaskAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.unsynced) == 0 {
		return nil, nil
	}
	n := limit
	if n > len(f.unsynced) {
		n = len(f.unsynced)
	}
	return f.unsynced[:n], nil
}

func (f *fakeAttemptStore) MarkHiveSynced(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, id)
	for i, a := range f.unsynced {
		if a.ID == id {
			f.unsynced = append(f.unsynced[:i], f.unsynced[i+1:]...)
			break
		}
	}
	return nil
}

type fakeExecutionStore struct {
	task.ExecutionStore
}

func (f *fakeExecutionStore) FindUnsynced(ctx context.Context, limit int) ([]*task.ExecutionProcess, error) {
	return nil, nil
}

type fakeLogStore struct {
	task.LogStore
}

func (f *fakeLogStore) FindUnsynced(ctx context.Context, limit int) ([]task.LogEntry, error) {
	return nil, nil
}

func TestDrainAttemptsPushesAndMarksSynced(t *testing.T) {
	var receivedPath string
	var receivedBody []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&receivedBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	attempts := &fakeAttemptStore{unsynced: []*task.TaskAttempt{
		{ID: "a1", TaskID: "t1"},
		{ID: "a2", TaskID: "t1"},
	}}

	client := NewClient(server.URL, server.Client())
	pub := New(attempts, &fakeExecutionStore{}, &fakeLogStore{}, client, 10, nil)

	require.NoError(t, pub.DrainOnce(context.Background()))

	require.Equal(t, "/sync/attempts", receivedPath)
	require.Len(t, receivedBody, 2)
	require.ElementsMatch(t, []string{"a1", "a2"}, attempts.synced)
	require.Empty(t, attempts.unsynced)
}

func TestDrainAttemptsLeavesUnsyncedOnPushFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	attempts := &fakeAttemptStore{unsynced: []*task.TaskAttempt{{ID: "a1", TaskID: "t1"}}}
	client := NewClient(server.URL, server.Client())
	pub := New(attempts, &fakeExecutionStore{}, &fakeLogStore{}, client, 10, nil)

	require.NoError(t, pub.DrainOnce(context.Background()))
	require.Empty(t, attempts.synced)
	require.Len(t, attempts.unsynced, 1)
}

func TestRunDisabledWhenIntervalIsZero(t *testing.T) {
	attempts := &fakeAttemptStore{}
	pub := New(attempts, &fakeExecutionStore{}, &fakeLogStore{}, NewClient("http://example.invalid", nil), 10, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pub.Run(ctx, 0)
}
