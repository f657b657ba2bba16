package githubsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/project"
)

type fakeProjectStore struct {
	project.Store
	openIssues, openPRs int
	syncedAt            time.Time
	calledProjectID      string
}

func (f *fakeProjectStore) UpdateGitHubSyncStats(ctx context.Context, id string, openIssues, openPRs int, syncedAt time.Time) error {
	f.calledProjectID = id
	f.openIssues = openIssues
	f.openPRs = openPRs
	f.syncedAt = syncedAt
	return nil
}

func TestSyncOnceRecordsIssueAndPRCounts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		count := 0
		switch {
		case contains(q, "is:issue"):
			count = 4
		case contains(q, "is:pr"):
			count = 2
		}
		_ = json.NewEncoder(w).Encode(map[string]int{"total_count": count})
	}))
	defer server.Close()

	store := &fakeProjectStore{}
	syncer := New(store, server.Client(), server.URL)

	err := syncer.SyncOnce(context.Background(), "proj-1", "acme", "widgets")
	require.NoError(t, err)
	require.Equal(t, "proj-1", store.calledProjectID)
	require.Equal(t, 4, store.openIssues)
	require.Equal(t, 2, store.openPRs)
}

func TestSyncOnceReturnsErrorOnNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	syncer := New(&fakeProjectStore{}, server.Client(), server.URL)
	err := syncer.SyncOnce(context.Background(), "proj-1", "acme", "widgets")
	require.Error(t, err)
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
