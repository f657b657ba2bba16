package approvalsvc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/approval"
)

type fakeApprovalStore struct {
	mu        sync.Mutex
	created   []*approval.Approval
	resolved  map[string]approval.Status
}

func newFakeApprovalStore() *fakeApprovalStore {
	return &fakeApprovalStore{resolved: map[string]approval.Status{}}
}

func (f *fakeApprovalStore) Create(ctx context.Context, a *approval.Approval) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.ID == "" {
		a.ID = "approval-1"
	}
	f.created = append(f.created, a)
	return nil
}
func (f *fakeApprovalStore) Get(ctx context.Context, id string) (*approval.Approval, error) {
	return nil, nil
}
func (f *fakeApprovalStore) Resolve(ctx context.Context, id string, status approval.Status, denialReason *string, answers map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved[id] = status
	return nil
}
func (f *fakeApprovalStore) ListPendingForExecution(ctx context.Context, executionID string) ([]*approval.Approval, error) {
	return nil, nil
}

type fakeNotifier struct {
	mu          sync.Mutex
	inReviewIDs []string
	inProgIDs   []string
}

func (n *fakeNotifier) SetInReview(ctx context.Context, taskID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inReviewIDs = append(n.inReviewIDs, taskID)
	return nil
}
func (n *fakeNotifier) SetInProgress(ctx context.Context, taskID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inProgIDs = append(n.inProgIDs, taskID)
	return nil
}

func TestNoopBackendAutoApprovesTools(t *testing.T) {
	store := newFakeApprovalStore()
	notifier := &fakeNotifier{}
	svc := New(store, NoopBackend{}, notifier, time.Second)

	status, denial, err := svc.RequestToolApproval(context.Background(), "exec-1", "task-1", "bash", "{}", "call-1")
	require.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, status)
	assert.Nil(t, denial)
	assert.Equal(t, []string{"task-1"}, notifier.inReviewIDs)
	assert.Equal(t, []string{"task-1"}, notifier.inProgIDs)
}

func TestNoopBackendTimesOutQuestions(t *testing.T) {
	store := newFakeApprovalStore()
	notifier := &fakeNotifier{}
	svc := New(store, NoopBackend{}, notifier, time.Second)

	status, answers, err := svc.RequestQuestionApproval(context.Background(), "exec-1", "task-1", "call-1", []approval.Question{{Question: "continue?", Header: "q1"}})
	require.NoError(t, err)
	assert.Equal(t, approval.StatusTimedOut, status)
	assert.Nil(t, answers)
}

func TestInteractiveBackendRespondResolves(t *testing.T) {
	store := newFakeApprovalStore()
	notifier := &fakeNotifier{}
	backend := NewInteractiveBackend()
	svc := New(store, backend, notifier, 5*time.Second)

	resultCh := make(chan approval.Status, 1)
	go func() {
		status, _, err := svc.RequestToolApproval(context.Background(), "exec-1", "task-1", "bash", "{}", "call-1")
		require.NoError(t, err)
		resultCh <- status
	}()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.created) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Respond("approval-1", approval.StatusApproved, nil))

	select {
	case status := <-resultCh:
		assert.Equal(t, approval.StatusApproved, status)
	case <-time.After(time.Second):
		t.Fatal("approval never resolved")
	}
}

func TestInteractiveBackendTimesOut(t *testing.T) {
	store := newFakeApprovalStore()
	notifier := &fakeNotifier{}
	backend := NewInteractiveBackend()
	svc := New(store, backend, notifier, 10*time.Millisecond)

	status, _, err := svc.RequestToolApproval(context.Background(), "exec-1", "task-1", "bash", "{}", "call-1")
	require.NoError(t, err)
	assert.Equal(t, approval.StatusTimedOut, status)
}
