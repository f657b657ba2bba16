package approvalsvc

import (
	"context"
	"sync"
	"time"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/approval"
)

// InteractiveBackend waits for a human response delivered through
// Respond, grounded on the teacher's terminal-approval
// "channel + select with timeout" idiom
// (internal/approval.InteractiveApprover.promptWithTimeout), generalized
// from a blocking stdin read to an externally-delivered HTTP response.
type InteractiveBackend struct {
	mu      sync.Mutex
	pending map[string]chan resolution
}

// NewInteractiveBackend builds an InteractiveBackend.
func NewInteractiveBackend() *InteractiveBackend {
	return &InteractiveBackend{pending: map[string]chan resolution{}}
}

func (b *InteractiveBackend) Await(ctx context.Context, a *approval.Approval, timeout time.Duration) resolution {
	ch := make(chan resolution, 1)
	b.mu.Lock()
	b.pending[a.ID] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, a.ID)
		b.mu.Unlock()
	}()

	select {
	case res := <-ch:
		return res
	case <-time.After(timeout):
		return resolution{status: approval.StatusTimedOut}
	case <-ctx.Done():
		return resolution{status: approval.StatusTimedOut}
	}
}

// resolve delivers a manually-submitted response to a still-pending
// approval, for the HTTP respond endpoint.
func (b *InteractiveBackend) resolve(id string, status approval.Status, answers map[string]string) error {
	b.mu.Lock()
	ch, ok := b.pending[id]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	var denial *string
	select {
	case ch <- resolution{status: status, denial: denial, answers: answers}:
	default:
	}
	return nil
}

// NoopBackend auto-approves tool calls immediately and times out question
// requests immediately, for unattended runs (spec §4.J).
type NoopBackend struct{}

func (NoopBackend) Await(ctx context.Context, a *approval.Approval, timeout time.Duration) resolution {
	switch a.Kind {
	case approval.KindToolApproval:
		return resolution{status: approval.StatusApproved}
	default:
		return resolution{status: approval.StatusTimedOut}
	}
}
