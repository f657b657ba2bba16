// Package approvalsvc implements the tool-call approval service (spec
// §4.J): binary tool approvals and question/answer requests, each
// resolved by an interactive or no-op Backend, with the owning Task
// flipped to inreview for the duration of the request.
package approvalsvc

import (
	"context"
	"time"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/approval"
	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"
)

// DefaultTimeout is the fixed binary-approval timeout (spec §4.J).
const DefaultTimeout = 3600 * time.Second

// TaskNotifier is the subset of engine behavior the approval service
// needs: flipping the owning Task into/out of inreview around a request
// (spec §4.J: "the engine puts the owning Task into inreview on request
// and returns it to inprogress ... on resolution"). The engine implements
// this; approvalsvc never imports the engine package.
type TaskNotifier interface {
	SetInReview(ctx context.Context, taskID string) error
	SetInProgress(ctx context.Context, taskID string) error
}

// resolution is what a Backend eventually produces for a pending
// approval.
type resolution struct {
	status  approval.Status
	denial  *string
	answers map[string]string
}

// Backend resolves a pending Approval, either by waiting on a human
// (InteractiveBackend) or immediately (NoopBackend).
type Backend interface {
	// Await blocks until a has a resolution, ctx is done, or the timeout
	// named on a elapses.
	Await(ctx context.Context, a *approval.Approval, timeout time.Duration) resolution
}

// Service brokers approval requests against a store and a pluggable
// Backend, and drives the Task inreview/inprogress transition around
// each request.
type Service struct {
	store    approval.Store
	backend  Backend
	notifier TaskNotifier
	timeout  time.Duration
}

// New builds a Service. timeout <= 0 uses DefaultTimeout.
func New(store approval.Store, backend Backend, notifier TaskNotifier, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{store: store, backend: backend, notifier: notifier, timeout: timeout}
}

// RequestToolApproval implements spec §4.J's binary shape:
// request_tool_approval(tool, input, tool_call_id) -> {Approved, Denied{reason?}, TimedOut}.
func (s *Service) RequestToolApproval(ctx context.Context, executionID, taskID, tool, input, toolCallID string) (approval.Status, *string, error) {
	a := &approval.Approval{
		ExecutionProcessID: executionID,
		Kind:               approval.KindToolApproval,
		ToolCallID:         toolCallID,
		Tool:               tool,
		Input:              input,
		Status:             approval.StatusPending,
	}
	res, err := s.request(ctx, taskID, a)
	if err != nil {
		return "", nil, err
	}
	return res.status, res.denial, nil
}

// RequestQuestionApproval implements spec §4.J's question/answer shape.
func (s *Service) RequestQuestionApproval(ctx context.Context, executionID, taskID, toolCallID string, questions []approval.Question) (approval.Status, map[string]string, error) {
	a := &approval.Approval{
		ExecutionProcessID: executionID,
		Kind:               approval.KindQuestions,
		ToolCallID:         toolCallID,
		Questions:          questions,
		Status:             approval.StatusPending,
	}
	res, err := s.request(ctx, taskID, a)
	if err != nil {
		return "", nil, err
	}
	return res.status, res.answers, nil
}

func (s *Service) request(ctx context.Context, taskID string, a *approval.Approval) (resolution, error) {
	if err := s.store.Create(ctx, a); err != nil {
		return resolution{}, err
	}
	if err := s.notifier.SetInReview(ctx, taskID); err != nil {
		return resolution{}, err
	}

	res := s.backend.Await(ctx, a, s.timeout)

	if err := s.store.Resolve(ctx, a.ID, res.status, res.denial, res.answers); err != nil {
		return resolution{}, err
	}
	if err := s.notifier.SetInProgress(ctx, taskID); err != nil {
		return resolution{}, err
	}
	return res, nil
}

// Respond resolves a pending interactive approval from the HTTP surface
// (POST /approvals/{id}/respond). Only meaningful with an
// InteractiveBackend; a NoopBackend never has anything pending to
// respond to.
func (s *Service) Respond(id string, status approval.Status, answers map[string]string) error {
	ib, ok := s.backend.(*InteractiveBackend)
	if !ok {
		return vkerrors.ValidationError("approval backend does not accept manual responses")
	}
	return ib.resolve(id, status, answers)
}
