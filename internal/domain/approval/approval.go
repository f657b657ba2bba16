// Package approval defines the tool-call approval and question/answer
// entities brokered by internal/approvalsvc (spec §4.J).
package approval

import (
	"context"
	"time"
)

// Status is the resolution of an approval request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusTimedOut Status = "timed_out"
)

// Kind distinguishes a binary tool approval from a question/answer request.
type Kind string

const (
	KindToolApproval Kind = "tool_approval"
	KindQuestions    Kind = "questions"
)

// Option is one selectable choice in a Question.
type Option struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// Question is one question in a question/answer approval request.
type Question struct {
	Question    string   `json:"question"`
	Header      string   `json:"header"`
	MultiSelect bool     `json:"multi_select"`
	Options     []Option `json:"options"`
}

// Approval is a single approval/question request raised by a running
// execution, resolved by a user or an auto-approver.
type Approval struct {
	ID                  string     `json:"id" db:"id"`
	ExecutionProcessID  string     `json:"execution_process_id" db:"execution_process_id"`
	Kind                Kind       `json:"kind" db:"kind"`
	ToolCallID          string     `json:"tool_call_id" db:"tool_call_id"`
	Tool                string     `json:"tool,omitempty" db:"tool"`
	Input               string     `json:"input,omitempty" db:"input"`
	Questions           []Question `json:"questions,omitempty" db:"questions"`
	Status              Status     `json:"status" db:"status"`
	DenialReason        *string    `json:"denial_reason,omitempty" db:"denial_reason"`
	Answers             map[string]string `json:"answers,omitempty" db:"answers"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	ResolvedAt          *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
}

// RespondParams is the body of POST /approvals/{id}/respond.
type RespondParams struct {
	Status  Status            `json:"status" validate:"required"`
	Answers map[string]string `json:"answers,omitempty"`
}

// Store is the persistence port for approvals.
type Store interface {
	Create(ctx context.Context, a *Approval) error
	Get(ctx context.Context, id string) (*Approval, error)
	Resolve(ctx context.Context, id string, status Status, denialReason *string, answers map[string]string) error
	ListPendingForExecution(ctx context.Context, executionID string) ([]*Approval, error)
}
