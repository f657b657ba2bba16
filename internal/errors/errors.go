// Package errors defines the kind taxonomy that propagates unchanged
// through the storage, engine, git, executor and approval layers (spec §7).
// It follows the teacher's sentinel-error-plus-wrapper idiom: a small set of
// package-level sentinels, constructor functions that wrap a sentinel with a
// message, and errors.Is/As at every call site instead of string matching.
package errors

import (
	"errors"
	"fmt"
)

// Sentinels for the taxonomy named in spec §7. Route handlers map these to
// HTTP status codes; background workers classify them to decide whether to
// retry.
var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation error")
	ErrUnavailable  = errors.New("service unavailable")

	// ErrGit roots every git-worktree-related kind (§7 "Git errors").
	ErrGit = errors.New("git error")

	// ErrApproval roots the approval-service error kinds (§7 "Approval errors").
	ErrApproval = errors.New("approval error")
)

// wrapped is a sentinel-tagged error carrying a human-readable message.
type wrapped struct {
	sentinel error
	msg      string
}

func (e *wrapped) Error() string  { return fmt.Sprintf("%s: %s", e.msg, e.sentinel) }
func (e *wrapped) Unwrap() error  { return e.sentinel }

func wrap(sentinel error, msg string) error {
	return &wrapped{sentinel: sentinel, msg: msg}
}

func NotFoundError(msg string) error      { return wrap(ErrNotFound, msg) }
func AlreadyExistsError(msg string) error { return wrap(ErrAlreadyExists, msg) }
func ConflictError(msg string) error      { return wrap(ErrConflict, msg) }
func ValidationError(msg string) error    { return wrap(ErrValidation, msg) }
func UnavailableError(msg string) error   { return wrap(ErrUnavailable, msg) }

// GitKind enumerates the distinct git-worktree failure kinds named in §7.
type GitKind string

const (
	GitWorktreeExists  GitKind = "worktree_already_exists"
	GitBranchConflict  GitKind = "branch_conflict"
	GitStashEmpty      GitKind = "stash_empty"
	GitDestNotEmpty    GitKind = "destination_not_empty"
	GitCloneFailed     GitKind = "clone_failed"
	GitNothingToStash  GitKind = "nothing_to_stash"
)

// GitError is a distinct, user-facing git-worktree failure.
type GitError struct {
	Kind    GitKind
	Message string
	Err     error
}

func (e *GitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *GitError) Unwrap() error { return errors.Join(ErrGit, e.Err) }

func NewGitError(kind GitKind, message string, cause error) *GitError {
	return &GitError{Kind: kind, Message: message, Err: cause}
}

// ExecutorKind enumerates the stderr classification buckets the normalizer
// (§4.F) assigns and the engine records on ExecutionProcess.completion_reason.
type ExecutorKind string

const (
	ExecutorSetupRequired    ExecutorKind = "setup_required"
	ExecutorRateLimited      ExecutorKind = "rate_limited"
	ExecutorNetworkError     ExecutorKind = "network_error"
	ExecutorPermissionDenied ExecutorKind = "permission_denied"
	ExecutorToolExecution    ExecutorKind = "tool_execution_error"
	ExecutorAPIError         ExecutorKind = "api_error"
	ExecutorOther            ExecutorKind = "other"
)

// ApprovalKind enumerates the approval-service error kinds named in §7.
type ApprovalKind string

const (
	ApprovalSessionNotRegistered ApprovalKind = "session_not_registered"
	ApprovalRequestFailed        ApprovalKind = "request_failed"
	ApprovalServiceUnavailable   ApprovalKind = "service_unavailable"
)

// ApprovalError is a distinct approval-service failure.
type ApprovalError struct {
	Kind    ApprovalKind
	Message string
}

func (e *ApprovalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ApprovalError) Unwrap() error { return ErrApproval }

func NewApprovalError(kind ApprovalKind, message string) *ApprovalError {
	return &ApprovalError{Kind: kind, Message: message}
}

// Envelope is the uniform HTTP error body from spec §7.
type Envelope struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ToEnvelope classifies err into the HTTP-visible {kind, message} shape and
// returns the matching status code.
func ToEnvelope(err error) (int, Envelope) {
	switch {
	case errors.Is(err, ErrNotFound):
		return 404, Envelope{Kind: "not_found", Message: err.Error()}
	case errors.Is(err, ErrAlreadyExists):
		return 409, Envelope{Kind: "already_exists", Message: err.Error()}
	case errors.Is(err, ErrConflict):
		return 409, Envelope{Kind: "conflict", Message: err.Error()}
	case errors.Is(err, ErrValidation):
		return 400, Envelope{Kind: "validation", Message: err.Error()}
	case errors.Is(err, ErrUnavailable):
		return 503, Envelope{Kind: "unavailable", Message: err.Error()}
	default:
		var gitErr *GitError
		if errors.As(err, &gitErr) {
			return 422, Envelope{Kind: string(gitErr.Kind), Message: gitErr.Error()}
		}
		var apprErr *ApprovalError
		if errors.As(err, &apprErr) {
			return 502, Envelope{Kind: string(apprErr.Kind), Message: apprErr.Error()}
		}
		return 500, Envelope{Kind: "internal", Message: err.Error()}
	}
}
