package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToEnvelopeMapsSentinels(t *testing.T) {
	cases := []struct {
		err      error
		wantCode int
		wantKind string
	}{
		{NotFoundError("task t1"), 404, "not_found"},
		{AlreadyExistsError("shared_task_id"), 409, "already_exists"},
		{ConflictError("remote_version mismatch"), 409, "conflict"},
		{ValidationError("bad status"), 400, "validation"},
		{UnavailableError("db pool exhausted"), 503, "unavailable"},
		{NewGitError(GitWorktreeExists, "already exists", nil), 422, string(GitWorktreeExists)},
		{NewApprovalError(ApprovalServiceUnavailable, "no broker"), 502, string(ApprovalServiceUnavailable)},
		{errors.New("boom"), 500, "internal"},
	}
	for _, c := range cases {
		code, env := ToEnvelope(c.err)
		assert.Equal(t, c.wantCode, code)
		assert.Equal(t, c.wantKind, env.Kind)
	}
}

func TestWrappedErrorsUnwrapToSentinel(t *testing.T) {
	err := NotFoundError("project p1")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
}

func TestGitErrorUnwrapsToErrGit(t *testing.T) {
	err := NewGitError(GitStashEmpty, "", nil)
	assert.True(t, errors.Is(err, ErrGit))
}
