package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateStatusAcceptsKnownValues(t *testing.T) {
	for _, s := range []string{"todo", "inprogress", "inreview", "done", "cancelled"} {
		_, err := ValidateStatus(s)
		assert.NoError(t, err)
	}
}

func TestValidateStatusRejectsUnknown(t *testing.T) {
	for _, s := range []string{"", "TODO", "in_progress"} {
		_, err := ValidateStatus(s)
		assert.Error(t, err)
	}
}

func TestTaskValidateRejectsBothParentAndSharedID(t *testing.T) {
	parent := "p1"
	shared := "s1"
	tk := &Task{ID: "t1", ParentTaskID: &parent, SharedTaskID: &shared}
	assert.Error(t, tk.Validate())
}

func TestTaskValidateAllowsParentOnly(t *testing.T) {
	parent := "p1"
	tk := &Task{ID: "t1", ParentTaskID: &parent}
	assert.NoError(t, tk.Validate())
}

func TestValidateVariableName(t *testing.T) {
	assert.NoError(t, ValidateVariableName("FOO_BAR"))
	assert.NoError(t, ValidateVariableName("A1"))
	assert.Error(t, ValidateVariableName("foo"))
	assert.Error(t, ValidateVariableName("1FOO"))
	assert.Error(t, ValidateVariableName(""))
}

func TestExecutionStatusIsTerminal(t *testing.T) {
	assert.False(t, ExecutionRunning.IsTerminal())
	assert.True(t, ExecutionCompleted.IsTerminal())
	assert.True(t, ExecutionFailed.IsTerminal())
	assert.True(t, ExecutionKilled.IsTerminal())
}
