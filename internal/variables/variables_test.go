package variables

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
)

type fakeVarStore struct {
	chains map[string][]string
	vars   map[string][]task.TaskVariable
}

func (f *fakeVarStore) Set(ctx context.Context, taskID, name, value string) error { return nil }
func (f *fakeVarStore) ListForTask(ctx context.Context, taskID string) ([]task.TaskVariable, error) {
	return f.vars[taskID], nil
}
func (f *fakeVarStore) AncestorChain(ctx context.Context, taskID string) ([]string, error) {
	return f.chains[taskID], nil
}

func TestResolveChildOverridesAncestor(t *testing.T) {
	store := &fakeVarStore{
		chains: map[string][]string{"child": {"child", "parent", "grandparent"}},
		vars: map[string][]task.TaskVariable{
			"child":       {{Name: "ENV", Value: "staging"}},
			"parent":      {{Name: "ENV", Value: "prod"}, {Name: "REGION", Value: "us-east"}},
			"grandparent": {{Name: "REGION", Value: "us-west"}},
		},
	}

	table, err := Resolve(context.Background(), store, "child")
	require.NoError(t, err)
	assert.Equal(t, "staging", table["ENV"].value)
	assert.Equal(t, "child", table["ENV"].definedBy)
	assert.Equal(t, "us-east", table["REGION"].value)
	assert.Equal(t, "parent", table["REGION"].definedBy)
}

func TestExpandReportsUndefinedAndProvenance(t *testing.T) {
	table := Table{"ENV": resolvedVar{value: "staging", definedBy: "task-1"}}

	res := Expand("deploy to $ENV using $MISSING", table)
	assert.Equal(t, "deploy to staging using $MISSING", res.Text)
	assert.Equal(t, []string{"MISSING"}, res.Undefined)
	require.Len(t, res.Expanded, 1)
	assert.Equal(t, "ENV", res.Expanded[0].Name)
	assert.Equal(t, "task-1", res.Expanded[0].DefinedBy)
}

func TestExpandDeduplicatesRepeatedTokens(t *testing.T) {
	table := Table{"X": resolvedVar{value: "1", definedBy: "t"}}
	res := Expand("$X and $X again, but $Y and $Y", table)
	assert.Equal(t, []string{"Y"}, res.Undefined)
	assert.Len(t, res.Expanded, 1)
}
