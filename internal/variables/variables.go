// Package variables implements the task variable expander (spec §4.K):
// $NAME token substitution against a nearest-ancestor-wins variable table.
package variables

import (
	"context"
	"regexp"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/task"
)

// tokenPattern matches $NAME references: a dollar sign followed by an
// identifier (letters, digits, underscore, not starting with a digit).
var tokenPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// Expanded names a variable substitution's provenance: which task in the
// ancestor chain defined the value that was used.
type Expanded struct {
	Name       string
	DefinedBy  string
}

// Result is the output of Expand.
type Result struct {
	Text      string
	Undefined []string
	Expanded  []Expanded
}

// Table maps a variable name to the task id that defines it, built by
// Resolve's nearest-ancestor-wins walk.
type Table map[string]resolvedVar

type resolvedVar struct {
	value     string
	definedBy string
}

// Resolve builds the variable table for targetTaskID: it walks the
// parent chain (nearest first, including the task itself) and for each
// name keeps the nearest definition — a child's own variable overrides
// one of the same name on an ancestor (spec §4.K).
func Resolve(ctx context.Context, store task.VariableStore, targetTaskID string) (Table, error) {
	chain, err := store.AncestorChain(ctx, targetTaskID)
	if err != nil {
		return nil, err
	}

	table := Table{}
	// chain is nearest-first; only set a name the first time it's seen so
	// a nearer (earlier) definition is never overwritten by a farther one.
	for _, taskID := range chain {
		vars, err := store.ListForTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		for _, v := range vars {
			if _, exists := table[v.Name]; exists {
				continue
			}
			table[v.Name] = resolvedVar{value: v.Value, definedBy: taskID}
		}
	}
	return table, nil
}

// Expand substitutes every $NAME token in text using table, per spec
// §4.K: returns the expanded text, the names referenced but undefined,
// and the names successfully expanded with the defining task id.
func Expand(text string, table Table) Result {
	var undefined []string
	var expanded []Expanded
	seenUndefined := map[string]bool{}
	seenExpanded := map[string]bool{}

	out := tokenPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := match[1:]
		rv, ok := table[name]
		if !ok {
			if !seenUndefined[name] {
				undefined = append(undefined, name)
				seenUndefined[name] = true
			}
			return match
		}
		if !seenExpanded[name] {
			expanded = append(expanded, Expanded{Name: name, DefinedBy: rv.definedBy})
			seenExpanded[name] = true
		}
		return rv.value
	})

	return Result{Text: out, Undefined: undefined, Expanded: expanded}
}
