package task

import (
	"regexp"

	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"
)

var variableNamePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// ValidateVariableName enforces the naming rule from spec §3.
func ValidateVariableName(name string) error {
	if !variableNamePattern.MatchString(name) {
		return vkerrors.ValidationError("invalid variable name " + name + ", must match [A-Z][A-Z0-9_]*")
	}
	return nil
}
