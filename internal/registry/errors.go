package registry

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for registry operations, checked with errors.Is().
var (
	// ErrDuplicateFunction indicates a spec name is already registered.
	ErrDuplicateFunction = errors.New("duplicate function")

	// ErrUnknownFunction indicates no spec is registered under the name.
	ErrUnknownFunction = errors.New("unknown function")
)

// ValidationError reports every argument constraint violated by a
// function-call request. It is fed back to the model as data so the
// model can correct the call; it never aborts a turn.
type ValidationError struct {
	Function   string
	Violations []Violation
}

// Violation is a single violated constraint on one argument.
type Violation struct {
	Argument string `json:"argument"`
	Reason   string `json:"reason"`
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Violations) == 0 {
		return "invalid arguments"
	}
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s: %s", v.Argument, v.Reason)
	}
	return fmt.Sprintf("invalid arguments for %s: %s", e.Function, strings.Join(parts, "; "))
}
