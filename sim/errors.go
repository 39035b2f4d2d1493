package sim

import (
	"errors"
	"fmt"
)

// ErrStepLimit is returned by Kernel.Run when the configured step limit is reached.
var ErrStepLimit = errors.New("sim: step limit reached")

// InvariantError reports a fatal invariant violation inside a model.
// Models raise it with Violation; Kernel.Run recovers it and stamps the step.
type InvariantError struct {
	Component string
	Time      float64
	Step      int
	Msg       string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation in %s at t=%g (step %d): %s", e.Component, e.Time, e.Step, e.Msg)
}

// Violation aborts the current step with an InvariantError.
func Violation(component string, format string, args ...any) {
	panic(&InvariantError{Component: component, Msg: fmt.Sprintf(format, args...)})
}
