// internal/resilience/errors.go
package resilience

import (
	"fmt"

	"github.com/xkilldash9x/applypilot/api/schemas"
)

// WorkflowError is the single escalated error object produced when a
// workflow-level failure crosses the controller boundary. It carries the
// classified context so callers can act on category and severity without
// parsing messages.
type WorkflowError struct {
	Context schemas.ErrorContext
	// Attempts is how many times the failing operation ran before giving up.
	Attempts int
	Err      error
}

func (e *WorkflowError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("workflow failure (%s/%s)", e.Context.Category, e.Context.Severity)
	}
	return fmt.Sprintf("workflow failure (%s/%s) after %d attempt(s): %v",
		e.Context.Category, e.Context.Severity, e.Attempts, e.Err)
}

func (e *WorkflowError) Unwrap() error { return e.Err }

// NewWorkflowError classifies err and wraps it with its graded context.
func NewWorkflowError(err error, attempts int, ec schemas.ErrorContext) *WorkflowError {
	ec.RetryAttempt = attempts
	return &WorkflowError{
		Context:  NewErrorContext(err, ec),
		Attempts: attempts,
		Err:      err,
	}
}
