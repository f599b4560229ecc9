// api/schemas/schemas.go
package schemas

import (
	"time"
)

// TargetStatus tracks the lifecycle of a single application target.
// A target starts as "found" and is moved to exactly one terminal status
// by the workflow controller.
type TargetStatus string

const (
	StatusFound   TargetStatus = "found"
	StatusApplied TargetStatus = "applied"
	StatusSkipped TargetStatus = "skipped"
	StatusError   TargetStatus = "error"
)

// Target is the unit of work driven through the application workflow,
// typically one job posting on the external board. Identity fields are
// immutable; only Status changes, and only via the repository.
type Target struct {
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	Company  string       `json:"company"`
	Location string       `json:"location"`
	URL      string       `json:"url"`
	Status   TargetStatus `json:"status"`
}

// ElementRef identifies an element resolved in the live page. Selector is the
// candidate that matched; implementations may also carry a backend node id.
type ElementRef struct {
	Selector string
	NodeID   int64
}

// StepResult is the tagged outcome of a single step invocation.
type StepResult string

const (
	// StepContinue means the step completed and the next one should be attempted.
	StepContinue StepResult = "continue"
	// StepSubmit means the terminal step was reached and finalization should run.
	StepSubmit StepResult = "submit"
	// StepError means the step could not be completed. The processor never
	// retries internally; retrying is the caller's decision.
	StepError StepResult = "error"
)

// StepOutcome is produced exactly once per step invocation.
type StepOutcome struct {
	Result StepResult
	// FieldsFilled counts the fields successfully completed on this step.
	FieldsFilled int
	// UnfilledRequired counts required fields still empty when a validation
	// error was detected. Best effort: non-required unfilled fields pass silently.
	UnfilledRequired int
	Err              error
}

// Outcome is the application-level result of driving one target.
type Outcome string

const (
	OutcomeApplied     Outcome = "applied"
	OutcomeAlreadyDone Outcome = "already_done"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeError       Outcome = "error"
)

// Category classifies a failure raised while driving the external target.
type Category string

const (
	CategoryNetwork        Category = "network"
	CategoryTimeout        Category = "timeout"
	CategoryAuthentication Category = "authentication"
	CategoryParsing        Category = "parsing"
	CategoryDetection      Category = "detection"
	CategoryChallenge      Category = "challenge"
	CategoryRateLimit      Category = "rate_limit"
	CategoryConfiguration  Category = "configuration"
	CategoryUnknown        Category = "unknown"
)

// Severity grades how badly a failure compromises the current run.
// Within one classification it only ever escalates, never de-escalates.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
	SeverityFatal  Severity = "fatal"
)

// ErrorContext accumulates everything known about a failure at classification
// time. Optional fields stay empty when the information is unavailable.
type ErrorContext struct {
	Category     Category  `json:"category"`
	Severity     Severity  `json:"severity"`
	OccurredAt   time.Time `json:"occurred_at"`
	Selector     string    `json:"selector,omitempty"`
	TargetID     string    `json:"target_id,omitempty"`
	SessionID    string    `json:"session_id,omitempty"`
	URL          string    `json:"url,omitempty"`
	RetryAttempt int       `json:"retry_attempt"`
	Message      string    `json:"message,omitempty"`
}

// FormField describes one fillable control discovered on the current step.
// Produced by the session's field probe and consumed by the step processor.
type FormField struct {
	Label    string `json:"label"`
	Selector string `json:"selector"`
	Required bool   `json:"required"`
	Value    string `json:"value"`
}
