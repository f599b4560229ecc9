// api/schemas/interfaces.go
package schemas

import (
	"context"
	"time"
)

// Session abstracts the live browsing session the workflow core drives.
// Implementations own navigation and page state; the core only issues
// selector-level operations against the current document.
type Session interface {
	// ID returns the stable identifier of this session.
	ID() string
	// Navigate loads a URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error
	// Find returns a reference to the first visible element matching the
	// selector, or (nil, nil) when nothing visible matches. A non-nil error
	// indicates the query itself failed (malformed selector, dead session).
	Find(ctx context.Context, selector string) (*ElementRef, error)
	// WaitFor blocks until the selector matches a visible element or the
	// timeout elapses.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	// Activate performs a click-equivalent action on the element.
	Activate(ctx context.Context, el *ElementRef) error
	// SetText replaces the element's text content with value.
	SetText(ctx context.Context, el *ElementRef, value string) error
	// CurrentLocation returns the URL of the current page state.
	CurrentLocation() string
	// Evaluate runs a script in the page and unmarshals the result into out.
	Evaluate(ctx context.Context, expression string, out interface{}) error
}

// TargetRepository persists target lifecycle status. The workflow controller
// owns all writes; no other core component touches target state.
type TargetRepository interface {
	HasCompleted(ctx context.Context, id string) (bool, error)
	MarkApplied(ctx context.Context, id string) error
	MarkSkipped(ctx context.Context, id string, reason string) error
	MarkError(ctx context.Context, id string, message string) error
	// MarkErrorContext records a classified failure alongside the terminal
	// error status, so operators can see category and severity without
	// grepping logs.
	MarkErrorContext(ctx context.Context, id string, ec ErrorContext) error
}
