// internal/selector/resolver.go

// Package selector resolves volatile UI element references through ordered
// candidate lists. The external board reshuffles its markup frequently, so no
// single selector can be trusted; each lookup walks a priority-ordered set and
// takes the first candidate that currently matches a visible element.
package selector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/applypilot/api/schemas"
)

// ErrEmptySelectorSet is returned when a set carries zero candidates. This is
// a configuration mistake, not a runtime condition of the target page.
var ErrEmptySelectorSet = errors.New("selector set has no candidates")

// Set is an ordered, non-empty sequence of candidate selectors,
// highest-priority first.
type Set struct {
	// Name identifies what the set locates (e.g. "advance_control"), used
	// only for logs and error messages.
	Name       string
	Candidates []string
}

// NewSet builds a named selector set, rejecting empty candidate lists.
func NewSet(name string, candidates ...string) (Set, error) {
	if len(candidates) == 0 {
		return Set{}, fmt.Errorf("selector set %q: %w", name, ErrEmptySelectorSet)
	}
	return Set{Name: name, Candidates: candidates}, nil
}

// MustSet is NewSet for package-level defaults that are known non-empty.
func MustSet(name string, candidates ...string) Set {
	s, err := NewSet(name, candidates...)
	if err != nil {
		panic(err)
	}
	return s
}

// Resolver performs single-pass resolution of selector sets against a session.
// It holds no session state and applies no retries or delays; retry semantics
// belong to callers.
type Resolver struct {
	log *zap.Logger
}

// NewResolver creates a resolver. A nil logger is replaced with a no-op one.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{log: logger.Named("selector")}
}

// Resolve iterates the candidates in order and returns the first one matching
// a visible element. Per-candidate query errors (malformed selector, stale
// session) are swallowed and the next candidate is tried; candidates after a
// match are never evaluated. A nil reference with a nil error means nothing
// visible matched. Only an empty set is itself a failure.
func (r *Resolver) Resolve(ctx context.Context, sess schemas.Session, set Set) (*schemas.ElementRef, error) {
	if len(set.Candidates) == 0 {
		return nil, fmt.Errorf("selector set %q: %w", set.Name, ErrEmptySelectorSet)
	}

	for _, candidate := range set.Candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		el, err := sess.Find(ctx, candidate)
		if err != nil {
			r.log.Debug("Candidate query failed, trying next",
				zap.String("set", set.Name),
				zap.String("selector", candidate),
				zap.Error(err))
			continue
		}
		if el != nil {
			return el, nil
		}
	}

	r.log.Debug("No candidate matched a visible element", zap.String("set", set.Name))
	return nil, nil
}
