// internal/resilience/classify_test.go
package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/applypilot/api/schemas"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected schemas.Category
	}{
		{"nil error", nil, schemas.CategoryUnknown},
		{"chromium network error", errors.New("net::ERR_CONNECTION_REFUSED"), schemas.CategoryNetwork},
		{"dns failure", errors.New("lookup board.example.com: no such host"), schemas.CategoryNetwork},
		{"deadline exceeded", errors.New("context deadline exceeded"), schemas.CategoryTimeout},
		{"wait timed out", errors.New("waiting for element timed out"), schemas.CategoryTimeout},
		{"session expired", errors.New("session expired, please sign in"), schemas.CategoryAuthentication},
		{"http 403", errors.New("request failed with status 403"), schemas.CategoryAuthentication},
		{"stale element", errors.New("stale element reference"), schemas.CategoryParsing},
		{"no nodes", errors.New("no nodes matched query"), schemas.CategoryParsing},
		{"bot detection", errors.New("unusual activity detected on your account"), schemas.CategoryDetection},
		{"captcha page", errors.New("captcha required to continue"), schemas.CategoryChallenge},
		{"rate limited", errors.New("429 too many requests"), schemas.CategoryRateLimit},
		{"bad option", errors.New("invalid option for workflow.max_steps"), schemas.CategoryConfiguration},
		{"unrecognized", errors.New("something completely different"), schemas.CategoryUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Classify(tc.err))
		})
	}

	t.Run("network outranks timeout when both match", func(t *testing.T) {
		// A connection reset inside a timeout wrapper is primarily a network
		// failure; the category list is checked in priority order.
		err := errors.New("connection reset by peer after timeout")
		assert.Equal(t, schemas.CategoryNetwork, Classify(err))
	})
}

func TestGrade(t *testing.T) {
	t.Run("starts from the category base severity", func(t *testing.T) {
		assert.Equal(t, schemas.SeverityLow,
			Grade(errors.New("no nodes"), schemas.CategoryParsing, schemas.ErrorContext{}))
		assert.Equal(t, schemas.SeverityMedium,
			Grade(errors.New("reset"), schemas.CategoryNetwork, schemas.ErrorContext{}))
		assert.Equal(t, schemas.SeverityHigh,
			Grade(errors.New("captcha"), schemas.CategoryChallenge, schemas.ErrorContext{}))
	})

	t.Run("escalates after repeated retries", func(t *testing.T) {
		ec := schemas.ErrorContext{RetryAttempt: 3}
		assert.Equal(t, schemas.SeverityHigh,
			Grade(errors.New("reset"), schemas.CategoryNetwork, ec))
	})

	t.Run("does not escalate within the retry budget", func(t *testing.T) {
		ec := schemas.ErrorContext{RetryAttempt: 2}
		assert.Equal(t, schemas.SeverityMedium,
			Grade(errors.New("reset"), schemas.CategoryNetwork, ec))
	})

	t.Run("fatal keywords escalate", func(t *testing.T) {
		assert.Equal(t, schemas.SeverityHigh,
			Grade(errors.New("browser crashed mid navigation"), schemas.CategoryNetwork, schemas.ErrorContext{}))
	})

	t.Run("mid-target failures escalate", func(t *testing.T) {
		ec := schemas.ErrorContext{TargetID: "t-1", URL: "https://board.example.com/apply"}
		assert.Equal(t, schemas.SeverityMedium,
			Grade(errors.New("no nodes"), schemas.CategoryParsing, ec))
	})

	t.Run("escalation is capped at fatal", func(t *testing.T) {
		ec := schemas.ErrorContext{
			TargetID:     "t-1",
			Selector:     "#submit",
			RetryAttempt: 5,
		}
		assert.Equal(t, schemas.SeverityFatal,
			Grade(errors.New("fatal: session closed"), schemas.CategoryAuthentication, ec))
	})

	t.Run("stacked signals escalate stepwise", func(t *testing.T) {
		// low base + retries + mid-target = high, not fatal.
		ec := schemas.ErrorContext{TargetID: "t-1", Selector: "#next", RetryAttempt: 4}
		assert.Equal(t, schemas.SeverityHigh,
			Grade(errors.New("no nodes"), schemas.CategoryParsing, ec))
	})
}

func TestNewErrorContext(t *testing.T) {
	before := time.Now().UTC()
	ec := NewErrorContext(errors.New("net::ERR_TIMED_OUT"), schemas.ErrorContext{
		TargetID:  "t-9",
		SessionID: "s-1",
	})

	assert.Equal(t, schemas.CategoryNetwork, ec.Category)
	assert.Equal(t, "net::ERR_TIMED_OUT", ec.Message)
	assert.Equal(t, "t-9", ec.TargetID)
	require.False(t, ec.OccurredAt.IsZero())
	assert.False(t, ec.OccurredAt.Before(before))

	t.Run("preserves an explicit message and timestamp", func(t *testing.T) {
		at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
		out := NewErrorContext(errors.New("captcha"), schemas.ErrorContext{
			Message:    "challenge interstitial",
			OccurredAt: at,
		})
		assert.Equal(t, "challenge interstitial", out.Message)
		assert.Equal(t, at, out.OccurredAt)
	})
}

func TestRetryable(t *testing.T) {
	testCases := []struct {
		cat     schemas.Category
		attempt int
		want    bool
	}{
		{schemas.CategoryNetwork, 1, true},
		{schemas.CategoryNetwork, 2, true},
		{schemas.CategoryNetwork, 3, false},
		{schemas.CategoryTimeout, 2, true},
		{schemas.CategoryRateLimit, 1, true},
		{schemas.CategoryRateLimit, 2, false},
		{schemas.CategoryParsing, 1, true},
		{schemas.CategoryParsing, 2, false},
		{schemas.CategoryUnknown, 1, true},
		{schemas.CategoryUnknown, 2, false},
		{schemas.CategoryConfiguration, 1, false},
		{schemas.CategoryDetection, 1, false},
		{schemas.CategoryChallenge, 1, false},
		{schemas.CategoryAuthentication, 1, false},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, Retryable(tc.cat, tc.attempt),
			"category=%s attempt=%d", tc.cat, tc.attempt)
	}
}
