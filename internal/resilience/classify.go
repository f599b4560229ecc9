// internal/resilience/classify.go
package resilience

import (
	"strings"
	"time"

	"github.com/xkilldash9x/applypilot/api/schemas"
)

// categoryKeywords pairs a category with the message substrings that imply it.
// Order matters: categories are checked in this fixed priority order and the
// first hit wins.
var categoryKeywords = []struct {
	cat      schemas.Category
	keywords []string
}{
	{schemas.CategoryNetwork, []string{
		"net::", "connection refused", "connection reset", "econnrefused",
		"dns", "no such host", "unreachable", "socket", "broken pipe",
	}},
	{schemas.CategoryTimeout, []string{
		"timeout", "timed out", "deadline exceeded",
	}},
	{schemas.CategoryAuthentication, []string{
		"unauthorized", "forbidden", "login", "credential", "sign in",
		"session expired", "401", "403",
	}},
	{schemas.CategoryParsing, []string{
		"selector", "element not found", "no nodes", "stale", "xpath",
		"parse", "malformed",
	}},
	{schemas.CategoryDetection, []string{
		"automated", "automation", "bot detected", "unusual activity",
		"suspicious", "access denied", "blocked",
	}},
	{schemas.CategoryChallenge, []string{
		"captcha", "challenge", "verification required", "prove you",
	}},
	{schemas.CategoryRateLimit, []string{
		"rate limit", "too many requests", "429", "slow down",
	}},
	{schemas.CategoryConfiguration, []string{
		"configuration", "misconfigured", "invalid option", "missing setting",
		"no candidates",
	}},
}

// fatalKeywords force a severity escalation regardless of category.
var fatalKeywords = []string{"fatal", "critical", "browser crashed", "session closed", "target closed"}

// baseSeverity is the starting severity per category, before escalation.
var baseSeverity = map[schemas.Category]schemas.Severity{
	schemas.CategoryNetwork:        schemas.SeverityMedium,
	schemas.CategoryTimeout:        schemas.SeverityMedium,
	schemas.CategoryAuthentication: schemas.SeverityHigh,
	schemas.CategoryParsing:        schemas.SeverityLow,
	schemas.CategoryDetection:      schemas.SeverityHigh,
	schemas.CategoryChallenge:      schemas.SeverityHigh,
	schemas.CategoryRateLimit:      schemas.SeverityMedium,
	schemas.CategoryConfiguration:  schemas.SeverityHigh,
	schemas.CategoryUnknown:        schemas.SeverityMedium,
}

// severityRank orders severities for monotonic escalation.
var severityRank = map[schemas.Severity]int{
	schemas.SeverityLow:    0,
	schemas.SeverityMedium: 1,
	schemas.SeverityHigh:   2,
	schemas.SeverityFatal:  3,
}

var severityByRank = []schemas.Severity{
	schemas.SeverityLow,
	schemas.SeverityMedium,
	schemas.SeverityHigh,
	schemas.SeverityFatal,
}

// retryBudget caps total attempts per category, so a budget of N allows N-1
// retries. Absent categories are never retried: retrying a misconfiguration
// wastes time, and retrying past a detection or challenge event risks
// escalating the board's response.
var retryBudget = map[schemas.Category]int{
	schemas.CategoryNetwork:   3,
	schemas.CategoryTimeout:   3,
	schemas.CategoryRateLimit: 2,
	// Selectors are inherently brittle; repeated identical failures rarely
	// self-resolve. One retry, no more.
	schemas.CategoryParsing: 2,
	schemas.CategoryUnknown: 2,
}

// Classify assigns a failure category by message pattern matching.
func Classify(err error) schemas.Category {
	if err == nil {
		return schemas.CategoryUnknown
	}
	msg := strings.ToLower(err.Error())
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(msg, kw) {
				return entry.cat
			}
		}
	}
	return schemas.CategoryUnknown
}

// Grade computes the severity of a failure given its category and accumulated
// context. Severity starts from the category base table and only ever
// escalates within a single call.
func Grade(err error, cat schemas.Category, ec schemas.ErrorContext) schemas.Severity {
	sev, ok := baseSeverity[cat]
	if !ok {
		sev = schemas.SeverityMedium
	}

	// Repeated retries mean the failure is not transient after all.
	if ec.RetryAttempt > 2 {
		sev = escalate(sev)
	}

	if err != nil {
		msg := strings.ToLower(err.Error())
		for _, kw := range fatalKeywords {
			if strings.Contains(msg, kw) {
				sev = escalate(sev)
				break
			}
		}
	}

	// Session-critical heuristic: a failure while mid-target (we know which
	// target and where on the page) endangers the whole application, not just
	// one operation. Tunable, not a guaranteed signal.
	if ec.TargetID != "" && (ec.URL != "" || ec.Selector != "") {
		sev = escalate(sev)
	}

	return sev
}

// NewErrorContext classifies err and assembles a fully graded context.
func NewErrorContext(err error, ec schemas.ErrorContext) schemas.ErrorContext {
	ec.Category = Classify(err)
	ec.Severity = Grade(err, ec.Category, ec)
	if ec.OccurredAt.IsZero() {
		ec.OccurredAt = time.Now().UTC()
	}
	if err != nil && ec.Message == "" {
		ec.Message = err.Error()
	}
	return ec
}

// Retryable reports whether another attempt is worthwhile for the category,
// given how many attempts have already run.
func Retryable(cat schemas.Category, attempt int) bool {
	budget, ok := retryBudget[cat]
	if !ok {
		return false
	}
	return attempt < budget
}

func escalate(s schemas.Severity) schemas.Severity {
	rank := severityRank[s]
	if rank >= len(severityByRank)-1 {
		return schemas.SeverityFatal
	}
	return severityByRank[rank+1]
}
