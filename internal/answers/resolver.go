// internal/answers/resolver.go

// Package answers maps free-text form labels to configured answers using
// ordered pattern classes.
package answers

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/applypilot/internal/config"
)

// category is an internal pattern class tag.
type category int

const (
	catNone category = iota
	catYearsExperience
	catExperience
	catSalary
	catAuthorization
	catSponsorship
	catRelocation
	catNoticePeriod
)

// patternClass couples a category with the expressions that detect it.
type patternClass struct {
	cat      category
	patterns []*regexp.Regexp
}

// Pattern classes are tested in this order. The years-of-experience class must
// come before the generic experience class: "experience" alone is a substring
// superset and would shadow the numeric answer.
var patternClasses = []patternClass{
	{catYearsExperience, compileAll(
		`years?\s+of\s+experience`,
		`how\s+many\s+years`,
		`experience.*\byears?\b`,
		`\byears?\b.*experience`,
	)},
	{catExperience, compileAll(
		`experience`,
		`background`,
		`relevant\s+skills`,
	)},
	{catSalary, compileAll(
		`salary`,
		`compensation`,
		`pay\s+(range|expectation)`,
		`desired\s+pay`,
	)},
	{catAuthorization, compileAll(
		`authoriz`,
		`legally\s+(allowed|able|eligible)`,
		`eligible\s+to\s+work`,
		`work\s+permit`,
		`right\s+to\s+work`,
	)},
	{catSponsorship, compileAll(
		`sponsor`,
		`visa`,
	)},
	{catRelocation, compileAll(
		`relocat`,
		`willing\s+to\s+move`,
	)},
	{catNoticePeriod, compileAll(
		`notice\s+period`,
		`when\s+can\s+you\s+start`,
		`start\s+date`,
		`availability`,
	)},
}

var numberPattern = regexp.MustCompile(`\d+`)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// Resolver answers form-field labels from configuration.
type Resolver struct {
	cfg config.AnswersConfig
	log *zap.Logger
}

// NewResolver creates a resolver over the given answer configuration.
func NewResolver(cfg config.AnswersConfig, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cfg: cfg, log: logger.Named("answers")}
}

// ValueFor maps a field label to an answer. The second return value reports
// whether any pattern or configured answer matched; false means the field is
// intentionally left unfilled, which callers must not treat as an error.
func (r *Resolver) ValueFor(label string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	if normalized == "" {
		return "", false
	}

	cat := classify(normalized)

	// 1. A configured value for the matched pattern class wins.
	if v := r.configuredValue(cat); v != "" {
		return v, true
	}

	// 2. Explicit question -> answer mapping, exact before partial.
	if v, ok := r.cfg.Custom[normalized]; ok && v != "" {
		return v, true
	}
	for question, answer := range r.cfg.Custom {
		if answer == "" {
			continue
		}
		q := strings.ToLower(question)
		if strings.Contains(normalized, q) || strings.Contains(q, normalized) {
			return answer, true
		}
	}

	// 3. Category defaults apply only when nothing explicit is configured.
	if v := defaultValue(cat); v != "" {
		r.log.Debug("Using category default answer", zap.String("label", label))
		return v, true
	}

	return "", false
}

// classify tests the label against each pattern class in order and returns the
// first class that matches.
func classify(normalized string) category {
	for _, class := range patternClasses {
		for _, p := range class.patterns {
			if p.MatchString(normalized) {
				return class.cat
			}
		}
	}
	return catNone
}

// configuredValue returns the explicitly configured answer for a category,
// or "" when none is set.
func (r *Resolver) configuredValue(cat category) string {
	switch cat {
	case catYearsExperience:
		return r.yearsOfExperience()
	case catExperience:
		return r.cfg.ExperienceSummary
	case catSalary:
		return r.cfg.SalaryExpectation
	case catAuthorization:
		return r.cfg.WorkAuthorization
	case catSponsorship:
		return r.cfg.RequiresSponsor
	case catRelocation:
		return r.cfg.WillingToRelocate
	case catNoticePeriod:
		return r.cfg.NoticePeriod
	}
	return ""
}

// defaultValue supplies the fallback for categories that have a safe default.
// Experience and salary have none: guessing those would misrepresent the
// applicant.
func defaultValue(cat category) string {
	switch cat {
	case catAuthorization:
		return "Yes"
	case catSponsorship:
		return "No"
	case catRelocation:
		return "Yes"
	case catNoticePeriod:
		return "2 weeks"
	}
	return ""
}

// yearsOfExperience prefers the explicit numeric setting, falling back to the
// first number found in the free-text experience summary.
func (r *Resolver) yearsOfExperience() string {
	if r.cfg.YearsOfExperience > 0 {
		return strconv.Itoa(r.cfg.YearsOfExperience)
	}
	if m := numberPattern.FindString(r.cfg.ExperienceSummary); m != "" {
		return m
	}
	return ""
}
