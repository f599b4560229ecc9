// internal/workflow/selectors.go
package workflow

import (
	"fmt"

	"github.com/xkilldash9x/applypilot/internal/selector"
)

// Default selector sets for the application workflow. The board's markup is
// volatile; each set carries the currently known variants, highest-priority
// first. Resolution stops at the first visible match.
//
// SelectorSets groups everything the controller and step processor resolve.
type SelectorSets struct {
	Entry       selector.Set
	Container   selector.Set
	Terminal    selector.Set
	FinalSubmit selector.Set
	Advance     selector.Set
	Validation  selector.Set
	Success     selector.Set
	Challenge   selector.Set
}

// Validate rejects any set with zero candidates. A zero-candidate set is a
// wiring mistake and must fail at construction, never mid-workflow.
func (s SelectorSets) Validate() error {
	for name, set := range map[string]selector.Set{
		"entry":        s.Entry,
		"container":    s.Container,
		"terminal":     s.Terminal,
		"final_submit": s.FinalSubmit,
		"advance":      s.Advance,
		"validation":   s.Validation,
		"success":      s.Success,
		"challenge":    s.Challenge,
	} {
		if len(set.Candidates) == 0 {
			return fmt.Errorf("selector sets: %s: %w", name, selector.ErrEmptySelectorSet)
		}
	}
	return nil
}

// DefaultSelectorSets returns the stock selector sets for the board UI.
func DefaultSelectorSets() SelectorSets {
	return SelectorSets{
		Entry: selector.MustSet("entry_control",
			"button.jobs-apply-button",
			"button[data-testid='apply-button']",
			"button[aria-label*='Easy Apply']",
			"div.jobs-apply-button--top-card button",
		),
		Container: selector.MustSet("workflow_container",
			"div.jobs-easy-apply-modal",
			"div[data-testid='application-modal']",
			"div[role='dialog'] form",
		),
		Terminal: selector.MustSet("terminal_control",
			"button[aria-label='Submit application']",
			"button[aria-label='Review your application']",
			"button[data-live-test-easy-apply-submit-button]",
			"button[data-testid='submit-application']",
		),
		FinalSubmit: selector.MustSet("final_submit_control",
			"button[aria-label='Submit application']",
			"button[data-live-test-easy-apply-submit-button]",
			"button[data-testid='submit-application']",
		),
		Advance: selector.MustSet("advance_control",
			"button[aria-label='Continue to next step']",
			"button[data-easy-apply-next-button]",
			"button[data-testid='continue-button']",
			"footer button[type='button']",
		),
		Validation: selector.MustSet("validation_error",
			"div[data-test-form-element-error-messages]",
			".artdeco-inline-feedback--error",
			"div[role='alert']",
			".fb-form-element__error-text",
		),
		Success: selector.MustSet("success_indicator",
			"h2.post-apply-timeline__entity",
			"div[data-testid='application-success']",
			".artdeco-modal__confirm-dialog h2",
			"div.jobs-post-apply",
		),
		Challenge: selector.MustSet("challenge_indicator",
			"iframe[src*='captcha']",
			"div.captcha-container",
			"#challenge-form",
			"div[data-testid='verification-challenge']",
		),
	}
}

// fieldProbeScript enumerates fillable text controls inside the workflow
// container, producing the label, a stable selector, the required flag, and
// the current value for each. Fields the session cannot label come back with
// an empty label and are left alone.
const fieldProbeScript = `
(() => {
    const container = document.querySelector("div[role='dialog']") || document;
    const fields = [];
    const controls = container.querySelectorAll("input[type='text'], input[type='number'], input:not([type]), textarea");
    controls.forEach((el, idx) => {
        let label = "";
        if (el.id) {
            const lab = container.querySelector("label[for='" + CSS.escape(el.id) + "']");
            if (lab) label = lab.textContent.trim();
        }
        if (!label && el.closest("label")) {
            label = el.closest("label").textContent.trim();
        }
        if (!label && el.getAttribute("aria-label")) {
            label = el.getAttribute("aria-label").trim();
        }
        let sel;
        if (el.id) {
            sel = "#" + CSS.escape(el.id);
        } else if (el.name) {
            sel = el.tagName.toLowerCase() + "[name='" + CSS.escape(el.name) + "']";
        } else {
            el.setAttribute("data-applypilot-idx", String(idx));
            sel = "[data-applypilot-idx='" + idx + "']";
        }
        fields.push({
            label: label,
            selector: sel,
            required: el.required || el.getAttribute("aria-required") === "true",
            value: el.value || ""
        });
    });
    return fields;
})()
`
