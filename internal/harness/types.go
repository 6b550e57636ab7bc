package harness

import (
	"fmt"
	"time"

	"github.com/roach88/sandcalc/internal/compare"
)

// Verdict is the outcome of one scenario.
type Verdict string

const (
	// VerdictPass means the result met the expectation.
	VerdictPass Verdict = "pass"
	// VerdictFail means the result did not meet the expectation.
	VerdictFail Verdict = "fail"
	// VerdictNone means there was nothing to compare against.
	VerdictNone Verdict = "none"
	// VerdictError means the evaluation itself failed.
	VerdictError Verdict = "error"
)

// ScenarioResult records one evaluated scenario.
type ScenarioResult struct {
	Index       int    `json:"index"`
	Description string `json:"description,omitempty"`

	// Call is the expression sent to the sandbox.
	Call string `json:"call"`

	// Exactly one of Result and Error is set.
	Result *string `json:"result"`
	Error  *string `json:"error"`

	Expected string  `json:"expected,omitempty"`
	Verdict  Verdict `json:"verdict"`

	// Series is set when the result or the expectation is a labeled series.
	Series *compare.Merged `json:"series,omitempty"`

	Duration time.Duration `json:"-"`
}

// Result is the outcome of running a suite.
type Result struct {
	Suite string `json:"suite"`

	// Pass is true when no scenario failed or errored and the definition
	// evaluated.
	Pass bool `json:"pass"`

	// Definition is the formatted function source.
	Definition string `json:"definition"`

	Scenarios []ScenarioResult `json:"scenarios"`

	// Errors contains suite-level failures and a line per failed scenario.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result for the named suite.
func NewResult(suite string) *Result {
	return &Result{
		Suite:     suite,
		Pass:      true,
		Scenarios: []ScenarioResult{},
		Errors:    []string{},
	}
}

// AddError adds an error message and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Counts returns the number of scenarios per verdict.
func (r *Result) Counts() map[Verdict]int {
	counts := make(map[Verdict]int, 4)
	for _, sc := range r.Scenarios {
		counts[sc.Verdict]++
	}
	return counts
}
