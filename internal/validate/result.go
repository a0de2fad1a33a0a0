// Package validate compares captured snapshots against declarative
// expectations and against each other.
//
// Validators never fail fast: a Result's Details enumerate every
// sub-failure found in one pass, so a single run yields full diagnostics.
// Semantic mismatches are reported as Passed=false, never as errors;
// validators return an error only for structurally malformed input they
// cannot reason about.
package validate

import "fmt"

// Result is the uniform outcome of one validation.
type Result struct {
	// Passed is true only when every sub-check held.
	Passed bool `json:"passed"`

	// Phase names the validation stage (e.g. "expectation", "determinism").
	Phase string `json:"phase"`

	// Requirement names the high-level property being checked.
	Requirement string `json:"requirement"`

	// Message is the one-line aggregated summary.
	Message string `json:"message"`

	// Details enumerates every sub-failure with expected/actual values.
	// Empty when Passed is true.
	Details []Detail `json:"details,omitempty"`
}

// Detail is one specific sub-mismatch.
type Detail struct {
	// Field identifies the compared field or sub-invariant.
	Field string `json:"field"`

	Expected string `json:"expected"`
	Actual   string `json:"actual"`

	// Snapshots holds the disagreeing snapshot indices, when the check
	// spans multiple snapshots.
	Snapshots []int `json:"snapshots,omitempty"`
}

// pass builds a passing result.
func pass(phase, requirement string) Result {
	return Result{
		Passed:      true,
		Phase:       phase,
		Requirement: requirement,
		Message:     requirement + ": ok",
	}
}

// fail builds a failing result aggregating the given details.
func fail(phase, requirement string, details []Detail) Result {
	return Result{
		Passed:      false,
		Phase:       phase,
		Requirement: requirement,
		Message:     fmt.Sprintf("%s: %d sub-check(s) failed", requirement, len(details)),
		Details:     details,
	}
}
