package validate

import (
	"fmt"
	"sort"

	"github.com/variantlab/tradeharness/internal/faults"
	"github.com/variantlab/tradeharness/internal/snapshot"
)

// confidenceTolerance is the absolute tolerance for confidence comparisons.
const confidenceTolerance = 1e-5

const phaseExpectation = "expectation"

// AgentExpectation describes the expected agent behavior in one snapshot.
type AgentExpectation struct {
	// Activations is the exact expected activation count.
	Activations int

	// MinConfidence, when > 0, is the minimum confidence every activation
	// must meet (inclusive, within tolerance).
	MinConfidence float64

	// Recommendations, when non-empty, must match the activation
	// recommendations positionally.
	Recommendations []string
}

// IsolationExpectation describes the allowed outbound-call surface.
type IsolationExpectation struct {
	// AllowedServices lists services the system may have called. Any
	// service outside this list with a nonzero call count is a violation.
	// Empty means no external calls at all.
	AllowedServices []string
}

// ExecutionExpectation describes execution-safety constraints.
type ExecutionExpectation struct {
	// Mode is the expected execution mode for every recorded execution.
	Mode snapshot.ExecutionMode

	// MaxLive caps the number of live executions. Negative means no cap.
	MaxLive int
}

// ValidateAgentActivation checks agent activations against exp.
//
// All sub-checks run; every violation appears in the Details. A nil
// snapshot is a usage error, not a failed result.
func ValidateAgentActivation(snap *snapshot.Snapshot, exp AgentExpectation) (Result, error) {
	if snap == nil {
		return Result{}, faults.NewUsageError("agent validation requires a snapshot")
	}
	const req = "agent activations match expectation"

	var details []Detail
	acts := snap.AgentActivations

	if len(acts) != exp.Activations {
		details = append(details, Detail{
			Field:    "agent_activations.count",
			Expected: fmt.Sprintf("%d", exp.Activations),
			Actual:   fmt.Sprintf("%d", len(acts)),
		})
	}
	if exp.MinConfidence > 0 {
		for i, a := range acts {
			if a.Confidence < exp.MinConfidence-confidenceTolerance {
				details = append(details, Detail{
					Field:    fmt.Sprintf("agent_activations[%d].confidence", i),
					Expected: fmt.Sprintf(">= %g", exp.MinConfidence),
					Actual:   fmt.Sprintf("%g", a.Confidence),
				})
			}
		}
	}
	for i, a := range acts {
		if a.InputRef == "" {
			details = append(details, Detail{
				Field:    fmt.Sprintf("agent_activations[%d].input_ref", i),
				Expected: "non-empty",
				Actual:   `""`,
			})
		}
	}
	if len(exp.Recommendations) > 0 {
		for i, want := range exp.Recommendations {
			if i >= len(acts) {
				details = append(details, Detail{
					Field:    fmt.Sprintf("agent_activations[%d].recommendation", i),
					Expected: want,
					Actual:   "<missing>",
				})
				continue
			}
			if acts[i].Recommendation != want {
				details = append(details, Detail{
					Field:    fmt.Sprintf("agent_activations[%d].recommendation", i),
					Expected: want,
					Actual:   acts[i].Recommendation,
				})
			}
		}
	}

	if len(details) > 0 {
		return fail(phaseExpectation, req, details), nil
	}
	return pass(phaseExpectation, req), nil
}

// ValidateIsolation checks that the system only reached allowed services.
func ValidateIsolation(snap *snapshot.Snapshot, exp IsolationExpectation) (Result, error) {
	if snap == nil {
		return Result{}, faults.NewUsageError("isolation validation requires a snapshot")
	}
	const req = "external calls limited to allowed services"

	allowed := make(map[string]bool, len(exp.AllowedServices))
	for _, s := range exp.AllowedServices {
		allowed[s] = true
	}

	// Deterministic detail order regardless of map iteration.
	services := make([]string, 0, len(snap.ExternalCalls))
	for s := range snap.ExternalCalls {
		services = append(services, s)
	}
	sort.Strings(services)

	var details []Detail
	for _, s := range services {
		if n := snap.ExternalCalls[s]; n > 0 && !allowed[s] {
			details = append(details, Detail{
				Field:    fmt.Sprintf("external_calls[%q]", s),
				Expected: "0",
				Actual:   fmt.Sprintf("%d", n),
			})
		}
	}

	if len(details) > 0 {
		return fail(phaseExpectation, req, details), nil
	}
	return pass(phaseExpectation, req), nil
}

// ValidateExecutionSafety checks execution mode consistency and the live cap.
func ValidateExecutionSafety(snap *snapshot.Snapshot, exp ExecutionExpectation) (Result, error) {
	if snap == nil {
		return Result{}, faults.NewUsageError("execution validation requires a snapshot")
	}
	if exp.Mode != snapshot.ModeShadow && exp.Mode != snapshot.ModeLive {
		return Result{}, faults.NewUsageError("unknown execution mode %q", exp.Mode)
	}
	const req = "executions respect configured mode"

	var details []Detail
	for i, ex := range snap.ShadowExecutions {
		if ex.Mode != snapshot.ModeShadow {
			details = append(details, Detail{
				Field:    fmt.Sprintf("shadow_executions[%d].mode", i),
				Expected: string(snapshot.ModeShadow),
				Actual:   string(ex.Mode),
			})
		}
		if ex.BrokerCalled {
			details = append(details, Detail{
				Field:    fmt.Sprintf("shadow_executions[%d].broker_called", i),
				Expected: "false",
				Actual:   "true",
			})
		}
	}
	for i, ex := range snap.LiveExecutions {
		if ex.Mode != snapshot.ModeLive {
			details = append(details, Detail{
				Field:    fmt.Sprintf("live_executions[%d].mode", i),
				Expected: string(snapshot.ModeLive),
				Actual:   string(ex.Mode),
			})
		}
	}
	if exp.Mode == snapshot.ModeShadow && len(snap.LiveExecutions) > 0 {
		details = append(details, Detail{
			Field:    "live_executions.count",
			Expected: "0",
			Actual:   fmt.Sprintf("%d", len(snap.LiveExecutions)),
		})
	}
	if exp.MaxLive >= 0 && len(snap.LiveExecutions) > exp.MaxLive {
		details = append(details, Detail{
			Field:    "live_executions.count",
			Expected: fmt.Sprintf("<= %d", exp.MaxLive),
			Actual:   fmt.Sprintf("%d", len(snap.LiveExecutions)),
		})
	}

	if len(details) > 0 {
		return fail(phaseExpectation, req, details), nil
	}
	return pass(phaseExpectation, req), nil
}
