// Package harness runs declarative YAML scenarios end to end: it stands up
// an isolated test context, generates and injects synthetic records in flow
// order, captures state snapshots, and evaluates the scenario's expectations
// against them.
//
// Each scenario runs in a fresh orchestrator with a fresh in-memory system
// under test, so scenarios are isolated from each other and reproducible.
// Operational failures (generation, injection, capture) abort the run with
// an error; expectation mismatches produce a failing Result instead.
package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/variantlab/tradeharness/internal/faults"
	"github.com/variantlab/tradeharness/internal/orchestrator"
	"github.com/variantlab/tradeharness/internal/snapshot"
	"github.com/variantlab/tradeharness/internal/synth"
	"github.com/variantlab/tradeharness/internal/validate"
)

// TraceEvent is one executed flow step. The trace intentionally carries
// only discrete fields so it serializes to stable, diffable bytes.
type TraceEvent struct {
	// Seq is the 1-based flow position.
	Seq int64 `json:"seq"`

	// Kind is "gex", "webhook", or "capture".
	Kind string `json:"kind"`

	// Symbol is the injected record's ticker. Empty for captures.
	Symbol string `json:"symbol,omitempty"`

	// Processed is the injection count at capture time. Zero for injections.
	Processed int64 `json:"processed,omitempty"`
}

// Result is the outcome of one scenario execution.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	// Trace lists executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Validations holds one entry per evaluated expectation.
	Validations []validate.Result `json:"validations,omitempty"`

	// Errors summarizes failed expectations. Empty when Pass is true.
	Errors []string `json:"errors,omitempty"`
}

func newResult() *Result {
	return &Result{Pass: true, Trace: []TraceEvent{}}
}

func (r *Result) addValidation(v validate.Result) {
	r.Validations = append(r.Validations, v)
	if !v.Passed {
		r.Pass = false
		r.Errors = append(r.Errors, v.Message)
	}
}

// Run executes a scenario and returns its result.
//
// A fresh orchestrator and system under test are created per run. The
// context is torn down before Run returns, restoring any overlaid
// environment state.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	if scenario == nil {
		return nil, faults.NewUsageError("scenario is required")
	}
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := orchestrator.New(orchestrator.WithLogger(logger))

	tc, err := orch.SetupTest(ctx, scenario.Config.toOrchestrator())
	if err != nil {
		return nil, fmt.Errorf("failed to set up context: %w", err)
	}
	defer orch.TeardownTest(tc)

	result := newResult()
	if err := executeFlow(ctx, orch, tc, scenario.Flow, result); err != nil {
		return nil, err
	}

	snaps := tc.Snapshots()
	last := snaps[len(snaps)-1]

	if exp := scenario.Expect.Agent; exp != nil {
		v, err := validate.ValidateAgentActivation(&last, validate.AgentExpectation{
			Activations:     exp.Activations,
			MinConfidence:   exp.MinConfidence,
			Recommendations: exp.Recommendations,
		})
		if err != nil {
			return nil, err
		}
		result.addValidation(v)
	}
	if exp := scenario.Expect.Isolation; exp != nil {
		v, err := validate.ValidateIsolation(&last, validate.IsolationExpectation{
			AllowedServices: exp.AllowedServices,
		})
		if err != nil {
			return nil, err
		}
		result.addValidation(v)
	}
	if exp := scenario.Expect.Execution; exp != nil {
		maxLive := -1
		if exp.MaxLive != nil {
			maxLive = *exp.MaxLive
		}
		v, err := validate.ValidateExecutionSafety(&last, validate.ExecutionExpectation{
			Mode:    snapshot.ExecutionMode(exp.Mode),
			MaxLive: maxLive,
		})
		if err != nil {
			return nil, err
		}
		result.addValidation(v)
	}
	if scenario.Expect.Determinism {
		v, err := checkDeterminism(ctx, orch, tc, last)
		if err != nil {
			return nil, err
		}
		result.addValidation(v)
	}

	return result, nil
}

// executeFlow generates, injects, and captures in scenario order, recording
// one trace event per step.
func executeFlow(ctx context.Context, orch *orchestrator.Orchestrator, tc *orchestrator.TestContext, flow []Step, result *Result) error {
	var injected int64
	for i, step := range flow {
		seq := int64(i + 1)
		switch {
		case step.GEX != nil:
			rec, err := synth.GenerateGEX(*step.GEX)
			if err != nil {
				return fmt.Errorf("flow[%d]: %w", i, err)
			}
			if err := orch.InjectGEX(ctx, tc, rec); err != nil {
				return fmt.Errorf("flow[%d]: %w", i, err)
			}
			injected++
			result.Trace = append(result.Trace, TraceEvent{Seq: seq, Kind: "gex", Symbol: rec.Symbol})

		case step.Webhook != nil:
			ev, err := synth.GenerateWebhook(*step.Webhook)
			if err != nil {
				return fmt.Errorf("flow[%d]: %w", i, err)
			}
			if err := orch.InjectWebhook(ctx, tc, ev); err != nil {
				return fmt.Errorf("flow[%d]: %w", i, err)
			}
			injected++
			result.Trace = append(result.Trace, TraceEvent{Seq: seq, Kind: "webhook", Symbol: ev.Provenance.Symbol})

		case step.Capture:
			if _, err := orch.CaptureState(ctx, tc); err != nil {
				return fmt.Errorf("flow[%d]: %w", i, err)
			}
			result.Trace = append(result.Trace, TraceEvent{Seq: seq, Kind: "capture", Processed: injected})
		}
	}
	return nil
}

// checkDeterminism replays the original context's injections into a fresh
// context and compares the replayed snapshot against the original's last.
func checkDeterminism(ctx context.Context, orch *orchestrator.Orchestrator, tc *orchestrator.TestContext, last snapshot.Snapshot) (validate.Result, error) {
	replayed, err := orch.ReplayTest(ctx, tc)
	if err != nil {
		return validate.Result{}, fmt.Errorf("replay failed: %w", err)
	}
	defer orch.TeardownTest(replayed)

	rsnaps := replayed.Snapshots()
	rlast := rsnaps[len(rsnaps)-1]
	return validate.ValidateDeterminism([]snapshot.Snapshot{last, rlast})
}
