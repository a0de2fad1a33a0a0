package validate

import (
	"fmt"
	"math"

	"github.com/variantlab/tradeharness/internal/faults"
	"github.com/variantlab/tradeharness/internal/snapshot"
)

const phaseDeterminism = "determinism"

// entry is the comparable projection of one list element: a discrete
// decision field compared exactly, a confidence compared within tolerance,
// and a free-text field compared exactly.
type entry struct {
	decision   string
	confidence float64
	text       string
}

// component is one determinism-relevant snapshot list.
type component struct {
	name    string
	extract func(snapshot.Snapshot) []entry
}

// components are compared in this fixed order; the first violating
// component is reported.
var components = []component{
	{
		name: "routing",
		extract: func(s snapshot.Snapshot) []entry {
			out := make([]entry, len(s.RoutingDecisions))
			for i, r := range s.RoutingDecisions {
				out[i] = entry{decision: string(r.Variant), text: r.RecordID}
			}
			return out
		},
	},
	{
		name:    "variant_a_decisions",
		extract: func(s snapshot.Snapshot) []entry { return decisionEntries(s.VariantADecisions) },
	},
	{
		name:    "variant_b_decisions",
		extract: func(s snapshot.Snapshot) []entry { return decisionEntries(s.VariantBDecisions) },
	},
	{
		name: "agent_activations",
		extract: func(s snapshot.Snapshot) []entry {
			out := make([]entry, len(s.AgentActivations))
			for i, a := range s.AgentActivations {
				out[i] = entry{decision: a.Recommendation, confidence: a.Confidence, text: a.Reasoning}
			}
			return out
		},
	},
}

func decisionEntries(ds []snapshot.Decision) []entry {
	out := make([]entry, len(ds))
	for i, d := range ds {
		out[i] = entry{decision: d.Action, confidence: d.Confidence, text: d.Reasoning}
	}
	return out
}

// ValidateDeterminism checks that every snapshot agrees on routing, both
// variants' decisions, and agent activations. Snapshot 0 is the reference;
// each later snapshot is compared against it positionally. Wall-clock
// capture times are ignored.
//
// Fewer than two snapshots is a usage error: there is nothing to compare.
func ValidateDeterminism(snaps []snapshot.Snapshot) (Result, error) {
	if len(snaps) < 2 {
		return Result{}, faults.NewUsageError("determinism validation requires at least 2 snapshots, got %d", len(snaps))
	}
	const req = "repeated runs produce identical decisions"

	ref := snaps[0]
	for _, comp := range components {
		want := comp.extract(ref)
		for i := 1; i < len(snaps); i++ {
			got := comp.extract(snaps[i])
			if d, ok := compareEntries(comp.name, want, got, i); !ok {
				return fail(phaseDeterminism, req, []Detail{d}), nil
			}
		}
	}
	return pass(phaseDeterminism, req), nil
}

// compareEntries reports the first positional disagreement between the
// reference entries and a later snapshot's entries.
func compareEntries(name string, want, got []entry, idx int) (Detail, bool) {
	if len(want) != len(got) {
		return Detail{
			Field:     name + ".count",
			Expected:  fmt.Sprintf("%d", len(want)),
			Actual:    fmt.Sprintf("%d", len(got)),
			Snapshots: []int{0, idx},
		}, false
	}
	for pos := range want {
		w, g := want[pos], got[pos]
		switch {
		case w.decision != g.decision:
			return Detail{
				Field:     fmt.Sprintf("%s[%d].decision", name, pos),
				Expected:  w.decision,
				Actual:    g.decision,
				Snapshots: []int{0, idx},
			}, false
		case math.Abs(w.confidence-g.confidence) > confidenceTolerance:
			return Detail{
				Field:     fmt.Sprintf("%s[%d].confidence", name, pos),
				Expected:  fmt.Sprintf("%g", w.confidence),
				Actual:    fmt.Sprintf("%g", g.confidence),
				Snapshots: []int{0, idx},
			}, false
		case w.text != g.text:
			return Detail{
				Field:     fmt.Sprintf("%s[%d].text", name, pos),
				Expected:  w.text,
				Actual:    g.text,
				Snapshots: []int{0, idx},
			}, false
		}
	}
	return Detail{}, true
}
