package orchestrator

import (
	"time"

	"github.com/variantlab/tradeharness/internal/snapshot"
	"github.com/variantlab/tradeharness/internal/sut"
	"github.com/variantlab/tradeharness/internal/synth"
)

// InjectedRecord is one entry in a context's append-only injection log.
// Exactly one of Webhook/GEX is set, per Kind.
type InjectedRecord struct {
	Kind    string // "webhook" | "gex"
	Webhook *synth.WebhookEvent
	GEX     *synth.GEXRecord
}

// TestContext is one isolated test environment.
//
// A TestContext is mutated only through orchestrator operations, and callers
// must sequence their calls against one context. Distinct contexts are fully
// independent.
type TestContext struct {
	// ID is process-unique.
	ID string

	// Config is the context's effective configuration (defaults applied).
	Config Config

	// StartTime records when setup completed.
	StartTime time.Time

	// Metadata is caller bookkeeping copied from Config.Metadata.
	Metadata map[string]string

	injected  []InjectedRecord
	snapshots []snapshot.Snapshot

	system      sut.System
	overlay     *envOverlay
	interceptor *Interceptor
	tornDown    bool
}

// Injected returns a copy of the append-only injection log, in call order.
func (tc *TestContext) Injected() []InjectedRecord {
	return append([]InjectedRecord(nil), tc.injected...)
}

// Snapshots returns a copy of the append-only capture log, in call order.
func (tc *TestContext) Snapshots() []snapshot.Snapshot {
	out := make([]snapshot.Snapshot, len(tc.snapshots))
	for i, s := range tc.snapshots {
		out[i] = s.Clone()
	}
	return out
}

// TornDown reports whether teardown has run for this context.
func (tc *TestContext) TornDown() bool {
	return tc.tornDown
}

// BlockedCalls returns the outbound calls this context's interceptor
// refused to perform, in order. Empty when MockExternalAPIs is off.
func (tc *TestContext) BlockedCalls() []string {
	if tc.interceptor == nil {
		return nil
	}
	return tc.interceptor.Blocked()
}
