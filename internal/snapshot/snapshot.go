// Package snapshot defines the serializable, diffable representation of
// everything observable about the system under test.
//
// A Snapshot is a flat structure: monotonic counters, ordered per-variant
// decision lists, ordered agent activations, ordered executions split into
// shadow and live, an ordered log-entry list, and a per-service external-call
// counter map. Two snapshots from logically identical runs are directly
// field-diffable; the determinism validator relies on this.
package snapshot

import (
	"slices"
	"time"
)

// Variant identifies one side of the A/B decision system.
type Variant string

const (
	VariantA Variant = "A"
	VariantB Variant = "B"
)

// RoutingDecision records which variant an ingested record was routed to.
type RoutingDecision struct {
	Seq      int64   `json:"seq"`
	RecordID string  `json:"record_id"`
	Variant  Variant `json:"variant"`
}

// Decision is one variant's decision for an ingested record.
type Decision struct {
	Seq        int64   `json:"seq"`
	Symbol     string  `json:"symbol"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// AgentActivation records one agent invocation: the enriched input it saw
// and the recommendation it produced.
type AgentActivation struct {
	Seq            int64   `json:"seq"`
	InputRef       string  `json:"input_ref"`
	Recommendation string  `json:"recommendation"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
}

// ExecutionMode distinguishes shadow from live execution records.
type ExecutionMode string

const (
	ModeShadow ExecutionMode = "shadow"
	ModeLive   ExecutionMode = "live"
)

// Execution records one simulated or live trade execution.
//
// For shadow executions BrokerCalled is always false. For live executions it
// reflects whether a real (not merely mocked) brokerage call occurred.
type Execution struct {
	Seq          int64         `json:"seq"`
	Symbol       string        `json:"symbol"`
	Action       string        `json:"action"`
	Quantity     int64         `json:"quantity"`
	Mode         ExecutionMode `json:"mode"`
	BrokerCalled bool          `json:"broker_called"`
}

// LogEntry is one structured log line emitted by the system under test.
// All four fields are required.
type LogEntry struct {
	Seq       int64  `json:"seq"`
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
}

// Snapshot is the full observable state of the system under test at one
// instant, as exposed to the harness.
type Snapshot struct {
	// CapturedAt is the wall-clock capture time. It is excluded from
	// canonical serialization and from determinism comparison.
	CapturedAt time.Time `json:"captured_at"`

	// ProcessedCount is the number of records the system has ingested.
	ProcessedCount int64 `json:"processed_count"`

	// EnrichmentCalls counts enrichment lookups performed during processing.
	EnrichmentCalls int64 `json:"enrichment_calls"`

	RoutingDecisions  []RoutingDecision `json:"routing_decisions"`
	VariantADecisions []Decision        `json:"variant_a_decisions"`
	VariantBDecisions []Decision        `json:"variant_b_decisions"`
	AgentActivations  []AgentActivation `json:"agent_activations"`
	ShadowExecutions  []Execution       `json:"shadow_executions"`
	LiveExecutions    []Execution       `json:"live_executions"`
	LogEntries        []LogEntry        `json:"log_entries"`

	// ExternalCalls maps service name to the number of outbound calls the
	// system attempted for that service, whether real or mocked.
	ExternalCalls map[string]int64 `json:"external_calls"`
}

// Clone returns a deep copy. Empty lists stay empty rather than becoming
// nil, so a clone produces the same canonical bytes as its source.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.RoutingDecisions = slices.Clone(s.RoutingDecisions)
	out.VariantADecisions = slices.Clone(s.VariantADecisions)
	out.VariantBDecisions = slices.Clone(s.VariantBDecisions)
	out.AgentActivations = slices.Clone(s.AgentActivations)
	out.ShadowExecutions = slices.Clone(s.ShadowExecutions)
	out.LiveExecutions = slices.Clone(s.LiveExecutions)
	out.LogEntries = slices.Clone(s.LogEntries)
	out.ExternalCalls = make(map[string]int64, len(s.ExternalCalls))
	for k, v := range s.ExternalCalls {
		out.ExternalCalls[k] = v
	}
	return out
}
