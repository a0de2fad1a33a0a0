package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// canonicalView mirrors Snapshot without CapturedAt. Capture time is
// observational metadata, not logical state, so it must not participate in
// canonical bytes or digests.
type canonicalView struct {
	ProcessedCount    int64             `json:"processed_count"`
	EnrichmentCalls   int64             `json:"enrichment_calls"`
	RoutingDecisions  []RoutingDecision `json:"routing_decisions"`
	VariantADecisions []Decision        `json:"variant_a_decisions"`
	VariantBDecisions []Decision        `json:"variant_b_decisions"`
	AgentActivations  []AgentActivation `json:"agent_activations"`
	ShadowExecutions  []Execution       `json:"shadow_executions"`
	LiveExecutions    []Execution       `json:"live_executions"`
	LogEntries        []LogEntry        `json:"log_entries"`
	ExternalCalls     map[string]int64  `json:"external_calls"`
}

// emptied returns s with nil lists replaced by empty ones. A missing list
// and an empty list are the same logical state, so they must serialize to
// the same bytes ("[]", never "null").
func emptied[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// CanonicalJSON serializes the snapshot's logical state to RFC 8785
// canonical JSON: sorted keys, ES6 number form, no insignificant whitespace.
//
// Two snapshots of identical logical state always produce identical bytes,
// which is what makes golden-file comparison and digesting meaningful.
func (s Snapshot) CanonicalJSON() ([]byte, error) {
	calls := s.ExternalCalls
	if calls == nil {
		calls = map[string]int64{}
	}
	view := canonicalView{
		ProcessedCount:    s.ProcessedCount,
		EnrichmentCalls:   s.EnrichmentCalls,
		RoutingDecisions:  emptied(s.RoutingDecisions),
		VariantADecisions: emptied(s.VariantADecisions),
		VariantBDecisions: emptied(s.VariantBDecisions),
		AgentActivations:  emptied(s.AgentActivations),
		ShadowExecutions:  emptied(s.ShadowExecutions),
		LiveExecutions:    emptied(s.LiveExecutions),
		LogEntries:        emptied(s.LogEntries),
		ExternalCalls:     calls,
	}

	raw, err := json.Marshal(view)
	if err != nil {
		return nil, fmt.Errorf("canonical json: marshal: %w", err)
	}

	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical json: transform: %w", err)
	}
	return canonical, nil
}

// Digest returns the hex SHA-256 of the canonical JSON.
func (s Snapshot) Digest() (string, error) {
	canonical, err := s.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
