package synth

import (
	"fmt"
	"time"

	"github.com/variantlab/tradeharness/internal/faults"
	"github.com/variantlab/tradeharness/internal/seedrand"
)

// scenarioActions maps each alert scenario to its payload action verb.
var scenarioActions = map[SignalScenario]string{
	ScenarioBuySignal:  "buy",
	ScenarioSellSignal: "sell",
	ScenarioExitSignal: "exit",
}

// GenerateWebhook produces a TradingView-style alert event for the given
// spec. The alert ID and quantity are derived from the spec's identity, so
// identical specs yield byte-identical payloads.
func GenerateWebhook(spec WebhookSpec) (*WebhookEvent, error) {
	if spec.Symbol == "" {
		return nil, faults.NewInvalidInput("webhook: symbol is required")
	}
	if spec.Price <= 0 {
		return nil, faults.NewInvalidInput("webhook: price must be positive, got %v", spec.Price)
	}

	action, ok := scenarioActions[spec.Scenario]
	if !ok {
		return nil, faults.NewInvalidInput("webhook: unknown scenario %q", spec.Scenario)
	}

	seed, err := seedrand.DeriveSeed(spec.Seed, map[string]any{
		"kind":     "webhook",
		"scenario": string(spec.Scenario),
		"symbol":   spec.Symbol,
		"price":    spec.Price,
	})
	if err != nil {
		return nil, err
	}
	src := seedrand.New(seed)

	payload := map[string]any{
		"alert_id": fmt.Sprintf("alert-%08x", seed),
		"symbol":   spec.Symbol,
		"action":   action,
		"price":    spec.Price,
		"quantity": float64(1 + src.Intn(100)),
		"strategy": "synthetic-harness",
	}

	return &WebhookEvent{
		Synthetic:   true,
		Scenario:    spec.Scenario,
		Payload:     payload,
		Provenance:  spec,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// GenerateWebhookBatch maps specs to events, order preserving, with no
// cross-item shared state. The first failing spec aborts the batch.
func GenerateWebhookBatch(specs []WebhookSpec) ([]*WebhookEvent, error) {
	out := make([]*WebhookEvent, 0, len(specs))
	for _, spec := range specs {
		ev, err := GenerateWebhook(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}
