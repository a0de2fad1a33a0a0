package sut

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"

	"github.com/variantlab/tradeharness/internal/faults"
	"github.com/variantlab/tradeharness/internal/snapshot"
	"github.com/variantlab/tradeharness/internal/synth"
)

// recordDomain prefixes content-addressed record IDs.
const recordDomain = "tradeharness/record/v1"

// External service names the Sim calls through its ExternalClient.
const (
	ServiceMarketData = "market_data"
	ServiceBroker     = "broker"
)

// Config controls the reference system's behavior.
type Config struct {
	// ExecutionMode selects shadow or live execution records.
	ExecutionMode snapshot.ExecutionMode
}

// Sim is the deterministic in-process reference system under test.
//
// Not safe for concurrent use; the orchestrator sequences calls per context.
type Sim struct {
	cfg    Config
	store  *store
	clock  *Clock
	ext    ExternalClient
	logger *slog.Logger

	// lastRegime is the most recently ingested GEX regime. It feeds variant
	// B's decisions and agent activation, and is itself a deterministic
	// function of the injected sequence.
	lastRegime synth.Regime
}

// NewSim creates a reference system with a fresh in-memory event log.
func NewSim(cfg Config, ext ExternalClient, logger *slog.Logger) (*Sim, error) {
	if cfg.ExecutionMode == "" {
		cfg.ExecutionMode = snapshot.ModeShadow
	}
	if cfg.ExecutionMode != snapshot.ModeShadow && cfg.ExecutionMode != snapshot.ModeLive {
		return nil, faults.NewInvalidInput("sim: unknown execution mode %q", cfg.ExecutionMode)
	}
	if ext == nil {
		ext = NoopExternalClient{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	st, err := openStore(":memory:")
	if err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}

	return &Sim{cfg: cfg, store: st, clock: NewClock(), ext: ext, logger: logger}, nil
}

// Close releases the event log.
func (s *Sim) Close() error {
	return s.store.close()
}

// IngestWebhook processes one alert: enrich, route, decide on both variants,
// activate the agent when the last GEX regime agrees with the signal, and
// execute per the configured mode. No deduplication: repeated identical
// payloads are processed every time.
func (s *Sim) IngestWebhook(ctx context.Context, ev *synth.WebhookEvent) error {
	if ev == nil || ev.Payload == nil {
		return faults.NewInvalidInput("sim: webhook event has no payload")
	}

	symbol, _ := ev.Payload["symbol"].(string)
	action, _ := ev.Payload["action"].(string)
	price, _ := ev.Payload["price"].(float64)
	quantity, _ := ev.Payload["quantity"].(float64)
	if symbol == "" || action == "" {
		return faults.NewInvalidInput("sim: webhook payload missing symbol or action")
	}

	recordID, payloadJSON, sum, err := contentID(ev.Payload)
	if err != nil {
		return err
	}

	if err := s.store.appendEvent(ctx, s.clock.Next(), recordID, "webhook", symbol, payloadJSON); err != nil {
		return err
	}
	if err := s.store.bumpCounter(ctx, counterProcessed); err != nil {
		return err
	}
	if err := s.log(ctx, "INFO", "ingest", fmt.Sprintf("webhook %s %s %s", recordID, action, symbol)); err != nil {
		return err
	}

	// Enrichment lookup runs for every webhook, mocked or not.
	if _, err := s.ext.Call(ctx, ServiceMarketData, "/v1/quotes/"+symbol, ev.Payload); err != nil {
		return fmt.Errorf("sim: enrichment call: %w", err)
	}
	if err := s.store.bumpCounter(ctx, counterEnrichment); err != nil {
		return err
	}
	if err := s.store.bumpExternalCall(ctx, ServiceMarketData); err != nil {
		return err
	}

	// Routing: content-hash parity picks the variant whose decision drives
	// execution. Both variants still decide, so their lists stay comparable
	// across runs.
	routed := snapshot.VariantA
	if sum[0]%2 == 1 {
		routed = snapshot.VariantB
	}
	if err := s.store.appendRouting(ctx, snapshot.RoutingDecision{
		Seq:      s.clock.Next(),
		RecordID: recordID,
		Variant:  routed,
	}); err != nil {
		return err
	}

	decisionA := snapshot.Decision{
		Seq:        s.clock.Next(),
		Symbol:     symbol,
		Action:     action,
		Confidence: 0.55 + float64(sum[1])/1024.0,
		Reasoning:  fmt.Sprintf("rule: %s signal on %s at %.2f", action, symbol, price),
	}
	if err := s.store.appendDecision(ctx, snapshot.VariantA, decisionA); err != nil {
		return err
	}

	decisionB := s.decideVariantB(symbol, action, sum)
	if err := s.store.appendDecision(ctx, snapshot.VariantB, decisionB); err != nil {
		return err
	}

	if regimeAgrees(s.lastRegime, action) {
		activation := snapshot.AgentActivation{
			Seq:            s.clock.Next(),
			InputRef:       recordID,
			Recommendation: action,
			Confidence:     0.70 + float64(sum[3])/1024.0,
			Reasoning:      fmt.Sprintf("%s regime confirms %s on %s", s.lastRegime, action, symbol),
		}
		if err := s.store.appendActivation(ctx, activation); err != nil {
			return err
		}
	}

	executed := decisionA
	if routed == snapshot.VariantB {
		executed = decisionB
	}
	if executed.Action == "buy" || executed.Action == "sell" {
		if err := s.execute(ctx, symbol, executed.Action, int64(quantity)); err != nil {
			return err
		}
	}

	return s.log(ctx, "INFO", "router", fmt.Sprintf("routed %s to %s", recordID, routed))
}

// IngestGEX records a gamma-exposure reading and updates the regime context
// consulted by variant B.
func (s *Sim) IngestGEX(ctx context.Context, rec *synth.GEXRecord) error {
	if rec == nil {
		return faults.NewInvalidInput("sim: nil gex record")
	}
	if rec.Symbol == "" {
		return faults.NewInvalidInput("sim: gex record missing symbol")
	}

	recordID, payloadJSON, _, err := contentID(map[string]any{
		"symbol":           rec.Symbol,
		"regime":           string(rec.Regime),
		"spot_price":       rec.SpotPrice,
		"call_gex":         rec.CallGEX,
		"put_gex":          rec.PutGEX,
		"total_gex":        rec.TotalGEX,
		"net_gex":          rec.NetGEX,
		"gamma_flip_level": rec.FlipLevel,
	})
	if err != nil {
		return err
	}

	if err := s.store.appendEvent(ctx, s.clock.Next(), recordID, "gex", rec.Symbol, payloadJSON); err != nil {
		return err
	}
	if err := s.store.bumpCounter(ctx, counterProcessed); err != nil {
		return err
	}

	s.lastRegime = rec.Regime
	return s.log(ctx, "INFO", "ingest", fmt.Sprintf("gex %s regime %s", rec.Symbol, rec.Regime))
}

// QueryState returns the full observable state. Read-only.
func (s *Sim) QueryState(ctx context.Context) (snapshot.Snapshot, error) {
	snap, err := s.store.readState(ctx)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("sim: query state: %w", err)
	}
	snap.CapturedAt = time.Now().UTC()
	return snap, nil
}

// decideVariantB is the GEX-aware strategy: it follows the signal only when
// the last ingested regime agrees, otherwise it holds.
func (s *Sim) decideVariantB(symbol, action string, sum [32]byte) snapshot.Decision {
	d := snapshot.Decision{Seq: s.clock.Next(), Symbol: symbol}
	if regimeAgrees(s.lastRegime, action) {
		d.Action = action
		d.Confidence = 0.70 + float64(sum[2])/1024.0
		d.Reasoning = fmt.Sprintf("gex regime %s supports %s", s.lastRegime, action)
		return d
	}
	d.Action = "hold"
	d.Confidence = 0.50 + float64(sum[2])/2048.0
	if s.lastRegime == "" {
		d.Reasoning = "no gex context, holding"
	} else {
		d.Reasoning = fmt.Sprintf("gex regime %s does not support %s", s.lastRegime, action)
	}
	return d
}

// execute writes one execution record. Live mode attempts a brokerage call
// through the external client; BrokerCalled reflects whether a real call
// happened, so mocked live runs stay observably distinct from real ones.
func (s *Sim) execute(ctx context.Context, symbol, action string, quantity int64) error {
	if quantity <= 0 {
		quantity = 1
	}

	brokerCalled := false
	if s.cfg.ExecutionMode == snapshot.ModeLive {
		real, err := s.ext.Call(ctx, ServiceBroker, "/v1/orders", map[string]any{
			"symbol": symbol, "action": action, "quantity": quantity,
		})
		if err != nil {
			return fmt.Errorf("sim: broker call: %w", err)
		}
		brokerCalled = real
		if err := s.store.bumpExternalCall(ctx, ServiceBroker); err != nil {
			return err
		}
	}

	return s.store.appendExecution(ctx, snapshot.Execution{
		Seq:          s.clock.Next(),
		Symbol:       symbol,
		Action:       action,
		Quantity:     quantity,
		Mode:         s.cfg.ExecutionMode,
		BrokerCalled: brokerCalled,
	})
}

func (s *Sim) log(ctx context.Context, level, component, message string) error {
	s.logger.Info(message, "component", component)
	return s.store.appendLog(ctx, snapshot.LogEntry{
		Seq:       s.clock.Next(),
		Level:     level,
		Component: component,
		Message:   message,
	})
}

// regimeAgrees reports whether a signal direction is confirmed by the last
// observed GEX regime.
func regimeAgrees(regime synth.Regime, action string) bool {
	switch action {
	case "buy":
		return regime == synth.RegimePositive
	case "sell":
		return regime == synth.RegimeNegative
	default:
		return false
	}
}

// contentID computes the content-addressed record ID plus the canonical
// payload JSON and the raw digest it was derived from.
func contentID(payload map[string]any) (string, string, [32]byte, error) {
	var zero [32]byte

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", "", zero, fmt.Errorf("sim: marshal payload: %w", err)
	}
	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return "", "", zero, fmt.Errorf("sim: canonicalize payload: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(recordDomain))
	h.Write([]byte{0x00})
	h.Write(canonical)
	var sum [32]byte
	copy(sum[:], h.Sum(nil))

	return hex.EncodeToString(sum[:8]), string(canonical), sum, nil
}
