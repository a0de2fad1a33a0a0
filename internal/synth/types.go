// Package synth generates regime-constrained synthetic market data.
//
// Every generator maps a small parameter space (symbol, regime or pattern
// discriminant, numeric seeds) to a structured record with enforced numeric
// invariants. Output is marked synthetic and carries its provenance spec.
// Generation is a pure function of the spec's logical identity: identical
// specs produce identical records except for the time-based GeneratedAt
// provenance field.
package synth

import "time"

// Regime classifies a GEX scenario's qualitative condition.
type Regime string

const (
	RegimePositive      Regime = "POSITIVE"
	RegimeNegative      Regime = "NEGATIVE"
	RegimeNeutral       Regime = "NEUTRAL"
	RegimeGammaFlipNear Regime = "GAMMA_FLIP_NEAR"
)

// Pattern classifies an OHLC scenario's qualitative shape.
type Pattern string

const (
	PatternBullish  Pattern = "BULLISH"
	PatternBearish  Pattern = "BEARISH"
	PatternDoji     Pattern = "DOJI"
	PatternVolatile Pattern = "VOLATILE"
)

// SignalScenario classifies a webhook alert scenario.
type SignalScenario string

const (
	ScenarioBuySignal  SignalScenario = "BUY_SIGNAL"
	ScenarioSellSignal SignalScenario = "SELL_SIGNAL"
	ScenarioExitSignal SignalScenario = "EXIT_SIGNAL"
)

// GEXSpec is the generator input for a gamma-exposure record.
type GEXSpec struct {
	// Regime is the discriminant. Unknown regimes fail, never default.
	Regime Regime `yaml:"regime" json:"regime"`

	// Symbol is the underlying ticker.
	Symbol string `yaml:"symbol" json:"symbol"`

	// SpotPrice anchors flip-level derivation. Must be positive.
	SpotPrice float64 `yaml:"spot_price" json:"spot_price"`

	// FlipLevel, when non-nil, is an already materialized gamma flip level.
	// The generator short-circuits its own derivation but still enforces the
	// regime constraint against the supplied value.
	FlipLevel *float64 `yaml:"flip_level,omitempty" json:"flip_level,omitempty"`

	// Seed is the generator-level base seed combined with the spec's
	// logical identity to derive the record seed.
	Seed uint32 `yaml:"seed" json:"seed"`
}

// GEXRecord is the generator output for a gamma-exposure record.
// Immutable once produced.
//
// Numeric contract: CallGEX > 0, PutGEX < 0,
// |CallGEX+PutGEX-TotalGEX| < 0.01 and |CallGEX-PutGEX-NetGEX| < 0.01.
type GEXRecord struct {
	Synthetic   bool      `json:"synthetic"`
	Symbol      string    `json:"symbol"`
	SpotPrice   float64   `json:"spot_price"`
	Regime      Regime    `json:"regime"`
	CallGEX     float64   `json:"call_gex"`
	PutGEX      float64   `json:"put_gex"`
	TotalGEX    float64   `json:"total_gex"`
	NetGEX      float64   `json:"net_gex"`
	FlipLevel   float64   `json:"gamma_flip_level"`
	Provenance  GEXSpec   `json:"provenance"`
	GeneratedAt time.Time `json:"generated_at"`
}

// OHLCSpec is the generator input for an OHLC bar series.
type OHLCSpec struct {
	// Pattern is the discriminant. Unknown patterns fail, never default.
	Pattern Pattern `yaml:"pattern" json:"pattern"`

	Symbol    string  `yaml:"symbol" json:"symbol"`
	BasePrice float64 `yaml:"base_price" json:"base_price"`

	// Bars is the series length. Must be at least 1.
	Bars int `yaml:"bars" json:"bars"`

	Seed uint32 `yaml:"seed" json:"seed"`
}

// OHLCBar is one price bar.
//
// Envelope invariant: Low <= min(Open, Close) and High >= max(Open, Close).
type OHLCBar struct {
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// OHLCSeries is the generator output for an OHLC scenario.
// Bars chain: each bar opens at the previous bar's close.
type OHLCSeries struct {
	Synthetic   bool      `json:"synthetic"`
	Symbol      string    `json:"symbol"`
	Pattern     Pattern   `json:"pattern"`
	Bars        []OHLCBar `json:"bars"`
	Provenance  OHLCSpec  `json:"provenance"`
	GeneratedAt time.Time `json:"generated_at"`
}

// WebhookSpec is the generator input for a TradingView-style alert.
type WebhookSpec struct {
	// Scenario is the discriminant. Unknown scenarios fail, never default.
	Scenario SignalScenario `yaml:"scenario" json:"scenario"`

	Symbol string  `yaml:"symbol" json:"symbol"`
	Price  float64 `yaml:"price" json:"price"`
	Seed   uint32  `yaml:"seed" json:"seed"`
}

// WebhookEvent is the generator output for a webhook alert.
type WebhookEvent struct {
	Synthetic bool `json:"synthetic"`

	Scenario SignalScenario `json:"scenario"`

	// Payload is the alert body as the system under test's ingestion entry
	// point expects it: symbol, action, price, quantity, strategy, alert_id.
	Payload map[string]any `json:"payload"`

	Provenance  WebhookSpec `json:"provenance"`
	GeneratedAt time.Time   `json:"generated_at"`
}
