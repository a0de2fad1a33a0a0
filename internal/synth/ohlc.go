package synth

import (
	"math"
	"time"

	"github.com/variantlab/tradeharness/internal/faults"
	"github.com/variantlab/tradeharness/internal/seedrand"
)

// GenerateOHLC produces a chained bar series for the given spec.
//
// Every bar satisfies Low <= min(Open, Close) and High >= max(Open, Close),
// and each bar opens at the previous bar's close. Unknown patterns return an
// invalid-input fault.
func GenerateOHLC(spec OHLCSpec) (*OHLCSeries, error) {
	if spec.Symbol == "" {
		return nil, faults.NewInvalidInput("ohlc: symbol is required")
	}
	if spec.BasePrice <= 0 {
		return nil, faults.NewInvalidInput("ohlc: base price must be positive, got %v", spec.BasePrice)
	}
	if spec.Bars < 1 {
		return nil, faults.NewInvalidInput("ohlc: bar count must be at least 1, got %d", spec.Bars)
	}

	switch spec.Pattern {
	case PatternBullish, PatternBearish, PatternDoji, PatternVolatile:
	default:
		return nil, faults.NewInvalidInput("ohlc: unknown pattern %q", spec.Pattern)
	}

	seed, err := seedrand.DeriveSeed(spec.Seed, map[string]any{
		"kind":       "ohlc",
		"pattern":    string(spec.Pattern),
		"symbol":     spec.Symbol,
		"base_price": spec.BasePrice,
		"bars":       spec.Bars,
	})
	if err != nil {
		return nil, err
	}
	src := seedrand.New(seed)

	bars := make([]OHLCBar, spec.Bars)
	open := spec.BasePrice
	for i := range bars {
		bars[i] = nextBar(src, spec.Pattern, open)
		open = bars[i].Close
	}

	return &OHLCSeries{
		Synthetic:   true,
		Symbol:      spec.Symbol,
		Pattern:     spec.Pattern,
		Bars:        bars,
		Provenance:  spec,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// nextBar derives one bar from the running open price.
func nextBar(src *seedrand.Source, pattern Pattern, open float64) OHLCBar {
	var close float64
	switch pattern {
	case PatternBullish:
		close = open * (1 + src.Range(0.001, 0.012))
	case PatternBearish:
		close = open * (1 - src.Range(0.001, 0.012))
	case PatternDoji:
		close = open * (1 + src.Range(-0.0005, 0.0005))
	case PatternVolatile:
		close = open * (1 + src.Sign()*src.Range(0.01, 0.04))
	}

	// Wicks extend beyond the body, never inside it.
	high := math.Max(open, close) * (1 + src.Range(0, 0.006))
	low := math.Min(open, close) * (1 - src.Range(0, 0.006))
	volume := int64(100_000 + src.Intn(900_000))

	return OHLCBar{Open: open, High: high, Low: low, Close: close, Volume: volume}
}
