package synth

import (
	"math"
	"time"

	"github.com/variantlab/tradeharness/internal/faults"
	"github.com/variantlab/tradeharness/internal/seedrand"
)

// GEX magnitude bounds keep generated values in the single/double-digit
// millions, matching realistic index-option gamma exposure.
const (
	gexTotalMin = 2e6
	gexTotalMax = 18e6

	gexNeutralTotalMax = 0.5e6
	gexNearTotalMax    = 5e6

	gexLegMin = 3e6
	gexLegMax = 12e6
)

// GenerateGEX produces one gamma-exposure record for the given spec.
//
// The record seed is derived from the spec's logical identity (regime,
// symbol, spot price, fixed flip level) combined with the base seed, so two
// calls with an identical spec yield identical numeric output. Unknown
// regimes return an invalid-input fault, never a silent default.
func GenerateGEX(spec GEXSpec) (*GEXRecord, error) {
	if spec.Symbol == "" {
		return nil, faults.NewInvalidInput("gex: symbol is required")
	}
	if spec.SpotPrice <= 0 {
		return nil, faults.NewInvalidInput("gex: spot price must be positive, got %v", spec.SpotPrice)
	}

	identity := map[string]any{
		"kind":       "gex",
		"regime":     string(spec.Regime),
		"symbol":     spec.Symbol,
		"spot_price": spec.SpotPrice,
	}
	if spec.FlipLevel != nil {
		identity["flip_level"] = *spec.FlipLevel
	}

	seed, err := seedrand.DeriveSeed(spec.Seed, identity)
	if err != nil {
		return nil, err
	}
	src := seedrand.New(seed)

	var total, flip float64
	switch spec.Regime {
	case RegimePositive:
		total = src.Range(gexTotalMin, gexTotalMax)
		flip = spec.SpotPrice * src.Range(0.92, 0.97)
	case RegimeNegative:
		total = -src.Range(gexTotalMin, gexTotalMax)
		flip = spec.SpotPrice * src.Range(1.03, 1.08)
	case RegimeGammaFlipNear:
		total = src.Sign() * src.Range(gexTotalMin, gexNearTotalMax*2)
		flip = spec.SpotPrice * (1 + src.Range(-0.01, 0.01))
	case RegimeNeutral:
		total = src.Sign() * src.Range(0, gexNeutralTotalMax)
		flip = spec.SpotPrice * src.Range(0.97, 1.03)
	default:
		return nil, faults.NewInvalidInput("gex: unknown regime %q", spec.Regime)
	}

	if spec.FlipLevel != nil {
		if err := checkFlipLevel(spec.Regime, *spec.FlipLevel, spec.SpotPrice); err != nil {
			return nil, err
		}
		flip = *spec.FlipLevel
	}

	// CallGEX is chosen so that PutGEX = TotalGEX - CallGEX is strictly
	// negative: call exceeds max(0, total) by one leg magnitude. The sum and
	// difference identities then hold exactly, well inside the 0.01 drift
	// contract.
	call := math.Max(0, total) + src.Range(gexLegMin, gexLegMax)
	put := total - call

	return &GEXRecord{
		Synthetic:   true,
		Symbol:      spec.Symbol,
		SpotPrice:   spec.SpotPrice,
		Regime:      spec.Regime,
		CallGEX:     call,
		PutGEX:      put,
		TotalGEX:    call + put,
		NetGEX:      call - put,
		FlipLevel:   flip,
		Provenance:  spec,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// GenerateGEXBatch maps specs to records, order preserving, with no
// cross-item shared state. The first failing spec aborts the batch.
func GenerateGEXBatch(specs []GEXSpec) ([]*GEXRecord, error) {
	out := make([]*GEXRecord, 0, len(specs))
	for _, spec := range specs {
		rec, err := GenerateGEX(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// checkFlipLevel enforces the regime constraint on a caller-supplied flip
// level. A pre-materialized value must not break the regime invariant.
func checkFlipLevel(regime Regime, flip, spot float64) error {
	if flip <= 0 {
		return faults.NewInvalidInput("gex: flip level must be positive, got %v", flip)
	}
	switch regime {
	case RegimePositive:
		if flip >= spot {
			return faults.NewInvalidInput("gex: POSITIVE regime requires flip level %v below spot %v", flip, spot)
		}
	case RegimeNegative:
		if flip <= spot {
			return faults.NewInvalidInput("gex: NEGATIVE regime requires flip level %v above spot %v", flip, spot)
		}
	case RegimeGammaFlipNear:
		if math.Abs(flip-spot)/spot > 0.01 {
			return faults.NewInvalidInput("gex: GAMMA_FLIP_NEAR requires flip level within 1%% of spot, got %v vs %v", flip, spot)
		}
	case RegimeNeutral:
		// No proximity constraint beyond positivity.
	default:
		return faults.NewInvalidInput("gex: unknown regime %q", regime)
	}
	return nil
}
