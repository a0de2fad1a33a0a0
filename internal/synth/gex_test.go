package synth

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/variantlab/tradeharness/internal/faults"
)

// requireGEXContract checks the arithmetic invariants every GEX record must hold.
func requireGEXContract(t *testing.T, rec *GEXRecord) {
	t.Helper()
	require.True(t, rec.Synthetic)
	require.Greater(t, rec.CallGEX, 0.0)
	require.Less(t, rec.PutGEX, 0.0)
	require.InDelta(t, rec.TotalGEX, rec.CallGEX+rec.PutGEX, 0.01)
	require.InDelta(t, rec.NetGEX, rec.CallGEX-rec.PutGEX, 0.01)
}

func TestGenerateGEX_PositiveRegimeConcrete(t *testing.T) {
	spec := GEXSpec{Regime: RegimePositive, Symbol: "SPY", SpotPrice: 450.00, Seed: 54321}

	rec, err := GenerateGEX(spec)
	require.NoError(t, err)
	requireGEXContract(t, rec)

	assert.GreaterOrEqual(t, rec.TotalGEX, 2_000_000.0)
	assert.LessOrEqual(t, rec.TotalGEX, 18_000_000.0)
	assert.GreaterOrEqual(t, rec.FlipLevel, 414.0)
	assert.LessOrEqual(t, rec.FlipLevel, 436.5)
	assert.Less(t, rec.FlipLevel, rec.SpotPrice)

	// Regenerating with identical input returns identical values.
	again, err := GenerateGEX(spec)
	require.NoError(t, err)
	assert.Equal(t, rec.TotalGEX, again.TotalGEX)
	assert.Equal(t, rec.CallGEX, again.CallGEX)
	assert.Equal(t, rec.PutGEX, again.PutGEX)
	assert.Equal(t, rec.FlipLevel, again.FlipLevel)
}

func TestGenerateGEX_RegimeConstraints(t *testing.T) {
	tests := []struct {
		name   string
		regime Regime
		check  func(t *testing.T, rec *GEXRecord)
	}{
		{"positive", RegimePositive, func(t *testing.T, rec *GEXRecord) {
			assert.Greater(t, rec.TotalGEX, 0.0)
			assert.Less(t, rec.FlipLevel, rec.SpotPrice)
		}},
		{"negative", RegimeNegative, func(t *testing.T, rec *GEXRecord) {
			assert.Less(t, rec.TotalGEX, 0.0)
			assert.Greater(t, rec.FlipLevel, rec.SpotPrice)
		}},
		{"gamma flip near", RegimeGammaFlipNear, func(t *testing.T, rec *GEXRecord) {
			assert.LessOrEqual(t, math.Abs(rec.FlipLevel-rec.SpotPrice)/rec.SpotPrice, 0.01)
		}},
		{"neutral", RegimeNeutral, func(t *testing.T, rec *GEXRecord) {
			avgLeg := (math.Abs(rec.CallGEX) + math.Abs(rec.PutGEX)) / 2
			assert.Less(t, math.Abs(rec.TotalGEX), avgLeg/4, "neutral total should be small relative to legs")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for seed := uint32(0); seed < 25; seed++ {
				rec, err := GenerateGEX(GEXSpec{Regime: tt.regime, Symbol: "QQQ", SpotPrice: 380.5, Seed: seed})
				require.NoError(t, err)
				requireGEXContract(t, rec)
				tt.check(t, rec)
			}
		})
	}
}

func TestGenerateGEX_UnknownRegimeFails(t *testing.T) {
	_, err := GenerateGEX(GEXSpec{Regime: "SIDEWAYS", Symbol: "SPY", SpotPrice: 450})
	require.Error(t, err)
	assert.True(t, faults.IsInvalidInput(err))
}

func TestGenerateGEX_InvalidSpecFails(t *testing.T) {
	_, err := GenerateGEX(GEXSpec{Regime: RegimePositive, SpotPrice: 450})
	assert.True(t, faults.IsInvalidInput(err), "missing symbol")

	_, err = GenerateGEX(GEXSpec{Regime: RegimePositive, Symbol: "SPY", SpotPrice: -1})
	assert.True(t, faults.IsInvalidInput(err), "negative spot")
}

func TestGenerateGEX_FixedFlipLevelShortCircuits(t *testing.T) {
	flip := 430.0
	spec := GEXSpec{Regime: RegimePositive, Symbol: "SPY", SpotPrice: 450, FlipLevel: &flip, Seed: 9}

	rec, err := GenerateGEX(spec)
	require.NoError(t, err)
	requireGEXContract(t, rec)
	assert.Equal(t, 430.0, rec.FlipLevel)
}

func TestGenerateGEX_FixedFlipLevelMustHoldRegime(t *testing.T) {
	tests := []struct {
		name   string
		regime Regime
		flip   float64
	}{
		{"positive flip above spot", RegimePositive, 460.0},
		{"negative flip below spot", RegimeNegative, 440.0},
		{"near flip too far", RegimeGammaFlipNear, 500.0},
		{"non-positive flip", RegimeNeutral, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flip := tt.flip
			_, err := GenerateGEX(GEXSpec{Regime: tt.regime, Symbol: "SPY", SpotPrice: 450, FlipLevel: &flip})
			require.Error(t, err)
			assert.True(t, faults.IsInvalidInput(err))
		})
	}
}

func TestGenerateGEXBatch_OrderPreservingAndPure(t *testing.T) {
	specs := []GEXSpec{
		{Regime: RegimePositive, Symbol: "SPY", SpotPrice: 450, Seed: 1},
		{Regime: RegimeNegative, Symbol: "QQQ", SpotPrice: 380, Seed: 2},
		{Regime: RegimeNeutral, Symbol: "IWM", SpotPrice: 200, Seed: 3},
	}

	first, err := GenerateGEXBatch(specs)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, "SPY", first[0].Symbol)
	assert.Equal(t, "QQQ", first[1].Symbol)
	assert.Equal(t, "IWM", first[2].Symbol)

	second, err := GenerateGEXBatch(specs)
	require.NoError(t, err)
	for i := range first {
		assert.Equal(t, first[i].TotalGEX, second[i].TotalGEX, "batch item %d diverged", i)
	}
}

func TestGenerateGEXBatch_FirstFailureAborts(t *testing.T) {
	specs := []GEXSpec{
		{Regime: RegimePositive, Symbol: "SPY", SpotPrice: 450},
		{Regime: "BOGUS", Symbol: "SPY", SpotPrice: 450},
	}
	_, err := GenerateGEXBatch(specs)
	require.Error(t, err)
	assert.True(t, faults.IsInvalidInput(err))
}

func TestGenerateGEX_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	regimes := []Regime{RegimePositive, RegimeNegative, RegimeNeutral, RegimeGammaFlipNear}

	properties.Property("arithmetic contract holds for all regimes and seeds", prop.ForAll(
		func(seed uint32, regimeIdx uint8, spot float64) bool {
			spec := GEXSpec{
				Regime:    regimes[int(regimeIdx)%len(regimes)],
				Symbol:    "SPY",
				SpotPrice: 50 + math.Mod(math.Abs(spot), 1000),
				Seed:      seed,
			}
			rec, err := GenerateGEX(spec)
			if err != nil {
				return false
			}
			return rec.CallGEX > 0 &&
				rec.PutGEX < 0 &&
				math.Abs(rec.CallGEX+rec.PutGEX-rec.TotalGEX) < 0.01 &&
				math.Abs(rec.CallGEX-rec.PutGEX-rec.NetGEX) < 0.01
		},
		gen.UInt32(),
		gen.UInt8(),
		gen.Float64Range(0, 1e6),
	))

	properties.TestingRun(t)
}
