package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/variantlab/tradeharness/internal/faults"
	"github.com/variantlab/tradeharness/internal/snapshot"
	"github.com/variantlab/tradeharness/internal/sut"
	"github.com/variantlab/tradeharness/internal/synth"
	"github.com/variantlab/tradeharness/internal/testutil"
)

func mustWebhook(t *testing.T, scenario synth.SignalScenario, symbol string, seed uint32) *synth.WebhookEvent {
	t.Helper()
	ev, err := synth.GenerateWebhook(synth.WebhookSpec{Scenario: scenario, Symbol: symbol, Price: 450, Seed: seed})
	require.NoError(t, err)
	return ev
}

func mustGEX(t *testing.T, regime synth.Regime, seed uint32) *synth.GEXRecord {
	t.Helper()
	rec, err := synth.GenerateGEX(synth.GEXSpec{Regime: regime, Symbol: "SPY", SpotPrice: 450, Seed: seed})
	require.NoError(t, err)
	return rec
}

func TestSetupTest_IsolatedEnvironmentOverlay(t *testing.T) {
	env := NewMapEnvironment(map[string]string{
		"BROKER_API_KEY": "real-key-do-not-touch",
		"UNRELATED":      "kept",
	})
	o := New(WithEnvironment(env))

	tc, err := o.SetupTest(context.Background(), Config{
		IsolatedEnvironment: true,
		FeatureFlags:        map[string]bool{"engineB": true, "fastPath": false},
	})
	require.NoError(t, err)

	v, ok := env.Get("BROKER_API_KEY")
	require.True(t, ok)
	assert.Equal(t, "synthetic-broker-key", v, "credential must be overlaid with a placeholder")

	v, ok = env.Get("FEATURE_ENGINEB")
	require.True(t, ok)
	assert.Equal(t, "true", v)

	v, ok = env.Get("FEATURE_FASTPATH")
	require.True(t, ok)
	assert.Equal(t, "false", v)

	o.TeardownTest(tc)

	// Every touched entry restored to its exact pre-setup value; flag keys
	// that did not previously exist are removed.
	v, ok = env.Get("BROKER_API_KEY")
	require.True(t, ok)
	assert.Equal(t, "real-key-do-not-touch", v)

	_, ok = env.Get("FEATURE_ENGINEB")
	assert.False(t, ok)
	_, ok = env.Get("MARKET_DATA_API_KEY")
	assert.False(t, ok)

	v, _ = env.Get("UNRELATED")
	assert.Equal(t, "kept", v)
}

func TestSetupTest_EmptyFlagNameRollsBack(t *testing.T) {
	env := NewMapEnvironment(nil)
	o := New(WithEnvironment(env))

	_, err := o.SetupTest(context.Background(), Config{
		IsolatedEnvironment: true,
		FeatureFlags:        map[string]bool{"": true},
	})
	require.Error(t, err)
	assert.True(t, faults.IsEnvironmentError(err))

	// The credential overlay applied before the failure must be gone.
	_, ok := env.Get("BROKER_API_KEY")
	assert.False(t, ok)
}

func TestSetupTest_FactoryFailureRollsBack(t *testing.T) {
	env := NewMapEnvironment(nil)
	o := New(WithEnvironment(env), WithSystemFactory(
		func(Config, sut.ExternalClient, *slog.Logger) (sut.System, error) {
			return nil, errors.New("boom")
		},
	))

	_, err := o.SetupTest(context.Background(), Config{IsolatedEnvironment: true})
	require.Error(t, err)
	assert.True(t, faults.IsEnvironmentError(err))

	_, ok := env.Get("BROKER_API_KEY")
	assert.False(t, ok, "overlay must be rolled back when system construction fails")
}

func TestSetupTest_UniqueIDs(t *testing.T) {
	o := New()

	a, err := o.SetupTest(context.Background(), Config{})
	require.NoError(t, err)
	defer o.TeardownTest(a)

	b, err := o.SetupTest(context.Background(), Config{})
	require.NoError(t, err)
	defer o.TeardownTest(b)

	assert.NotEqual(t, a.ID, b.ID)
}

func TestSetupTest_InjectedIDGenerator(t *testing.T) {
	o := New(WithIDGenerator(testutil.NewSequenceIDGenerator("ctx")))

	a, err := o.SetupTest(context.Background(), Config{})
	require.NoError(t, err)
	defer o.TeardownTest(a)

	b, err := o.SetupTest(context.Background(), Config{})
	require.NoError(t, err)
	defer o.TeardownTest(b)

	assert.Equal(t, "ctx-000001", a.ID)
	assert.Equal(t, "ctx-000002", b.ID)
}

func TestInject_RejectsNonSynthetic(t *testing.T) {
	o := New()
	tc, err := o.SetupTest(context.Background(), Config{})
	require.NoError(t, err)
	defer o.TeardownTest(tc)

	ev := mustWebhook(t, synth.ScenarioBuySignal, "SPY", 1)
	ev.Synthetic = false

	err = o.InjectWebhook(context.Background(), tc, ev)
	require.Error(t, err)
	assert.True(t, faults.IsSafetyViolation(err))
	assert.Empty(t, tc.Injected(), "rejected record must never appear in the injection log")

	rec := mustGEX(t, synth.RegimePositive, 1)
	rec.Synthetic = false
	err = o.InjectGEX(context.Background(), tc, rec)
	assert.True(t, faults.IsSafetyViolation(err))
	assert.Empty(t, tc.Injected())
}

func TestInject_SchemaValidation(t *testing.T) {
	o := New()
	tc, err := o.SetupTest(context.Background(), Config{})
	require.NoError(t, err)
	defer o.TeardownTest(tc)

	ev := mustWebhook(t, synth.ScenarioBuySignal, "SPY", 1)
	delete(ev.Payload, "price")

	err = o.InjectWebhook(context.Background(), tc, ev)
	require.Error(t, err)
	assert.True(t, faults.IsInvalidInput(err))

	ev2 := mustWebhook(t, synth.ScenarioBuySignal, "SPY", 2)
	ev2.Payload["action"] = "yolo"
	err = o.InjectWebhook(context.Background(), tc, ev2)
	assert.True(t, faults.IsInvalidInput(err))
}

func TestInject_AppendOnlyOrderedNoDedup(t *testing.T) {
	o := New()
	tc, err := o.SetupTest(context.Background(), Config{})
	require.NoError(t, err)
	defer o.TeardownTest(tc)

	ev := mustWebhook(t, synth.ScenarioBuySignal, "SPY", 1)
	gex := mustGEX(t, synth.RegimePositive, 2)

	require.NoError(t, o.InjectGEX(context.Background(), tc, gex))
	for i := 0; i < 3; i++ {
		require.NoError(t, o.InjectWebhook(context.Background(), tc, ev))
	}

	log := tc.Injected()
	require.Len(t, log, 4)
	assert.Equal(t, "gex", log[0].Kind)
	for i := 1; i < 4; i++ {
		assert.Equal(t, "webhook", log[i].Kind)
	}
}

func TestInject_UnknownContext(t *testing.T) {
	o := New()
	tc, err := o.SetupTest(context.Background(), Config{})
	require.NoError(t, err)
	o.TeardownTest(tc)

	err = o.InjectWebhook(context.Background(), tc, mustWebhook(t, synth.ScenarioBuySignal, "SPY", 1))
	require.Error(t, err)
	assert.True(t, faults.IsUsageError(err))

	_, err = o.CaptureState(context.Background(), tc)
	assert.True(t, faults.IsUsageError(err))
}

func TestCaptureState_AppendsWithMonotonicTimestamps(t *testing.T) {
	o := New()
	tc, err := o.SetupTest(context.Background(), Config{})
	require.NoError(t, err)
	defer o.TeardownTest(tc)

	require.NoError(t, o.InjectWebhook(context.Background(), tc, mustWebhook(t, synth.ScenarioBuySignal, "SPY", 1)))

	for i := 0; i < 3; i++ {
		_, err := o.CaptureState(context.Background(), tc)
		require.NoError(t, err)
	}

	snaps := tc.Snapshots()
	require.Len(t, snaps, 3)
	for i := 1; i < len(snaps); i++ {
		assert.False(t, snaps[i].CapturedAt.Before(snaps[i-1].CapturedAt),
			"capture %d timestamp went backwards", i)
	}
}

func TestCaptureState_DoesNotMutateSystem(t *testing.T) {
	o := New()
	tc, err := o.SetupTest(context.Background(), Config{})
	require.NoError(t, err)
	defer o.TeardownTest(tc)

	require.NoError(t, o.InjectWebhook(context.Background(), tc, mustWebhook(t, synth.ScenarioBuySignal, "SPY", 1)))

	a, err := o.CaptureState(context.Background(), tc)
	require.NoError(t, err)
	b, err := o.CaptureState(context.Background(), tc)
	require.NoError(t, err)

	ja, err := a.CanonicalJSON()
	require.NoError(t, err)
	jb, err := b.CanonicalJSON()
	require.NoError(t, err)
	assert.Equal(t, ja, jb)
}

func TestTeardownTest_IdempotentAndNeverPanics(t *testing.T) {
	o := New()
	tc, err := o.SetupTest(context.Background(), Config{IsolatedEnvironment: true})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		o.TeardownTest(tc)
		o.TeardownTest(tc) // second call is a no-op
		o.TeardownTest(nil)
		o.TeardownTest(&TestContext{ID: "never-registered"})
	})
	assert.True(t, tc.TornDown())
}

func TestMockExternalAPIs_BlocksOutboundCalls(t *testing.T) {
	o := New()
	tc, err := o.SetupTest(context.Background(), Config{MockExternalAPIs: true})
	require.NoError(t, err)
	defer o.TeardownTest(tc)

	require.NoError(t, o.InjectWebhook(context.Background(), tc, mustWebhook(t, synth.ScenarioBuySignal, "SPY", 1)))

	snap, err := o.CaptureState(context.Background(), tc)
	require.NoError(t, err)

	// The system still counts the attempt; the interceptor blocked the wire.
	assert.Equal(t, int64(1), snap.ExternalCalls[sut.ServiceMarketData])
	assert.NotEmpty(t, tc.BlockedCalls())
}

func TestReplayTest_FaithfulOrderedRedelivery(t *testing.T) {
	o := New()
	ctx := context.Background()

	tc, err := o.SetupTest(ctx, Config{MockExternalAPIs: true})
	require.NoError(t, err)

	require.NoError(t, o.InjectGEX(ctx, tc, mustGEX(t, synth.RegimePositive, 1)))
	require.NoError(t, o.InjectWebhook(ctx, tc, mustWebhook(t, synth.ScenarioBuySignal, "SPY", 2)))
	require.NoError(t, o.InjectWebhook(ctx, tc, mustWebhook(t, synth.ScenarioSellSignal, "QQQ", 3)))
	original, err := o.CaptureState(ctx, tc)
	require.NoError(t, err)

	replayed, err := o.ReplayTest(ctx, tc)
	require.NoError(t, err)
	defer o.TeardownTest(replayed)
	defer o.TeardownTest(tc)

	assert.NotEqual(t, tc.ID, replayed.ID)
	assert.Equal(t, tc.Config.MockExternalAPIs, replayed.Config.MockExternalAPIs)

	replayLog := replayed.Injected()
	require.Len(t, replayLog, 3)
	assert.Equal(t, "gex", replayLog[0].Kind)
	assert.Equal(t, "webhook", replayLog[1].Kind)

	// Replay ends with an implicit capture whose logical state matches the
	// original run.
	snaps := replayed.Snapshots()
	require.Len(t, snaps, 1)

	ja, err := original.CanonicalJSON()
	require.NoError(t, err)
	jb, err := snaps[0].CanonicalJSON()
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))
}

func TestReplayTest_WorksAfterOriginalTeardown(t *testing.T) {
	o := New()
	ctx := context.Background()

	tc, err := o.SetupTest(ctx, Config{})
	require.NoError(t, err)
	require.NoError(t, o.InjectWebhook(ctx, tc, mustWebhook(t, synth.ScenarioBuySignal, "SPY", 1)))
	o.TeardownTest(tc)

	replayed, err := o.ReplayTest(ctx, tc)
	require.NoError(t, err)
	defer o.TeardownTest(replayed)

	assert.Len(t, replayed.Injected(), 1)
	assert.Len(t, replayed.Snapshots(), 1)
}

// stalledSystem blocks QueryState until the context deadline fires.
type stalledSystem struct{ sut.System }

func (s stalledSystem) QueryState(ctx context.Context) (snapshot.Snapshot, error) {
	<-ctx.Done()
	return snapshot.Snapshot{}, ctx.Err()
}

func TestCaptureState_TimeoutSurfacesTimeoutFault(t *testing.T) {
	o := New(WithSystemFactory(
		func(cfg Config, ext sut.ExternalClient, logger *slog.Logger) (sut.System, error) {
			inner, err := sut.NewSim(sut.Config{}, ext, logger)
			if err != nil {
				return nil, err
			}
			return stalledSystem{inner}, nil
		},
	))

	tc, err := o.SetupTest(context.Background(), Config{OpTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	defer o.TeardownTest(tc)

	_, err = o.CaptureState(context.Background(), tc)
	require.Error(t, err)
	assert.True(t, faults.IsTimeout(err))
}

func TestConcurrentContextsAreIndependent(t *testing.T) {
	o := New()
	ctx := context.Background()

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		seed := uint32(i)
		go func() {
			tc, err := o.SetupTest(ctx, Config{IsolatedEnvironment: true, MockExternalAPIs: true})
			if err != nil {
				done <- err
				return
			}
			defer o.TeardownTest(tc)
			if err := o.InjectWebhook(ctx, tc, mustWebhook(t, synth.ScenarioBuySignal, "SPY", seed)); err != nil {
				done <- err
				return
			}
			_, err = o.CaptureState(ctx, tc)
			done <- err
		}()
	}

	for i := 0; i < 4; i++ {
		require.NoError(t, <-done)
	}
}
