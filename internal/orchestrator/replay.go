package orchestrator

import (
	"context"
	"fmt"

	"github.com/variantlab/tradeharness/internal/faults"
)

// ReplayTest creates a fresh context with the original's config, re-injects
// every record from the original's injection log in original order, then
// performs an implicit capture.
//
// Replay guarantees faithful ordered re-delivery of inputs only; whether the
// outputs match is verified downstream by the determinism validator. The
// original context may already be torn down, since its injection log
// survives teardown.
func (o *Orchestrator) ReplayTest(ctx context.Context, original *TestContext) (*TestContext, error) {
	if original == nil {
		return nil, faults.NewUsageError("replayTest: nil test context")
	}

	replayed, err := o.SetupTest(ctx, original.Config)
	if err != nil {
		return nil, fmt.Errorf("replayTest: setup: %w", err)
	}

	for i, rec := range original.injected {
		switch rec.Kind {
		case "webhook":
			err = o.InjectWebhook(ctx, replayed, rec.Webhook)
		case "gex":
			err = o.InjectGEX(ctx, replayed, rec.GEX)
		default:
			err = faults.NewInvalidInput("replayTest: unknown record kind %q", rec.Kind)
		}
		if err != nil {
			o.TeardownTest(replayed)
			return nil, fmt.Errorf("replayTest: record %d: %w", i, err)
		}
	}

	if _, err := o.CaptureState(ctx, replayed); err != nil {
		o.TeardownTest(replayed)
		return nil, fmt.Errorf("replayTest: capture: %w", err)
	}

	o.logger.Info("replay complete", "original", original.ID, "replayed", replayed.ID, "records", len(original.injected))
	return replayed, nil
}
