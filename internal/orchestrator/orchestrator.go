// Package orchestrator owns the lifecycle of isolated test environments.
//
// State machine per context:
//
//	created → environment-configured → active (repeatable inject/capture) → torn-down
//
// SetupTest configures the environment (credential placeholders, feature-flag
// toggles, network interception), InjectWebhook/InjectGEX forward synthetic
// records to the system under test, CaptureState snapshots its observable
// state, TeardownTest restores everything, and ReplayTest re-delivers a
// context's recorded inputs into a fresh context.
//
// Safety invariant: injection rejects any record whose synthetic flag is not
// true, before any forwarding. The orchestrator never deduplicates: repeated
// identical payloads are forwarded every time.
package orchestrator

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/variantlab/tradeharness/internal/faults"
	"github.com/variantlab/tradeharness/internal/snapshot"
	"github.com/variantlab/tradeharness/internal/sut"
	"github.com/variantlab/tradeharness/internal/synth"
)

//go:embed webhook.schema.json
var webhookSchemaJSON string

var webhookSchema = jsonschema.MustCompileString("webhook.schema.json", webhookSchemaJSON)

// Credential-shaped settings overlaid under IsolatedEnvironment. Values are
// deterministic placeholders, never real secrets.
var placeholderCredentials = map[string]string{
	"BROKER_API_KEY":      "synthetic-broker-key",
	"BROKER_API_SECRET":   "synthetic-broker-secret",
	"MARKET_DATA_API_KEY": "synthetic-market-data-key",
}

// featureFlagKey derives the environment toggle name for a feature flag.
func featureFlagKey(name string) string {
	return "FEATURE_" + strings.ToUpper(name)
}

// IDGenerator allocates process-unique test context IDs.
type IDGenerator interface {
	NewID() string
}

type uuidGenerator struct{}

func (uuidGenerator) NewID() string { return uuid.NewString() }

// SystemFactory constructs the system under test for one context.
// The external client carries the context's network policy.
type SystemFactory func(cfg Config, ext sut.ExternalClient, logger *slog.Logger) (sut.System, error)

func defaultSystemFactory(cfg Config, ext sut.ExternalClient, logger *slog.Logger) (sut.System, error) {
	return sut.NewSim(sut.Config{ExecutionMode: cfg.ExecutionMode}, ext, logger)
}

// Orchestrator manages test contexts. The active-context registry is the
// only state shared across contexts and is safe for concurrent use.
type Orchestrator struct {
	mu     sync.Mutex
	active map[string]*TestContext

	env       Environment
	ids       IDGenerator
	newSystem SystemFactory
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEnvironment replaces the orchestrator's flag/credential environment.
func WithEnvironment(env Environment) Option {
	return func(o *Orchestrator) { o.env = env }
}

// WithIDGenerator replaces the test ID allocator. Tests use a fixed
// generator for deterministic IDs.
func WithIDGenerator(ids IDGenerator) Option {
	return func(o *Orchestrator) { o.ids = ids }
}

// WithSystemFactory replaces how the system under test is constructed.
func WithSystemFactory(f SystemFactory) Option {
	return func(o *Orchestrator) { o.newSystem = f }
}

// WithLogger sets the orchestrator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New creates an Orchestrator with an empty in-memory environment, UUID test
// IDs, and the reference Sim as the system under test.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		active:    make(map[string]*TestContext),
		env:       NewMapEnvironment(nil),
		ids:       uuidGenerator{},
		newSystem: defaultSystemFactory,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Environment exposes the orchestrator's environment for assertions.
func (o *Orchestrator) Environment() Environment { return o.env }

// SetupTest allocates an isolated test environment and returns its context.
//
// Any partial failure rolls back everything already applied before the error
// propagates: a half-configured environment never leaks.
func (o *Orchestrator) SetupTest(ctx context.Context, cfg Config) (*TestContext, error) {
	cfg = cfg.withDefaults()
	id := o.ids.NewID()

	tctx, cancel := context.WithTimeout(ctx, cfg.OpTimeout)
	defer cancel()

	var undo []func()
	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}

	tc := &TestContext{ID: id, Config: cfg, Metadata: copyMeta(cfg.Metadata)}

	if cfg.IsolatedEnvironment {
		overlay := newEnvOverlay(o.env)
		for key, value := range placeholderCredentials {
			overlay.set(key, value)
		}
		for name, enabled := range cfg.FeatureFlags {
			if strings.TrimSpace(name) == "" {
				overlay.restore()
				return nil, faults.NewEnvironmentError(id, "feature flag with empty name")
			}
			overlay.set(featureFlagKey(name), fmt.Sprintf("%t", enabled))
		}
		tc.overlay = overlay
		undo = append(undo, overlay.restore)
	}

	if cfg.MockExternalAPIs {
		tc.interceptor = newInterceptor(id, true, cfg.AllowedHosts)
		undo = append(undo, tc.interceptor.close)
	}

	var ext sut.ExternalClient = sut.NoopExternalClient{}
	if tc.interceptor != nil {
		ext = tc.interceptor
	}

	system, err := o.newSystem(cfg, ext, o.logger)
	if err != nil {
		rollback()
		return nil, faults.NewEnvironmentError(id, "system construction failed: %v", err)
	}
	tc.system = system

	if err := tctx.Err(); err != nil {
		system.Close()
		rollback()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, faults.NewTimeout(id, "setupTest")
		}
		return nil, err
	}

	tc.StartTime = time.Now().UTC()

	o.mu.Lock()
	o.active[id] = tc
	o.mu.Unlock()

	o.logger.Info("test context created", "context", id, "isolated", cfg.IsolatedEnvironment, "mock_apis", cfg.MockExternalAPIs)
	return tc, nil
}

// InjectWebhook validates and forwards one synthetic webhook alert.
//
// Rejection order: unknown context (UsageError), non-synthetic record
// (SafetyViolation, before any forwarding), schema violation (InvalidInput).
// On success the record is appended to the context's injection log in call
// order. Identical payloads are forwarded every time.
func (o *Orchestrator) InjectWebhook(ctx context.Context, tc *TestContext, ev *synth.WebhookEvent) error {
	reg, err := o.lookup(tc)
	if err != nil {
		return err
	}
	if ev == nil {
		return faults.NewInvalidInput("injectWebhook: nil event")
	}
	if !ev.Synthetic {
		return faults.NewSafetyViolation(reg.ID, "refusing to inject non-synthetic webhook data")
	}
	if err := validateWebhookPayload(ev.Payload); err != nil {
		return err
	}

	tctx, cancel := context.WithTimeout(ctx, reg.Config.OpTimeout)
	defer cancel()

	if err := reg.system.IngestWebhook(tctx, ev); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return faults.NewTimeout(reg.ID, "injectWebhook")
		}
		return err
	}

	reg.injected = append(reg.injected, InjectedRecord{Kind: "webhook", Webhook: ev})
	o.logger.Info("webhook injected", "context", reg.ID, "scenario", string(ev.Scenario))
	return nil
}

// InjectGEX validates and forwards one synthetic gamma-exposure record.
func (o *Orchestrator) InjectGEX(ctx context.Context, tc *TestContext, rec *synth.GEXRecord) error {
	reg, err := o.lookup(tc)
	if err != nil {
		return err
	}
	if rec == nil {
		return faults.NewInvalidInput("injectGEX: nil record")
	}
	if !rec.Synthetic {
		return faults.NewSafetyViolation(reg.ID, "refusing to inject non-synthetic gex data")
	}

	tctx, cancel := context.WithTimeout(ctx, reg.Config.OpTimeout)
	defer cancel()

	if err := reg.system.IngestGEX(tctx, rec); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return faults.NewTimeout(reg.ID, "injectGEX")
		}
		return err
	}

	reg.injected = append(reg.injected, InjectedRecord{Kind: "gex", GEX: rec})
	o.logger.Info("gex injected", "context", reg.ID, "regime", string(rec.Regime))
	return nil
}

// CaptureState waits the configured settle delay, queries the system under
// test read-only, and appends the snapshot to the context's capture log.
// Capture timestamps never decrease within one context.
func (o *Orchestrator) CaptureState(ctx context.Context, tc *TestContext) (snapshot.Snapshot, error) {
	reg, err := o.lookup(tc)
	if err != nil {
		return snapshot.Snapshot{}, err
	}

	tctx, cancel := context.WithTimeout(ctx, reg.Config.OpTimeout)
	defer cancel()

	if reg.Config.SettleDelay > 0 {
		timer := time.NewTimer(reg.Config.SettleDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-tctx.Done():
			return snapshot.Snapshot{}, faults.NewTimeout(reg.ID, "captureState")
		}
	}

	snap, err := reg.system.QueryState(tctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return snapshot.Snapshot{}, faults.NewTimeout(reg.ID, "captureState")
		}
		return snapshot.Snapshot{}, err
	}

	// Clamp to the previous capture's timestamp so the log stays monotonic
	// even if the system clock steps backwards.
	if n := len(reg.snapshots); n > 0 && snap.CapturedAt.Before(reg.snapshots[n-1].CapturedAt) {
		snap.CapturedAt = reg.snapshots[n-1].CapturedAt
	}

	reg.snapshots = append(reg.snapshots, snap.Clone())
	o.logger.Info("state captured", "context", reg.ID, "captures", len(reg.snapshots))
	return snap, nil
}

// TeardownTest restores the pre-setup environment, removes this context's
// interceptor, and deregisters the context.
//
// Teardown is idempotent: calling it for an unknown or already torn-down
// context is a no-op, and it never returns an error.
func (o *Orchestrator) TeardownTest(tc *TestContext) {
	if tc == nil {
		return
	}

	o.mu.Lock()
	reg, ok := o.active[tc.ID]
	if ok {
		delete(o.active, tc.ID)
	}
	o.mu.Unlock()
	if !ok || reg != tc {
		return
	}

	if tc.overlay != nil {
		tc.overlay.restore()
	}
	if tc.interceptor != nil {
		tc.interceptor.close()
	}
	if tc.system != nil {
		if err := tc.system.Close(); err != nil {
			o.logger.Warn("system close failed during teardown", "context", tc.ID, "error", err)
		}
	}
	tc.tornDown = true
	o.logger.Info("test context torn down", "context", tc.ID)
}

// lookup resolves a caller-held context against the active registry.
func (o *Orchestrator) lookup(tc *TestContext) (*TestContext, error) {
	if tc == nil {
		return nil, faults.NewUsageError("nil test context")
	}
	o.mu.Lock()
	reg, ok := o.active[tc.ID]
	o.mu.Unlock()
	if !ok || reg != tc {
		return nil, faults.NewUsageError("unknown or torn-down test context %s", tc.ID)
	}
	return reg, nil
}

// validateWebhookPayload checks the alert body against the embedded schema.
func validateWebhookPayload(payload map[string]any) error {
	if payload == nil {
		return faults.NewInvalidInput("injectWebhook: event has no payload")
	}
	// The schema library validates generic decoded JSON.
	doc := make(map[string]any, len(payload))
	for k, v := range payload {
		doc[k] = v
	}
	if err := webhookSchema.Validate(doc); err != nil {
		return faults.NewInvalidInput("injectWebhook: payload failed schema validation: %v", err)
	}
	return nil
}

func copyMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
