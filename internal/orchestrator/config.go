package orchestrator

import (
	"time"

	"github.com/variantlab/tradeharness/internal/snapshot"
)

// Defaults applied by SetupTest when the caller leaves fields zero.
const (
	// DefaultOpTimeout bounds every orchestrator operation. An operation
	// that exceeds it surfaces a TIMEOUT fault instead of hanging.
	DefaultOpTimeout = 10 * time.Second

	// DefaultSettleDelay is the named settle timeout applied before capture
	// so in-flight asynchronous processing in the system under test can
	// drain. The reference Sim is synchronous, so the default is zero;
	// out-of-process integrations set Config.SettleDelay explicitly.
	DefaultSettleDelay = 0
)

// Config describes one isolated test environment.
// It is threaded explicitly through every context; nothing is process-global.
type Config struct {
	// IsolatedEnvironment overlays placeholder credentials and feature-flag
	// toggles onto the orchestrator environment for the context's lifetime.
	IsolatedEnvironment bool

	// MockExternalAPIs installs a per-context interceptor that blocks all
	// outbound calls except services on AllowedHosts.
	MockExternalAPIs bool

	// AllowedHosts lists services/hosts exempt from interception.
	AllowedHosts []string

	// FeatureFlags become FEATURE_<NAME> environment toggles under
	// IsolatedEnvironment.
	FeatureFlags map[string]bool

	// ExecutionMode selects shadow or live execution in the system under
	// test. Empty means shadow.
	ExecutionMode snapshot.ExecutionMode

	// SettleDelay is waited before each capture. Zero means no wait.
	SettleDelay time.Duration

	// OpTimeout bounds each orchestrator operation. Zero means
	// DefaultOpTimeout.
	OpTimeout time.Duration

	// Metadata is copied onto the TestContext for caller bookkeeping.
	Metadata map[string]string
}

// withDefaults returns the config with zero fields filled in.
func (c Config) withDefaults() Config {
	if c.ExecutionMode == "" {
		c.ExecutionMode = snapshot.ModeShadow
	}
	if c.OpTimeout == 0 {
		c.OpTimeout = DefaultOpTimeout
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	return c
}
