package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/variantlab/tradeharness/internal/orchestrator"
	"github.com/variantlab/tradeharness/internal/snapshot"
	"github.com/variantlab/tradeharness/internal/synth"
)

// Scenario defines one declarative end-to-end test: an environment
// configuration, an ordered flow of injections and captures, and the
// expectations evaluated against the captured snapshots.
type Scenario struct {
	// Name uniquely identifies this scenario. Also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config describes the isolated environment the scenario runs in.
	Config ScenarioConfig `yaml:"config"`

	// Flow is the ordered list of steps. Each step is exactly one of:
	// gex injection, webhook injection, or a state capture.
	Flow []Step `yaml:"flow"`

	// Expect lists the validations run after the flow completes.
	Expect Expect `yaml:"expect"`
}

// ScenarioConfig is the YAML shape of an environment configuration.
type ScenarioConfig struct {
	IsolatedEnvironment bool            `yaml:"isolated_environment,omitempty"`
	MockExternalAPIs    bool            `yaml:"mock_external_apis,omitempty"`
	AllowedHosts        []string        `yaml:"allowed_hosts,omitempty"`
	FeatureFlags        map[string]bool `yaml:"feature_flags,omitempty"`

	// ExecutionMode is "shadow" or "live". Empty means shadow.
	ExecutionMode string `yaml:"execution_mode,omitempty"`

	// SettleDelayMS is waited before each capture so asynchronous
	// processing can drain. Zero means no wait.
	SettleDelayMS int `yaml:"settle_delay_ms,omitempty"`
}

func (c ScenarioConfig) toOrchestrator() orchestrator.Config {
	return orchestrator.Config{
		IsolatedEnvironment: c.IsolatedEnvironment,
		MockExternalAPIs:    c.MockExternalAPIs,
		AllowedHosts:        c.AllowedHosts,
		FeatureFlags:        c.FeatureFlags,
		ExecutionMode:       snapshot.ExecutionMode(c.ExecutionMode),
		SettleDelay:         time.Duration(c.SettleDelayMS) * time.Millisecond,
	}
}

// Step is one flow entry. Exactly one field must be set.
type Step struct {
	// GEX generates and injects a gamma-exposure record.
	GEX *synth.GEXSpec `yaml:"gex,omitempty"`

	// Webhook generates and injects a trading alert.
	Webhook *synth.WebhookSpec `yaml:"webhook,omitempty"`

	// Capture records a state snapshot.
	Capture bool `yaml:"capture,omitempty"`
}

// Expect lists the validations evaluated after the flow.
// Snapshot expectations apply to the last captured snapshot.
type Expect struct {
	Agent     *AgentExpect     `yaml:"agent,omitempty"`
	Isolation *IsolationExpect `yaml:"isolation,omitempty"`
	Execution *ExecutionExpect `yaml:"execution,omitempty"`

	// Determinism replays the full flow in a fresh context and requires
	// the replayed snapshot to agree with the original.
	Determinism bool `yaml:"determinism,omitempty"`
}

func (e Expect) empty() bool {
	return e.Agent == nil && e.Isolation == nil && e.Execution == nil && !e.Determinism
}

// AgentExpect is the YAML shape of an agent-activation expectation.
type AgentExpect struct {
	Activations     int      `yaml:"activations"`
	MinConfidence   float64  `yaml:"min_confidence,omitempty"`
	Recommendations []string `yaml:"recommendations,omitempty"`
}

// IsolationExpect is the YAML shape of an isolation expectation.
type IsolationExpect struct {
	AllowedServices []string `yaml:"allowed_services,omitempty"`
}

// ExecutionExpect is the YAML shape of an execution-safety expectation.
type ExecutionExpect struct {
	// Mode is "shadow" or "live".
	Mode string `yaml:"mode"`

	// MaxLive caps live executions. Nil means uncapped.
	MaxLive *int `yaml:"max_live,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML bytes with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	switch s.Config.ExecutionMode {
	case "", string(snapshot.ModeShadow), string(snapshot.ModeLive):
	default:
		return fmt.Errorf("config: unknown execution_mode %q", s.Config.ExecutionMode)
	}
	if s.Config.SettleDelayMS < 0 {
		return fmt.Errorf("config: settle_delay_ms must be non-negative")
	}

	captures := 0
	for i, step := range s.Flow {
		set := 0
		if step.GEX != nil {
			set++
		}
		if step.Webhook != nil {
			set++
		}
		if step.Capture {
			set++
			captures++
		}
		if set != 1 {
			return fmt.Errorf("flow[%d]: exactly one of gex, webhook, capture is required", i)
		}
	}

	if s.Expect.empty() {
		return fmt.Errorf("expect: at least one expectation is required")
	}
	if captures == 0 {
		return fmt.Errorf("flow: at least one capture step is required to evaluate expectations")
	}

	if e := s.Expect.Execution; e != nil {
		switch e.Mode {
		case string(snapshot.ModeShadow), string(snapshot.ModeLive):
		default:
			return fmt.Errorf("expect.execution: unknown mode %q", e.Mode)
		}
	}
	if a := s.Expect.Agent; a != nil && a.Activations < 0 {
		return fmt.Errorf("expect.agent: activations must be non-negative")
	}

	return nil
}
