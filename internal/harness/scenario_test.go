package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: smallest valid scenario
flow:
  - webhook:
      scenario: BUY_SIGNAL
      symbol: SPY
      price: 100.0
      seed: 1
  - capture: true
expect:
  agent:
    activations: 0
`

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Flow, 2)
	require.NotNil(t, s.Flow[0].Webhook)
	assert.Equal(t, uint32(1), s.Flow[0].Webhook.Seed)
	assert.True(t, s.Flow[1].Capture)
	require.NotNil(t, s.Expect.Agent)
}

func TestParseScenario_RejectsUnknownFields(t *testing.T) {
	// "expects" instead of "expect": strict decoding catches the typo.
	bad := `
name: typo
description: typo in top-level key
flow:
  - capture: true
expects:
  agent:
    activations: 0
`
	_, err := ParseScenario([]byte(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects")
}

func TestParseScenario_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nflow:\n  - capture: true\nexpect:\n  determinism: true\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\nflow:\n  - capture: true\nexpect:\n  determinism: true\n",
			wantErr: "description is required",
		},
		{
			name:    "empty flow",
			yaml:    "name: n\ndescription: d\nexpect:\n  determinism: true\n",
			wantErr: "flow list is required",
		},
		{
			name: "step with two kinds",
			yaml: `name: n
description: d
flow:
  - capture: true
    webhook:
      scenario: BUY_SIGNAL
      symbol: SPY
      price: 1.0
      seed: 1
expect:
  determinism: true
`,
			wantErr: "exactly one of",
		},
		{
			name:    "empty step",
			yaml:    "name: n\ndescription: d\nflow:\n  - {}\nexpect:\n  determinism: true\n",
			wantErr: "exactly one of",
		},
		{
			name: "no expectations",
			yaml: `name: n
description: d
flow:
  - capture: true
`,
			wantErr: "at least one expectation",
		},
		{
			name: "no capture step",
			yaml: `name: n
description: d
flow:
  - webhook:
      scenario: BUY_SIGNAL
      symbol: SPY
      price: 1.0
      seed: 1
expect:
  determinism: true
`,
			wantErr: "at least one capture",
		},
		{
			name: "bad execution mode in config",
			yaml: `name: n
description: d
config:
  execution_mode: paper
flow:
  - capture: true
expect:
  determinism: true
`,
			wantErr: `unknown execution_mode "paper"`,
		},
		{
			name: "bad expected execution mode",
			yaml: `name: n
description: d
flow:
  - capture: true
expect:
  execution:
    mode: paper
`,
			wantErr: `unknown mode "paper"`,
		},
		{
			name: "negative settle delay",
			yaml: `name: n
description: d
config:
  settle_delay_ms: -5
flow:
  - capture: true
expect:
  determinism: true
`,
			wantErr: "settle_delay_ms must be non-negative",
		},
		{
			name: "negative activations",
			yaml: `name: n
description: d
flow:
  - capture: true
expect:
  agent:
    activations: -1
`,
			wantErr: "activations must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/does-not-exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_Testdata(t *testing.T) {
	for _, name := range []string{"shadow-buy-flow", "misaligned-sell-holds"} {
		s, err := LoadScenario("testdata/" + name + ".yaml")
		require.NoError(t, err)
		assert.Equal(t, name, s.Name)
	}
}
