package configio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paynet/simcash/engine"
	"github.com/paynet/simcash/policy"
)

func releaseAlwaysTree() *policy.Tree {
	return &policy.Tree{
		Kind: policy.TreeKindPayment,
		Root: "root",
		Nodes: map[string]*policy.Node{
			"root": {ID: "root", Type: policy.NodeAction, Action: policy.ActionSpec{Kind: policy.ActionRelease}},
		},
	}
}

func TestLoadDefaultsWithNoEnvironment(t *testing.T) {
	for _, key := range []string{"SIMCASH_KAFKA_BROKER", "SIMCASH_KAFKA_ENABLED", "SIMCASH_DASHBOARD_ADDR"} {
		os.Unsetenv(key)
	}
	cfg := Load()
	require.Equal(t, "localhost:9092", cfg.KafkaBrokerAddr)
	require.False(t, cfg.KafkaEnabled)
	require.Equal(t, ":8090", cfg.DashboardAddr)
	require.True(t, cfg.IsDevelopment())
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("SIMCASH_KAFKA_BROKER", "kafka.internal:9092")
	t.Setenv("SIMCASH_KAFKA_ENABLED", "true")
	cfg := Load()
	require.Equal(t, "kafka.internal:9092", cfg.KafkaBrokerAddr)
	require.True(t, cfg.KafkaEnabled)
}

func TestScenarioYAMLRoundTripsThroughEngineConfig(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "scenario.yaml")
	doc := `
ticks_per_day: 10
num_days: 1
rng_seed: 7
agents:
  - id: A
    opening_balance: 100000
    policy:
      payment_tree:
        kind: payment
        root: root
        nodes:
          root:
            id: root
            type: action
            action:
              kind: Release
  - id: B
    opening_balance: 100000
    policy:
      payment_tree:
        kind: payment
        root: root
        nodes:
          root:
            id: root
            type: action
            action:
              kind: Release
scripted_arrivals:
  - tick: 0
    sender: A
    receiver: B
    amount: 5000
    deadline: 5
`
	require.NoError(t, os.WriteFile(yamlPath, []byte(doc), 0o644))

	cfg, err := LoadScenarioYAML(yamlPath)
	require.NoError(t, err)
	require.Equal(t, int64(10), cfg.TicksPerDay)
	require.Len(t, cfg.Agents, 2)
	require.NotNil(t, cfg.Agents[0].Policy.PaymentTree)
	require.Equal(t, policy.ActionRelease, cfg.Agents[0].Policy.PaymentTree.Nodes["root"].Action.Kind)

	o, err := engine.New(cfg, nil)
	require.NoError(t, err)
	_, err = o.Tick()
	require.NoError(t, err)
}

func TestScenarioJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "scenario.json")

	original := engine.Config{
		TicksPerDay: 5,
		NumDays:     1,
		RNGSeed:     1,
		Agents: []engine.AgentConfig{
			{ID: "A", OpeningBalance: 1000, Policy: policy.Policy{PaymentTree: releaseAlwaysTree()}},
			{ID: "B", OpeningBalance: 1000, Policy: policy.Policy{PaymentTree: releaseAlwaysTree()}},
		},
	}

	require.NoError(t, DumpScenarioJSON(original, jsonPath))
	loaded, err := LoadScenarioJSON(jsonPath)
	require.NoError(t, err)
	require.Equal(t, original.TicksPerDay, loaded.TicksPerDay)
	require.Len(t, loaded.Agents, 2)
	require.Equal(t, policy.ActionRelease, loaded.Agents[0].Policy.PaymentTree.Nodes["root"].Action.Kind)
}
