package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paynet/simcash/arrival"
	"github.com/paynet/simcash/policy"
)

func TestConfigValidateRejectsDuplicateAgentIDs(t *testing.T) {
	cfg := Config{
		TicksPerDay: 5,
		NumDays:     1,
		Agents: []AgentConfig{
			{ID: "A", Policy: policy.Policy{PaymentTree: releaseAlwaysTree()}},
			{ID: "A", Policy: policy.Policy{PaymentTree: releaseAlwaysTree()}},
		},
	}
	errs, _ := cfg.validate()
	require.NotEmpty(t, errs)
}

func TestConfigValidateRejectsScriptedArrivalBeyondHorizon(t *testing.T) {
	cfg := Config{
		TicksPerDay: 5,
		NumDays:     1,
		Agents: []AgentConfig{
			{ID: "A", Policy: policy.Policy{PaymentTree: releaseAlwaysTree()}},
			{ID: "B", Policy: policy.Policy{PaymentTree: releaseAlwaysTree()}},
		},
		ScriptedArrivals: []arrival.ScriptedEntry{
			{Tick: 0, Sender: "A", Receiver: "B", Amount: 100, Deadline: 100},
		},
	}
	errs, lastTick := cfg.validate()
	require.NotEmpty(t, errs)
	require.Equal(t, int64(4), int64(lastTick))
}

func TestConfigValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := Config{
		TicksPerDay: 5,
		NumDays:     2,
		Agents: []AgentConfig{
			{ID: "A", Policy: policy.Policy{PaymentTree: releaseAlwaysTree()}},
			{ID: "B", Policy: policy.Policy{PaymentTree: releaseAlwaysTree()}},
		},
		ScriptedArrivals: []arrival.ScriptedEntry{
			{Tick: 0, Sender: "A", Receiver: "B", Amount: 100, Deadline: 9},
		},
	}
	errs, lastTick := cfg.validate()
	require.Empty(t, errs)
	require.Equal(t, int64(9), int64(lastTick))
}
