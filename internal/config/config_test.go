package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 340*time.Millisecond, cfg.Retrieval.RequestInterval)
	assert.Equal(t, 50, cfg.Retrieval.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Retrieval.ThrottleCooldown)
	assert.Equal(t, 35, cfg.Retrieval.MaxResults)
	assert.Equal(t, 40, cfg.Workflow.MaxTurns)
	assert.Equal(t, 3, cfg.Workflow.GateMinPapers)
	assert.Equal(t, 20.0, cfg.Workflow.GateMinScore)
	assert.Equal(t, DefaultHiddenAgents, cfg.App.HiddenAgents)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PUBMED_REQUEST_INTERVAL", "500")
	t.Setenv("PUBMED_THROTTLE_COOLDOWN", "3s")
	t.Setenv("WORKFLOW_MAX_TURNS", "12")
	t.Setenv("GATE_MIN_SCORE", "18.5")
	t.Setenv("WS_HIDDEN_AGENTS", " Validator , ,Critic")
	t.Setenv("LLM_PROVIDER", "openai")

	cfg := Load()

	assert.Equal(t, 500*time.Millisecond, cfg.Retrieval.RequestInterval)
	assert.Equal(t, 3*time.Second, cfg.Retrieval.ThrottleCooldown)
	assert.Equal(t, 12, cfg.Workflow.MaxTurns)
	assert.Equal(t, 18.5, cfg.Workflow.GateMinScore)
	assert.Equal(t, []string{"Validator", "Critic"}, cfg.App.HiddenAgents)
	assert.Equal(t, "openai", cfg.Ai.LLMProvider)
}

func TestLoad_EmptyHiddenAgentsShowsEverything(t *testing.T) {
	t.Setenv("WS_HIDDEN_AGENTS", "")
	assert.Empty(t, Load().App.HiddenAgents)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("PUBMED_BATCH_SIZE", "many")
	t.Setenv("PUBMED_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, 50, cfg.Retrieval.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Retrieval.Timeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "unknown provider", mutate: func(c *Config) { c.Ai.LLMProvider = "gemini" }},
		{name: "zero interval", mutate: func(c *Config) { c.Retrieval.RequestInterval = 0 }},
		{name: "huge batch", mutate: func(c *Config) { c.Retrieval.BatchSize = 500 }},
		{name: "gate above max score", mutate: func(c *Config) { c.Workflow.GateMinScore = 30 }},
		{name: "no turns", mutate: func(c *Config) { c.Workflow.MaxTurns = 0 }},
		{name: "bad port", mutate: func(c *Config) { c.App.Port = "http" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
