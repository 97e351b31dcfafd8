package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemConfig_Validate(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	tests := []struct {
		name    string
		mutate  func(c *SystemConfig)
		wantErr bool
	}{
		{name: "default is valid", mutate: func(c *SystemConfig) {}, wantErr: false},
		{name: "non-positive budget", mutate: func(c *SystemConfig) { c.InitialBudget = 0 }, wantErr: true},
		{name: "non-positive max agents", mutate: func(c *SystemConfig) { c.MaxAgents = 0 }, wantErr: true},
		{name: "negative input price", mutate: func(c *SystemConfig) { c.PricePerMillionInputTokens = -1 }, wantErr: true},
		{name: "negative spawn cost", mutate: func(c *SystemConfig) { c.SpawnCost = -1 }, wantErr: true},
		{name: "empty objective", mutate: func(c *SystemConfig) { c.Objective = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSystemConfig_Validate_MissingProviderKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	c := Default()
	err := c.Validate()
	assert.Error(t, err)
}

func TestProviderAPIKey_UnknownProvider(t *testing.T) {
	_, err := ProviderAPIKey("not-a-provider")
	assert.Error(t, err)
}

func TestModelName(t *testing.T) {
	t.Setenv("AOS_MODEL_NAME", "")
	assert.Equal(t, "explicit-model", ModelName("explicit-model"))

	t.Setenv("AOS_MODEL_NAME", "env-model")
	assert.Equal(t, "env-model", ModelName(""))

	t.Setenv("AOS_MODEL_NAME", "")
	assert.Equal(t, "gpt-4o-mini", ModelName(""))
}
