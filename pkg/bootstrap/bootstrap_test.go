package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/arcwright/agentos/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.SystemConfig {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "test-key")
	base := t.TempDir()
	return config.SystemConfig{
		Objective:                   "ship a small CLI tool",
		LogLevel:                    "ERROR",
		InitialBudget:               1,
		MaxAgents:                   2,
		PricePerMillionInputTokens:  5,
		PricePerMillionOutputTokens: 15,
		SpawnCost:                   0.01,
		ToolUseCost:                 0.005,
		Provider:                    "openai",
		OutputBase:                  base,
		DeliveryFolder:              "delivery",
		PluginsDir:                  filepath.Join(base, "plugins"),
		EnableMessaging:             true,
		EnableAdvPlanning:           false,
		EnableToolCreation:          true,
	}
}

func TestBios_InitializeFailsWithoutAPIKey(t *testing.T) {
	cfg := testConfig(t)
	os.Unsetenv("OPENAI_API_KEY")
	bios := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := bios.Initialize(context.Background())
	require.Error(t, err)
}

func TestBios_InitializeBuildsComponents(t *testing.T) {
	cfg := testConfig(t)
	bios := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := bios.Initialize(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, bios.ledger)
	assert.NotNil(t, bios.orchestrator)
	assert.Nil(t, bios.visualizer, "visualizer should stay off when Visualize is false")
}
