package toolbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestToolbox(t *testing.T, cfg Config) *Toolbox {
	t.Helper()
	if cfg.WorkspaceDir == "" {
		cfg.WorkspaceDir = t.TempDir()
	}
	tb, err := New(cfg)
	require.NoError(t, err)
	return tb
}

func TestToolbox_BuiltinsRegisteredWithoutMessaging(t *testing.T) {
	tb := newTestToolbox(t, Config{EnableMessaging: false})
	names := tb.Names()
	assert.Contains(t, names, "file_manager")
	assert.Contains(t, names, "code_executor")
	assert.Contains(t, names, "api_client")
	assert.Contains(t, names, "web_search")
	assert.Contains(t, names, "pytest_runner")
	assert.NotContains(t, names, "messaging")
}

func TestToolbox_MessagingIncludedWhenEnabled(t *testing.T) {
	tb := newTestToolbox(t, Config{EnableMessaging: true})
	assert.Contains(t, tb.Names(), "messaging")
}

func TestToolbox_DisabledToolsFiltered(t *testing.T) {
	tb := newTestToolbox(t, Config{DisabledTools: []string{"web_search"}})
	assert.NotContains(t, tb.Names(), "web_search")
}

func TestToolbox_ProtectedToolSurvivesDisabledFilter(t *testing.T) {
	tb := newTestToolbox(t, Config{DisabledTools: []string{"file_manager"}})
	assert.Contains(t, tb.Names(), "file_manager")
}

func TestToolbox_ExecuteUnknownTool(t *testing.T) {
	tb := newTestToolbox(t, Config{})
	result, err := tb.Execute(context.Background(), "does_not_exist", map[string]any{}, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "TOOL_NOT_FOUND", result["code"])
}

func TestToolbox_ExecuteKnownTool(t *testing.T) {
	tb := newTestToolbox(t, Config{})
	result, err := tb.Execute(context.Background(), "code_executor", map[string]any{"code": ""}, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "No code provided", result["error"])
}

func TestToolbox_Definitions(t *testing.T) {
	tb := newTestToolbox(t, Config{})
	defs := tb.Definitions()
	assert.NotEmpty(t, defs)
	var sawFileManager bool
	for _, d := range defs {
		if d.Name == "file_manager" {
			sawFileManager = true
			assert.NotEmpty(t, d.Description)
		}
	}
	assert.True(t, sawFileManager)
}

func TestToolbox_DiscoversManifestPlugin(t *testing.T) {
	pluginsDir := t.TempDir()
	manifestYAML := `
name: string_reverser
description: Reverses a string.
entrypoint: reverser.py
schema:
  type: object
  properties:
    text:
      type: string
  required: ["text"]
`
	require.NoError(t, os.WriteFile(filepath.Join(pluginsDir, "reverser.yaml"), []byte(manifestYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pluginsDir, "reverser.py"), []byte("#!/usr/bin/env python3\n"), 0o644))

	tb := newTestToolbox(t, Config{PluginsDir: pluginsDir})
	assert.Contains(t, tb.Names(), "string_reverser")

	tl, ok := tb.Tool("string_reverser")
	require.True(t, ok)
	assert.Equal(t, "Reverses a string.", tl.Description())
}

func TestToolbox_RefreshDropsRemovedPlugin(t *testing.T) {
	pluginsDir := t.TempDir()
	manifestPath := filepath.Join(pluginsDir, "temp.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte("name: temp_tool\ndescription: temp\nentrypoint: temp.py\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pluginsDir, "temp.py"), []byte(""), 0o644))

	tb := newTestToolbox(t, Config{PluginsDir: pluginsDir})
	assert.Contains(t, tb.Names(), "temp_tool")

	require.NoError(t, os.Remove(manifestPath))
	require.NoError(t, tb.Refresh())
	assert.NotContains(t, tb.Names(), "temp_tool")
}

func TestToolbox_IgnoresMalformedManifest(t *testing.T) {
	pluginsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(pluginsDir, "broken.yaml"), []byte("description: missing a name and entrypoint\n"), 0o644))

	tb := newTestToolbox(t, Config{PluginsDir: pluginsDir})
	for _, n := range tb.Names() {
		assert.NotEqual(t, "", n)
	}
}
