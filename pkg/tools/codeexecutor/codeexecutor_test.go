package codeexecutor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTool_NoCode(t *testing.T) {
	ct := New()
	result, err := ct.Execute(context.Background(), map[string]any{}, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "No code provided", result["error"])
}

func TestTool_UnsupportedLanguage(t *testing.T) {
	ct := New()
	result, err := ct.Execute(context.Background(), map[string]any{
		"code":     "puts 1",
		"language": "ruby",
	}, "agent-1")
	require.NoError(t, err)
	assert.Contains(t, result["error"], "not supported")
}

func TestTruncate(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, truncate(short))

	long := make([]byte, maxOutputBytes+10)
	got := truncate(string(long))
	assert.Contains(t, got, truncatedSentinel)
}
