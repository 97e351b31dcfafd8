package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTool_NoQuery(t *testing.T) {
	wt := New("")
	result, err := wt.Execute(context.Background(), map[string]any{}, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "No search query provided", result["error"])
}

func TestTool_MockResultsWhenNoBackendConfigured(t *testing.T) {
	wt := New("")
	result, err := wt.Execute(context.Background(), map[string]any{
		"query":       "golang concurrency",
		"max_results": float64(5),
	}, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "golang concurrency", result["query"])
	assert.Equal(t, 3, result["count"])
	results, ok := result["results"].([]map[string]any)
	require.True(t, ok)
	assert.Len(t, results, 3)
}

func TestTool_SearXNGBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"title":"A","url":"https://a.example","content":"snippet a"}]}`))
	}))
	defer server.Close()

	wt := New(server.URL)
	result, err := wt.Execute(context.Background(), map[string]any{"query": "test"}, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result["count"])
}
