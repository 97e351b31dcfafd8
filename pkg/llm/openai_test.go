package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcwright/agentos/pkg/httpclient"
)

func TestCost(t *testing.T) {
	got := Cost(1_000_000, 1_000_000, 5.0, 15.0)
	assert.InDelta(t, 20.0, got, 1e-9)
}

func TestOpenAICompatible_Call_UnknownProvider(t *testing.T) {
	a := NewOpenAICompatible(100, 10, nil)
	text, in, out, err := a.Call(context.Background(), "hi", CallConfig{Provider: "not-a-real-provider"})
	require.NoError(t, err)
	assert.Equal(t, FallbackResponse, text)
	assert.Equal(t, 0, in)
	assert.Equal(t, 0, out)
}

func TestOpenAICompatible_Call_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := chatResponse{}
		resp.Choices = []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Role: "assistant", Content: `{"action":"FAIL"}`}}}
		resp.Usage.PromptTokens = 42
		resp.Usage.CompletionTokens = 7
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	a := NewOpenAICompatible(1000, 10, nil)
	endpoints["test"] = server.URL
	defer delete(endpoints, "test")

	text, in, out, err := a.Call(context.Background(), "hi", CallConfig{
		Provider: "test",
		Model:    "test-model",
		APIKey:   "key",
		Timeout:  5,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"action":"FAIL"}`, text)
	assert.Equal(t, 42, in)
	assert.Equal(t, 7, out)
}

func TestOpenAICompatible_Call_NonOKStatusFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	a := NewOpenAICompatible(1000, 10, nil, httpclient.WithMaxRetries(0))
	endpoints["test-429"] = server.URL
	defer delete(endpoints, "test-429")

	text, in, out, err := a.Call(context.Background(), "hi", CallConfig{
		Provider: "test-429",
		Model:    "test-model",
		APIKey:   "key",
		Timeout:  5,
	})
	require.NoError(t, err)
	assert.Equal(t, FallbackResponse, text)
	assert.Equal(t, 0, in)
	assert.Equal(t, 0, out)
}
