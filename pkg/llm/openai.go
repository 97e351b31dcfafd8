package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/arcwright/agentos/pkg/httpclient"
)

// endpoints maps a provider name to its OpenAI-compatible
// chat-completions base URL. DeepSeek, Kimi (Moonshot) and Groq all
// speak the same wire format as OpenAI's /v1/chat/completions.
var endpoints = map[string]string{
	"openai":   "https://api.openai.com/v1/chat/completions",
	"deepseek": "https://api.deepseek.com/v1/chat/completions",
	"kimi":     "https://api.moonshot.cn/v1/chat/completions",
	"groq":     "https://api.groq.com/openai/v1/chat/completions",
}

// OpenAICompatible is an Adapter for any OpenAI-compatible
// chat-completions endpoint. It pools connections and retries through
// the shared httpclient.Client and rate-limits outbound calls with
// golang.org/x/time/rate so a burst of worker agents thinking at once
// cannot trip a provider's own limiter.
type OpenAICompatible struct {
	http    *httpclient.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewOpenAICompatible builds an adapter allowing up to ratePerSecond
// requests per second, bursting up to burst.
func NewOpenAICompatible(ratePerSecond float64, burst int, logger *slog.Logger, opts ...httpclient.Option) *OpenAICompatible {
	if logger == nil {
		logger = slog.Default()
	}
	clientOpts := append([]httpclient.Option{
		httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
	}, opts...)
	return &OpenAICompatible{
		http:    httpclient.New(clientOpts...),
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		logger:  logger.With("component", "llm"),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Call implements Adapter. Any failure — rate-limit wait cancellation,
// transport error, non-2xx response, malformed body — yields
// FallbackResponse with zero token counts rather than propagating an
// error the caller must special-case.
func (a *OpenAICompatible) Call(ctx context.Context, prompt string, cfg CallConfig) (string, int, int, error) {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	// Outer wall detects a provider that never responds even through
	// httpclient's own retries: timeout + 10s per the adapter contract.
	callCtx, cancel := context.WithTimeout(ctx, timeout+10*time.Second)
	defer cancel()

	if err := a.limiter.Wait(callCtx); err != nil {
		a.logger.Warn("rate limiter wait failed", "error", err)
		return FallbackResponse, 0, 0, nil
	}

	endpoint, ok := endpoints[cfg.Provider]
	if !ok {
		a.logger.Error("unknown provider", "provider", cfg.Provider)
		return FallbackResponse, 0, 0, nil
	}

	body, err := json.Marshal(chatRequest{
		Model:       cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		a.logger.Error("marshal chat request", "error", err)
		return FallbackResponse, 0, 0, nil
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		a.logger.Error("build request", "error", err)
		return FallbackResponse, 0, 0, nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", cfg.APIKey))

	resp, err := a.http.Do(req)
	if err != nil {
		a.logger.Warn("llm call failed", "provider", cfg.Provider, "error", err)
		return FallbackResponse, 0, 0, nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		a.logger.Warn("read llm response", "error", err)
		return FallbackResponse, 0, 0, nil
	}

	if resp.StatusCode >= 300 {
		a.logger.Warn("llm call returned non-2xx", "status", resp.StatusCode, "body", string(data))
		return FallbackResponse, 0, 0, nil
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil || len(parsed.Choices) == 0 {
		a.logger.Warn("malformed llm response", "error", err)
		return FallbackResponse, 0, 0, nil
	}

	return parsed.Choices[0].Message.Content, parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens, nil
}

// Cost computes the USD cost of a call at the given per-million-token
// prices, matching the spec's cost formula exactly.
func Cost(inputTokens, outputTokens int, pricePerMillionInput, pricePerMillionOutput float64) float64 {
	return float64(inputTokens)/1e6*pricePerMillionInput + float64(outputTokens)/1e6*pricePerMillionOutput
}
