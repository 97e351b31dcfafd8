// Package llm provides the provider-agnostic adapter agents call to
// reason: a single Call method returning generated text plus the
// input/output token counts the caller needs for cost accounting.
package llm

import "context"

// CallConfig parameterizes one adapter call.
type CallConfig struct {
	Provider    string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     int // seconds
}

// Adapter is the single capability an agent's reasoning loop depends
// on. Any transport, rate-limit, or API failure must not propagate as
// an error a caller has to special-case: implementations return the
// well-formed JSON fallback described in FallbackResponse instead, so
// the agent engine always has text to parse.
type Adapter interface {
	Call(ctx context.Context, prompt string, cfg CallConfig) (text string, inputTokens, outputTokens int, err error)
}

// FallbackResponse is returned as text (with inputTokens=outputTokens=0)
// whenever a provider call cannot be completed. It is a valid Action
// the agent engine's tolerant JSON scan can parse: a FAIL action that
// costs nothing, so a transport outage degrades one think/act cycle
// rather than crashing the agent.
const FallbackResponse = `{"reasoning": "LLM call failed", "action": "FAIL"}`
