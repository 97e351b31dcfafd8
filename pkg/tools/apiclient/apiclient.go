// Package apiclient implements the api_client built-in tool: GET/POST
// HTTP requests to external APIs, with outbound requests to private
// or loopback addresses rejected before any connection is attempted.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/arcwright/agentos/pkg/httpclient"
	"github.com/arcwright/agentos/pkg/tool"
)

// Args is the api_client tool's parameter struct.
type Args struct {
	Method   string            `json:"method" jsonschema:"required,description=The HTTP method to use.,enum=GET,enum=POST"`
	URL      string            `json:"url" jsonschema:"required,description=The URL of the API endpoint."`
	Params   map[string]string `json:"params,omitempty" jsonschema:"description=Optional URL query parameters for GET requests."`
	Headers  map[string]string `json:"headers,omitempty" jsonschema:"description=Optional HTTP headers."`
	JSONBody map[string]any    `json:"json_body,omitempty" jsonschema:"description=Optional JSON payload for POST requests."`
}

// Tool is the api_client built-in.
type Tool struct {
	http *httpclient.Client
}

// New builds an api_client tool.
func New() *Tool {
	return &Tool{http: httpclient.New(httpclient.WithMaxRetries(2))}
}

func (t *Tool) Name() string { return "api_client" }

func (t *Tool) Description() string {
	return "Makes HTTP requests (GET, POST) to external APIs to fetch or send data."
}

func (t *Tool) Schema() map[string]any { return tool.GenerateSchema[Args]() }

func (t *Tool) Execute(ctx context.Context, params map[string]any, agentID string) (map[string]any, error) {
	method, _ := params["method"].(string)
	method = strings.ToUpper(method)
	rawURL, _ := params["url"].(string)

	if rawURL == "" || (method != http.MethodGet && method != http.MethodPost) {
		return map[string]any{"error": "Invalid parameters. 'method' (GET/POST) and 'url' are required."}, nil
	}

	if err := validateURL(rawURL); err != nil {
		return map[string]any{"error": err.Error(), "code": "SECURITY_VALIDATION_FAILED"}, nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return map[string]any{"error": "Invalid or unresolvable URL.", "code": "SECURITY_VALIDATION_FAILED"}, nil
	}

	if qp, ok := params["params"].(map[string]any); ok {
		q := parsed.Query()
		for k, v := range qp {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		parsed.RawQuery = q.Encode()
	}

	var body io.Reader
	if method == http.MethodPost {
		if jsonBody, ok := params["json_body"].(map[string]any); ok {
			data, err := json.Marshal(jsonBody)
			if err != nil {
				return map[string]any{"error": "Failed to encode json_body.", "code": "INVALID_PARAMETERS"}, nil
			}
			body = strings.NewReader(string(data))
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, parsed.String(), body)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("An unexpected error occurred during the API call: %v", err)}, nil
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := params["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("HTTP request failed: %v", err), "details": err.Error()}, nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return map[string]any{"error": "An unexpected error occurred during the API call.", "details": err.Error()}, nil
	}

	var responseBody any
	if err := json.Unmarshal(data, &responseBody); err != nil {
		responseBody = string(data)
	}

	return map[string]any{
		"status":       "success",
		"status_code":  resp.StatusCode,
		"content_type": resp.Header.Get("Content-Type"),
		"body":         responseBody,
	}, nil
}

// validateURL rejects requests to a private or loopback address,
// resolving the hostname via DNS first (an attacker-controlled
// hostname resolving to 127.0.0.1 or a 10.0.0.0/8 address is blocked
// just as surely as a literal loopback URL).
func validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return fmt.Errorf("invalid or unresolvable URL")
	}

	ips, err := net.LookupIP(parsed.Hostname())
	if err != nil || len(ips) == 0 {
		return fmt.Errorf("invalid or unresolvable URL")
	}

	for _, ip := range ips {
		addr, ok := netip.AddrFromSlice(ip.To16())
		if !ok {
			continue
		}
		addr = addr.Unmap()
		if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() {
			return fmt.Errorf("access to private or loopback address %s is forbidden", addr)
		}
	}
	return nil
}

// defaultTimeout is not referenced by any code: net.LookupIP does not
// take a context, so validateURL's DNS lookup is not bounded by it.
const defaultTimeout = 5 * time.Second
