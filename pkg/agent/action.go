package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Action type constants. Thought text supplies these case-insensitively
// (e.g. "DELEGATE" in a prompt example); ParseAction lowercases them.
const (
	ActionTypeError          = "error"
	ActionTypeUseTool        = "use_tool"
	ActionTypeDelegate       = "delegate"
	ActionTypeRequestNewTool = "request_new_tool"
	ActionTypeComplete       = "complete"
	ActionTypeFail           = "fail"
)

// Action is the normalized shape of a parsed LLM response, regardless
// of whether the model nested fields under "details" or put them at
// the top level.
type Action struct {
	Type       string
	Tool       string
	Details    map[string]any
	Parameters map[string]any
	Error      string
}

// ParseAction tolerantly extracts a JSON object from thought (scanning
// for the outermost brace pair, since models occasionally wrap their
// JSON in prose or code fences) and normalizes it into an Action. A
// `tool` field may be a bare string or an object carrying `name`;
// `parameters` may live at the top level or nested under `details`.
func ParseAction(thought string) Action {
	start := strings.Index(thought, "{")
	end := strings.LastIndex(thought, "}")
	if start == -1 || end == -1 || end < start {
		return Action{Type: ActionTypeError, Error: fmt.Sprintf("JSON parse failed: no JSON object found. Raw: '%s'", thought)}
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(thought[start:end+1]), &data); err != nil {
		return Action{Type: ActionTypeError, Error: fmt.Sprintf("JSON parse failed: %v. Raw: '%s'", err, thought)}
	}

	actionType := ActionTypeError
	if at, ok := data["action"].(string); ok && at != "" {
		actionType = strings.ToLower(at)
	}

	var toolName string
	switch tf := data["tool"].(type) {
	case string:
		toolName = tf
	case map[string]any:
		if name, ok := tf["name"].(string); ok {
			toolName = name
		}
	}

	details, _ := data["details"].(map[string]any)
	if details == nil {
		details = map[string]any{}
	}

	parameters, _ := data["parameters"].(map[string]any)
	if parameters == nil {
		if p, ok := details["parameters"].(map[string]any); ok {
			parameters = p
		}
	}
	if parameters == nil {
		parameters = map[string]any{}
	}

	return Action{Type: actionType, Tool: toolName, Details: details, Parameters: parameters}
}
