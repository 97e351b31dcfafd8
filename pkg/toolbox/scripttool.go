package toolbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/arcwright/agentos/pkg/tool"
)

// scriptTimeout bounds a plugin script's wall-clock time, the same
// limit code_executor applies to an agent-authored snippet.
const scriptTimeout = 30 * time.Second

// scriptTool adapts a manifest-declared entrypoint script into a
// tool.Tool: parameters are passed as a JSON object on stdin, and the
// script is expected to print a single JSON object result to stdout.
// This is the tool-forging deployment path's runtime shape — a newly
// authored plugin is just another script discovered on the next
// refresh, never code imported and executed in-process.
type scriptTool struct {
	m          manifest
	entrypoint string
}

func newScriptTool(m manifest, entrypoint string) *scriptTool {
	return &scriptTool{m: m, entrypoint: entrypoint}
}

func (s *scriptTool) Name() string { return s.m.Name }

func (s *scriptTool) Description() string { return s.m.Description }

func (s *scriptTool) Schema() map[string]any {
	if s.m.Schema != nil {
		return s.m.Schema
	}
	return tool.GenerateSchema[struct{}]()
}

func (s *scriptTool) Protected() bool { return s.m.Protected }

func (s *scriptTool) Execute(ctx context.Context, params map[string]any, agentID string) (map[string]any, error) {
	input, err := json.Marshal(map[string]any{"params": params, "agent_id": agentID})
	if err != nil {
		return nil, fmt.Errorf("encode plugin input: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, scriptTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "python3", s.entrypoint)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return map[string]any{"error": "plugin execution timed out"}, nil
		}
		return map[string]any{"error": fmt.Sprintf("plugin execution failed: %v", err), "details": stderr.String()}, nil
	}

	var result map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return map[string]any{"error": "plugin produced invalid output", "details": stdout.String()}, nil
	}
	return result, nil
}
