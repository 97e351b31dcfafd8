// Package codeexecutor implements the code_executor built-in tool:
// subprocess-isolated execution of short Python snippets, bounded by
// a wall-clock timeout and an output-size cap.
package codeexecutor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/arcwright/agentos/pkg/tool"
)

const (
	// maxWallClock bounds how long a submitted snippet may run.
	maxWallClock = 30 * time.Second

	// maxOutputBytes caps captured stdout/stderr; output beyond this
	// is truncated with a sentinel appended.
	maxOutputBytes = 100 * 1024

	truncatedSentinel = "\n...[output truncated]"
)

// Args is the code_executor tool's parameter struct.
type Args struct {
	Code     string `json:"code" jsonschema:"required,description=The code to execute."`
	Language string `json:"language,omitempty" jsonschema:"description=Programming language.,default=python,enum=python"`
}

// Tool is the code_executor built-in.
type Tool struct{}

// New builds a code_executor tool.
func New() *Tool { return &Tool{} }

func (t *Tool) Name() string { return "code_executor" }

func (t *Tool) Description() string { return "Execute Python code snippets safely." }

func (t *Tool) Schema() map[string]any { return tool.GenerateSchema[Args]() }

func (t *Tool) Execute(ctx context.Context, params map[string]any, agentID string) (map[string]any, error) {
	code, _ := params["code"].(string)
	language, _ := params["language"].(string)
	if language == "" {
		language = "python"
	}

	if code == "" {
		return map[string]any{"error": "No code provided"}, nil
	}
	if language != "python" {
		return map[string]any{"error": fmt.Sprintf("Language %s not supported", language)}, nil
	}

	file, err := os.CreateTemp("", "agentos-exec-*.py")
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("Code execution failed: %v", err)}, nil
	}
	defer os.Remove(file.Name())

	if _, err := file.WriteString(code); err != nil {
		file.Close()
		return map[string]any{"error": fmt.Sprintf("Code execution failed: %v", err)}, nil
	}
	file.Close()

	runCtx, cancel := context.WithTimeout(ctx, maxWallClock)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "python3", file.Name())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return map[string]any{"error": "Code execution timed out"}, nil
	}

	returnCode := 0
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		returnCode = exitErr.ExitCode()
	} else if runErr != nil {
		return map[string]any{"error": fmt.Sprintf("Code execution failed: %v", runErr)}, nil
	}

	return map[string]any{
		"success":     returnCode == 0,
		"stdout":      truncate(stdout.String()),
		"stderr":      truncate(stderr.String()),
		"return_code": returnCode,
	}, nil
}

func truncate(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[:maxOutputBytes] + truncatedSentinel
}
