// Package pytestrunner implements the pytest_runner built-in tool: it
// shells out to pytest against a single test file inside the agent's
// workspace, supporting the system's self-improvement loop (a worker
// can write a test, then verify its own fix against it).
package pytestrunner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/arcwright/agentos/pkg/tool"
)

const runTimeout = 60 * time.Second

// Args is the pytest_runner tool's parameter struct.
type Args struct {
	TestFilePath string `json:"test_file_path" jsonschema:"required,description=The relative path to the test file to be executed."`
}

// Tool is the pytest_runner built-in, sandboxed to WorkspaceDir the
// same way file_manager is.
type Tool struct {
	WorkspaceDir string
}

// New builds a pytest_runner tool confined to workspaceDir.
func New(workspaceDir string) (*Tool, error) {
	abs, err := filepath.Abs(workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("pytest_runner: resolve workspace dir: %w", err)
	}
	return &Tool{WorkspaceDir: abs}, nil
}

func (t *Tool) Name() string { return "pytest_runner" }

func (t *Tool) Description() string {
	return "Runs pytest on a specified test file and returns the output."
}

func (t *Tool) Schema() map[string]any { return tool.GenerateSchema[Args]() }

func (t *Tool) Execute(ctx context.Context, params map[string]any, agentID string) (map[string]any, error) {
	testFilePath, _ := params["test_file_path"].(string)
	if testFilePath == "" {
		return map[string]any{"error": "'test_file_path' parameter is required."}, nil
	}

	safe, err := t.safePath(testFilePath)
	if err != nil {
		return map[string]any{"error": err.Error()}, nil
	}
	if _, err := os.Stat(safe); err != nil {
		return map[string]any{"error": fmt.Sprintf("Test file not found at '%s'.", testFilePath)}, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "pytest", safe)
	cmd.Dir = t.WorkspaceDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return map[string]any{"error": "Pytest execution timed out after 60 seconds."}, nil
	}

	returnCode := 0
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		returnCode = exitErr.ExitCode()
	} else if runErr != nil {
		return map[string]any{"error": fmt.Sprintf("An unexpected error occurred while running pytest: %v", runErr)}, nil
	}

	status := "success"
	if returnCode != 0 {
		status = "failed"
	}

	return map[string]any{
		"status":      status,
		"return_code": returnCode,
		"stdout":      stdout.String(),
		"stderr":      stderr.String(),
	}, nil
}

// safePath mirrors filemanager's sandbox check so pytest_runner never
// executes a test file outside the agent's workspace.
func (t *Tool) safePath(path string) (string, error) {
	full := filepath.Clean(filepath.Join(t.WorkspaceDir, path))
	rel, err := filepath.Rel(t.WorkspaceDir, full)
	if err != nil || rel == ".." || len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator) {
		return "", fmt.Errorf("access denied: attempt to access files outside of the workspace")
	}
	return full, nil
}
