// Package filemanager implements the file_manager built-in tool: a
// sandboxed read/write/list/copy_to_delivery surface confined to a
// single agent's workspace directory.
package filemanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/arcwright/agentos/pkg/tool"
)

const (
	OpWrite          = "write"
	OpRead           = "read"
	OpList           = "list"
	OpCopyToDelivery = "copy_to_delivery"
)

// ErrPermissionDenied is returned when a requested path resolves
// outside the agent's workspace root.
var ErrPermissionDenied = errors.New("file_manager: access denied, path escapes workspace root")

// Args is the tool's single parameter struct; which fields are
// required depends on Operation, enforced in Execute rather than the
// schema (the schema only names operation as universally required,
// matching the original's get_schema).
type Args struct {
	Operation    string `json:"operation" jsonschema:"required,description=The file operation to perform.,enum=write,enum=read,enum=list,enum=copy_to_delivery"`
	Path         string `json:"path,omitempty" jsonschema:"description=Relative path within the workspace."`
	Content      string `json:"content,omitempty" jsonschema:"description=Content to write. Required for 'write'."`
	DeliveryName string `json:"delivery_name,omitempty" jsonschema:"description=Optional name for the file in the delivery folder, used with 'copy_to_delivery'."`
}

// Tool is the file_manager built-in. WorkspaceDir and DeliveryDir are
// per-agent: the toolbox constructs one instance of Tool for each
// agent it admits.
type Tool struct {
	WorkspaceDir string
	DeliveryDir  string
}

// New returns a file_manager tool confined to workspaceDir, optionally
// able to deliver into deliveryDir.
func New(workspaceDir, deliveryDir string) (*Tool, error) {
	abs, err := filepath.Abs(workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("file_manager: resolve workspace dir: %w", err)
	}
	return &Tool{WorkspaceDir: abs, DeliveryDir: deliveryDir}, nil
}

func (t *Tool) Name() string { return "file_manager" }

func (t *Tool) Description() string {
	return "Manages files in a sandboxed workspace. Operations: write, read, list, copy_to_delivery."
}

func (t *Tool) Schema() map[string]any { return tool.GenerateSchema[Args]() }

// Protected marks file_manager as un-disableable: without it a worker
// has no way to produce or deliver artifacts.
func (t *Tool) Protected() bool { return true }

func (t *Tool) Execute(ctx context.Context, params map[string]any, agentID string) (map[string]any, error) {
	op, _ := params["operation"].(string)
	path, _ := params["path"].(string)
	content, hasContent := params["content"].(string)
	deliveryName, _ := params["delivery_name"].(string)

	switch op {
	case OpWrite:
		if path == "" || !hasContent {
			return map[string]any{"error": "'path' and 'content' are required for 'write'.", "code": "INVALID_PARAMETERS"}, nil
		}
		return t.write(path, content)
	case OpRead:
		if path == "" {
			return map[string]any{"error": "'path' is required for 'read'.", "code": "INVALID_PARAMETERS"}, nil
		}
		return t.read(path)
	case OpList:
		if path == "" {
			path = "."
		}
		return t.list(path)
	case OpCopyToDelivery:
		if path == "" {
			return map[string]any{"error": "'path' is required for 'copy_to_delivery'.", "code": "INVALID_PARAMETERS"}, nil
		}
		if deliveryName == "" {
			deliveryName = filepath.Base(path)
		}
		return t.copyToDelivery(path, deliveryName)
	default:
		return map[string]any{"error": fmt.Sprintf("unsupported operation: %s", op), "code": "INVALID_PARAMETERS"}, nil
	}
}

// safePath resolves path relative to the workspace root and rejects
// any resolution that escapes it.
func (t *Tool) safePath(path string) (string, error) {
	full := filepath.Clean(filepath.Join(t.WorkspaceDir, path))
	if full != t.WorkspaceDir && !pathHasPrefix(full, t.WorkspaceDir) {
		return "", ErrPermissionDenied
	}
	return full, nil
}

func pathHasPrefix(full, root string) bool {
	rel, err := filepath.Rel(root, full)
	if err != nil {
		return false
	}
	return rel != ".." && !(len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator))
}

func (t *Tool) write(path, content string) (map[string]any, error) {
	safe, err := t.safePath(path)
	if err != nil {
		return map[string]any{"error": err.Error(), "code": "PERMISSION_DENIED"}, nil
	}
	if err := os.MkdirAll(filepath.Dir(safe), 0o755); err != nil {
		return map[string]any{"error": err.Error(), "code": "UNKNOWN_ERROR"}, nil
	}
	if err := os.WriteFile(safe, []byte(content), 0o644); err != nil {
		return map[string]any{"error": err.Error(), "code": "UNKNOWN_ERROR"}, nil
	}
	return map[string]any{"status": "success", "message": fmt.Sprintf("File '%s' written successfully.", path)}, nil
}

func (t *Tool) read(path string) (map[string]any, error) {
	safe, err := t.safePath(path)
	if err != nil {
		return map[string]any{"error": err.Error(), "code": "PERMISSION_DENIED"}, nil
	}
	info, statErr := os.Stat(safe)
	if statErr != nil {
		return map[string]any{"error": fmt.Sprintf("File not found: %s", path), "code": "FILE_NOT_FOUND"}, nil
	}
	if info.IsDir() {
		return map[string]any{"error": fmt.Sprintf("Path is a directory, not a file: %s", path), "code": "IS_A_DIRECTORY"}, nil
	}
	data, err := os.ReadFile(safe)
	if err != nil {
		return map[string]any{"error": err.Error(), "code": "UNKNOWN_ERROR"}, nil
	}
	return map[string]any{"status": "success", "path": path, "content": string(data)}, nil
}

func (t *Tool) list(path string) (map[string]any, error) {
	safe, err := t.safePath(path)
	if err != nil {
		return map[string]any{"error": err.Error(), "code": "PERMISSION_DENIED"}, nil
	}
	entries, err := os.ReadDir(safe)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("Directory not found: %s", path), "code": "DIRECTORY_NOT_FOUND"}, nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return map[string]any{"status": "success", "path": path, "items": names}, nil
}

func (t *Tool) copyToDelivery(path, deliveryName string) (map[string]any, error) {
	if t.DeliveryDir == "" {
		return map[string]any{"error": "Delivery folder not configured", "code": "DELIVERY_NOT_CONFIGURED"}, nil
	}
	source, err := t.safePath(path)
	if err != nil {
		return map[string]any{"error": err.Error(), "code": "PERMISSION_DENIED"}, nil
	}
	if _, err := os.Stat(source); err != nil {
		return map[string]any{"error": fmt.Sprintf("File not found: %s", path), "code": "FILE_NOT_FOUND"}, nil
	}

	dest := filepath.Join(t.DeliveryDir, deliveryName)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return map[string]any{"error": err.Error(), "code": "UNKNOWN_ERROR"}, nil
	}
	if err := copyFile(source, dest); err != nil {
		return map[string]any{"error": err.Error(), "code": "UNKNOWN_ERROR"}, nil
	}

	return map[string]any{
		"status":        "success",
		"message":       fmt.Sprintf("File '%s' copied to delivery as '%s'.", path, deliveryName),
		"delivery_path": dest,
	}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// ListDeliverableNames filters names, returning those whose extension
// matches the auto-delivery hook's tracked set.
func ListDeliverableNames(names []string) []string {
	exts := map[string]bool{
		".html": true, ".css": true, ".js": true,
		".py": true, ".txt": true, ".json": true, ".xml": true,
	}
	var out []string
	for _, n := range names {
		if exts[filepath.Ext(n)] {
			out = append(out, n)
		}
	}
	return out
}
