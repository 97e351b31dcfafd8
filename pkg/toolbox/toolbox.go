// Package toolbox implements the per-agent tool registry: the shared
// library of capabilities an agent can invoke by name. Each agent
// that is admitted gets its own Toolbox instance, sandboxed to its
// own workspace directory, built from the six built-in tools plus
// whatever plugins are discovered in the plugins directory.
package toolbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"strings"
	"sync"

	"github.com/arcwright/agentos/pkg/tool"
	"github.com/arcwright/agentos/pkg/tools/apiclient"
	"github.com/arcwright/agentos/pkg/tools/codeexecutor"
	"github.com/arcwright/agentos/pkg/tools/filemanager"
	"github.com/arcwright/agentos/pkg/tools/messaging"
	"github.com/arcwright/agentos/pkg/tools/pytestrunner"
	"github.com/arcwright/agentos/pkg/tools/websearch"
	"gopkg.in/yaml.v3"
)

// Config wires everything a Toolbox needs to build its tool set for
// one agent.
type Config struct {
	WorkspaceDir    string
	DeliveryDir     string
	PluginsDir      string
	SearXNGBaseURL  string
	Sender          messaging.Sender
	DisabledTools   []string
	EnableMessaging bool
	Logger          *slog.Logger
}

// Toolbox is one agent's registry of callable tools.
type Toolbox struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.RWMutex
	tools map[string]tool.Tool
}

// New constructs a Toolbox and runs its initial discovery pass.
func New(cfg Config) (*Toolbox, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	tb := &Toolbox{cfg: cfg, logger: cfg.Logger, tools: make(map[string]tool.Tool)}
	if err := tb.Refresh(); err != nil {
		return nil, err
	}
	return tb, nil
}

// Refresh re-runs discovery: built-ins are rebuilt, the plugins
// directory is re-scanned, and the disabled-tools filter (with the
// protected-tool exemption) is re-applied. Any tool registered by a
// previous pass that is no longer discovered is dropped, matching the
// "preserved only implicitly by rediscovery" semantics of the system
// this toolbox implements.
func (tb *Toolbox) Refresh() error {
	fresh := make(map[string]tool.Tool)

	builtins, err := tb.loadBuiltinTools()
	if err != nil {
		return err
	}
	for _, t := range builtins {
		tb.register(fresh, t)
	}

	for _, t := range tb.discoverPlugins() {
		tb.register(fresh, t)
	}

	disabled := make(map[string]bool, len(tb.cfg.DisabledTools))
	for _, n := range tb.cfg.DisabledTools {
		disabled[n] = true
	}
	for name, t := range fresh {
		if !disabled[name] {
			continue
		}
		if p, ok := t.(tool.Protected); ok && p.Protected() {
			continue
		}
		delete(fresh, name)
	}

	tb.mu.Lock()
	tb.tools = fresh
	tb.mu.Unlock()
	return nil
}

func (tb *Toolbox) register(into map[string]tool.Tool, t tool.Tool) {
	if _, exists := into[t.Name()]; exists {
		tb.logger.Warn("tool already registered, overwriting", "tool", t.Name())
	}
	into[t.Name()] = t
	tb.logger.Debug("tool registered", "tool", t.Name())
}

func (tb *Toolbox) loadBuiltinTools() ([]tool.Tool, error) {
	fm, err := filemanager.New(tb.cfg.WorkspaceDir, tb.cfg.DeliveryDir)
	if err != nil {
		return nil, fmt.Errorf("toolbox: build file_manager: %w", err)
	}
	pr, err := pytestrunner.New(tb.cfg.WorkspaceDir)
	if err != nil {
		return nil, fmt.Errorf("toolbox: build pytest_runner: %w", err)
	}

	builtins := []tool.Tool{
		fm,
		codeexecutor.New(),
		apiclient.New(),
		websearch.New(tb.cfg.SearXNGBaseURL),
		pr,
	}
	if tb.cfg.EnableMessaging {
		builtins = append(builtins, messaging.New(tb.cfg.Sender))
	}
	return builtins, nil
}

// Tool returns the named tool and whether it is currently registered.
func (tb *Toolbox) Tool(name string) (tool.Tool, bool) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	t, ok := tb.tools[name]
	return t, ok
}

// Names lists every currently registered tool name.
func (tb *Toolbox) Names() []string {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	names := make([]string, 0, len(tb.tools))
	for n := range tb.tools {
		names = append(names, n)
	}
	return names
}

// Definitions returns the Definition for every registered tool, the
// shape an LLM prompt presents to the model as its available actions.
func (tb *Toolbox) Definitions() []tool.Definition {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	defs := make([]tool.Definition, 0, len(tb.tools))
	for _, t := range tb.tools {
		defs = append(defs, tool.ToDefinition(t))
	}
	return defs
}

// Execute looks up name and invokes it with params on behalf of
// agentID. An unknown tool name and a panicking tool implementation
// both surface as a well-formed error result rather than propagating,
// since a misbehaving tool must never take down an agent's think/act
// loop.
func (tb *Toolbox) Execute(ctx context.Context, name string, params map[string]any, agentID string) (result map[string]any, err error) {
	t, ok := tb.Tool(name)
	if !ok {
		return map[string]any{"error": fmt.Sprintf("Tool %s not found", name), "code": "TOOL_NOT_FOUND"}, nil
	}

	defer func() {
		if r := recover(); r != nil {
			tb.logger.Error("tool panicked", "tool", name, "agent", agentID, "panic", r)
			result = map[string]any{"error": "tool execution failed", "code": "EXECUTION_FAILED", "details": fmt.Sprintf("%v", r)}
			err = nil
		}
	}()

	result, execErr := t.Execute(ctx, params, agentID)
	if execErr != nil {
		tb.logger.Error("tool execution failed", "tool", name, "agent", agentID, "error", execErr)
		return map[string]any{"error": "tool execution failed", "code": "EXECUTION_FAILED", "details": execErr.Error()}, nil
	}
	tb.logger.Debug("tool executed", "tool", name, "agent", agentID)
	return result, nil
}

// manifest is the static, declarative description of a plugin tool
// read from the plugins directory, used instead of importing and
// instantiating arbitrary discovered classes (not a shape Go's static
// type system supports at runtime the way Python's class discovery
// does).
type manifest struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Schema      map[string]any `yaml:"schema"`
	Entrypoint  string         `yaml:"entrypoint"`
	Protected   bool           `yaml:"protected"`
}

// discoverPlugins scans the plugins directory for manifest files
// (*.yaml) and, separately, Go plugin shared objects (*.so). A
// manifest's entrypoint is always a subprocess-executed script
// (mirroring code_executor's sandboxing); a .so is loaded via
// plugin.Open and must export a `New() tool.Tool` symbol. Either kind
// that fails to load is logged and skipped rather than aborting
// discovery for the rest of the directory.
func (tb *Toolbox) discoverPlugins() []tool.Tool {
	if tb.cfg.PluginsDir == "" {
		return nil
	}
	entries, err := os.ReadDir(tb.cfg.PluginsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			tb.logger.Warn("toolbox: failed to scan plugins directory", "dir", tb.cfg.PluginsDir, "error", err)
		}
		return nil
	}

	var plugins []tool.Tool
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(tb.cfg.PluginsDir, e.Name())
		switch {
		case strings.HasSuffix(e.Name(), ".yaml") || strings.HasSuffix(e.Name(), ".yml"):
			t, err := tb.loadManifestPlugin(path)
			if err != nil {
				tb.logger.Error("toolbox: failed to load plugin manifest", "path", path, "error", err)
				continue
			}
			plugins = append(plugins, t)
		case strings.HasSuffix(e.Name(), ".so"):
			t, err := tb.loadGoPlugin(path)
			if err != nil {
				tb.logger.Error("toolbox: failed to load Go plugin", "path", path, "error", err)
				continue
			}
			plugins = append(plugins, t)
		}
	}
	return plugins
}

func (tb *Toolbox) loadManifestPlugin(path string) (tool.Tool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Name == "" || m.Entrypoint == "" {
		return nil, fmt.Errorf("manifest missing required name/entrypoint")
	}
	entrypoint := m.Entrypoint
	if !filepath.IsAbs(entrypoint) {
		entrypoint = filepath.Join(filepath.Dir(path), entrypoint)
	}
	return newScriptTool(m, entrypoint), nil
}

// loadGoPlugin loads a natively-compiled plugin tool. Go's plugin
// package only works on Linux/macOS with cgo-enabled builds; a
// deployment that cannot support it simply never produces a .so here,
// so this path degrades gracefully rather than needing a build tag.
func (tb *Toolbox) loadGoPlugin(path string) (tool.Tool, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	sym, err := p.Lookup("New")
	if err != nil {
		return nil, err
	}
	ctor, ok := sym.(func() tool.Tool)
	if !ok {
		return nil, fmt.Errorf("plugin %s does not export func New() tool.Tool", path)
	}
	return ctor(), nil
}
