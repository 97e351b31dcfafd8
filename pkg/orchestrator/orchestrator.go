// Package orchestrator admits agents into the running society,
// schedules their execution, routes inter-agent messages and
// tool-forging requests, and collects the final result once every
// agent has reached a terminal state.
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/arcwright/agentos/pkg/agent"
	"github.com/arcwright/agentos/pkg/config"
	"github.com/arcwright/agentos/pkg/ledger"
	"github.com/arcwright/agentos/pkg/llm"
	"github.com/arcwright/agentos/pkg/toolbox"
	"github.com/arcwright/agentos/pkg/visualizer"
	"gopkg.in/yaml.v3"
)

// systemSenderID is the synthetic sender identity the orchestrator
// uses for messages it injects itself, rather than relaying on behalf
// of a real agent (tool-request denial/duplicate/fulfillment notices).
const systemSenderID = "AOS_SYSTEM"

// simulationTimeout bounds how long the scheduling loop runs before
// forcing a shutdown, regardless of agent progress.
const simulationTimeout = 600 * time.Second

// shutdownTimeout bounds how long the loop waits for still-running
// agent goroutines to notice cancellation after the run ends.
const shutdownTimeout = 10 * time.Second

// progressReportInterval is how often the loop logs an aggregate
// status line while agents are running.
const progressReportInterval = 30 * time.Second

// tickInterval is the scheduling loop's cooperative polling period.
const tickInterval = 1 * time.Second

// toolForgingAgentRole marks the special agent spawned to satisfy a
// request_new_tool call; it alone may use tools the disabled-tools
// list would otherwise filter out, so it can reach code_executor and
// file_manager to write the new tool's source.
const toolForgingAgentRole = "Tool-Forging Agent"

// record is everything the orchestrator tracks about one admitted
// agent beyond the Agent struct itself.
type record struct {
	agent     *agent.Agent
	workspace string
	done      chan struct{}
}

// Orchestrator owns the map of every admitted agent, their mailboxes,
// and the scheduling loop that drives them all to completion.
type Orchestrator struct {
	ledger *ledger.Ledger
	cfg    config.SystemConfig
	llmFn  func(role string) (llm.Adapter, llm.CallConfig)
	hub    *visualizer.Hub
	logger *slog.Logger

	mu                   sync.Mutex
	agents               map[string]*record
	mailboxes            map[string]*Mailbox
	pendingToolRequests  map[string]string // requester agent ID -> description
	startedAt            time.Time
	lastProgressReportAt time.Time
}

// New constructs an Orchestrator. llmFn resolves the adapter and call
// configuration a newly admitted agent should use; it exists so the
// orchestrator never has to know about provider wiring directly.
func New(led *ledger.Ledger, cfg config.SystemConfig, llmFn func(role string) (llm.Adapter, llm.CallConfig), hub *visualizer.Hub, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		ledger:              led,
		cfg:                 cfg,
		llmFn:               llmFn,
		hub:                 hub,
		logger:              logger.With("component", "orchestrator"),
		agents:              make(map[string]*record),
		mailboxes:           make(map[string]*Mailbox),
		pendingToolRequests: make(map[string]string),
	}
}

// SpawnFounderAgent admits the root agent for objective.
func (o *Orchestrator) SpawnFounderAgent(ctx context.Context, objective string, budget float64) (string, error) {
	o.logger.Info("spawning founder agent", "objective", objective)
	return o.createAgent(ctx, agent.Config{
		Role:                  "Founder",
		Task:                  fmt.Sprintf("Oversee the project to achieve the primary objective: %s", objective),
		Budget:                budget,
		MaxSubagents:          o.cfg.MaxAgents - 1,
		PricePerMillionInput:  o.cfg.PricePerMillionInputTokens,
		PricePerMillionOutput: o.cfg.PricePerMillionOutputTokens,
		SpawnCost:             o.cfg.SpawnCost,
		ToolUseCost:           o.cfg.ToolUseCost,
		AllowMessaging:        o.cfg.EnableMessaging,
		AllowAdvancedPlanning: o.cfg.EnableAdvPlanning,
	})
}

// SpawnAgent implements agent.Orchestrator: it admits a delegated
// sub-agent on behalf of spec.ParentID.
func (o *Orchestrator) SpawnAgent(ctx context.Context, spec agent.SpawnSpec) (string, error) {
	o.logger.Info("spawning delegated agent", "role", spec.Role, "parent", spec.ParentID)
	return o.createAgent(ctx, agent.Config{
		Role:                  spec.Role,
		Task:                  spec.Task,
		Budget:                spec.Budget,
		CompletionCriteria:    spec.CompletionCriteria,
		ParentID:              spec.ParentID,
		PricePerMillionInput:  o.cfg.PricePerMillionInputTokens,
		PricePerMillionOutput: o.cfg.PricePerMillionOutputTokens,
		SpawnCost:             o.cfg.SpawnCost,
		ToolUseCost:           o.cfg.ToolUseCost,
		AllowMessaging:        o.cfg.EnableMessaging,
		AllowAdvancedPlanning: o.cfg.EnableAdvPlanning,
	})
}

// createAgent is the shared admission path: ID generation, workspace
// creation, toolbox construction, and registration, all performed
// while holding o.mu so the max-agents check and the registration it
// guards stay atomic.
func (o *Orchestrator) createAgent(ctx context.Context, cfg agent.Config) (string, error) {
	o.mu.Lock()
	if len(o.agents) >= o.cfg.MaxAgents {
		o.mu.Unlock()
		return "", agent.ErrMaxAgentsReached
	}

	id, err := newAgentID()
	if err != nil {
		o.mu.Unlock()
		return "", fmt.Errorf("orchestrator: generate agent id: %w", err)
	}

	workspace := filepath.Join(o.cfg.OutputBase, "workspace", id)
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		o.mu.Unlock()
		return "", fmt.Errorf("orchestrator: create workspace: %w", err)
	}
	deliveryDir := filepath.Join(o.cfg.OutputBase, o.cfg.DeliveryFolder)

	tb, err := toolbox.New(toolbox.Config{
		WorkspaceDir:    workspace,
		DeliveryDir:     deliveryDir,
		PluginsDir:      o.cfg.PluginsDir,
		Sender:          o,
		EnableMessaging: o.cfg.EnableMessaging,
		Logger:          o.logger,
	})
	if err != nil {
		o.mu.Unlock()
		return "", fmt.Errorf("orchestrator: build toolbox: %w", err)
	}

	adapter, llmCfg := o.llmFn(cfg.Role)
	ag := agent.New(id, cfg, o.ledger, tb, o, adapter, llmCfg, o.logger)

	o.agents[id] = &record{agent: ag, workspace: workspace, done: make(chan struct{})}
	o.mailboxes[id] = newMailbox()
	o.mu.Unlock()

	if err := ag.Initialize(ctx); err != nil {
		return "", fmt.Errorf("orchestrator: initialize agent %s: %w", id, err)
	}

	o.logger.Info("agent admitted", "agent", id, "role", cfg.Role, "workspace", workspace)
	if o.hub != nil {
		o.hub.BroadcastAgentCreated(visualizer.Node{
			ID: id, Label: cfg.Role, Title: cfg.Task, State: string(agent.StateActive),
		}, cfg.ParentID)
	}
	return id, nil
}

func newAgentID() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Run drives every admitted agent to completion, ticking once per
// second: starting goroutines for newly active agents, reporting
// aggregate progress, and stopping on either total completion or the
// simulation timeout.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	o.logger.Info("starting orchestrator event loop")
	o.startedAt = time.Now()
	o.lastProgressReportAt = o.startedAt

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := make(map[string]bool)

loop:
	for {
		o.processSystemEvents(runCtx)
		o.startNewAgentTasks(runCtx, started)

		if o.allAgentsTerminal() {
			o.logger.Info("all agent tasks have completed, exiting orchestrator loop")
			break
		}
		if time.Since(o.startedAt) > simulationTimeout {
			o.logger.Warn("system-wide timeout reached, shutting down")
			break
		}
		o.reportProgressIfNeeded()

		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}
	}

	cancel()
	o.awaitShutdown(started)

	o.logger.Info("orchestrator event loop finished, collecting results")
	return o.collectResults(), nil
}

func (o *Orchestrator) startNewAgentTasks(ctx context.Context, started map[string]bool) {
	o.mu.Lock()
	var toStart []*record
	for id, rec := range o.agents {
		if !started[id] && rec.agent.State() == agent.StateActive {
			started[id] = true
			toStart = append(toStart, rec)
		}
	}
	o.mu.Unlock()

	for _, rec := range toStart {
		o.logger.Info("starting task for newly spawned agent", "agent", rec.agent.ID)
		go o.runAgent(ctx, rec)
	}
}

func (o *Orchestrator) runAgent(ctx context.Context, rec *record) {
	defer close(rec.done)
	prevState := rec.agent.State()
	id, finalState := rec.agent.Run(ctx)
	if finalState != prevState && o.hub != nil {
		o.hub.BroadcastAgentStateChanged(id, string(finalState))
	}
}

func (o *Orchestrator) allAgentsTerminal() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.agents) == 0 {
		return false
	}
	for _, rec := range o.agents {
		if rec.agent.State() == agent.StateActive {
			return false
		}
	}
	return true
}

func (o *Orchestrator) reportProgressIfNeeded() {
	if time.Since(o.lastProgressReportAt) <= progressReportInterval {
		return
	}
	active := 0
	o.mu.Lock()
	total := len(o.agents)
	for _, rec := range o.agents {
		if rec.agent.State() == agent.StateActive {
			active++
		}
	}
	o.mu.Unlock()
	o.logger.Info("progress report", "active_agents", active, "total_agents", total,
		"total_cost", o.ledger.TotalExpenditure())
	o.lastProgressReportAt = time.Now()
}

// awaitShutdown waits for every started agent goroutine to notice
// ctx cancellation and exit, up to shutdownTimeout.
func (o *Orchestrator) awaitShutdown(started map[string]bool) {
	o.mu.Lock()
	var pending []*record
	for id := range started {
		if rec, ok := o.agents[id]; ok {
			pending = append(pending, rec)
		}
	}
	o.mu.Unlock()
	if len(pending) == 0 {
		return
	}

	o.logger.Info("cancelling remaining tasks", "count", len(pending))
	deadline := time.After(shutdownTimeout)
	for _, rec := range pending {
		select {
		case <-rec.done:
		case <-deadline:
			o.logger.Warn("some tasks did not stop gracefully within the shutdown timeout")
			return
		}
	}
}

// Result is the outcome of one complete orchestrator run.
type Result struct {
	TotalAgents int                       `json:"total_agents"`
	AgentStates map[string]AgentStateInfo `json:"agent_states"`
	Hierarchy   map[string][]string       `json:"hierarchy"`
	TotalCost   float64                   `json:"total_cost"`
}

// AgentStateInfo is the per-agent slice of the final result report.
type AgentStateInfo struct {
	State        string   `json:"state"`
	Role         string   `json:"role"`
	Parent       string   `json:"parent,omitempty"`
	Subagents    []string `json:"subagents,omitempty"`
	FinalBalance float64  `json:"final_balance"`
}

func (o *Orchestrator) collectResults() Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	result := Result{
		TotalAgents: len(o.agents),
		AgentStates: make(map[string]AgentStateInfo, len(o.agents)),
		Hierarchy:   make(map[string][]string),
		TotalCost:   o.ledger.TotalExpenditure(),
	}
	for id, rec := range o.agents {
		result.AgentStates[id] = AgentStateInfo{
			State:        string(rec.agent.State()),
			Role:         rec.agent.Config.Role,
			Parent:       rec.agent.Config.ParentID,
			FinalBalance: o.ledger.Balance(id),
		}
		if parent := rec.agent.Config.ParentID; parent != "" {
			result.Hierarchy[parent] = append(result.Hierarchy[parent], id)
		}
	}
	return result
}

// Messages implements agent.Orchestrator: it drains the requesting
// agent's mailbox.
func (o *Orchestrator) Messages(ctx context.Context, agentID string) []agent.Message {
	o.mu.Lock()
	mb, ok := o.mailboxes[agentID]
	o.mu.Unlock()
	if !ok {
		return nil
	}
	return mb.Drain()
}

// SendMessage implements messaging.Sender: it delivers content from
// senderID to recipientID's mailbox, returning false if recipientID
// is not a known agent.
func (o *Orchestrator) SendMessage(ctx context.Context, senderID, recipientID string, content map[string]any) bool {
	o.mu.Lock()
	mb, ok := o.mailboxes[recipientID]
	o.mu.Unlock()
	if !ok {
		o.logger.Warn("message delivery failed: unknown recipient", "from", senderID, "to", recipientID)
		return false
	}
	mb.Send(agent.Message{From: senderID, Content: content})
	return true
}

// AgentState implements agent.Orchestrator.
func (o *Orchestrator) AgentState(agentID string) (agent.State, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.agents[agentID]
	if !ok {
		return "", false
	}
	return rec.agent.State(), true
}

// Snapshot implements visualizer.Snapshotter.
func (o *Orchestrator) Snapshot() ([]visualizer.Node, []visualizer.Edge) {
	o.mu.Lock()
	defer o.mu.Unlock()
	nodes := make([]visualizer.Node, 0, len(o.agents))
	var edges []visualizer.Edge
	for id, rec := range o.agents {
		nodes = append(nodes, visualizer.Node{
			ID:    id,
			Label: rec.agent.Config.Role,
			Title: rec.agent.Config.Task,
			State: string(rec.agent.State()),
		})
		if parent := rec.agent.Config.ParentID; parent != "" {
			edges = append(edges, visualizer.Edge{From: parent, To: id})
		}
	}
	return nodes, edges
}

var (
	errUnknownRequester     = errors.New("orchestrator: unknown tool-forging requester")
	errToolCreationDisabled = errors.New("orchestrator: tool creation is disabled for this run")
	errDuplicateToolRequest = errors.New("orchestrator: requester already has a pending tool request")
)

// HandleToolRequest implements agent.Orchestrator: it records the
// request and admits a Tool-Forging Agent whose job is to write the
// new tool and deploy it via DeployTool. Matches the three-branch
// protocol: denied when the capability is off, duplicate when the
// requester already has one outstanding, otherwise registered and
// dispatched.
func (o *Orchestrator) HandleToolRequest(ctx context.Context, requesterID, description string) error {
	if !o.cfg.EnableToolCreation {
		o.sendSystemMessage(ctx, requesterID, "tool_request_denied")
		return errToolCreationDisabled
	}

	o.mu.Lock()
	requester, ok := o.agents[requesterID]
	if !ok {
		o.mu.Unlock()
		return errUnknownRequester
	}
	if _, duplicate := o.pendingToolRequests[requesterID]; duplicate {
		o.mu.Unlock()
		o.sendSystemMessage(ctx, requesterID, "tool_request_duplicate")
		return errDuplicateToolRequest
	}
	o.pendingToolRequests[requesterID] = description
	o.mu.Unlock()

	task := fmt.Sprintf(
		"Write a new tool to satisfy this request from agent %s: %q. "+
			"Use code_executor to write a Python script implementing the tool's "+
			"behavior, reading a JSON object with 'params' and 'agent_id' keys from "+
			"stdin and writing a JSON result object to stdout. Then use file_manager "+
			"to save it, and send the requester a message with "+
			"{\"status\": \"tool_creation_success\", \"tool_code_path\": <path>} to "+
			"hand it off for deployment.",
		requesterID, description,
	)
	_, err := o.createAgent(ctx, agent.Config{
		Role:                  toolForgingAgentRole,
		Task:                  task,
		Budget:                requester.agent.Config.Budget * 0.1,
		ParentID:              requesterID,
		PricePerMillionInput:  o.cfg.PricePerMillionInputTokens,
		PricePerMillionOutput: o.cfg.PricePerMillionOutputTokens,
		SpawnCost:             o.cfg.SpawnCost,
		ToolUseCost:           o.cfg.ToolUseCost,
	})
	if err != nil {
		o.mu.Lock()
		delete(o.pendingToolRequests, requesterID)
		o.mu.Unlock()
	}
	return err
}

// sendSystemMessage delivers a status-only notification from
// systemSenderID to recipientID, logging (rather than failing) if the
// recipient's mailbox has since disappeared.
func (o *Orchestrator) sendSystemMessage(ctx context.Context, recipientID, status string) {
	if !o.SendMessage(ctx, systemSenderID, recipientID, map[string]any{"status": status}) {
		o.logger.Warn("failed to deliver system message", "recipient", recipientID, "status", status)
	}
}

// processSystemEvents implements §4.3.3: it scans every mailbox for a
// tool-creation-success message from a Tool-Forging Agent, deploys the
// forged tool and marks the forger Completed, and re-inserts every
// other message at the front of its mailbox in its original order. It
// runs first in every scheduling tick.
func (o *Orchestrator) processSystemEvents(ctx context.Context) {
	o.mu.Lock()
	ids := make([]string, 0, len(o.mailboxes))
	for id := range o.mailboxes {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, id := range ids {
		o.processMailboxSystemEvents(ctx, id)
	}
}

func (o *Orchestrator) processMailboxSystemEvents(ctx context.Context, mailboxID string) {
	o.mu.Lock()
	mb, ok := o.mailboxes[mailboxID]
	o.mu.Unlock()
	if !ok {
		return
	}

	messages := mb.Drain()
	if len(messages) == 0 {
		return
	}

	var kept []agent.Message
	for _, msg := range messages {
		if !o.isToolCreationSuccess(msg) {
			kept = append(kept, msg)
			continue
		}
		o.handleToolCreationSuccess(ctx, msg)
	}
	mb.Requeue(kept)
}

// isToolCreationSuccess reports whether msg is a system message: sent
// by a Tool-Forging Agent with status "tool_creation_success".
func (o *Orchestrator) isToolCreationSuccess(msg agent.Message) bool {
	status, _ := msg.Content["status"].(string)
	if status != "tool_creation_success" {
		return false
	}
	o.mu.Lock()
	forger, ok := o.agents[msg.From]
	o.mu.Unlock()
	return ok && forger.agent.Config.Role == toolForgingAgentRole
}

func (o *Orchestrator) handleToolCreationSuccess(ctx context.Context, msg agent.Message) {
	forgerID := msg.From
	toolPath, _ := msg.Content["tool_code_path"].(string)
	if toolPath == "" {
		o.logger.Error("tool creation success message missing tool_code_path", "forger", forgerID)
		return
	}

	o.mu.Lock()
	forger, ok := o.agents[forgerID]
	description := ""
	if ok {
		description = o.pendingToolRequests[forger.agent.Config.ParentID]
	}
	o.mu.Unlock()
	if !ok {
		o.logger.Error("tool creation success from unknown forger", "forger", forgerID)
		return
	}
	requesterID := forger.agent.Config.ParentID

	sourcePath := filepath.Join(forger.workspace, toolPath)
	if err := o.DeployTool(forgerID, requesterID, sourcePath, description); err != nil {
		o.logger.Error("failed to deploy forged tool", "forger", forgerID, "error", err)
		return
	}

	forger.agent.MarkCompleted()
	if o.hub != nil {
		o.hub.BroadcastAgentStateChanged(forgerID, string(agent.StateCompleted))
	}

	o.sendSystemMessage(ctx, requesterID, "tool_request_fulfilled")
}

// DeployTool installs a newly forged tool's source file into the
// plugins directory, writes a manifest describing it, and refreshes
// every live agent's toolbox so the new capability becomes available
// system-wide. It clears the originating pending tool request, keyed
// by the requester that raised it (not the forger that fulfilled it).
func (o *Orchestrator) DeployTool(forgerID, requesterID, sourcePath, description string) error {
	o.mu.Lock()
	delete(o.pendingToolRequests, requesterID)
	var toolboxes []*toolbox.Toolbox
	for _, rec := range o.agents {
		toolboxes = append(toolboxes, rec.agent.Toolbox())
	}
	pluginsDir := o.cfg.PluginsDir
	o.mu.Unlock()

	if err := os.MkdirAll(pluginsDir, 0o755); err != nil {
		return fmt.Errorf("orchestrator: create plugins dir: %w", err)
	}

	base := filepath.Base(sourcePath)
	deployedName := fmt.Sprintf("generated_%s_%s", forgerID, base)
	deployedScript := filepath.Join(pluginsDir, deployedName)
	if err := copyFile(sourcePath, deployedScript); err != nil {
		return fmt.Errorf("orchestrator: deploy tool script: %w", err)
	}

	toolName := fmt.Sprintf("generated_%s_%s", forgerID, stripExt(base))
	manifestYAML, err := buildGeneratedToolManifest(toolName, description, deployedName)
	if err != nil {
		return fmt.Errorf("orchestrator: build tool manifest: %w", err)
	}
	manifestPath := filepath.Join(pluginsDir, stripExt(deployedName)+".yaml")
	if err := os.WriteFile(manifestPath, []byte(manifestYAML), 0o644); err != nil {
		return fmt.Errorf("orchestrator: write tool manifest: %w", err)
	}

	for _, tb := range toolboxes {
		if err := tb.Refresh(); err != nil {
			o.logger.Error("failed to refresh toolbox after tool deployment", "error", err)
		}
	}
	o.logger.Info("deployed new tool", "forger", forgerID, "requester", requesterID, "manifest", manifestPath)
	return nil
}

// generatedToolManifest mirrors the shape toolbox's plugin loader
// expects from a manifest file (see pkg/toolbox's unexported manifest
// type): a forged tool gets a generic, permissive parameter schema
// since its actual shape is only known to the script itself.
type generatedToolManifest struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Schema      map[string]any `yaml:"schema"`
	Entrypoint  string         `yaml:"entrypoint"`
	Protected   bool           `yaml:"protected"`
}

func buildGeneratedToolManifest(name, description, entrypoint string) (string, error) {
	m := generatedToolManifest{
		Name:        name,
		Description: description,
		Entrypoint:  entrypoint,
		Schema: map[string]any{
			"type":                 "object",
			"additionalProperties": true,
		},
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func stripExt(name string) string {
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)]
}
