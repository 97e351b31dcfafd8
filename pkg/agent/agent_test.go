package agent

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/arcwright/agentos/pkg/ledger"
	"github.com/arcwright/agentos/pkg/llm"
	"github.com/arcwright/agentos/pkg/toolbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction_WellFormed(t *testing.T) {
	thought := `{"reasoning": "because", "action": "USE_TOOL", "tool": "file_manager", "parameters": {"operation": "list"}}`
	a := ParseAction(thought)
	assert.Equal(t, ActionTypeUseTool, a.Type)
	assert.Equal(t, "file_manager", a.Tool)
	assert.Equal(t, "list", a.Parameters["operation"])
}

func TestParseAction_ToolAsObject(t *testing.T) {
	thought := `{"action": "use_tool", "tool": {"name": "web_search"}, "details": {"parameters": {"query": "go"}}}`
	a := ParseAction(thought)
	assert.Equal(t, "web_search", a.Tool)
	assert.Equal(t, "go", a.Parameters["query"])
}

func TestParseAction_ProseWrappedJSON(t *testing.T) {
	thought := "Here is my decision:\n```json\n{\"action\": \"complete\"}\n```\nDone."
	a := ParseAction(thought)
	assert.Equal(t, ActionTypeComplete, a.Type)
}

func TestParseAction_NoJSON(t *testing.T) {
	a := ParseAction("I don't know what to do")
	assert.Equal(t, ActionTypeError, a.Type)
	assert.Contains(t, a.Error, "no JSON object found")
}

func TestParseAction_MalformedJSON(t *testing.T) {
	a := ParseAction(`{"action": "complete"`)
	assert.Equal(t, ActionTypeError, a.Type)
	assert.Contains(t, a.Error, "JSON parse failed")
}

func TestCanonicalEqual(t *testing.T) {
	a := map[string]any{"b": 1, "a": "x"}
	b := map[string]any{"a": "x", "b": 1}
	assert.True(t, canonicalEqual(a, b))

	c := map[string]any{"a": "x", "b": 2}
	assert.False(t, canonicalEqual(a, c))
}

// fakeOrchestrator is a minimal Orchestrator test double.
type fakeOrchestrator struct {
	messages   map[string][]Message
	states     map[string]State
	spawned    []SpawnSpec
	spawnErr   error
	nextID     string
}

func (f *fakeOrchestrator) Messages(ctx context.Context, agentID string) []Message {
	return f.messages[agentID]
}

func (f *fakeOrchestrator) SpawnAgent(ctx context.Context, spec SpawnSpec) (string, error) {
	if f.spawnErr != nil {
		return "", f.spawnErr
	}
	f.spawned = append(f.spawned, spec)
	return f.nextID, nil
}

func (f *fakeOrchestrator) HandleToolRequest(ctx context.Context, requesterID, description string) error {
	return nil
}

func (f *fakeOrchestrator) AgentState(agentID string) (State, bool) {
	st, ok := f.states[agentID]
	return st, ok
}

// fakeLLM is a scripted llm.Adapter test double.
type fakeLLM struct {
	text          string
	inTok, outTok int
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, cfg llm.CallConfig) (string, int, int, error) {
	return f.text, f.inTok, f.outTok, nil
}

func newTestAgent(t *testing.T, cfg Config, orch Orchestrator, adapter llm.Adapter) (*Agent, *ledger.Ledger) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	led := ledger.New(logger)
	tb, err := toolbox.New(toolbox.Config{WorkspaceDir: t.TempDir(), Logger: logger})
	require.NoError(t, err)
	a := New("agent-1", cfg, led, tb, orch, adapter, llm.CallConfig{}, logger)
	require.NoError(t, a.Initialize(context.Background()))
	return a, led
}

func TestAgent_ThinkOutOfFunds(t *testing.T) {
	cfg := Config{Role: "Worker", Task: "build it", Budget: 0, ParentID: "founder-1"}
	a, _ := newTestAgent(t, cfg, &fakeOrchestrator{}, &fakeLLM{text: `{"action":"complete"}`})
	thought := a.Think(context.Background(), "")
	assert.Equal(t, "Out of funds", thought)
	assert.Equal(t, StateDead, a.State())
}

func TestAgent_ThinkChargesAndRecords(t *testing.T) {
	cfg := Config{
		Role: "Worker", Task: "build it", Budget: 30, ParentID: "founder-1",
		PricePerMillionInput: 5.0, PricePerMillionOutput: 15.0,
	}
	a, led := newTestAgent(t, cfg, &fakeOrchestrator{}, &fakeLLM{text: `{"action":"complete"}`, inTok: 1_000_000, outTok: 1_000_000})
	thought := a.Think(context.Background(), "")
	assert.Equal(t, `{"action":"complete"}`, thought)
	assert.InDelta(t, 30-20.0, led.Balance("agent-1"), 0.0001)
}

func TestAgent_ActUseToolChargesAndExecutes(t *testing.T) {
	cfg := Config{Role: "Worker", Task: "build it", Budget: 10, ParentID: "founder-1", ToolUseCost: 0.005}
	a, led := newTestAgent(t, cfg, &fakeOrchestrator{}, &fakeLLM{})
	result := a.Act(context.Background(), `{"action":"use_tool","tool":"code_executor","parameters":{"code":""}}`)
	assert.Equal(t, "use_tool", result.Action)
	assert.Equal(t, "No code provided", result.Result["error"])
	assert.InDelta(t, 9.995, led.Balance("agent-1"), 0.0001)
}

func TestAgent_ActUseToolNoNameSpecified(t *testing.T) {
	cfg := Config{Role: "Worker", Task: "build it", Budget: 10, ParentID: "founder-1", ToolUseCost: 0.005}
	a, led := newTestAgent(t, cfg, &fakeOrchestrator{}, &fakeLLM{})
	result := a.Act(context.Background(), `{"action":"use_tool"}`)
	assert.Equal(t, "No 'tool' name was specified.", result.Error)
	assert.Equal(t, 10.0, led.Balance("agent-1"))
}

func TestAgent_ActDelegateInsufficientFunds(t *testing.T) {
	cfg := Config{Role: "Founder", Task: "build it", Budget: 0.001, SpawnCost: 0.01}
	a, _ := newTestAgent(t, cfg, &fakeOrchestrator{}, &fakeLLM{})
	result := a.Act(context.Background(), `{"action":"delegate","details":{"role":"Worker","task":"x"}}`)
	assert.Equal(t, "Insufficient funds for spawn cost.", result.Error)
}

func TestAgent_ActDelegateSuccessAllocatesBudget(t *testing.T) {
	cfg := Config{Role: "Founder", Task: "build it", Budget: 10, SpawnCost: 0.01}
	orch := &fakeOrchestrator{nextID: "child-1"}
	a, led := newTestAgent(t, cfg, orch, &fakeLLM{})
	result := a.Act(context.Background(), `{"action":"delegate","details":{"role":"Worker","task":"x","step_index":0}}`)
	require.Empty(t, result.Error)
	assert.Equal(t, "child-1", result.SubagentID)
	require.Len(t, orch.spawned, 1)
	assert.InDelta(t, (10-0.01)*0.75, orch.spawned[0].Budget, 0.0001)
	assert.Less(t, led.Balance("agent-1"), 10.0)
}

func TestAgent_ActDelegateMaxAgentsRefunds(t *testing.T) {
	cfg := Config{Role: "Founder", Task: "build it", Budget: 10, SpawnCost: 0.01}
	orch := &fakeOrchestrator{spawnErr: ErrMaxAgentsReached}
	a, led := newTestAgent(t, cfg, orch, &fakeLLM{})
	result := a.Act(context.Background(), `{"action":"delegate","details":{"role":"Worker","task":"x"}}`)
	assert.Contains(t, result.Error, "Maximum number of agents")
	assert.Equal(t, 10.0, led.Balance("agent-1"))
}

func TestAgent_IsTaskCompleteWithoutCriteriaNeedsTwoSuccesses(t *testing.T) {
	cfg := Config{Role: "Worker", Task: "x", Budget: 10, ParentID: "founder-1"}
	a, _ := newTestAgent(t, cfg, &fakeOrchestrator{}, &fakeLLM{})
	assert.False(t, a.isTaskComplete())
	a.appendResult(ActionResult{Action: "use_tool"})
	assert.False(t, a.isTaskComplete())
	a.appendResult(ActionResult{Action: "use_tool"})
	assert.True(t, a.isTaskComplete())
}

func TestAgent_IsTaskCompleteWithCriteria(t *testing.T) {
	criteria := &CompletionCriteria{Action: "use_tool", Tool: "file_manager", Parameters: map[string]any{"operation": "copy_to_delivery"}}
	cfg := Config{Role: "Worker", Task: "x", Budget: 10, ParentID: "founder-1", CompletionCriteria: criteria}
	a, _ := newTestAgent(t, cfg, &fakeOrchestrator{}, &fakeLLM{})
	assert.False(t, a.isTaskComplete())
	a.appendResult(ActionResult{Action: "use_tool", Tool: "file_manager", Parameters: map[string]any{"operation": "write"}})
	assert.False(t, a.isTaskComplete())
	a.appendResult(ActionResult{Action: "use_tool", Tool: "file_manager", Parameters: map[string]any{"operation": "copy_to_delivery"}})
	assert.True(t, a.isTaskComplete())
}

func TestAgent_RunFounderFallsBackToSingleShotWhenPlanCreationFails(t *testing.T) {
	cfg := Config{Role: "Founder", Task: "ship it", Budget: 10}
	a, _ := newTestAgent(t, cfg, &fakeOrchestrator{}, &fakeLLM{text: "not json"})
	id, state := a.Run(context.Background())
	assert.Equal(t, "agent-1", id)
	assert.Equal(t, StateFailed, state)
	assert.False(t, a.planCreated, "plan creation should have failed and left planCreated false")
}

func TestAgent_RequestNewTool(t *testing.T) {
	cfg := Config{Role: "Worker", Task: "x", Budget: 10, ParentID: "founder-1"}
	a, _ := newTestAgent(t, cfg, &fakeOrchestrator{}, &fakeLLM{})
	result := a.Act(context.Background(), `{"action":"request_new_tool","details":{"description":"hash a string"}}`)
	assert.Equal(t, "request_new_tool", result.Action)
	assert.Equal(t, "request_submitted", result.Status)
}
