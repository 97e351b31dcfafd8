// Package agent implements the founder/worker agent engine: a single
// Agent runs either a planning+dispatch loop (founder, parentID
// empty) or a think/act loop (worker), spending from its ledger
// account on every LLM call, tool invocation, and delegation.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/arcwright/agentos/pkg/ledger"
	"github.com/arcwright/agentos/pkg/llm"
	"github.com/arcwright/agentos/pkg/toolbox"
)

// MaxConsecutiveErrors is the number of consecutive error results
// that transitions an agent to Failed.
const MaxConsecutiveErrors = 3

// fallbackCompleteResponse is a last-resort response carrying a
// COMPLETE action, unlike llm.FallbackResponse, which carries FAIL.
// Think does not use it: on an adapter error Think substitutes
// llm.FallbackResponse.
const fallbackCompleteResponse = `{"reasoning": "Fallback due to LLM unavailability.", "action": "COMPLETE"}`

// State is the agent's lifecycle state.
type State string

const (
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateDead      State = "dead"
)

// CompletionCriteria is the structural-equality target a worker's
// completed action must match to transition to Completed.
type CompletionCriteria struct {
	Action     string         `json:"action"`
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
}

// Config mirrors the original dataclass of per-agent construction
// parameters.
type Config struct {
	Role                   string
	Task                   string
	Budget                 float64
	CompletionCriteria     *CompletionCriteria
	ParentID               string
	MaxSubagents           int
	PricePerMillionInput   float64
	PricePerMillionOutput  float64
	SpawnCost              float64
	ToolUseCost            float64
	AllowMessaging         bool
	AllowAdvancedPlanning  bool
}

// Message is one mailbox entry addressed to an agent.
type Message struct {
	From    string
	Content map[string]any
}

// SpawnSpec is what an agent asks the orchestrator to admit on its
// behalf when delegating.
type SpawnSpec struct {
	Role               string
	Task               string
	Budget             float64
	ParentID           string
	CompletionCriteria *CompletionCriteria
}

// ErrMaxAgentsReached is returned by Orchestrator.SpawnAgent when the
// system is at capacity.
var ErrMaxAgentsReached = fmt.Errorf("maximum number of agents has been reached")

// Orchestrator is the narrow slice of orchestrator behavior an agent
// depends on. Scoping it this way (rather than importing
// pkg/orchestrator directly) avoids an import cycle, since the
// orchestrator owns the map of agents an agent needs to query.
type Orchestrator interface {
	Messages(ctx context.Context, agentID string) []Message
	SpawnAgent(ctx context.Context, spec SpawnSpec) (string, error)
	HandleToolRequest(ctx context.Context, requesterID, description string) error
	AgentState(agentID string) (State, bool)
}

// Agent is one node in the hierarchical agent society.
type Agent struct {
	ID     string
	Config Config

	ledger       *ledger.Ledger
	toolbox      *toolbox.Toolbox
	orchestrator Orchestrator
	llmAdapter   llm.Adapter
	llmCfg       llm.CallConfig
	logger       *slog.Logger

	mu                sync.RWMutex
	state             State
	subagents         []string
	delegatedTasks    map[string]int
	thoughts          []string
	results           []ActionResult
	consecutiveErrors int
	plan              []PlanStep
	planCreated       bool
}

// PlanStep is one DELEGATE-shaped entry in a founder's plan.
type PlanStep struct {
	Action  string         `json:"action"`
	Details map[string]any `json:"details"`
}

// ActionResult is the outcome of a single act() call, recorded into
// results for history and completion-criteria matching.
type ActionResult struct {
	Action     string         `json:"action,omitempty"`
	Tool       string         `json:"tool,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	SubagentID string         `json:"subagent_id,omitempty"`
	StepIndex  *int           `json:"step_index,omitempty"`
	Status     string         `json:"status,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// New constructs an Agent in the Active state. The caller is
// responsible for calling Initialize before Run.
func New(id string, cfg Config, led *ledger.Ledger, tb *toolbox.Toolbox, orch Orchestrator, adapter llm.Adapter, llmCfg llm.CallConfig, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		ID:             id,
		Config:         cfg,
		ledger:         led,
		toolbox:        tb,
		orchestrator:   orch,
		llmAdapter:     adapter,
		llmCfg:         llmCfg,
		logger:         logger.With("agent", id),
		state:          StateActive,
		delegatedTasks: make(map[string]int),
	}
}

// Initialize opens the agent's ledger account with its starting
// budget.
func (a *Agent) Initialize(ctx context.Context) error {
	if err := a.ledger.CreateAccount(a.ID, a.Config.Budget); err != nil {
		return fmt.Errorf("agent %s: initialize: %w", a.ID, err)
	}
	a.logger.Info("agent initialized", "role", a.Config.Role, "budget", a.Config.Budget)
	return nil
}

// State returns the agent's current lifecycle state.
func (a *Agent) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// IsFounder reports whether this agent runs the planning+dispatch
// loop rather than the worker think/act loop.
func (a *Agent) IsFounder() bool { return a.Config.ParentID == "" }

// Toolbox returns the agent's tool registry, so the orchestrator can
// refresh it after a new tool is deployed.
func (a *Agent) Toolbox() *toolbox.Toolbox { return a.toolbox }

// MarkCompleted forces the agent into the Completed state. The
// orchestrator calls this on a Tool-Forging Agent once its
// tool-creation-success message has been processed and the tool
// deployed, since that confirmation — not the forger's own think/act
// loop — is what the forger's work is actually waiting on.
func (a *Agent) MarkCompleted() { a.setState(StateCompleted) }

// Run drives the agent's main loop to a terminal state. It returns
// when the agent is no longer Active, or when ctx is cancelled (in
// which case the state is forced to Failed, matching the "task
// cancellation flips the agent to Failed" cancellation contract).
func (a *Agent) Run(ctx context.Context) (id string, state State) {
	a.logger.Info("starting main execution loop")

	if a.IsFounder() {
		a.createPlan(ctx)
	}

	for a.State() == StateActive {
		select {
		case <-ctx.Done():
			a.setState(StateFailed)
			return a.ID, a.State()
		default:
		}

		var dispatched *PlanStep
		if a.IsFounder() && a.planCreated {
			dispatched = a.nextActionFromPlan(ctx)
			if dispatched == nil {
				if a.State() != StateActive {
					break
				}
				sleepCtx(ctx, 2*time.Second)
				continue
			}
		} else {
			context := a.recentHistoryContext()
			thought := a.Think(ctx, context)
			if a.State() != StateActive {
				break
			}
			result := a.Act(ctx, thought)
			a.appendResult(result)
		}

		if dispatched != nil {
			thoughtJSON, _ := json.Marshal(dispatched)
			result := a.Act(ctx, string(thoughtJSON))
			a.appendResult(result)
		}

		a.handleErrorStreak()

		if !a.IsFounder() && a.isTaskComplete() {
			a.deliverFiles(ctx)
			a.setState(StateCompleted)
		}

		sleepCtx(ctx, 100*time.Millisecond)
	}

	a.logger.Info("finished execution loop", "state", a.State())
	return a.ID, a.State()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (a *Agent) recentHistoryContext() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.results) == 0 {
		return "This is your first action."
	}
	n := len(a.results)
	start := n - 3
	if start < 0 {
		start = 0
	}
	recent, _ := json.Marshal(a.results[start:])
	return fmt.Sprintf("History of your previous actions and their results: %s", recent)
}

func (a *Agent) appendResult(r ActionResult) {
	a.mu.Lock()
	a.results = append(a.results, r)
	a.mu.Unlock()
}

func (a *Agent) handleErrorStreak() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.results) == 0 {
		return
	}
	last := a.results[len(a.results)-1]
	if last.Error != "" {
		a.logger.Error("action error", "error", last.Error)
		a.consecutiveErrors++
		if a.consecutiveErrors >= MaxConsecutiveErrors {
			a.state = StateFailed
		}
		return
	}
	a.consecutiveErrors = 0
}

// Think builds a prompt, calls the LLM, charges its cost, and
// records the resulting thought. On an adapter error it returns the
// fallback response text (never an error), matching the contract that
// an agent's think/act cycle is never torn down by an adapter error.
// When the agent cannot pay for the call it sets state Dead and
// returns an "Out of funds" message instead.
func (a *Agent) Think(ctx context.Context, context string) string {
	balance := a.ledger.Balance(a.ID)
	if balance <= 0 {
		a.setState(StateDead)
		return "Out of funds"
	}

	prompt := a.buildPrompt(ctx, context)

	text, inTok, outTok, err := a.llmAdapter.Call(ctx, prompt, a.llmCfg)
	if err != nil {
		text = llm.FallbackResponse
	}

	cost := (float64(inTok)/1_000_000)*a.Config.PricePerMillionInput + (float64(outTok)/1_000_000)*a.Config.PricePerMillionOutput
	if cost > 0 {
		if ok, _ := a.ledger.Charge(a.ID, cost, ledger.TransactionAPICall, "LLM API usage"); !ok {
			a.setState(StateDead)
			return "Out of funds after final API call"
		}
	}

	if a.State() != StateFailed {
		a.mu.Lock()
		a.thoughts = append(a.thoughts, text)
		a.mu.Unlock()
	}
	return text
}

// Act parses thought into an Action and dispatches it.
func (a *Agent) Act(ctx context.Context, thought string) ActionResult {
	action := ParseAction(thought)
	a.logger.Info("decided action", "type", strings.ToUpper(action.Type))

	switch action.Type {
	case ActionTypeError:
		return ActionResult{Error: action.Error}
	case ActionTypeDelegate:
		return a.delegateTask(ctx, action)
	case ActionTypeUseTool:
		return a.useTool(ctx, action)
	case ActionTypeRequestNewTool:
		return a.requestNewTool(ctx, action)
	case ActionTypeComplete:
		a.setState(StateCompleted)
		return ActionResult{Action: "complete"}
	case ActionTypeFail:
		a.setState(StateFailed)
		return ActionResult{Error: thought}
	default:
		return ActionResult{Error: fmt.Sprintf("Unknown action type: %s", action.Type)}
	}
}
