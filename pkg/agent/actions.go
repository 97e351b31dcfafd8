package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/arcwright/agentos/pkg/ledger"
	"github.com/arcwright/agentos/pkg/tools/filemanager"
)

// delegateTask runs the two-charge delegation economic protocol:
// spawnCost, then 0.75 of what remains, refunding on any failure
// along the way.
func (a *Agent) delegateTask(ctx context.Context, action Action) ActionResult {
	var stepIndex *int
	if raw, ok := action.Details["step_index"]; ok {
		if f, ok := raw.(float64); ok {
			v := int(f)
			stepIndex = &v
		} else if v, ok := raw.(int); ok {
			stepIndex = &v
		}
	}

	balance := a.ledger.Balance(a.ID)
	if balance < a.Config.SpawnCost {
		return ActionResult{Error: "Insufficient funds for spawn cost."}
	}
	spendable := balance - a.Config.SpawnCost
	allocation := spendable * 0.75

	if ok, _ := a.ledger.Charge(a.ID, a.Config.SpawnCost, ledger.TransactionSpawnAgent, "Spawning sub-agent"); !ok {
		return ActionResult{Error: "Failed to complete delegation transaction."}
	}
	if ok, _ := a.ledger.Charge(a.ID, allocation, ledger.TransactionBudgetAllocation, "Allocating budget"); !ok {
		a.ledger.Credit(a.ID, a.Config.SpawnCost, ledger.TransactionRefund, "Refund for failed delegation.")
		return ActionResult{Error: "Failed to complete delegation transaction."}
	}

	role, _ := action.Details["role"].(string)
	if role == "" {
		role = "Specialist"
	}
	task, _ := action.Details["task"].(string)
	if task == "" {
		task = "Complete assigned sub-task."
	}

	var completionCriteria *CompletionCriteria
	if raw, ok := action.Details["completion_criteria"].(map[string]any); ok {
		completionCriteria = parseCompletionCriteria(raw)
	}

	subagentID, err := a.orchestrator.SpawnAgent(ctx, SpawnSpec{
		Role:               role,
		Task:               task,
		Budget:             allocation,
		ParentID:           a.ID,
		CompletionCriteria: completionCriteria,
	})
	if err != nil {
		refund := a.Config.SpawnCost + allocation
		if errors.Is(err, ErrMaxAgentsReached) {
			a.ledger.Credit(a.ID, refund, ledger.TransactionRefund, "Refund for max agents reached.")
			a.logger.Warn("failed to spawn agent", "error", err)
			return ActionResult{Error: "Maximum number of agents has been reached.", Status: err.Error()}
		}
		a.ledger.Credit(a.ID, refund, ledger.TransactionRefund, "Refund for unexpected spawn failure.")
		a.logger.Error("unexpected error during agent spawn", "error", err)
		return ActionResult{Error: "An unexpected error occurred during agent spawn.", Status: err.Error()}
	}

	a.mu.Lock()
	a.subagents = append(a.subagents, subagentID)
	if stepIndex != nil {
		a.delegatedTasks[subagentID] = *stepIndex
	}
	a.mu.Unlock()

	return ActionResult{Action: "delegate", SubagentID: subagentID, StepIndex: stepIndex}
}

func parseCompletionCriteria(raw map[string]any) *CompletionCriteria {
	cc := &CompletionCriteria{}
	cc.Action, _ = raw["action"].(string)
	cc.Tool, _ = raw["tool"].(string)
	cc.Parameters, _ = raw["parameters"].(map[string]any)
	if cc.Parameters == nil {
		cc.Parameters = map[string]any{}
	}
	return cc
}

func (a *Agent) useTool(ctx context.Context, action Action) ActionResult {
	if action.Tool == "" {
		return ActionResult{Error: "No 'tool' name was specified."}
	}
	if ok, _ := a.ledger.Charge(a.ID, a.Config.ToolUseCost, ledger.TransactionToolUsage, fmt.Sprintf("Using tool %s", action.Tool)); !ok {
		return ActionResult{Error: "Insufficient funds for tool usage"}
	}
	result, _ := a.toolbox.Execute(ctx, action.Tool, action.Parameters, a.ID)
	return ActionResult{Action: "use_tool", Tool: action.Tool, Parameters: action.Parameters, Result: result}
}

func (a *Agent) requestNewTool(ctx context.Context, action Action) ActionResult {
	description, _ := action.Details["description"].(string)
	if description == "" {
		return ActionResult{Error: "Tool description is required to request a new tool."}
	}
	a.logger.Info("requesting creation of a new tool", "description", description)
	if err := a.orchestrator.HandleToolRequest(ctx, a.ID, description); err != nil {
		return ActionResult{Error: fmt.Sprintf("Failed to submit tool request: %v", err)}
	}
	return ActionResult{Action: "request_new_tool", Status: "request_submitted"}
}

// isTaskComplete reports whether the worker's completion criteria
// matches any recorded non-error result, or, absent any criteria,
// whether it has accumulated at least two successful results (the
// original's conservative fallback behavior).
func (a *Agent) isTaskComplete() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	criteria := a.Config.CompletionCriteria
	if criteria == nil {
		successes := 0
		for _, r := range a.results {
			if r.Error == "" {
				successes++
			}
		}
		return successes >= 2
	}

	for i := len(a.results) - 1; i >= 0; i-- {
		r := a.results[i]
		if r.Error != "" {
			continue
		}
		if actionsEqual(r, *criteria) {
			a.logger.Info("completion criteria met", "action", criteria.Action, "tool", criteria.Tool)
			return true
		}
	}
	return false
}

// actionsEqual implements the ordered structural equality over
// {action, tool, parameters} via canonical-JSON byte comparison
// (encoding/json sorts map keys, giving a deterministic canonical
// form without a bespoke comparator).
func actionsEqual(r ActionResult, criteria CompletionCriteria) bool {
	if r.Action != criteria.Action || r.Tool != criteria.Tool {
		return false
	}
	return canonicalEqual(r.Parameters, criteria.Parameters)
}

// deliverFiles scans the agent's workspace and copies every
// deliverable-typed entry to the delivery folder.
func (a *Agent) deliverFiles(ctx context.Context) {
	listResult, err := a.toolbox.Execute(ctx, "file_manager", map[string]any{"operation": "list", "path": "."}, a.ID)
	if err != nil {
		a.logger.Error("failed to list workspace files for delivery", "error", err)
		return
	}
	if status, _ := listResult["status"].(string); status != "success" {
		return
	}
	itemsRaw, _ := listResult["items"].([]string)
	names := itemsRaw
	if names == nil {
		if anyItems, ok := listResult["items"].([]any); ok {
			for _, v := range anyItems {
				if s, ok := v.(string); ok {
					names = append(names, s)
				}
			}
		}
	}

	for _, filename := range filemanager.ListDeliverableNames(names) {
		deliveryResult, err := a.toolbox.Execute(ctx, "file_manager", map[string]any{
			"operation":     "copy_to_delivery",
			"path":          filename,
			"delivery_name": filename,
		}, a.ID)
		if err != nil {
			a.logger.Error("error delivering file", "file", filename, "error", err)
			continue
		}
		if status, _ := deliveryResult["status"].(string); status == "success" {
			a.logger.Info("delivered file", "file", filename)
		} else {
			a.logger.Warn("failed to deliver file", "file", filename, "error", deliveryResult["error"])
		}
	}
}
