package agent

import (
	"context"
	"fmt"
)

// nextActionFromPlan implements the founder's step-dispatch logic: it
// drains completion confirmations from the mailbox, determines the
// next undelegated step, and returns it when the previous step's
// child is no longer Active. It returns nil when the founder must
// wait, setting state to Completed itself once every step has been
// delegated and every child has reached a terminal state.
func (a *Agent) nextActionFromPlan(ctx context.Context) *PlanStep {
	a.mu.RLock()
	planCreated := a.planCreated
	plan := a.plan
	a.mu.RUnlock()
	if !planCreated || len(plan) == 0 {
		return nil
	}

	completedArtifacts := map[int][]any{}
	for _, msg := range a.orchestrator.Messages(ctx, a.ID) {
		stepIndex, tracked := a.delegatedStepFor(msg.From)
		if !tracked {
			continue
		}
		if status, _ := msg.Content["status"].(string); status == "task_completed" {
			artifacts, _ := msg.Content["artifacts"].([]any)
			completedArtifacts[stepIndex] = artifacts
			a.logger.Info("step confirmed complete", "step", stepIndex+1, "by", msg.From, "artifacts", artifacts)
		}
	}

	a.mu.RLock()
	nextStepIndex := len(a.subagents)
	subagents := append([]string(nil), a.subagents...)
	a.mu.RUnlock()

	if nextStepIndex >= len(plan) {
		allDone := true
		for _, sid := range subagents {
			if st, ok := a.orchestrator.AgentState(sid); !ok || st == StateActive {
				allDone = false
				break
			}
		}
		if allDone {
			a.logger.Info("all plan steps delegated and all agents finished")
			a.setState(StateCompleted)
		}
		return nil
	}

	if nextStepIndex > 0 {
		previousAgentID := subagents[nextStepIndex-1]
		if st, ok := a.orchestrator.AgentState(previousAgentID); ok && st == StateActive {
			a.logger.Debug("waiting for previous step to complete", "agent", previousAgentID, "step", nextStepIndex)
			return nil
		}
	}

	a.logger.Info("ready to execute plan step", "step", nextStepIndex+1)

	step := plan[nextStepIndex]
	details := cloneMap(step.Details)
	details["step_index"] = nextStepIndex

	if nextStepIndex > 0 {
		if artifacts, ok := completedArtifacts[nextStepIndex-1]; ok {
			if task, _ := details["task"].(string); task != "" {
				details["task"] = fmt.Sprintf("%s\n\nCONTEXT FROM PREVIOUS STEP: Your colleague has produced the following artifacts: %v. You should use them as input.", task, artifacts)
			}
		}
	}

	step.Details = details
	return &step
}

func (a *Agent) delegatedStepFor(agentID string) (int, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	idx, ok := a.delegatedTasks[agentID]
	return idx, ok
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
