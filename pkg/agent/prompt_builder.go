package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// buildPrompt routes to the correct template: founders alternate
// between the delegation prompt (before their first delegation) and
// the waiting prompt (after), while workers always get the worker
// template populated with their tool list and any pending messages.
func (a *Agent) buildPrompt(ctx context.Context, historyContext string) string {
	balance := a.ledger.Balance(a.ID)

	if a.IsFounder() {
		if a.hasDelegated() {
			return fmt.Sprintf(FounderWaitingPrompt, a.Config.Task, balance, historyContext)
		}
		return fmt.Sprintf(FounderDelegationPrompt, a.Config.Task, balance, historyContext)
	}

	messageContext := ""
	if a.Config.AllowMessaging {
		messages := a.orchestrator.Messages(ctx, a.ID)
		if len(messages) > 0 {
			var lines []string
			for _, m := range messages {
				content, _ := json.Marshal(m.Content)
				lines = append(lines, fmt.Sprintf("- From %s: %s", m.From, content))
			}
			messageContext = fmt.Sprintf("\n--- NEW MESSAGES ---\nYou have received the following messages:\n%s\n--- END OF MESSAGES ---\n", strings.Join(lines, "\n"))
		}
	}

	toolsJSON, _ := json.MarshalIndent(a.toolbox.Definitions(), "", "  ")

	return fmt.Sprintf(WorkerAgentPrompt,
		a.Config.Role, a.Config.Task, balance, historyContext,
		a.Config.ParentID, messageContext, string(toolsJSON))
}

func (a *Agent) hasDelegated() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, r := range a.results {
		if r.Action == "delegate" {
			return true
		}
	}
	return false
}
