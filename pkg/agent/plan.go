package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arcwright/agentos/pkg/ledger"
	"github.com/arcwright/agentos/pkg/llm"
)

// founderPlanResponse is the top-level JSON shape a planning prompt
// must return.
type founderPlanResponse struct {
	Reasoning string     `json:"reasoning"`
	Plan      []PlanStep `json:"plan"`
}

type architectValidation struct {
	IsValid   bool   `json:"is_valid"`
	Reasoning string `json:"reasoning"`
}

// createPlan runs the founder's one-time planning phase: an initial
// plan, optionally validated and refined once by a second "architect"
// prompt when advanced planning is enabled. A plan that cannot be
// produced leaves planCreated false rather than failing the agent: Run
// falls back to the single-shot delegation/waiting prompt pair for the
// founder's entire lifetime in that case, matching the degraded path
// advanced planning was layered on top of.
func (a *Agent) createPlan(ctx context.Context) {
	a.logger.Info("founder is creating a project plan")

	initial := a.generateInitialPlan(ctx, "")
	if initial == nil {
		a.logger.Warn("plan creation produced no usable plan, falling back to single-shot delegation prompts")
		return
	}

	final := initial
	if a.Config.AllowAdvancedPlanning {
		a.logger.Info("initiating advanced plan validation")
		validation := a.validatePlan(ctx, *initial)
		if !validation.IsValid {
			a.logger.Warn("plan deemed invalid, attempting to refine", "reasoning", validation.Reasoning)
			final = a.generateInitialPlan(ctx, validation.Reasoning)
		}
	}

	if final != nil && len(final.Plan) > 0 {
		a.mu.Lock()
		a.plan = final.Plan
		a.planCreated = true
		a.mu.Unlock()
		a.logger.Info("final plan created", "steps", len(final.Plan))
		return
	}

	a.logger.Warn("failed to create a valid final plan, falling back to single-shot delegation prompts")
}

func (a *Agent) generateInitialPlan(ctx context.Context, refinementReasoning string) *founderPlanResponse {
	prompt := fmt.Sprintf(FounderPlanningPrompt, a.Config.Task)
	if refinementReasoning != "" {
		prompt += fmt.Sprintf("\n\nPlease refine the plan based on the following feedback: %s", refinementReasoning)
	}

	text, inTok, outTok, err := a.llmAdapter.Call(ctx, prompt, a.llmCfg)
	if err != nil {
		text = llm.FallbackResponse
	}
	a.chargeAPICall(inTok, outTok)

	var resp founderPlanResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil
	}
	return &resp
}

func (a *Agent) validatePlan(ctx context.Context, plan founderPlanResponse) architectValidation {
	planJSON, _ := json.MarshalIndent(plan, "", "  ")
	prompt := fmt.Sprintf(ArchitectValidationPrompt, a.Config.Task, string(planJSON))

	text, inTok, outTok, err := a.llmAdapter.Call(ctx, prompt, a.llmCfg)
	if err != nil {
		text = llm.FallbackResponse
	}
	a.chargeAPICall(inTok, outTok)

	var result architectValidation
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return architectValidation{IsValid: false, Reasoning: "Failed to get a valid validation response from architect."}
	}
	return result
}

func (a *Agent) chargeAPICall(inTok, outTok int) {
	cost := (float64(inTok)/1_000_000)*a.Config.PricePerMillionInput + (float64(outTok)/1_000_000)*a.Config.PricePerMillionOutput
	if cost > 0 {
		a.ledger.Charge(a.ID, cost, ledger.TransactionAPICall, "LLM API usage")
	}
}
