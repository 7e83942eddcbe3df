package tools

import (
	"context"

	"github.com/rsmyth-dev/heron/pkg/types"
)

// ExitPlanModeTool signals that planning is complete. The permission engine
// treats its approval as the transition out of plan mode; the tool itself
// only acknowledges.
type ExitPlanModeTool struct{}

func (e *ExitPlanModeTool) Name() string { return "ExitPlanMode" }

func (e *ExitPlanModeTool) Description() string {
	return "Signals that plan mode is complete and the agent is ready to implement the plan."
}

func (e *ExitPlanModeTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"plan": map[string]any{
				"type":        "string",
				"description": "The plan to present for approval",
			},
		},
	}
}

func (e *ExitPlanModeTool) Execute(_ context.Context, input map[string]any) (types.ToolResult, error) {
	if plan, okp := input["plan"].(string); okp && plan != "" {
		return types.ToolResult{
			Success:     true,
			Content:     "Exiting plan mode. Plan:\n" + plan,
			ShortResult: "plan approved",
		}, nil
	}
	return ok("Exiting plan mode."), nil
}
