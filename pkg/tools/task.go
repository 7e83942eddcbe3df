package tools

import (
	"context"
	"fmt"

	"github.com/rsmyth-dev/heron/pkg/types"
)

// DelegationRequest describes a task to hand to a subagent.
type DelegationRequest struct {
	SubagentType    string // exact definition name; empty = select by description
	Description     string // short task summary, also used for selection
	Prompt          string // the full task prompt for the subagent
	RunInBackground bool
}

// DelegationResult is what crosses back over the isolation boundary.
type DelegationResult struct {
	SubagentID       string
	Content          string // final assistant output
	BackgroundTaskID string // set when the delegation was backgrounded
}

// Delegator runs a task in an isolated subagent instance. Implemented by
// the subagent package; defined here so the tool layer does not depend on
// it.
type Delegator interface {
	Delegate(ctx context.Context, req DelegationRequest) (DelegationResult, error)
}

// TaskTool delegates work to a subagent.
type TaskTool struct {
	Delegator Delegator
}

func (t *TaskTool) Name() string { return "Task" }

func (t *TaskTool) Description() string {
	return "Launches a subagent to handle a task in an isolated context. Specify subagent_type to pick a definition by name, or leave it empty to select by the task description. Only the subagent's final output is returned."
}

func (t *TaskTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"subagent_type": map[string]any{
				"type":        "string",
				"description": "The subagent definition to use",
			},
			"description": map[string]any{
				"type":        "string",
				"description": "Short (3-5 word) task summary",
			},
			"prompt": map[string]any{
				"type":        "string",
				"description": "The task for the subagent to perform",
			},
			"run_in_background": map[string]any{
				"type":        "boolean",
				"description": "Run the subagent in the background and poll with TaskOutput",
			},
		},
		"required": []string{"prompt"},
	}
}

func (t *TaskTool) FormatParams(input map[string]any) string {
	if desc, okd := input["description"].(string); okd && desc != "" {
		return desc
	}
	st, _ := input["subagent_type"].(string)
	return st
}

func (t *TaskTool) Execute(ctx context.Context, input map[string]any) (types.ToolResult, error) {
	if t.Delegator == nil {
		return fail("subagent delegation not available in this context"), nil
	}

	prompt, okp := input["prompt"].(string)
	if !okp || prompt == "" {
		return fail("prompt is required"), nil
	}
	subagentType, _ := input["subagent_type"].(string)
	description, _ := input["description"].(string)
	background, _ := input["run_in_background"].(bool)

	res, err := t.Delegator.Delegate(ctx, DelegationRequest{
		SubagentType:    subagentType,
		Description:     description,
		Prompt:          prompt,
		RunInBackground: background,
	})
	if err != nil {
		// Subagent failures stay tool-level failures; nothing crosses the
		// isolation boundary as a panic or wrapped error chain.
		return fail("%s", err), nil
	}

	if res.BackgroundTaskID != "" {
		return types.ToolResult{
			Success: true,
			Content: fmt.Sprintf("Subagent %s started in background with task ID %s. Use TaskOutput with task_id=%q to read its result.",
				res.SubagentID, res.BackgroundTaskID, res.BackgroundTaskID),
			ShortResult: "started " + res.BackgroundTaskID,
		}, nil
	}
	return ok(res.Content), nil
}
