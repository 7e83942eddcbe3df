package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/rsmyth-dev/heron/pkg/hooks"
	"github.com/rsmyth-dev/heron/pkg/types"
)

// toolCall is one tool request after its permission check.
type toolCall struct {
	toolName  string
	toolUseID string
	input     map[string]any
	prompted  bool // the permission decision required a user prompt
}

// executeToolCalls runs every tool request from one model turn. Permission
// checks always happen sequentially, in request order; execution fans out
// concurrently only when no call needed a prompt and every call declares a
// distinct file path. Returns true if the turn was cancelled mid-way.
func (a *Agent) executeToolCalls(ctx context.Context, blocks []types.Block) bool {
	var calls []toolCall

	for i, b := range blocks {
		if ctx.Err() != nil {
			a.endTool(b.ToolUseID, false, "", "aborted")
			for _, rest := range blocks[i+1:] {
				a.endTool(rest.ToolUseID, false, "", "aborted")
			}
			return true
		}

		call := toolCall{toolName: b.ToolName, toolUseID: b.ToolUseID, input: b.Input}

		if a.cfg.Permissions != nil {
			dec, err := a.cfg.Permissions.Check(ctx, b.ToolName, b.Input)
			if err != nil {
				if ctx.Err() != nil {
					a.endTool(b.ToolUseID, false, "", "aborted")
					for _, rest := range blocks[i+1:] {
						a.endTool(rest.ToolUseID, false, "", "aborted")
					}
					return true
				}
				a.endTool(b.ToolUseID, false, "", "permission check failed: "+err.Error())
				continue
			}
			if dec.Behavior != "allow" {
				msg := dec.Message
				if msg == "" {
					msg = "permission denied"
				}
				a.endTool(b.ToolUseID, false, "", msg)
				continue
			}
			if dec.UpdatedInput != nil {
				call.input = dec.UpdatedInput
			}
			call.prompted = dec.NeededPrompt
		}

		calls = append(calls, call)
	}

	if len(calls) == 0 {
		return false
	}

	if independent(calls) {
		var wg sync.WaitGroup
		for _, call := range calls {
			wg.Add(1)
			go func(c toolCall) {
				defer wg.Done()
				a.runToolCall(ctx, c)
			}(call)
		}
		wg.Wait()
		return ctx.Err() != nil
	}

	for i, call := range calls {
		if ctx.Err() != nil {
			a.endTool(call.toolUseID, false, "", "aborted")
			for _, rest := range calls[i+1:] {
				a.endTool(rest.toolUseID, false, "", "aborted")
			}
			return true
		}
		a.runToolCall(ctx, call)
	}
	return false
}

// independent reports whether the calls may fan out concurrently: none
// required a permission prompt, every call declares the file path it
// targets, and no two share one. A call with no declared path could touch
// anything, so it forces sequential execution.
func independent(calls []toolCall) bool {
	if len(calls) < 2 {
		return false
	}
	seen := make(map[string]bool, len(calls))
	for _, c := range calls {
		if c.prompted {
			return false
		}
		p := targetPath(c.input)
		if p == "" || seen[p] {
			return false
		}
		seen[p] = true
	}
	return true
}

// targetPath returns the file path a call declares in its input, if any.
func targetPath(input map[string]any) string {
	for _, key := range []string{"file_path", "path"} {
		if p, _ := input[key].(string); p != "" {
			return p
		}
	}
	return ""
}

// runToolCall drives one allowed tool request through the PreToolUse hook,
// execution, and the PostToolUse hook, then seals its block.
func (a *Agent) runToolCall(ctx context.Context, call toolCall) {
	input := call.input

	if a.cfg.Hooks != nil && a.cfg.Hooks.Has(types.HookEventPreToolUse) {
		payload := hooks.PreToolUsePayload{
			Meta:      a.hookMeta(types.HookEventPreToolUse),
			ToolName:  call.toolName,
			ToolInput: input,
			ToolUseID: call.toolUseID,
		}
		results, err := a.cfg.Hooks.Fire(types.HookEventPreToolUse, call.toolName, payload)
		if err != nil {
			a.endTool(call.toolUseID, false, "", "pre-tool hook failed: "+err.Error())
			return
		}
		if blocked, reason := hooks.Blocked(results); blocked {
			if reason == "" {
				reason = "blocked by hook"
			}
			a.endTool(call.toolUseID, false, "", reason)
			return
		}
		if updated := hooks.UpdatedInput(results); updated != nil {
			input = updated
		}
		a.collectContext(results)
	}

	tool, ok := a.cfg.Tools.Get(call.toolName)
	if !ok {
		a.endTool(call.toolUseID, false, "", fmt.Sprintf("unknown tool %q", call.toolName))
		return
	}

	a.state.UpdateToolBlock(call.toolUseID, func(b *types.Block) {
		b.Input = input
		b.AdvanceStage(types.StageRunning)
	})

	result, err := tool.Execute(ctx, input)
	if err != nil {
		if ctx.Err() != nil {
			a.endTool(call.toolUseID, false, "", "aborted")
			return
		}
		a.endTool(call.toolUseID, false, "", err.Error())
		return
	}

	if a.cfg.Hooks != nil && a.cfg.Hooks.Has(types.HookEventPostToolUse) {
		payload := hooks.PostToolUsePayload{
			Meta:         a.hookMeta(types.HookEventPostToolUse),
			ToolName:     call.toolName,
			ToolInput:    input,
			ToolResponse: result,
			ToolUseID:    call.toolUseID,
		}
		results, err := a.cfg.Hooks.Fire(types.HookEventPostToolUse, call.toolName, payload)
		if err != nil {
			a.cfg.Logger.Warn("post-tool hook failed", "tool", call.toolName, "err", err)
		}
		// The tool already ran; a blocking decision here only annotates
		// the result the model sees.
		if blocked, reason := hooks.Blocked(results); blocked && reason != "" {
			result.Content += "\n[hook] " + reason
		}
		a.collectContext(results)
	}

	a.endTool(call.toolUseID, result.Success, result.Content, result.Error)
}

// endTool seals the tool block with its outcome.
func (a *Agent) endTool(toolUseID string, success bool, content, errText string) {
	a.state.UpdateToolBlock(toolUseID, func(b *types.Block) {
		b.EndTool(success, content, errText)
	})
}

// collectContext stashes hook-provided context for the next model call.
func (a *Agent) collectContext(results []hooks.Result) {
	extra := hooks.AdditionalContext(results)
	msgs := hooks.SystemMessages(results)
	if len(extra) == 0 && len(msgs) == 0 {
		return
	}
	a.mu.Lock()
	a.pendingContext = append(a.pendingContext, extra...)
	a.pendingContext = append(a.pendingContext, msgs...)
	a.mu.Unlock()
}
