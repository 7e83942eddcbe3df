package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rsmyth-dev/heron/pkg/hooks"
	"github.com/rsmyth-dev/heron/pkg/llm"
	"github.com/rsmyth-dev/heron/pkg/types"
)

// ExitReason describes why a turn loop stopped.
type ExitReason string

const (
	ExitEndTurn   ExitReason = "end_turn"
	ExitMaxTurns  ExitReason = "max_turns"
	ExitMaxTokens ExitReason = "max_tokens"
	ExitAborted   ExitReason = "aborted"
)

// TurnResult summarizes a completed Prompt call.
type TurnResult struct {
	ExitReason ExitReason
	Turns      int         // model round-trips consumed
	Usage      types.Usage // tokens across all round-trips
	Text       string      // final assistant text
}

const compressPrompt = "Summarize the conversation so far: goals, decisions, " +
	"files touched, and unresolved work. Be specific enough that the " +
	"conversation can continue from the summary alone."

// runLoop drives model round-trips until the model finishes without pending
// tool calls, a limit is hit, or ctx is cancelled.
func (a *Agent) runLoop(ctx context.Context) (*TurnResult, error) {
	res := &TurnResult{}

	for {
		if ctx.Err() != nil {
			res.ExitReason = ExitAborted
			return res, nil
		}
		if a.cfg.MaxTurns > 0 && res.Turns >= a.cfg.MaxTurns {
			res.ExitReason = ExitMaxTurns
			return res, nil
		}

		a.maybeCompress(ctx)

		stream, err := a.cfg.Client.Complete(ctx, a.buildRequest())
		if err != nil {
			if ctx.Err() != nil {
				res.ExitReason = ExitAborted
				return res, nil
			}
			return res, fmt.Errorf("model request: %w", err)
		}

		resp, err := llm.Accumulate(stream, func(i int, b types.Block) {
			a.state.AppendOrUpdateAssistantBlock(i, b)
		})
		if err != nil {
			a.abortOpenToolBlocks(resp)
			a.finalize(resp.Usage)
			if ctx.Err() != nil {
				res.ExitReason = ExitAborted
				return res, nil
			}
			return res, fmt.Errorf("model stream: %w", err)
		}

		res.Turns++
		res.Usage.Add(resp.Usage)
		res.Text = assistantText(resp)

		switch resp.StopReason {
		case "tool_use":
			toolBlocks := resp.ToolUseBlocks()
			if len(toolBlocks) == 0 {
				// Claimed tool use but requested none; treat as a
				// finished turn.
				a.finalize(resp.Usage)
				if a.continueAfterStop(ctx) {
					continue
				}
				res.ExitReason = ExitEndTurn
				return res, nil
			}

			interrupted := a.executeToolCalls(ctx, toolBlocks)
			a.finalize(resp.Usage)
			if interrupted {
				res.ExitReason = ExitAborted
				return res, nil
			}
			continue

		case "max_tokens":
			a.finalize(resp.Usage)
			res.ExitReason = ExitMaxTokens
			return res, nil

		default: // end_turn or anything unrecognized
			a.finalize(resp.Usage)
			if a.continueAfterStop(ctx) {
				continue
			}
			res.ExitReason = ExitEndTurn
			return res, nil
		}
	}
}

// buildRequest serializes the current state, draining any pending hook
// context into the system prompt.
func (a *Agent) buildRequest() *llm.Request {
	system := a.cfg.SystemPrompt

	a.mu.Lock()
	if len(a.pendingContext) > 0 {
		extra := strings.Join(a.pendingContext, "\n")
		a.pendingContext = nil
		if system != "" {
			system += "\n\n"
		}
		system += extra
	}
	a.mu.Unlock()

	return &llm.Request{
		Model:     a.cfg.Model,
		System:    system,
		Messages:  wireMessages(a.state.Messages()),
		Tools:     a.cfg.Tools.Definitions(),
		MaxTokens: a.cfg.MaxTokens,
	}
}

// finalize seals the streaming assistant message with its usage.
func (a *Agent) finalize(usage types.Usage) {
	if err := a.state.FinalizeAssistant(usage); err != nil {
		a.cfg.Logger.Warn("assistant message persist failed",
			"session", a.SessionID(), "err", err)
	}
}

// abortOpenToolBlocks marks every tool block that never reached the terminal
// stage as aborted.
func (a *Agent) abortOpenToolBlocks(resp *llm.Response) {
	if resp == nil {
		return
	}
	for _, b := range resp.ToolUseBlocks() {
		a.state.UpdateToolBlock(b.ToolUseID, func(blk *types.Block) {
			blk.EndTool(false, "", "aborted")
		})
	}
}

// continueAfterStop fires the Stop hook. A hook withholding completion
// forces another round-trip, feeding its reason back into the conversation.
func (a *Agent) continueAfterStop(ctx context.Context) bool {
	if ctx.Err() != nil || a.cfg.Hooks == nil || !a.cfg.Hooks.Has(types.HookEventStop) {
		a.stopHookActive = false
		return false
	}

	payload := hooks.StopPayload{
		Meta:           a.hookMeta(types.HookEventStop),
		StopHookActive: a.stopHookActive,
	}
	results, err := a.cfg.Hooks.Fire(types.HookEventStop, "", payload)
	if err != nil {
		a.cfg.Logger.Warn("stop hook failed", "err", err)
		a.stopHookActive = false
		return false
	}

	stopped, reason := hooks.Stopped(results)
	if !stopped {
		if blocked, blockReason := hooks.Blocked(results); blocked {
			stopped, reason = true, blockReason
		}
	}
	if !stopped {
		a.stopHookActive = false
		return false
	}

	if reason == "" {
		reason = "A stop hook requested that the turn continue."
	}
	if err := a.state.AddUserMessage(reason); err != nil {
		a.cfg.Logger.Warn("stop hook continuation persist failed", "err", err)
	}
	a.stopHookActive = true
	return true
}

// maybeCompress synthesizes a compress block and truncates older history
// when cumulative input tokens cross the threshold. A summarization failure
// degrades to keeping the full history.
func (a *Agent) maybeCompress(ctx context.Context) {
	if a.state.TotalUsage().InputTokens <= a.cfg.CompressThreshold {
		return
	}
	if a.state.Len() <= a.cfg.KeepRecentMessages {
		return
	}

	a.mu.Lock()
	a.compressing = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.compressing = false
		a.mu.Unlock()
	}()

	summary, err := a.summarize(ctx)
	if err != nil {
		a.cfg.Logger.Warn("compression pass failed", "session", a.SessionID(), "err", err)
		return
	}

	dropped := a.state.AddCompressBlock(summary, a.cfg.KeepRecentMessages)
	a.cfg.Logger.Info("history compressed",
		"session", a.SessionID(), "dropped", dropped, "kept", a.cfg.KeepRecentMessages)
}

// summarize asks the model for a summary of the conversation so far without
// touching the message state.
func (a *Agent) summarize(ctx context.Context) (string, error) {
	msgs := wireMessages(a.state.Messages())
	msgs = append(msgs, llm.WireMessage{
		Role:    "user",
		Content: []llm.WireBlock{{Type: "text", Text: compressPrompt}},
	})

	stream, err := a.cfg.Client.Complete(ctx, &llm.Request{
		Model:     a.cfg.Model,
		Messages:  msgs,
		MaxTokens: a.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	resp, err := llm.Accumulate(stream, nil)
	if err != nil {
		return "", err
	}
	summary := assistantText(resp)
	if summary == "" {
		return "", fmt.Errorf("summarization returned no text")
	}
	return summary, nil
}

func assistantText(resp *llm.Response) string {
	var parts []string
	for _, b := range resp.Blocks {
		if b.Type == types.BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}
