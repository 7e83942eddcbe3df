package agent

import (
	"github.com/rsmyth-dev/heron/pkg/llm"
	"github.com/rsmyth-dev/heron/pkg/types"
)

// wireMessages serializes the conversation into the model wire format.
// Tool blocks carry their outcome inline in the state; on the wire each
// tool_use must be answered by a tool_result in a following user message,
// so terminal tool blocks are split into both halves here.
func wireMessages(msgs []types.Message) []llm.WireMessage {
	var out []llm.WireMessage
	for _, msg := range msgs {
		switch msg.Role {
		case types.RoleUser:
			if wm := userWire(msg); len(wm.Content) > 0 {
				out = append(out, wm)
			}
		case types.RoleAssistant:
			assistant, results := assistantWire(msg)
			if len(assistant.Content) > 0 {
				out = append(out, assistant)
			}
			if len(results.Content) > 0 {
				out = append(out, results)
			}
		case types.RoleSubagent:
			if wm := subagentWire(msg); len(wm.Content) > 0 {
				out = append(out, wm)
			}
		}
	}
	return out
}

func userWire(msg types.Message) llm.WireMessage {
	wm := llm.WireMessage{Role: "user"}
	for _, b := range msg.Blocks {
		switch b.Type {
		case types.BlockText, types.BlockError:
			wm.Content = append(wm.Content, llm.WireBlock{Type: "text", Text: b.Text})
		case types.BlockMemory:
			wm.Content = append(wm.Content, llm.WireBlock{
				Type: "text",
				Text: "<memory>\n" + b.Text + "\n</memory>",
			})
		case types.BlockCompress:
			wm.Content = append(wm.Content, llm.WireBlock{
				Type: "text",
				Text: "Earlier conversation summary:\n" + b.Text,
			})
		case types.BlockImage:
			wm.Content = append(wm.Content, llm.WireBlock{
				Type:      "image",
				MediaType: b.MediaType,
				Data:      b.Data,
			})
		case types.BlockCommandOutput:
			wm.Content = append(wm.Content, llm.WireBlock{
				Type: "text",
				Text: "Output of `" + b.Command + "`:\n" + b.Output,
			})
		}
	}
	return wm
}

func assistantWire(msg types.Message) (assistant, results llm.WireMessage) {
	assistant = llm.WireMessage{Role: "assistant"}
	results = llm.WireMessage{Role: "user"}
	for _, b := range msg.Blocks {
		switch b.Type {
		case types.BlockText:
			if b.Text != "" {
				assistant.Content = append(assistant.Content, llm.WireBlock{Type: "text", Text: b.Text})
			}
		case types.BlockTool:
			assistant.Content = append(assistant.Content, llm.WireBlock{
				Type:  "tool_use",
				ID:    b.ToolUseID,
				Name:  b.ToolName,
				Input: b.Input,
			})
			results.Content = append(results.Content, toolResultWire(b))
		}
	}
	return assistant, results
}

// toolResultWire renders a tool block's outcome. A block that never reached
// the terminal stage still gets a result so the wire history stays valid.
func toolResultWire(b types.Block) llm.WireBlock {
	wb := llm.WireBlock{Type: "tool_result", ToolUseID: b.ToolUseID}
	switch {
	case b.Stage != types.StageEnd:
		wb.Content = "Tool execution did not complete."
		wb.IsError = true
	case b.Success != nil && !*b.Success:
		wb.Content = b.ErrText
		if wb.Content == "" {
			wb.Content = b.Result
		}
		wb.IsError = true
	default:
		wb.Content = b.Result
	}
	return wb
}

func subagentWire(msg types.Message) llm.WireMessage {
	wm := llm.WireMessage{Role: "user"}
	for _, b := range msg.Blocks {
		if b.Type == types.BlockSubagent && b.Text != "" {
			wm.Content = append(wm.Content, llm.WireBlock{Type: "text", Text: b.Text})
		}
	}
	return wm
}
