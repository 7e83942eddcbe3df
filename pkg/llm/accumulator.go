package llm

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/rsmyth-dev/heron/pkg/types"
)

// Response is the fully accumulated result of a streamed model turn.
type Response struct {
	Blocks     []types.Block
	StopReason string
	Usage      types.Usage
}

// BlockCallback observes a block as it materializes. It is invoked once per
// stage change: on block_start with a start-stage block, on each delta with
// the partially filled streaming-stage block, and on block_stop with the
// completed block. The callback receives a copy; mutations are not read back.
type BlockCallback func(index int, block types.Block)

// Accumulate drains a stream into a Response. cb may be nil.
//
// Text blocks accumulate their deltas into Text. Tool blocks accumulate the
// incremental input JSON and decode it when the block stops; a tool block is
// reported at stage start, then streaming while deltas arrive, and is left at
// stage streaming when complete. Advancing to running/end is the loop
// driver's job, since only it knows when execution begins.
func Accumulate(s Stream, cb BlockCallback) (*Response, error) {
	defer s.Close()

	resp := &Response{}
	var inputBufs []strings.Builder

	emit := func(i int) {
		if cb != nil {
			cb(i, resp.Blocks[i])
		}
	}

	for {
		ev, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return finish(resp, inputBufs, err)
		}

		switch ev.Type {
		case EventBlockStart:
			for len(resp.Blocks) <= ev.Index {
				resp.Blocks = append(resp.Blocks, types.Block{})
				inputBufs = append(inputBufs, strings.Builder{})
			}
			switch ev.BlockType {
			case "tool_use":
				resp.Blocks[ev.Index] = types.ToolBlock(ev.ToolUseID, ev.ToolName, nil)
			default:
				resp.Blocks[ev.Index] = types.TextBlock("")
			}
			emit(ev.Index)

		case EventBlockDelta:
			if ev.Index >= len(resp.Blocks) {
				continue // delta for an unannounced block; drop it
			}
			b := &resp.Blocks[ev.Index]
			if ev.TextDelta != "" {
				b.Text += ev.TextDelta
			}
			if ev.InputJSONDelta != "" {
				inputBufs[ev.Index].WriteString(ev.InputJSONDelta)
				b.AdvanceStage(types.StageStreaming)
			}
			emit(ev.Index)

		case EventBlockStop:
			if ev.Index >= len(resp.Blocks) {
				continue
			}
			b := &resp.Blocks[ev.Index]
			if b.Type == types.BlockTool {
				b.Input = decodeInput(inputBufs[ev.Index].String())
				b.AdvanceStage(types.StageStreaming)
			}
			emit(ev.Index)

		case EventMessageStop:
			resp.StopReason = ev.StopReason
			resp.Usage = ev.Usage
		}
	}

	return resp, nil
}

func finish(resp *Response, bufs []strings.Builder, err error) (*Response, error) {
	// Decode whatever tool input arrived before the failure so the caller
	// can report a meaningful aborted block.
	for i := range resp.Blocks {
		if resp.Blocks[i].Type == types.BlockTool && resp.Blocks[i].Input == nil {
			resp.Blocks[i].Input = decodeInput(bufs[i].String())
		}
	}
	return resp, err
}

func decodeInput(raw string) map[string]any {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return map[string]any{}
	}
	return input
}

// ToolUseBlocks returns the tool blocks of a response, in order.
func (r *Response) ToolUseBlocks() []types.Block {
	var out []types.Block
	for _, b := range r.Blocks {
		if b.Type == types.BlockTool {
			out = append(out, b)
		}
	}
	return out
}
