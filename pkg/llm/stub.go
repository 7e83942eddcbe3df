package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rsmyth-dev/heron/pkg/types"
)

// ScriptedTurn is one canned model response for StubClient.
type ScriptedTurn struct {
	Events []*Event
}

// TextTurn scripts a plain text end_turn response.
func TextTurn(text string) ScriptedTurn {
	return ScriptedTurn{Events: []*Event{
		{Type: EventBlockStart, Index: 0, BlockType: "text"},
		{Type: EventBlockDelta, Index: 0, TextDelta: text},
		{Type: EventBlockStop, Index: 0},
		{Type: EventMessageStop, StopReason: "end_turn", Usage: types.Usage{InputTokens: 10, OutputTokens: len(text) / 4}},
	}}
}

// ToolTurn scripts a single tool_use response. The input is streamed as one
// JSON delta, the way small inputs typically arrive.
func ToolTurn(toolUseID, toolName string, input map[string]any) ScriptedTurn {
	raw, _ := json.Marshal(input)
	return ScriptedTurn{Events: []*Event{
		{Type: EventBlockStart, Index: 0, BlockType: "tool_use", ToolUseID: toolUseID, ToolName: toolName},
		{Type: EventBlockDelta, Index: 0, InputJSONDelta: string(raw)},
		{Type: EventBlockStop, Index: 0},
		{Type: EventMessageStop, StopReason: "tool_use", Usage: types.Usage{InputTokens: 20, OutputTokens: 15}},
	}}
}

// StubClient replays scripted turns in order. Once the script is exhausted it
// returns a plain "done" end_turn so loops always terminate.
type StubClient struct {
	mu    sync.Mutex
	turns []ScriptedTurn
	calls []*Request
}

// NewStubClient creates a StubClient that replays the given turns.
func NewStubClient(turns ...ScriptedTurn) *StubClient {
	return &StubClient{turns: turns}
}

// Complete implements Client.
func (c *StubClient) Complete(ctx context.Context, req *Request) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.calls = append(c.calls, req)
	var turn ScriptedTurn
	if len(c.turns) > 0 {
		turn = c.turns[0]
		c.turns = c.turns[1:]
	} else {
		turn = TextTurn("done")
	}
	c.mu.Unlock()

	ch := make(chan *Event, len(turn.Events))
	for _, ev := range turn.Events {
		ch <- ev
	}
	close(ch)
	return NewEventStream(ch, nil), nil
}

// Calls returns the requests seen so far.
func (c *StubClient) Calls() []*Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Request, len(c.calls))
	copy(out, c.calls)
	return out
}

// ErrClient always fails, for exercising error paths.
type ErrClient struct{ Err error }

func (c *ErrClient) Complete(context.Context, *Request) (Stream, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	return nil, fmt.Errorf("model service unavailable")
}
