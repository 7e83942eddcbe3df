// Package llm defines the contract with the model service: the request wire
// format, the streaming event shapes, and a Client interface the loop driver
// consumes. The service itself (HTTP transport, retries, auth) lives outside
// this module; tests and examples use StubClient.
package llm

import (
	"context"
	"io"

	"github.com/rsmyth-dev/heron/pkg/types"
)

// Client is the model inference service. Implementations must be safe for
// concurrent use.
type Client interface {
	// Complete sends a completion request and returns a Stream of events.
	Complete(ctx context.Context, req *Request) (Stream, error)
}

// Stream yields model response events in arrival order.
type Stream interface {
	// Next returns the next event, or io.EOF when the response is complete.
	Next() (*Event, error)
	// Close releases the underlying connection. Safe to call more than once.
	Close() error
}

// Request is the wire form of one model turn.
type Request struct {
	Model     string           `json:"model"`
	System    string           `json:"system,omitempty"`
	Messages  []WireMessage    `json:"messages"`
	Tools     []ToolDefinition `json:"tools,omitempty"`
	MaxTokens int              `json:"max_tokens"`
}

// WireMessage is one conversation entry in the wire format.
type WireMessage struct {
	Role    string      `json:"role"` // "user" | "assistant"
	Content []WireBlock `json:"content"`
}

// WireBlock is a content block in the wire format.
type WireBlock struct {
	Type string `json:"type"` // "text" | "tool_use" | "tool_result" | "image"

	Text string `json:"text,omitempty"`

	// tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// image
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

// ToolDefinition describes a tool available to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// EventType tags a streaming event.
type EventType string

const (
	EventBlockStart  EventType = "block_start"
	EventBlockDelta  EventType = "block_delta"
	EventBlockStop   EventType = "block_stop"
	EventMessageStop EventType = "message_stop"
)

// Event is one incremental piece of a streaming response.
type Event struct {
	Type  EventType
	Index int // block index within the response

	// block_start
	BlockType string // "text" | "tool_use"
	ToolUseID string
	ToolName  string

	// block_delta
	TextDelta      string
	InputJSONDelta string

	// message_stop
	StopReason string // "end_turn" | "tool_use" | "max_tokens"
	Usage      types.Usage
}

// eventStream is a channel-backed Stream used by StubClient and tests.
type eventStream struct {
	events <-chan *Event
	cancel context.CancelFunc
}

// NewEventStream wraps an event channel as a Stream. cancel may be nil.
func NewEventStream(events <-chan *Event, cancel context.CancelFunc) Stream {
	return &eventStream{events: events, cancel: cancel}
}

func (s *eventStream) Next() (*Event, error) {
	ev, ok := <-s.events
	if !ok {
		return nil, io.EOF
	}
	return ev, nil
}

func (s *eventStream) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
