package permission

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rsmyth-dev/heron/pkg/types"
)

// Response resolves a pending permission request.
type Response struct {
	Behavior     string // "allow" | "deny"
	Message      string
	DontAskAgain bool                 // persist the suggested rules
	Mode         types.PermissionMode // optional mode change, "" = keep
	UpdatedInput map[string]any       // optional modified tool input
}

// PendingRequest is a permission decision parked on the user. The engine
// suspends on it; a UI layer resolves it asynchronously via Resolve.
type PendingRequest struct {
	ID             string
	ToolName       string
	Input          map[string]any
	SuggestedRules []string // rules that DontAskAgain would persist

	once sync.Once
	resp chan Response
}

// Resolve completes the request. Only the first call has any effect.
func (r *PendingRequest) Resolve(resp Response) {
	r.once.Do(func() {
		r.resp <- resp
		close(r.resp)
	})
}

// Gate is the rendezvous between the engine and whoever answers prompts.
type Gate struct {
	requests chan *PendingRequest
}

// NewGate creates a Gate.
func NewGate() *Gate {
	return &Gate{requests: make(chan *PendingRequest, 8)}
}

// Requests is the consumer side: each received request must be Resolved.
func (g *Gate) Requests() <-chan *PendingRequest {
	return g.requests
}

// Ask publishes a pending request and blocks until it is resolved or ctx is
// cancelled. Cancellation counts as a deny.
func (g *Gate) Ask(ctx context.Context, toolName string, input map[string]any, suggested []string) (Response, error) {
	req := &PendingRequest{
		ID:             uuid.New().String(),
		ToolName:       toolName,
		Input:          input,
		SuggestedRules: suggested,
		resp:           make(chan Response, 1),
	}

	select {
	case g.requests <- req:
	case <-ctx.Done():
		return Response{Behavior: "deny", Message: "permission request cancelled"}, ctx.Err()
	}

	select {
	case resp := <-req.resp:
		return resp, nil
	case <-ctx.Done():
		return Response{Behavior: "deny", Message: "permission request cancelled"}, ctx.Err()
	}
}

// RespondFunc adapts a synchronous decision function into a Gate consumer.
// It runs until ctx is cancelled. Useful for tests and headless setups.
func (g *Gate) RespondFunc(ctx context.Context, fn func(*PendingRequest) Response) {
	go func() {
		for {
			select {
			case req := <-g.requests:
				req.Resolve(fn(req))
			case <-ctx.Done():
				return
			}
		}
	}()
}
