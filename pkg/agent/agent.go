// Package agent wires the loop driver to the message state, permission
// engine, hook runner, and tool registry. One Agent owns one session.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rsmyth-dev/heron/pkg/hooks"
	"github.com/rsmyth-dev/heron/pkg/message"
	"github.com/rsmyth-dev/heron/pkg/types"
)

// ErrPromptBlocked wraps the reason a UserPromptSubmit hook rejected a prompt.
var ErrPromptBlocked = errors.New("prompt blocked by hook")

// ErrBusy is returned when Prompt is called while a turn is in flight.
var ErrBusy = errors.New("agent: a turn is already running")

// Agent drives the tool-calling loop for one session.
type Agent struct {
	cfg   Config
	state *message.State

	mu          sync.Mutex
	cancel      context.CancelFunc // active turn, nil when idle
	loading     bool
	compressing bool

	// pendingContext collects hook-provided context to inject into the
	// system prompt on the next model call.
	pendingContext []string

	// stopHookActive is true while a turn forced by a Stop hook is running,
	// so the next Stop payload can warn hooks against continuation loops.
	stopHookActive bool
}

// New constructs an Agent. Configuration errors fail here; the loop never
// starts from a half-valid Config.
func New(cfg Config) (*Agent, error) {
	cfg.resolve()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Agent{
		cfg:   cfg,
		state: cfg.newState(),
	}, nil
}

// SessionID returns the id of the bound session.
func (a *Agent) SessionID() string { return a.state.SessionID() }

// State exposes the message state for display layers and delegators.
func (a *Agent) State() *message.State { return a.state }

// Loading reports whether a model turn or tool execution is in flight.
func (a *Agent) Loading() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loading
}

// Compressing reports whether a compression pass is in flight.
func (a *Agent) Compressing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.compressing
}

// Prompt submits user input and runs the loop until the model finishes its
// turn, a limit is reached, or ctx is cancelled. One turn at a time.
func (a *Agent) Prompt(ctx context.Context, text string, attachments ...types.Block) (*TurnResult, error) {
	a.mu.Lock()
	if a.loading {
		a.mu.Unlock()
		return nil, ErrBusy
	}
	turnCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.loading = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.loading = false
		a.cancel = nil
		a.mu.Unlock()
		cancel()
	}()

	if err := a.fireUserPromptSubmit(text); err != nil {
		return nil, err
	}

	if err := a.state.AddUserMessage(text, attachments...); err != nil {
		a.cfg.Logger.Warn("user message persist failed", "session", a.SessionID(), "err", err)
	}

	return a.runLoop(turnCtx)
}

// Abort cancels the active turn. Idempotent: a second call, or a call while
// idle, has no further effect. Committed blocks are untouched.
func (a *Agent) Abort() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Destroy aborts any active turn, force-terminates all background tasks,
// and closes the session writer. The Agent is unusable afterwards.
func (a *Agent) Destroy() error {
	a.Abort()
	if a.cfg.Tasks != nil {
		a.cfg.Tasks.KillAll()
	}
	if a.cfg.Store != nil {
		return a.cfg.Store.Close()
	}
	return nil
}

// Notify fires the Notification hook event. Hosts call this when the agent
// needs the user's attention, such as a pending permission prompt.
func (a *Agent) Notify(msg string) {
	if a.cfg.Hooks == nil || !a.cfg.Hooks.Has(types.HookEventNotification) {
		return
	}
	payload := hooks.NotificationPayload{
		Meta:    a.hookMeta(types.HookEventNotification),
		Message: msg,
	}
	if _, err := a.cfg.Hooks.Fire(types.HookEventNotification, "", payload); err != nil {
		a.cfg.Logger.Warn("notification hook failed", "err", err)
	}
}

// fireUserPromptSubmit runs UserPromptSubmit hooks. A blocking decision
// rejects the prompt before it enters the conversation.
func (a *Agent) fireUserPromptSubmit(text string) error {
	if a.cfg.Hooks == nil || !a.cfg.Hooks.Has(types.HookEventUserPromptSubmit) {
		return nil
	}
	payload := hooks.UserPromptSubmitPayload{
		Meta:   a.hookMeta(types.HookEventUserPromptSubmit),
		Prompt: text,
	}
	results, err := a.cfg.Hooks.Fire(types.HookEventUserPromptSubmit, "", payload)
	if err != nil {
		return fmt.Errorf("user prompt hook: %w", err)
	}
	if blocked, reason := hooks.Blocked(results); blocked {
		if reason == "" {
			reason = "rejected"
		}
		return fmt.Errorf("%w: %s", ErrPromptBlocked, reason)
	}
	a.mu.Lock()
	a.pendingContext = append(a.pendingContext, hooks.AdditionalContext(results)...)
	a.pendingContext = append(a.pendingContext, hooks.SystemMessages(results)...)
	a.mu.Unlock()
	return nil
}

func (a *Agent) hookMeta(event types.HookEvent) hooks.Meta {
	return hooks.Meta{
		SessionID:      a.SessionID(),
		TranscriptPath: a.state.TranscriptPath(),
		CWD:            a.cfg.Workdir,
		HookEventName:  string(event),
	}
}
