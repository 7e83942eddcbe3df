package subagent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rsmyth-dev/heron/pkg/agent"
	"github.com/rsmyth-dev/heron/pkg/bgtask"
	"github.com/rsmyth-dev/heron/pkg/hooks"
	"github.com/rsmyth-dev/heron/pkg/message"
	"github.com/rsmyth-dev/heron/pkg/tools"
	"github.com/rsmyth-dev/heron/pkg/types"
)

// Instance lifecycle states.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusAborted   = "aborted"
)

// Instance is one running or finished delegation.
type Instance struct {
	ID         string
	Definition Definition

	agent *agent.Agent
	done  chan struct{}

	mu     sync.Mutex
	status string
	result string
	errMsg string
}

// Status returns the instance's lifecycle state.
func (in *Instance) Status() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.status
}

// SessionID returns the instance's isolated session id.
func (in *Instance) SessionID() string { return in.agent.SessionID() }

func (in *Instance) finish(status, result, errMsg string) {
	in.mu.Lock()
	in.status = status
	in.result = result
	in.errMsg = errMsg
	in.mu.Unlock()
	close(in.done)
}

// Delegator runs tasks in isolated subagent instances. It satisfies both the
// delegation and the background task-source contracts of the tool layer.
type Delegator struct {
	registry *Registry

	// Base is the parent agent's resolved configuration; each delegation
	// derives a child config from it.
	base agent.Config

	// parentState receives a reference block per completed delegation so
	// the sub-conversation is reachable from the parent transcript.
	parentState *message.State

	logger *slog.Logger

	mu        sync.Mutex
	instances map[string]*Instance
}

var (
	_ tools.Delegator  = (*Delegator)(nil)
	_ tools.TaskSource = (*Delegator)(nil)
)

// NewDelegator builds a Delegator over the definition registry. base must be
// the parent agent's config; parentState may be nil.
func NewDelegator(reg *Registry, base agent.Config, parentState *message.State, logger *slog.Logger) *Delegator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Delegator{
		registry:    reg,
		base:        base,
		parentState: parentState,
		logger:      logger,
		instances:   make(map[string]*Instance),
	}
}

// Delegate resolves a definition, spins up an isolated agent for it, and runs
// the task. Foreground delegations block until the subagent finishes and
// return only its final output; background delegations return immediately
// with a task id for TaskOutput polling.
func (d *Delegator) Delegate(ctx context.Context, req tools.DelegationRequest) (tools.DelegationResult, error) {
	def, err := d.registry.Select(req.SubagentType, req.Description)
	if err != nil {
		return tools.DelegationResult{}, err
	}

	inst, err := d.spawn(def)
	if err != nil {
		return tools.DelegationResult{}, err
	}

	if req.RunInBackground {
		// Detached from the calling tool step: the parent's abort does not
		// reach a background delegation, only KillTask does.
		go d.run(context.Background(), inst, req.Prompt)
		return tools.DelegationResult{
			SubagentID:       inst.ID,
			Content:          fmt.Sprintf("Started background subagent %s (%s).", inst.ID, def.Name),
			BackgroundTaskID: inst.ID,
		}, nil
	}

	d.run(ctx, inst, req.Prompt)

	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.status != StatusCompleted {
		return tools.DelegationResult{}, fmt.Errorf("subagent %s %s: %s", def.Name, inst.status, inst.errMsg)
	}
	return tools.DelegationResult{SubagentID: inst.ID, Content: inst.result}, nil
}

// spawn derives a child config from the parent's and constructs the
// instance. The depth guard lives here: a subagent's own Delegate call
// arrives with the incremented depth already at the limit.
func (d *Delegator) spawn(def Definition) (*Instance, error) {
	cfg := d.base
	if cfg.MaxDelegationDepth == 0 {
		cfg.MaxDelegationDepth = agent.DefaultMaxDelegationDepth
	}
	cfg.DelegationDepth++
	if cfg.DelegationDepth > cfg.MaxDelegationDepth {
		return nil, fmt.Errorf("delegation depth limit %d reached; %s cannot delegate further",
			cfg.MaxDelegationDepth, def.Name)
	}

	cfg.SessionType = types.SessionSubagent
	cfg.ParentSessionID = d.parentSessionID()
	cfg.Resume = ""
	cfg.ContinueLast = false
	cfg.SystemPrompt = def.Prompt
	if !def.InheritsModel() {
		cfg.Model = def.Model
	}

	// Restricted tool set, with delegation itself always stripped.
	reg := d.base.Tools
	if def.Tools != nil {
		reg = reg.Restrict(def.Tools)
	}
	cfg.Tools = reg.Without("Task")

	a, err := agent.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("spawn subagent %s: %w", def.Name, err)
	}

	inst := &Instance{
		ID:         "sub-" + uuid.NewString()[:8],
		Definition: def,
		agent:      a,
		done:       make(chan struct{}),
		status:     StatusActive,
	}
	d.mu.Lock()
	d.instances[inst.ID] = inst
	d.mu.Unlock()
	return inst, nil
}

// run executes the task inside the instance and records the outcome. Failures
// never escape; they surface as instance state for the caller to report.
func (d *Delegator) run(ctx context.Context, inst *Instance, prompt string) {
	res, err := inst.agent.Prompt(ctx, prompt)

	switch {
	case err != nil:
		inst.finish(StatusError, "", err.Error())
	case res.ExitReason == agent.ExitAborted:
		inst.finish(StatusAborted, "", "aborted")
	default:
		inst.finish(StatusCompleted, res.Text, "")
	}

	d.fireSubagentStop(inst)
	d.recordReference(inst)
}

func (d *Delegator) fireSubagentStop(inst *Instance) {
	runner := d.base.Hooks
	if runner == nil || !runner.Has(types.HookEventSubagentStop) {
		return
	}
	payload := hooks.SubagentStopPayload{
		Meta: hooks.Meta{
			SessionID:      inst.agent.SessionID(),
			TranscriptPath: inst.agent.State().TranscriptPath(),
			CWD:            d.base.Workdir,
			HookEventName:  string(types.HookEventSubagentStop),
		},
		SubagentID:   inst.ID,
		SubagentType: inst.Definition.Name,
	}
	if _, err := runner.Fire(types.HookEventSubagentStop, "", payload); err != nil {
		d.logger.Warn("subagent stop hook failed", "subagent", inst.ID, "err", err)
	}
}

// recordReference links the sub-conversation into the parent transcript.
func (d *Delegator) recordReference(inst *Instance) {
	if d.parentState == nil {
		return
	}
	inst.mu.Lock()
	summary := inst.result
	if summary == "" {
		summary = inst.errMsg
	}
	inst.mu.Unlock()

	err := d.parentState.AddSubagentMessage(inst.agent.SessionID(), inst.Definition.Name, summary)
	if err != nil {
		d.logger.Warn("subagent reference persist failed", "subagent", inst.ID, "err", err)
	}
}

func (d *Delegator) parentSessionID() string {
	if d.parentState == nil {
		return ""
	}
	return d.parentState.SessionID()
}

// Get returns a tracked instance.
func (d *Delegator) Get(id string) (*Instance, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	inst, ok := d.instances[id]
	return inst, ok
}

// TaskOutput implements tools.TaskSource for background delegations.
func (d *Delegator) TaskOutput(id string, wait bool, timeout time.Duration) (tools.TaskSnapshot, error) {
	inst, ok := d.Get(id)
	if !ok {
		return tools.TaskSnapshot{}, fmt.Errorf("%w: %s", bgtask.ErrNotFound, id)
	}

	if wait {
		select {
		case <-inst.done:
		case <-time.After(timeout):
		}
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	out := inst.result
	if inst.status == StatusError || inst.status == StatusAborted {
		out = inst.errMsg
	}
	return tools.TaskSnapshot{
		ID:     id,
		Status: inst.status,
		Output: out,
		Done:   inst.status != StatusActive,
	}, nil
}

// KillTask implements tools.TaskSource: aborts the instance's active turn.
func (d *Delegator) KillTask(id string) error {
	inst, ok := d.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", bgtask.ErrNotFound, id)
	}
	inst.agent.Abort()
	return nil
}
