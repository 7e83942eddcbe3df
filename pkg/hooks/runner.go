package hooks

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/rsmyth-dev/heron/pkg/settings"
	"github.com/rsmyth-dev/heron/pkg/types"
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Hooks maps event name to matcher lists, as loaded from settings.
	Hooks   map[string][]settings.HookMatcher
	Workdir string
	Env     []string
	Logger  *slog.Logger
}

// Runner dispatches lifecycle events to their configured hook commands.
type Runner struct {
	hooks  map[types.HookEvent][]settings.HookMatcher
	exec   *Executor
	logger *slog.Logger
}

// NewRunner validates the hook configuration and builds a Runner. Unknown
// event names and empty commands are configuration errors.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	hooks := make(map[types.HookEvent][]settings.HookMatcher, len(cfg.Hooks))
	for name, matchers := range cfg.Hooks {
		event := types.HookEvent(name)
		if !knownEvent(event) {
			return nil, fmt.Errorf("unknown hook event %q", name)
		}
		for _, m := range matchers {
			for _, hc := range m.Hooks {
				if hc.Type != "" && hc.Type != "command" {
					return nil, fmt.Errorf("hook for %q: unsupported type %q", name, hc.Type)
				}
				if strings.TrimSpace(hc.Command) == "" {
					return nil, fmt.Errorf("hook for %q: empty command", name)
				}
				if hc.TimeoutSeconds < 0 {
					return nil, fmt.Errorf("hook for %q: negative timeout", name)
				}
			}
		}
		hooks[event] = matchers
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		hooks:  hooks,
		exec:   &Executor{Workdir: cfg.Workdir, Env: cfg.Env},
		logger: logger,
	}, nil
}

func knownEvent(event types.HookEvent) bool {
	for _, e := range types.KnownHookEvents {
		if e == event {
			return true
		}
	}
	return false
}

// Has reports whether any hooks are configured for an event, letting callers
// skip payload construction entirely.
func (r *Runner) Has(event types.HookEvent) bool {
	return len(r.hooks[event]) > 0
}

// Fire runs every hook configured for the event whose matcher accepts
// toolName, in configuration order. For events without a tool, pass "".
// Each command runs to completion under its own timeout.
//
// A failing hook is logged and the remaining hooks still run, unless the
// command sets continueOnFailure to false; a hook returning continue:false
// stops the remaining hooks without error. Blocking decisions do not
// short-circuit, they are reported in the results.
func (r *Runner) Fire(event types.HookEvent, toolName string, payload any) ([]Result, error) {
	matchers := r.hooks[event]
	if len(matchers) == 0 {
		return nil, nil
	}

	var results []Result
	for _, m := range matchers {
		if !matchTool(m.Matcher, toolName) {
			continue
		}
		for _, hc := range m.Hooks {
			res, err := r.exec.Run(hc, payload)
			if err == nil && res.Failed() {
				err = fmt.Errorf("hook %q exited with code %d: %s",
					hc.Command, res.ExitCode, strings.TrimSpace(res.Stderr))
			}
			if err != nil {
				if hc.StopsOnFailure() {
					return results, err
				}
				r.logger.Warn("hook failed, continuing",
					"event", event, "command", hc.Command, "err", err)
				continue
			}

			results = append(results, res)
			if res.Output != nil && res.Output.Continue != nil && !*res.Output.Continue {
				return results, nil
			}
		}
	}
	return results, nil
}

// matchTool checks a matcher pattern against a tool name. An empty pattern
// matches everything, "A|B" is alternation, and glob characters use
// doublestar matching. Events without a tool name match every pattern.
func matchTool(pattern, toolName string) bool {
	if pattern == "" || toolName == "" {
		return true
	}
	for _, alt := range strings.Split(pattern, "|") {
		alt = strings.TrimSpace(alt)
		if alt == toolName {
			return true
		}
		if strings.ContainsAny(alt, "*?[{") {
			if ok, err := doublestar.Match(alt, toolName); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// Blocked returns the first blocking decision among the results.
func Blocked(results []Result) (bool, string) {
	for _, res := range results {
		if blocked, reason := res.Blocked(); blocked {
			return true, reason
		}
	}
	return false, ""
}

// UpdatedInput returns the last input rewrite requested by a PreToolUse
// hook, or nil.
func UpdatedInput(results []Result) map[string]any {
	var updated map[string]any
	for _, res := range results {
		if res.Output != nil && res.Output.HookSpecificOutput != nil &&
			res.Output.HookSpecificOutput.UpdatedInput != nil {
			updated = res.Output.HookSpecificOutput.UpdatedInput
		}
	}
	return updated
}

// SystemMessages collects systemMessage values in result order.
func SystemMessages(results []Result) []string {
	var msgs []string
	for _, res := range results {
		if res.Output != nil && res.Output.SystemMessage != "" {
			msgs = append(msgs, res.Output.SystemMessage)
		}
	}
	return msgs
}

// AdditionalContext collects additionalContext values in result order.
func AdditionalContext(results []Result) []string {
	var ctxs []string
	for _, res := range results {
		if res.Output != nil && res.Output.HookSpecificOutput != nil &&
			res.Output.HookSpecificOutput.AdditionalContext != "" {
			ctxs = append(ctxs, res.Output.HookSpecificOutput.AdditionalContext)
		}
	}
	return ctxs
}

// Stopped returns whether any hook asked the agent to stop, with the reason.
func Stopped(results []Result) (bool, string) {
	for _, res := range results {
		if res.Output != nil && res.Output.Continue != nil && !*res.Output.Continue {
			return true, res.Output.StopReason
		}
	}
	return false, ""
}
