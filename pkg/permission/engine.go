// Package permission decides whether a restricted tool invocation may run.
// A decision layers the current permission mode, the persisted allow-rules,
// and, when nothing matches in default mode, an asynchronous user prompt
// delivered through a Gate. Bash commands are decomposed into atomic
// commands so durable grants persist per sub-command, never the compound
// string.
package permission

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/rsmyth-dev/heron/pkg/settings"
	"github.com/rsmyth-dev/heron/pkg/types"
)

// restrictedTools require a permission decision; anything else always runs.
var restrictedTools = map[string]bool{
	"Bash":         true,
	"Write":        true,
	"Edit":         true,
	"MultiEdit":    true,
	"Delete":       true,
	"ExitPlanMode": true,
	"AskUser":      true,
}

// editTools are auto-allowed in acceptEdits mode.
var editTools = map[string]bool{
	"Write":     true,
	"Edit":      true,
	"MultiEdit": true,
	"Delete":    true,
}

// IsRestricted reports whether a tool is subject to permission checks.
func IsRestricted(toolName string) bool {
	return restrictedTools[toolName]
}

// Decision is the outcome of a permission check.
type Decision struct {
	Behavior     string // "allow" | "deny"
	Message      string
	UpdatedInput map[string]any // nil if unchanged
	NeededPrompt bool           // the user was consulted for this decision
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	Mode        types.PermissionMode
	Workdir     string
	AllowRules  []string // persisted rule strings, e.g. "Bash(git status)"
	Gate        *Gate    // nil = headless, unmatched requests are denied
	PersistPath string   // settings file receiving durable grants, "" = in-memory only
	Logger      *slog.Logger
}

// Engine evaluates permissions for tool invocations.
type Engine struct {
	mu      sync.RWMutex
	mode    types.PermissionMode
	rules   *ruleSet
	workdir string

	gate        *Gate
	persistPath string
	logger      *slog.Logger
}

// NewEngine creates an Engine from configuration.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	mode := cfg.Mode
	if mode == "" {
		mode = types.PermissionModeDefault
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid permission mode %q", mode)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		mode:        mode,
		rules:       newRuleSet(ParseRules(cfg.AllowRules)),
		workdir:     cfg.Workdir,
		gate:        cfg.Gate,
		persistPath: cfg.PersistPath,
		logger:      logger,
	}, nil
}

// Mode returns the current permission mode.
func (e *Engine) Mode() types.PermissionMode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

// SetMode changes the permission mode.
func (e *Engine) SetMode(mode types.PermissionMode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid permission mode %q", mode)
	}
	e.mu.Lock()
	e.mode = mode
	e.mu.Unlock()
	return nil
}

// Check evaluates one tool invocation. Non-restricted tools always allow.
// When the rules don't decide and the mode is default, the decision is
// delegated to the gate; without a gate the call is denied.
func (e *Engine) Check(ctx context.Context, toolName string, input map[string]any) (Decision, error) {
	if !IsRestricted(toolName) {
		return Decision{Behavior: "allow"}, nil
	}

	e.mu.RLock()
	mode := e.mode
	e.mu.RUnlock()

	switch mode {
	case types.PermissionModeBypass:
		return Decision{Behavior: "allow"}, nil

	case types.PermissionModePlan:
		if toolName == "ExitPlanMode" {
			return Decision{Behavior: "allow"}, nil
		}
		return Decision{
			Behavior: "deny",
			Message:  "tool execution is not allowed in plan mode",
		}, nil

	case types.PermissionModeAcceptEdits:
		if editTools[toolName] {
			return Decision{Behavior: "allow"}, nil
		}
	}

	// AskUser is the prompt itself; gating it through the gate again would
	// nest prompts.
	if toolName == "AskUser" {
		return Decision{Behavior: "allow"}, nil
	}

	if e.matchesRules(toolName, input) {
		return Decision{Behavior: "allow"}, nil
	}

	return e.askUser(ctx, toolName, input)
}

// matchesRules checks the persisted allow-rules. For Bash, every non-safe
// atomic command of the (decomposed) input must be covered.
func (e *Engine) matchesRules(toolName string, input map[string]any) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if toolName == "Bash" {
		command, _ := input["command"].(string)
		if command == "" {
			return false
		}
		atoms := SplitCommand(command)
		if len(atoms) == 0 {
			return false
		}
		for _, atom := range atoms {
			if IsSafeCommand(atom, e.workdir) {
				continue
			}
			if !e.rules.covers("Bash", NormalizeCommand(atom)) {
				return false
			}
		}
		return true
	}

	value := pathValue(input)
	return e.rules.covers(toolName, value)
}

// pathValue extracts the input field rules match against for file tools.
func pathValue(input map[string]any) string {
	for _, key := range []string{"file_path", "path"} {
		if v, ok := input[key].(string); ok {
			return v
		}
	}
	return ""
}

func (e *Engine) askUser(ctx context.Context, toolName string, input map[string]any) (Decision, error) {
	if e.gate == nil {
		return Decision{
			Behavior: "deny",
			Message:  "permission denied (no interactive prompt available)",
		}, nil
	}

	suggested := e.suggestedRules(toolName, input)
	resp, err := e.gate.Ask(ctx, toolName, input, suggested)
	if err != nil {
		return Decision{Behavior: "deny", Message: resp.Message, NeededPrompt: true}, nil
	}

	if resp.Mode != "" {
		if err := e.SetMode(resp.Mode); err != nil {
			e.logger.Warn("ignoring invalid mode from permission response", "mode", resp.Mode)
		}
	}

	if resp.Behavior != "allow" {
		msg := resp.Message
		if msg == "" {
			msg = "permission denied by user"
		}
		return Decision{Behavior: "deny", Message: msg, NeededPrompt: true}, nil
	}

	if resp.DontAskAgain {
		e.persistRules(suggested)
	}

	return Decision{
		Behavior:     "allow",
		UpdatedInput: resp.UpdatedInput,
		NeededPrompt: true,
	}, nil
}

// suggestedRules computes the rules a durable grant would persist.
func (e *Engine) suggestedRules(toolName string, input map[string]any) []string {
	if toolName == "Bash" {
		command, _ := input["command"].(string)
		var out []string
		for _, content := range ExpandRules(command, e.workdir) {
			out = append(out, Rule{ToolName: "Bash", Content: content}.String())
		}
		return out
	}
	if value := pathValue(input); value != "" {
		return []string{Rule{ToolName: toolName, Content: value}.String()}
	}
	return nil
}

// persistRules adds rules to the in-memory set and, when a persist path is
// configured, to the settings document.
func (e *Engine) persistRules(ruleStrings []string) {
	if len(ruleStrings) == 0 {
		return
	}

	e.mu.Lock()
	for _, r := range ParseRules(ruleStrings) {
		e.rules.add(r)
	}
	e.mu.Unlock()

	if e.persistPath == "" {
		return
	}
	if err := settings.AppendAllowRules(e.persistPath, ruleStrings); err != nil {
		e.logger.Warn("failed to persist permission rules",
			"path", e.persistPath,
			"rules", strings.Join(ruleStrings, ", "),
			"err", err)
	}
}
