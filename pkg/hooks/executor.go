// Package hooks runs user-configured shell commands at agent lifecycle
// events. Hook configuration comes from the merged settings files and is
// validated up front; a bad configuration fails at construction, not at the
// moment a hook fires. Each command receives a JSON payload on stdin and may
// answer with structured JSON on stdout. Structured output always beats the
// exit code.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rsmyth-dev/heron/pkg/settings"
)

// DefaultTimeout bounds a hook command that sets no timeout of its own.
const DefaultTimeout = 10 * time.Second

// projectDirEnv is exported to every hook command.
const projectDirEnv = "HERON_PROJECT_DIR"

// ErrTimeout is returned when a hook command exceeds its timeout.
var ErrTimeout = errors.New("hook command timed out")

// SpecificOutput is the event-specific part of structured hook output.
// PreToolUse hooks use the permission fields; other events only carry
// AdditionalContext.
type SpecificOutput struct {
	HookEventName            string         `json:"hookEventName,omitempty"`
	PermissionDecision       string         `json:"permissionDecision,omitempty"` // "allow" | "deny"
	PermissionDecisionReason string         `json:"permissionDecisionReason,omitempty"`
	UpdatedInput             map[string]any `json:"updatedInput,omitempty"`
	AdditionalContext        string         `json:"additionalContext,omitempty"`
}

// Output is the structured JSON a hook may print on stdout.
type Output struct {
	Continue           *bool           `json:"continue,omitempty"`
	StopReason         string          `json:"stopReason,omitempty"`
	SystemMessage      string          `json:"systemMessage,omitempty"`
	Decision           string          `json:"decision,omitempty"` // "block"
	Reason             string          `json:"reason,omitempty"`
	HookSpecificOutput *SpecificOutput `json:"hookSpecificOutput,omitempty"`
}

// Result is the outcome of one hook command.
type Result struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Output   *Output // nil when stdout was not structured JSON
}

// Blocked reports whether this hook blocked the operation, with the reason.
// Structured output takes precedence; without it, exit code 2 blocks and
// stderr carries the reason.
func (r Result) Blocked() (bool, string) {
	if r.Output != nil {
		if s := r.Output.HookSpecificOutput; s != nil && s.PermissionDecision == "deny" {
			return true, s.PermissionDecisionReason
		}
		if r.Output.Decision == "block" {
			return true, r.Output.Reason
		}
		return false, ""
	}
	if r.ExitCode == 2 {
		return true, strings.TrimSpace(r.Stderr)
	}
	return false, ""
}

// Failed reports whether the command failed without expressing a decision.
// Exit code 2 is a block, not a failure.
func (r Result) Failed() bool {
	return r.Output == nil && r.ExitCode != 0 && r.ExitCode != 2
}

// Executor runs hook commands. It holds only immutable configuration, so a
// single Executor is safe for concurrent use across sessions and subagents.
type Executor struct {
	Workdir string
	Env     []string // extra KEY=VALUE entries beyond the inherited environment
}

// Run executes one hook command with the payload on stdin. The command gets
// its own deadline derived from the background context: aborting the turn
// that triggered the hook does not cancel the hook.
func (e *Executor) Run(hc settings.HookCommand, payload any) (Result, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal hook payload: %w", err)
	}
	data = append(data, '\n')

	timeout := DefaultTimeout
	if hc.TimeoutSeconds > 0 {
		timeout = time.Duration(hc.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", hc.Command)
	cmd.Dir = e.Workdir
	cmd.Stdin = bytes.NewReader(data)
	cmd.Env = append(os.Environ(), projectDirEnv+"="+e.Workdir)
	cmd.Env = append(cmd.Env, e.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return Result{Command: hc.Command, ExitCode: -1, Stderr: stderr.String()},
			fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, hc.Command)
	}

	res := Result{
		Command: hc.Command,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return res, fmt.Errorf("run hook %q: %w", hc.Command, err)
		}
		res.ExitCode = exitErr.ExitCode()
	}

	res.Output = parseOutput(res.Stdout)
	return res, nil
}

// parseOutput decodes structured stdout. Anything that is not a JSON object
// is treated as plain text output.
func parseOutput(stdout string) *Output {
	trimmed := strings.TrimSpace(stdout)
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}
	var out Output
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil
	}
	return &out
}
