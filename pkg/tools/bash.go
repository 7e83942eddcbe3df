package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rsmyth-dev/heron/pkg/bgtask"
	"github.com/rsmyth-dev/heron/pkg/types"
)

const (
	bashDefaultTimeout = 120 * time.Second
	bashMaxTimeout     = 600 * time.Second
	bashMaxOutput      = 30000 // characters
)

// BashTool executes shell commands, foreground or backgrounded through the
// task registry.
type BashTool struct {
	Workdir string
	Tasks   *bgtask.Registry // nil disables run_in_background
}

func (b *BashTool) Name() string { return "Bash" }

func (b *BashTool) Description() string {
	return "Executes a bash command with an optional timeout. Set run_in_background to start a long-running command and poll it later with TaskOutput."
}

func (b *BashTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The command to execute",
			},
			"timeout": map[string]any{
				"type":        "integer",
				"description": "Optional timeout in milliseconds (max 600000)",
			},
			"description": map[string]any{
				"type":        "string",
				"description": "Clear, concise description of what this command does",
			},
			"run_in_background": map[string]any{
				"type":        "boolean",
				"description": "Set to true to run this command in the background",
			},
		},
		"required": []string{"command"},
	}
}

func (b *BashTool) FormatParams(input map[string]any) string {
	if desc, ok := input["description"].(string); ok && desc != "" {
		return desc
	}
	command, _ := input["command"].(string)
	return command
}

func (b *BashTool) Execute(ctx context.Context, input map[string]any) (types.ToolResult, error) {
	command, okc := input["command"].(string)
	if !okc || command == "" {
		return fail("command is required"), nil
	}

	if bg, _ := input["run_in_background"].(bool); bg {
		return b.executeBackground(command)
	}
	return b.executeForeground(ctx, command, input)
}

func (b *BashTool) executeBackground(command string) (types.ToolResult, error) {
	if b.Tasks == nil {
		return fail("background execution not available"), nil
	}
	proc, err := b.Tasks.Start(command, b.Workdir, nil)
	if err != nil {
		return fail("start background command: %s", err), nil
	}
	return types.ToolResult{
		Success:     true,
		Content:     fmt.Sprintf("Command started in background with task ID %s. Use TaskOutput with task_id=%q to read its output.", proc.ID, proc.ID),
		ShortResult: "started " + proc.ID,
	}, nil
}

func (b *BashTool) executeForeground(ctx context.Context, command string, input map[string]any) (types.ToolResult, error) {
	timeout := bashDefaultTimeout
	if t, okt := input["timeout"].(float64); okt && t > 0 {
		timeout = time.Duration(t) * time.Millisecond
		if timeout > bashMaxTimeout {
			timeout = bashMaxTimeout
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = b.Workdir

	out, err := cmd.CombinedOutput()
	result := truncateOutput(string(out))

	if ctx.Err() == context.DeadlineExceeded {
		return fail("command timed out after %s\n%s", timeout, result), nil
	}
	if ctx.Err() == context.Canceled {
		return fail("command aborted\n%s", result), nil
	}
	if err != nil {
		return types.ToolResult{
			Success: false,
			Content: strings.TrimRight(result, "\n"),
			Error:   err.Error(),
		}, nil
	}
	return ok(strings.TrimRight(result, "\n")), nil
}

func truncateOutput(s string) string {
	if len(s) <= bashMaxOutput {
		return s
	}
	return s[:bashMaxOutput] + fmt.Sprintf(
		"\n... (truncated, %d total characters; pipe through head/tail to limit output)", len(s))
}
