package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rsmyth-dev/heron/pkg/bgtask"
	"github.com/rsmyth-dev/heron/pkg/types"
)

// TaskSnapshot is the state a task source reports for one task.
type TaskSnapshot struct {
	ID     string
	Status string
	Output string
	Done   bool
}

// TaskSource resolves background task ids. Shell tasks and background
// subagents are separate sources behind the same tools.
type TaskSource interface {
	// TaskOutput returns the task's unread output. With wait set it blocks
	// until the task finishes or the timeout elapses. Unknown ids return an
	// error wrapping bgtask.ErrNotFound.
	TaskOutput(id string, wait bool, timeout time.Duration) (TaskSnapshot, error)
	// KillTask force-terminates the task.
	KillTask(id string) error
}

// ShellTasks adapts the process registry to the TaskSource interface.
func ShellTasks(reg *bgtask.Registry) TaskSource {
	return &shellTaskSource{reg: reg}
}

type shellTaskSource struct {
	reg *bgtask.Registry
}

func (s *shellTaskSource) TaskOutput(id string, wait bool, timeout time.Duration) (TaskSnapshot, error) {
	proc, err := s.reg.Get(id)
	if err != nil {
		return TaskSnapshot{}, err
	}
	if wait {
		select {
		case <-proc.Done():
		case <-time.After(timeout):
		}
	}
	stdout, stderr, err := proc.Output("")
	if err != nil {
		return TaskSnapshot{}, err
	}
	output := stdout
	if stderr != "" {
		output += stderr
	}
	status := proc.Status()
	return TaskSnapshot{
		ID:     id,
		Status: string(status),
		Output: output,
		Done:   status != bgtask.StatusRunning,
	}, nil
}

func (s *shellTaskSource) KillTask(id string) error {
	return s.reg.Kill(id)
}

// TaskOutputTool reads output from background tasks.
type TaskOutputTool struct {
	Sources []TaskSource
}

func (t *TaskOutputTool) Name() string { return "TaskOutput" }

func (t *TaskOutputTool) Description() string {
	return "Retrieves output from a background task (shell command or subagent) by task_id. Use block=false for a non-blocking peek at current output."
}

func (t *TaskOutputTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task_id": map[string]any{
				"type":        "string",
				"description": "The task ID to read output from",
			},
			"block": map[string]any{
				"type":        "boolean",
				"description": "Wait for the task to finish (default true)",
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Max wait time in milliseconds (default 30000)",
			},
		},
		"required": []string{"task_id"},
	}
}

func (t *TaskOutputTool) Execute(_ context.Context, input map[string]any) (types.ToolResult, error) {
	id, oki := input["task_id"].(string)
	if !oki || id == "" {
		return fail("task_id is required"), nil
	}

	wait := true
	if b, okb := input["block"].(bool); okb {
		wait = b
	}
	timeout := 30 * time.Second
	if ms, okt := input["timeout"].(float64); okt && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	for _, src := range t.Sources {
		snap, err := src.TaskOutput(id, wait, timeout)
		if errors.Is(err, bgtask.ErrNotFound) {
			continue
		}
		if err != nil {
			return fail("%s", err), nil
		}
		content := fmt.Sprintf("Task %s (status: %s)", snap.ID, snap.Status)
		if out := strings.TrimRight(snap.Output, "\n"); out != "" {
			content += ":\n" + out
		}
		return types.ToolResult{Success: true, Content: content, ShortResult: snap.Status}, nil
	}
	return fail("unknown task ID %s", id), nil
}

// KillTaskTool force-terminates a background task.
type KillTaskTool struct {
	Sources []TaskSource
}

func (k *KillTaskTool) Name() string { return "KillTask" }

func (k *KillTaskTool) Description() string {
	return "Kills a background task by task_id. Shell tasks receive SIGTERM first, then SIGKILL to the whole process group."
}

func (k *KillTaskTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task_id": map[string]any{
				"type":        "string",
				"description": "The ID of the background task to kill",
			},
		},
		"required": []string{"task_id"},
	}
}

func (k *KillTaskTool) Execute(_ context.Context, input map[string]any) (types.ToolResult, error) {
	id, oki := input["task_id"].(string)
	if !oki || id == "" {
		return fail("task_id is required"), nil
	}

	for _, src := range k.Sources {
		err := src.KillTask(id)
		if errors.Is(err, bgtask.ErrNotFound) {
			continue
		}
		if err != nil {
			return fail("%s", err), nil
		}
		return ok(fmt.Sprintf("Task %s killed.", id)), nil
	}
	return fail("unknown task ID %s", id), nil
}
