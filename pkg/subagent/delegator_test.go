package subagent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rsmyth-dev/heron/pkg/agent"
	"github.com/rsmyth-dev/heron/pkg/bgtask"
	"github.com/rsmyth-dev/heron/pkg/hooks"
	"github.com/rsmyth-dev/heron/pkg/llm"
	"github.com/rsmyth-dev/heron/pkg/message"
	"github.com/rsmyth-dev/heron/pkg/settings"
	"github.com/rsmyth-dev/heron/pkg/tools"
	"github.com/rsmyth-dev/heron/pkg/types"
)

func writeDefinition(t *testing.T, workdir, name, body string) {
	t.Helper()
	dir := filepath.Join(workdir, ".heron", "agents")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".md"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testRegistry(t *testing.T, workdir string) *Registry {
	t.Helper()
	// Point the user dir somewhere empty so the host machine's own
	// definitions never leak into the test.
	loader := NewLoader(workdir, t.TempDir(), nil)
	return NewRegistry(loader, nil)
}

func baseConfig(t *testing.T, workdir string, client llm.Client, reg *tools.Registry) agent.Config {
	t.Helper()
	if reg == nil {
		reg = tools.NewRegistry()
	}
	return agent.Config{
		Model:   "test-model",
		Workdir: workdir,
		Client:  client,
		Tools:   reg,
	}
}

func TestDelegateForeground(t *testing.T) {
	workdir := t.TempDir()
	writeDefinition(t, workdir, "researcher", `---
name: researcher
description: Digs through code and reports findings.
---
You are a focused research assistant.
`)

	client := llm.NewStubClient(llm.TextTurn("research findings"))
	parent := message.New(message.Options{Workdir: workdir})
	d := NewDelegator(testRegistry(t, workdir), baseConfig(t, workdir, client, nil), parent, nil)

	res, err := d.Delegate(context.Background(), tools.DelegationRequest{
		SubagentType: "researcher",
		Description:  "dig through the code",
		Prompt:       "find how sessions restore",
	})
	if err != nil {
		t.Fatalf("Delegate: %v", err)
	}
	if res.Content != "research findings" {
		t.Errorf("content = %q", res.Content)
	}
	if res.SubagentID == "" {
		t.Error("missing subagent id")
	}

	inst, ok := d.Get(res.SubagentID)
	if !ok || inst.Status() != StatusCompleted {
		t.Errorf("instance status = %v", inst)
	}

	// The subagent runs under its own system prompt, isolated from the
	// parent conversation.
	req := client.Calls()[0]
	if req.System != "You are a focused research assistant." {
		t.Errorf("system prompt = %q", req.System)
	}

	// Only a reference block lands in the parent transcript.
	msgs := parent.Messages()
	if len(msgs) != 1 || msgs[0].Role != types.RoleSubagent {
		t.Fatalf("parent transcript: %+v", msgs)
	}
	if msgs[0].Blocks[0].SubagentType != "researcher" {
		t.Errorf("reference block: %+v", msgs[0].Blocks[0])
	}
}

func TestDelegateUnknownTypeListsNames(t *testing.T) {
	workdir := t.TempDir()
	writeDefinition(t, workdir, "researcher", "---\ndescription: research\n---\nbody\n")
	writeDefinition(t, workdir, "reviewer", "---\ndescription: review\n---\nbody\n")

	d := NewDelegator(testRegistry(t, workdir), baseConfig(t, workdir, llm.NewStubClient(), nil), nil, nil)

	_, err := d.Delegate(context.Background(), tools.DelegationRequest{
		SubagentType: "archivist",
		Prompt:       "do something",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "researcher") || !strings.Contains(err.Error(), "reviewer") {
		t.Errorf("error does not enumerate known names: %v", err)
	}
}

func TestDelegationDepthGuard(t *testing.T) {
	workdir := t.TempDir()
	writeDefinition(t, workdir, "worker", "---\ndescription: works\n---\nbody\n")

	base := baseConfig(t, workdir, llm.NewStubClient(), nil)
	base.DelegationDepth = 1 // already running inside a subagent
	base.MaxDelegationDepth = 1
	d := NewDelegator(testRegistry(t, workdir), base, nil, nil)

	_, err := d.Delegate(context.Background(), tools.DelegationRequest{SubagentType: "worker", Prompt: "go"})
	if err == nil || !strings.Contains(err.Error(), "depth") {
		t.Fatalf("err = %v, want depth guard", err)
	}
}

func TestSubagentCannotRedelegate(t *testing.T) {
	workdir := t.TempDir()
	writeDefinition(t, workdir, "worker", "---\ndescription: works\n---\nbody\n")

	// The subagent tries to call Task; the tool must not exist in its
	// restricted registry even though the parent has it.
	client := llm.NewStubClient(
		llm.ToolTurn("tu1", "Task", map[string]any{"subagent_type": "worker", "prompt": "again"}),
		llm.TextTurn("gave up"),
	)
	reg := tools.NewRegistry()
	registry := testRegistry(t, workdir)
	base := baseConfig(t, workdir, client, reg)
	d := NewDelegator(registry, base, nil, nil)
	reg.Register(&tools.TaskTool{Delegator: d})

	res, err := d.Delegate(context.Background(), tools.DelegationRequest{SubagentType: "worker", Prompt: "go"})
	if err != nil {
		t.Fatalf("Delegate: %v", err)
	}
	if res.Content != "gave up" {
		t.Errorf("content = %q", res.Content)
	}

	inst, _ := d.Get(res.SubagentID)
	sealed := false
	inst.agent.State().UpdateToolBlock("tu1", func(b *types.Block) {
		sealed = true
		if b.Success == nil || *b.Success {
			t.Error("nested Task call did not fail")
		}
		if !strings.Contains(b.ErrText, "Task") {
			t.Errorf("error text = %q", b.ErrText)
		}
	})
	if !sealed {
		t.Fatal("nested Task block not found in subagent state")
	}
}

func TestBackgroundDelegation(t *testing.T) {
	workdir := t.TempDir()
	writeDefinition(t, workdir, "worker", "---\ndescription: works\n---\nbody\n")

	client := llm.NewStubClient(llm.TextTurn("bg findings"))
	d := NewDelegator(testRegistry(t, workdir), baseConfig(t, workdir, client, nil), nil, nil)

	res, err := d.Delegate(context.Background(), tools.DelegationRequest{
		SubagentType:    "worker",
		Prompt:          "work in the background",
		RunInBackground: true,
	})
	if err != nil {
		t.Fatalf("Delegate: %v", err)
	}
	if res.BackgroundTaskID == "" {
		t.Fatal("missing background task id")
	}

	snap, err := d.TaskOutput(res.BackgroundTaskID, true, 5*time.Second)
	if err != nil {
		t.Fatalf("TaskOutput: %v", err)
	}
	if !snap.Done || snap.Status != StatusCompleted || snap.Output != "bg findings" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestTaskSourceUnknownID(t *testing.T) {
	d := NewDelegator(testRegistry(t, t.TempDir()), baseConfig(t, t.TempDir(), llm.NewStubClient(), nil), nil, nil)

	if _, err := d.TaskOutput("sub-missing", false, 0); !errors.Is(err, bgtask.ErrNotFound) {
		t.Errorf("TaskOutput err = %v, want ErrNotFound", err)
	}
	if err := d.KillTask("sub-missing"); !errors.Is(err, bgtask.ErrNotFound) {
		t.Errorf("KillTask err = %v, want ErrNotFound", err)
	}
}

func TestSubagentStopHookFires(t *testing.T) {
	workdir := t.TempDir()
	writeDefinition(t, workdir, "worker", "---\ndescription: works\n---\nbody\n")

	runner, err := hooks.NewRunner(hooks.RunnerConfig{
		Workdir: workdir,
		Hooks: map[string][]settings.HookMatcher{
			"SubagentStop": {{Hooks: []settings.HookCommand{{Command: "cat > subagent-stop.json"}}}},
		},
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	base := baseConfig(t, workdir, llm.NewStubClient(llm.TextTurn("done")), nil)
	base.Hooks = runner
	d := NewDelegator(testRegistry(t, workdir), base, nil, nil)

	res, err := d.Delegate(context.Background(), tools.DelegationRequest{SubagentType: "worker", Prompt: "go"})
	if err != nil {
		t.Fatalf("Delegate: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(workdir, "subagent-stop.json"))
	if err != nil {
		t.Fatalf("hook payload not written: %v", err)
	}
	payload := string(raw)
	if !strings.Contains(payload, res.SubagentID) {
		t.Errorf("payload missing subagent id: %s", payload)
	}
	if !strings.Contains(payload, `"subagent_type":"worker"`) {
		t.Errorf("payload missing subagent type: %s", payload)
	}
}
