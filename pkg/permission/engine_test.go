package permission

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rsmyth-dev/heron/pkg/settings"
	"github.com/rsmyth-dev/heron/pkg/types"
)

func newTestEngine(t *testing.T, cfg EngineConfig) *Engine {
	t.Helper()
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestParseRule(t *testing.T) {
	r, err := ParseRule("Bash(git status)")
	if err != nil {
		t.Fatalf("ParseRule: %v", err)
	}
	if r.ToolName != "Bash" || r.Content != "git status" {
		t.Errorf("got %+v", r)
	}
	if r.String() != "Bash(git status)" {
		t.Errorf("String() = %q", r.String())
	}

	bare, err := ParseRule("Write")
	if err != nil {
		t.Fatalf("ParseRule bare: %v", err)
	}
	if bare.ToolName != "Write" || bare.Content != "" {
		t.Errorf("got %+v", bare)
	}

	for _, bad := range []string{"", "Bash(unterminated", "(no name)"} {
		if _, err := ParseRule(bad); err == nil {
			t.Errorf("ParseRule(%q) should fail", bad)
		}
	}
}

func TestEngineNonRestrictedAlwaysAllowed(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})
	d, err := e.Check(context.Background(), "Read", map[string]any{"file_path": "/etc/passwd"})
	if err != nil {
		t.Fatal(err)
	}
	if d.Behavior != "allow" || d.NeededPrompt {
		t.Errorf("got %+v", d)
	}
}

func TestEngineModes(t *testing.T) {
	ctx := context.Background()

	t.Run("bypass allows everything", func(t *testing.T) {
		e := newTestEngine(t, EngineConfig{Mode: types.PermissionModeBypass})
		d, _ := e.Check(ctx, "Bash", map[string]any{"command": "rm -rf /"})
		if d.Behavior != "allow" {
			t.Errorf("got %+v", d)
		}
	})

	t.Run("plan denies all but ExitPlanMode", func(t *testing.T) {
		e := newTestEngine(t, EngineConfig{Mode: types.PermissionModePlan})
		d, _ := e.Check(ctx, "Write", map[string]any{"file_path": "a.txt"})
		if d.Behavior != "deny" {
			t.Errorf("Write: got %+v", d)
		}
		d, _ = e.Check(ctx, "ExitPlanMode", nil)
		if d.Behavior != "allow" {
			t.Errorf("ExitPlanMode: got %+v", d)
		}
	})

	t.Run("acceptEdits auto-allows edit tools only", func(t *testing.T) {
		e := newTestEngine(t, EngineConfig{Mode: types.PermissionModeAcceptEdits})
		d, _ := e.Check(ctx, "Edit", map[string]any{"file_path": "a.txt"})
		if d.Behavior != "allow" || d.NeededPrompt {
			t.Errorf("Edit: got %+v", d)
		}
		// Bash without a gate still falls through to headless deny.
		d, _ = e.Check(ctx, "Bash", map[string]any{"command": "make"})
		if d.Behavior != "deny" {
			t.Errorf("Bash: got %+v", d)
		}
	})

	t.Run("invalid mode rejected", func(t *testing.T) {
		if _, err := NewEngine(EngineConfig{Mode: "yolo"}); err == nil {
			t.Error("NewEngine should fail on invalid mode")
		}
		e := newTestEngine(t, EngineConfig{})
		if err := e.SetMode("yolo"); err == nil {
			t.Error("SetMode should fail on invalid mode")
		}
	})
}

func TestEngineRuleMatching(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, EngineConfig{
		Workdir: "/home/dev/project",
		AllowRules: []string{
			"Bash(git status)",
			"Bash(npm run *)",
			"Write(/home/dev/project/**)",
		},
	})

	tests := []struct {
		name     string
		tool     string
		input    map[string]any
		behavior string
	}{
		{"exact bash rule", "Bash", map[string]any{"command": "git status"}, "allow"},
		{"glob bash rule", "Bash", map[string]any{"command": "npm run build"}, "allow"},
		{"chain fully covered", "Bash", map[string]any{"command": "git status && npm run test"}, "allow"},
		{"safe atoms need no rule", "Bash", map[string]any{"command": "cd sub && git status"}, "allow"},
		{"uncovered atom denies", "Bash", map[string]any{"command": "git status && rm -rf x"}, "deny"},
		{"normalized before matching", "Bash", map[string]any{"command": "FOO=1 git status > /dev/null"}, "allow"},
		{"path glob rule", "Write", map[string]any{"file_path": "/home/dev/project/a/b.txt"}, "allow"},
		{"path outside glob", "Write", map[string]any{"file_path": "/etc/hosts"}, "deny"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := e.Check(ctx, tt.tool, tt.input)
			if err != nil {
				t.Fatal(err)
			}
			if d.Behavior != tt.behavior {
				t.Errorf("got %+v, want behavior %q", d, tt.behavior)
			}
		})
	}
}

func TestEngineHeadlessDeny(t *testing.T) {
	e := newTestEngine(t, EngineConfig{})
	d, err := e.Check(context.Background(), "Bash", map[string]any{"command": "make"})
	if err != nil {
		t.Fatal(err)
	}
	if d.Behavior != "deny" {
		t.Errorf("got %+v", d)
	}
}

func TestEngineGateAllowAndDeny(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gate := NewGate()
	answers := map[string]Response{
		"Bash":  {Behavior: "allow"},
		"Write": {Behavior: "deny", Message: "not that file"},
	}
	gate.RespondFunc(ctx, func(req *PendingRequest) Response {
		return answers[req.ToolName]
	})

	e := newTestEngine(t, EngineConfig{Gate: gate})

	d, err := e.Check(ctx, "Bash", map[string]any{"command": "make"})
	if err != nil {
		t.Fatal(err)
	}
	if d.Behavior != "allow" || !d.NeededPrompt {
		t.Errorf("allow: got %+v", d)
	}

	d, err = e.Check(ctx, "Write", map[string]any{"file_path": "a.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if d.Behavior != "deny" || d.Message != "not that file" || !d.NeededPrompt {
		t.Errorf("deny: got %+v", d)
	}
}

func TestEngineGateCancellation(t *testing.T) {
	gate := NewGate() // nobody answers
	e := newTestEngine(t, EngineConfig{Gate: gate})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := e.Check(ctx, "Bash", map[string]any{"command": "make"})
	if err != nil {
		t.Fatal(err)
	}
	if d.Behavior != "deny" {
		t.Errorf("got %+v", d)
	}
}

// Granting "don't ask again" on a compound command persists one rule per
// unsafe atomic command. "mkdir test && cd test" saves only "Bash(mkdir
// test)"; "cd test" is safe inside the workdir and is never persisted.
func TestEngineDontAskAgainPersistsUnsafeAtomsOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workdir := t.TempDir()
	persistPath := filepath.Join(workdir, "settings.json")

	gate := NewGate()
	var suggested []string
	gate.RespondFunc(ctx, func(req *PendingRequest) Response {
		suggested = req.SuggestedRules
		return Response{Behavior: "allow", DontAskAgain: true}
	})

	e := newTestEngine(t, EngineConfig{
		Workdir:     workdir,
		Gate:        gate,
		PersistPath: persistPath,
	})

	input := map[string]any{"command": "mkdir test && cd test"}
	d, err := e.Check(ctx, "Bash", input)
	if err != nil {
		t.Fatal(err)
	}
	if d.Behavior != "allow" {
		t.Fatalf("got %+v", d)
	}
	if want := []string{"Bash(mkdir test)"}; !reflect.DeepEqual(suggested, want) {
		t.Errorf("suggested rules = %v, want %v", suggested, want)
	}

	doc, err := settings.Read(persistPath)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"Bash(mkdir test)"}; !reflect.DeepEqual(doc.Permissions.Allow, want) {
		t.Errorf("persisted rules = %v, want %v", doc.Permissions.Allow, want)
	}

	// The grant is live immediately: the same command no longer prompts.
	gate.RespondFunc(ctx, func(req *PendingRequest) Response {
		t.Error("unexpected prompt after durable grant")
		return Response{Behavior: "deny"}
	})
	d, err = e.Check(ctx, "Bash", input)
	if err != nil {
		t.Fatal(err)
	}
	if d.Behavior != "allow" || d.NeededPrompt {
		t.Errorf("got %+v", d)
	}
}

func TestEngineGateModeSwitch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gate := NewGate()
	gate.RespondFunc(ctx, func(req *PendingRequest) Response {
		return Response{Behavior: "allow", Mode: types.PermissionModeAcceptEdits}
	})

	e := newTestEngine(t, EngineConfig{Gate: gate})
	if _, err := e.Check(ctx, "Write", map[string]any{"file_path": "a.txt"}); err != nil {
		t.Fatal(err)
	}
	if e.Mode() != types.PermissionModeAcceptEdits {
		t.Errorf("mode = %q", e.Mode())
	}
}
