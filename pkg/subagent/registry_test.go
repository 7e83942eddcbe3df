package subagent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeAgent(t *testing.T, dir, name, description, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := "---\nname: " + name + "\ndescription: " + description + "\n---\n" + body
	if err := os.WriteFile(filepath.Join(dir, name+".md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func agentDirs(t *testing.T) (workdir, projectDir, userDir string) {
	t.Helper()
	workdir = t.TempDir()
	return workdir, filepath.Join(workdir, ".heron", "agents"), filepath.Join(t.TempDir(), "agents")
}

func TestLoaderProjectShadowsUser(t *testing.T) {
	workdir, projectDir, userDir := agentDirs(t)
	writeAgent(t, userDir, "reviewer", "User reviewer.", "user prompt")
	writeAgent(t, userDir, "tester", "Runs tests.", "test prompt")
	writeAgent(t, projectDir, "reviewer", "Project reviewer.", "project prompt")

	reg := NewRegistry(NewLoader(workdir, userDir, nil), nil)

	if got := reg.Names(); !reflect.DeepEqual(got, []string{"reviewer", "tester"}) {
		t.Fatalf("names = %v", got)
	}
	def, ok := reg.Get("reviewer")
	if !ok {
		t.Fatal("reviewer missing")
	}
	if def.Source != SourceProject || def.Description != "Project reviewer." {
		t.Errorf("project should shadow user: %+v", def)
	}
	if tester, _ := reg.Get("tester"); tester.Source != SourceUser {
		t.Errorf("tester source = %s", tester.Source)
	}
}

func TestLoaderSkipsBrokenFiles(t *testing.T) {
	workdir, projectDir, _ := agentDirs(t)
	writeAgent(t, projectDir, "good", "Fine.", "prompt")
	if err := os.WriteFile(filepath.Join(projectDir, "broken.md"), []byte("no frontmatter"), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry(NewLoader(workdir, "none", nil), nil)
	if got := reg.Names(); !reflect.DeepEqual(got, []string{"good"}) {
		t.Errorf("names = %v", got)
	}
}

func TestSelectExactName(t *testing.T) {
	workdir, projectDir, _ := agentDirs(t)
	writeAgent(t, projectDir, "reviewer", "Reviews code.", "p")

	reg := NewRegistry(NewLoader(workdir, "none", nil), nil)
	def, err := reg.Select("reviewer", "")
	if err != nil {
		t.Fatal(err)
	}
	if def.Name != "reviewer" {
		t.Errorf("selected %q", def.Name)
	}
}

func TestSelectUnknownListsAllNames(t *testing.T) {
	workdir, projectDir, _ := agentDirs(t)
	writeAgent(t, projectDir, "reviewer", "Reviews code.", "p")
	writeAgent(t, projectDir, "tester", "Runs tests.", "p")

	reg := NewRegistry(NewLoader(workdir, "none", nil), nil)
	_, err := reg.Select("wizard", "")
	if err == nil {
		t.Fatal("Select should fail")
	}
	for _, name := range []string{"reviewer", "tester"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error should list %q: %v", name, err)
		}
	}
}

// Identical task description and registry must pick the same subagent every
// time.
func TestSelectByDescriptionDeterministic(t *testing.T) {
	workdir, projectDir, _ := agentDirs(t)
	writeAgent(t, projectDir, "reviewer", "Reviews code changes for style and correctness issues.", "p")
	writeAgent(t, projectDir, "tester", "Writes and runs unit tests for new functionality.", "p")

	reg := NewRegistry(NewLoader(workdir, "none", nil), nil)

	first, err := reg.Select("", "please review my code changes")
	if err != nil {
		t.Fatal(err)
	}
	if first.Name != "reviewer" {
		t.Errorf("selected %q, want reviewer", first.Name)
	}
	for i := 0; i < 10; i++ {
		again, err := reg.Select("", "please review my code changes")
		if err != nil {
			t.Fatal(err)
		}
		if again.Name != first.Name {
			t.Fatalf("selection not deterministic: %q then %q", first.Name, again.Name)
		}
	}
}

func TestSelectNoMatch(t *testing.T) {
	workdir, projectDir, _ := agentDirs(t)
	writeAgent(t, projectDir, "reviewer", "Reviews code.", "p")

	reg := NewRegistry(NewLoader(workdir, "none", nil), nil)
	if _, err := reg.Select("", "zzz qqq xxx"); err == nil {
		t.Error("Select should fail when nothing matches")
	}
}

func TestWatchReloads(t *testing.T) {
	workdir, projectDir, _ := agentDirs(t)
	writeAgent(t, projectDir, "reviewer", "Reviews code.", "p")

	reg := NewRegistry(NewLoader(workdir, "none", nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reg.Watch(ctx)

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeAgent(t, projectDir, "tester", "Runs tests.", "p")

	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, ok := reg.Get("tester"); ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("watcher did not pick up new definition")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestWatchBlocksUntilCancelled(t *testing.T) {
	workdir, projectDir, _ := agentDirs(t)
	writeAgent(t, projectDir, "reviewer", "Reviews code.", "p")

	reg := NewRegistry(NewLoader(workdir, "none", nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- reg.Watch(ctx) }()

	// Callers run Watch on its own goroutine; it must not return on its own.
	select {
	case err := <-done:
		t.Fatalf("Watch returned before cancellation: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Watch err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancellation")
	}
}
