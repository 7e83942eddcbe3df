package bgtask

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func waitDone(t *testing.T, p *Process, timeout time.Duration) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(timeout):
		t.Fatalf("task %s did not finish within %s", p.ID, timeout)
	}
}

func TestStartAndComplete(t *testing.T) {
	r := NewRegistry(nil)
	p, err := r.Start("echo hello", t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, p, 5*time.Second)

	if p.Status() != StatusCompleted {
		t.Errorf("status = %s", p.Status())
	}
	if p.ExitCode() != 0 {
		t.Errorf("exit code = %d", p.ExitCode())
	}
	stdout, _, err := p.Output("")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(stdout) != "hello" {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestFailedStatus(t *testing.T) {
	r := NewRegistry(nil)
	p, err := r.Start("echo oops >&2; exit 3", t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, p, 5*time.Second)

	if p.Status() != StatusFailed {
		t.Errorf("status = %s", p.Status())
	}
	if p.ExitCode() != 3 {
		t.Errorf("exit code = %d", p.ExitCode())
	}
	_, stderr, err := p.Output("")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(stderr) != "oops" {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestOutputIsIncremental(t *testing.T) {
	r := NewRegistry(nil)
	p, err := r.Start("echo one; echo two", t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, p, 5*time.Second)

	first, _, err := p.Output("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(first, "one") || !strings.Contains(first, "two") {
		t.Errorf("first read = %q", first)
	}

	second, _, err := p.Output("")
	if err != nil {
		t.Fatal(err)
	}
	if second != "" {
		t.Errorf("second read should be empty, got %q", second)
	}
}

func TestOutputFilter(t *testing.T) {
	r := NewRegistry(nil)
	p, err := r.Start("printf 'ok line\\nERROR bad\\nok again\\n'", t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, p, 5*time.Second)

	stdout, _, err := p.Output("^ERROR")
	if err != nil {
		t.Fatal(err)
	}
	if stdout != "ERROR bad\n" {
		t.Errorf("filtered stdout = %q", stdout)
	}

	if _, _, err := p.Output("[bad-regex"); err == nil {
		t.Error("invalid filter should error")
	}
}

// Killing a running task terminates it, marks it killed, and keeps the
// output produced before the kill readable.
func TestKillMidExecution(t *testing.T) {
	r := NewRegistry(nil)
	p, err := r.Start("echo started; sleep 30", t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}

	// Let the first echo land before killing.
	deadline := time.Now().Add(5 * time.Second)
	for p.stdout.all() == "" {
		if time.Now().After(deadline) {
			t.Fatal("no output before kill")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := r.Kill(p.ID); err != nil {
		t.Fatal(err)
	}
	if p.Status() != StatusKilled {
		t.Errorf("status = %s", p.Status())
	}
	stdout, _, err := p.Output("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "started") {
		t.Errorf("pre-kill output lost: %q", stdout)
	}

	// A second kill is a no-op.
	if err := r.Kill(p.ID); err != nil {
		t.Errorf("kill after exit: %v", err)
	}
}

func TestKillUnknown(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Kill("bg-nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListOrderedByStart(t *testing.T) {
	r := NewRegistry(nil)
	p1, err := r.Start("true", t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	p2, err := r.Start("true", t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, p1, 5*time.Second)
	waitDone(t, p2, 5*time.Second)

	list := r.List()
	if len(list) != 2 || list[0].ID != p1.ID || list[1].ID != p2.ID {
		t.Errorf("unexpected order: %v", []string{list[0].ID, list[1].ID})
	}
}

func TestKillAll(t *testing.T) {
	r := NewRegistry(nil)
	p1, err := r.Start("sleep 30", t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := r.Start("sleep 30", t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}

	r.KillAll()

	for _, p := range []*Process{p1, p2} {
		if p.Status() != StatusKilled {
			t.Errorf("task %s status = %s", p.ID, p.Status())
		}
	}
}
