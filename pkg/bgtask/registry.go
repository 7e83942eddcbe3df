// Package bgtask tracks background shell processes launched by the agent.
// Every process runs in its own process group so that killing it also kills
// anything it spawned. Output is buffered in memory; reads are incremental,
// returning only what arrived since the previous read.
package bgtask

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Status is the lifecycle state of a background process.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusKilled    Status = "killed"
)

// ErrNotFound is returned for an unknown process ID.
var ErrNotFound = errors.New("unknown background task")

// KillGrace is how long Kill waits after SIGTERM before escalating to
// SIGKILL.
const KillGrace = 5 * time.Second

// outputBuffer accumulates process output and hands out only the unread
// portion on each read.
type outputBuffer struct {
	mu     sync.Mutex
	buf    strings.Builder
	offset int
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// readNew returns output written since the last readNew call.
func (b *outputBuffer) readNew() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf.String()
	out := s[b.offset:]
	b.offset = len(s)
	return out
}

func (b *outputBuffer) all() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Process is one tracked background process.
type Process struct {
	ID        string
	Command   string
	StartedAt time.Time

	cmd    *exec.Cmd
	pgid   int
	stdout *outputBuffer
	stderr *outputBuffer
	done   chan struct{}

	mu       sync.Mutex
	status   Status
	exitCode int
	killed   bool
}

// Status returns the current lifecycle state.
func (p *Process) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// ExitCode is meaningful once Status is no longer running.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// Done is closed when the process has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// Output returns stdout and stderr produced since the previous Output call.
// A non-empty filter is applied as a regular expression over whole lines.
func (p *Process) Output(filter string) (stdout, stderr string, err error) {
	stdout = p.stdout.readNew()
	stderr = p.stderr.readNew()
	if filter == "" {
		return stdout, stderr, nil
	}
	re, err := regexp.Compile(filter)
	if err != nil {
		return "", "", fmt.Errorf("invalid output filter: %w", err)
	}
	return filterLines(stdout, re), filterLines(stderr, re), nil
}

func filterLines(s string, re *regexp.Regexp) string {
	if s == "" {
		return ""
	}
	var kept []string
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		if re.MatchString(line) {
			kept = append(kept, line)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, "\n") + "\n"
}

// Registry tracks all background processes of one agent.
type Registry struct {
	mu     sync.RWMutex
	procs  map[string]*Process
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{procs: map[string]*Process{}, logger: logger}
}

func newID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return "bg-" + hex.EncodeToString(b)
}

// Start launches a command in its own process group and registers it.
func (r *Registry) Start(command, workdir string, env []string) (*Process, error) {
	cmd := exec.Command("bash", "-c", command)
	cmd.Dir = workdir
	if env != nil {
		cmd.Env = env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	p := &Process{
		ID:        newID(),
		Command:   command,
		StartedAt: time.Now(),
		cmd:       cmd,
		stdout:    &outputBuffer{},
		stderr:    &outputBuffer{},
		done:      make(chan struct{}),
		status:    StatusRunning,
	}
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start background command: %w", err)
	}
	p.pgid = cmd.Process.Pid

	r.mu.Lock()
	r.procs[p.ID] = p
	r.mu.Unlock()

	go r.reap(p)
	return p, nil
}

// reap waits for the process and records its final state.
func (r *Registry) reap(p *Process) {
	err := p.cmd.Wait()

	p.mu.Lock()
	switch {
	case p.killed:
		p.status = StatusKilled
	case err == nil:
		p.status = StatusCompleted
	default:
		p.status = StatusFailed
	}
	p.exitCode = p.cmd.ProcessState.ExitCode()
	p.mu.Unlock()

	close(p.done)
	r.logger.Debug("background task finished",
		"id", p.ID, "status", p.Status(), "exit_code", p.ExitCode())
}

// Get returns a process by ID.
func (r *Registry) Get(id string) (*Process, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.procs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// List returns all tracked processes ordered by start time.
func (r *Registry) List() []*Process {
	r.mu.RLock()
	procs := make([]*Process, 0, len(r.procs))
	for _, p := range r.procs {
		procs = append(procs, p)
	}
	r.mu.RUnlock()
	sort.Slice(procs, func(i, j int) bool {
		return procs[i].StartedAt.Before(procs[j].StartedAt)
	})
	return procs
}

// Kill terminates a process group: SIGTERM first, SIGKILL after the grace
// period. Killing an already finished process is a no-op.
func (r *Registry) Kill(id string) error {
	p, err := r.Get(id)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.status != StatusRunning {
		p.mu.Unlock()
		return nil
	}
	p.killed = true
	p.mu.Unlock()

	// Negative pgid signals the whole group.
	if err := unix.Kill(-p.pgid, unix.SIGTERM); err != nil {
		return fmt.Errorf("signal background task %s: %w", id, err)
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(KillGrace):
	}

	r.logger.Warn("background task ignored SIGTERM, escalating", "id", id)
	if err := unix.Kill(-p.pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill background task %s: %w", id, err)
	}
	<-p.done
	return nil
}

// KillAll terminates every running process. Used at agent shutdown.
func (r *Registry) KillAll() {
	for _, p := range r.List() {
		if p.Status() != StatusRunning {
			continue
		}
		if err := r.Kill(p.ID); err != nil {
			r.logger.Warn("failed to kill background task", "id", p.ID, "err", err)
		}
	}
}
