// Package settings loads and persists the merged settings documents:
// .heron/settings.json in the project and ~/.heron/settings.json for the
// user. Project entries take precedence on conflict. The permission
// allow-list is mutated read-modify-write as a whole file under a flock;
// last writer wins, which is acceptable for rare user-driven updates.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	dirName  = ".heron"
	fileName = "settings.json"

	lockRetry   = 50 * time.Millisecond
	lockTimeout = 5 * time.Second
)

// ErrLockTimeout is returned when the settings file lock cannot be acquired.
var ErrLockTimeout = errors.New("settings file lock timeout")

// HookCommand is one shell command run at a lifecycle event.
type HookCommand struct {
	Type           string `json:"type"` // "command"
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeout,omitempty"`

	// ContinueOnFailure controls whether later hooks still run after this
	// command fails. Unset means continue; failures are non-blocking unless
	// a hook explicitly opts out.
	ContinueOnFailure *bool `json:"continueOnFailure,omitempty"`
}

// StopsOnFailure reports whether a failure of this command should abort the
// remaining hooks.
func (hc HookCommand) StopsOnFailure() bool {
	return hc.ContinueOnFailure != nil && !*hc.ContinueOnFailure
}

// HookMatcher pairs a matcher pattern with an ordered command list.
type HookMatcher struct {
	Matcher string        `json:"matcher,omitempty"`
	Hooks   []HookCommand `json:"hooks"`
}

// Document is the on-disk shape of one settings file.
type Document struct {
	Permissions struct {
		Allow []string `json:"allow,omitempty"`
	} `json:"permissions,omitempty"`
	Hooks map[string][]HookMatcher `json:"hooks,omitempty"`
}

// ProjectPath returns the project settings file path for a workdir.
func ProjectPath(workdir string) string {
	return filepath.Join(workdir, dirName, fileName)
}

// UserPath returns the user settings file path, or "" if no home dir.
func UserPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, dirName, fileName)
}

// Read parses one settings file. A missing file yields an empty document.
func Read(path string) (*Document, error) {
	var doc Document
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &doc, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return &doc, nil
}

// Merged is the result of layering project settings over user settings.
type Merged struct {
	// AllowRules is the union of both allow-lists, project rules first.
	AllowRules []string
	// Hooks maps event name to matcher lists. For an event defined in both
	// files the project's list replaces the user's.
	Hooks map[string][]HookMatcher
}

// Load reads and merges the settings for a workdir. Either file may be
// missing; a parse error in one is a hard error (bad hook configuration
// must fail at load time, not execution time).
func Load(projectPath, userPath string) (*Merged, error) {
	user := &Document{}
	if userPath != "" {
		var err error
		user, err = Read(userPath)
		if err != nil {
			return nil, err
		}
	}
	project, err := Read(projectPath)
	if err != nil {
		return nil, err
	}

	m := &Merged{Hooks: map[string][]HookMatcher{}}

	m.AllowRules = append(m.AllowRules, project.Permissions.Allow...)
	for _, r := range user.Permissions.Allow {
		if !contains(m.AllowRules, r) {
			m.AllowRules = append(m.AllowRules, r)
		}
	}

	for event, matchers := range user.Hooks {
		m.Hooks[event] = matchers
	}
	for event, matchers := range project.Hooks {
		m.Hooks[event] = matchers
	}
	return m, nil
}

// AppendAllowRules adds rules to a settings file's allow-list, deduplicated,
// rewriting the whole document under the file lock.
func AppendAllowRules(path string, rules []string) error {
	if len(rules) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	fl := flock.New(path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(ctx, lockRetry)
	if err != nil || !locked {
		return ErrLockTimeout
	}
	defer fl.Unlock()

	doc, err := Read(path)
	if err != nil {
		return err
	}
	for _, r := range rules {
		if !contains(doc.Permissions.Allow, r) {
			doc.Permissions.Allow = append(doc.Permissions.Allow, r)
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
