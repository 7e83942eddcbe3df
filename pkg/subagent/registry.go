package subagent

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Registry holds the currently known definitions. Reload swaps the whole
// set; definitions captured by running instances are unaffected.
type Registry struct {
	mu     sync.RWMutex
	defs   map[string]Definition
	loader *Loader
	logger *slog.Logger
}

// NewRegistry loads the initial definition set.
func NewRegistry(loader *Loader, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		defs:   loader.LoadAll(),
		loader: loader,
		logger: logger,
	}
}

// Reload rescans the definition directories.
func (r *Registry) Reload() {
	defs := r.loader.LoadAll()
	r.mu.Lock()
	r.defs = defs
	r.mu.Unlock()
	r.logger.Debug("subagent definitions reloaded", "count", len(defs))
}

// Get returns a definition by exact name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// All returns every definition ordered by name.
func (r *Registry) All() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Select picks the definition for a delegation request. A non-empty name
// must match exactly. Without a name, candidates are scored against the
// task description; scoring is deterministic, ties break by name. An
// unresolvable request errors with every registered name listed.
func (r *Registry) Select(name, taskDescription string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name != "" {
		if def, ok := r.defs[name]; ok {
			return def, nil
		}
		return Definition{}, fmt.Errorf("unknown subagent type %q; available: %s",
			name, strings.Join(r.namesLocked(), ", "))
	}

	var (
		best      Definition
		bestScore = -1
	)
	for _, def := range r.defs {
		score := describeScore(def.Description, taskDescription)
		if score > bestScore || (score == bestScore && def.Name < best.Name) {
			best, bestScore = def, score
		}
	}
	if bestScore < 0 {
		return Definition{}, fmt.Errorf("no subagents registered")
	}
	if bestScore == 0 {
		return Definition{}, fmt.Errorf("no subagent matches the task; available: %s",
			strings.Join(r.namesLocked(), ", "))
	}
	return best, nil
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// emphasisMarkers in a description signal the author wants the subagent
// chosen eagerly.
var emphasisMarkers = []string{"use proactively", "must be used", "always use"}

// describeScore rates how well a definition's description fits a task.
// Word overlap dominates; longer descriptions and emphasis markers add a
// little. Purely lexical so repeated calls give identical answers.
func describeScore(description, task string) int {
	desc := strings.ToLower(description)
	descWords := map[string]bool{}
	for _, w := range strings.Fields(desc) {
		descWords[strings.Trim(w, ".,;:!?()")] = true
	}

	score := 0
	for _, w := range strings.Fields(strings.ToLower(task)) {
		w = strings.Trim(w, ".,;:!?()")
		if len(w) > 2 && descWords[w] {
			score += 10
		}
	}
	if score == 0 {
		return 0
	}

	score += len(description) / 50
	for _, marker := range emphasisMarkers {
		if strings.Contains(desc, marker) {
			score += 5
			break
		}
	}
	return score
}
