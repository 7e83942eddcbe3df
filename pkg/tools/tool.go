// Package tools implements the closed set of built-in tools the loop driver
// can dispatch to. Every tool satisfies one capability interface and returns
// the shared result contract; the driver never depends on a concrete tool.
package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/rsmyth-dev/heron/pkg/llm"
	"github.com/rsmyth-dev/heron/pkg/types"
)

// Tool is the capability interface every tool implements.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Execute(ctx context.Context, input map[string]any) (types.ToolResult, error)
}

// ParamFormatter is optionally implemented by tools that can render their
// input as a short one-line summary for display.
type ParamFormatter interface {
	FormatParams(input map[string]any) string
}

// fail builds a failed result with a formatted error message.
func fail(format string, args ...any) types.ToolResult {
	return types.ToolResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

// ok builds a successful result.
func ok(content string) types.ToolResult {
	return types.ToolResult{Success: true, Content: content}
}

// Registry maps tool names to implementations.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register adds a tool. A later registration with the same name replaces
// the earlier one.
func (r *Registry) Register(tool Tool) {
	r.tools[tool.Name()] = tool
}

// Get resolves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Restrict returns a new registry containing only the named tools. Unknown
// names are ignored. Used for subagent tool subsets.
func (r *Registry) Restrict(names []string) *Registry {
	sub := NewRegistry()
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			sub.Register(t)
		}
	}
	return sub
}

// Without returns a new registry excluding the named tools.
func (r *Registry) Without(names ...string) *Registry {
	excluded := map[string]bool{}
	for _, name := range names {
		excluded[name] = true
	}
	sub := NewRegistry()
	for name, t := range r.tools {
		if !excluded[name] {
			sub.Register(t)
		}
	}
	return sub
}

// Definitions returns the wire-format tool declarations for a model request.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, name := range r.Names() {
		t := r.tools[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return defs
}
