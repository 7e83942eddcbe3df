// Package types holds the shared value types of the heron runtime:
// message roles, content blocks, permission modes, hook events, and the
// tool result contract that decouples the loop driver from individual tools.
package types

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSubagent  Role = "subagent"
)

// SessionType distinguishes a main conversation from a delegated one.
type SessionType string

const (
	SessionMain     SessionType = "main"
	SessionSubagent SessionType = "subagent"
)

// PermissionMode is the current policy stance governing restricted tools.
type PermissionMode string

const (
	PermissionModeDefault     PermissionMode = "default"
	PermissionModeAcceptEdits PermissionMode = "acceptEdits"
	PermissionModePlan        PermissionMode = "plan"
	PermissionModeBypass      PermissionMode = "bypassPermissions"
)

// Valid reports whether m is one of the defined permission modes.
func (m PermissionMode) Valid() bool {
	switch m {
	case PermissionModeDefault, PermissionModeAcceptEdits, PermissionModePlan, PermissionModeBypass:
		return true
	}
	return false
}

// HookEvent is a lifecycle event at which user-configured hooks run.
type HookEvent string

const (
	HookEventPreToolUse       HookEvent = "PreToolUse"
	HookEventPostToolUse      HookEvent = "PostToolUse"
	HookEventUserPromptSubmit HookEvent = "UserPromptSubmit"
	HookEventStop             HookEvent = "Stop"
	HookEventSubagentStop     HookEvent = "SubagentStop"
	HookEventNotification     HookEvent = "Notification"
)

// KnownHookEvents lists every event the hook engine dispatches.
var KnownHookEvents = []HookEvent{
	HookEventPreToolUse,
	HookEventPostToolUse,
	HookEventUserPromptSubmit,
	HookEventStop,
	HookEventSubagentStop,
	HookEventNotification,
}

// Usage counts tokens consumed by a model turn.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
}

// Add accumulates another turn's usage into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
}

// ToolResult is the sole contract between the loop driver and any tool
// implementation, whether built-in, background shell, or subagent-backed.
type ToolResult struct {
	Success     bool   `json:"success"`
	Content     string `json:"content"`
	Error       string `json:"error,omitempty"`
	ShortResult string `json:"short_result,omitempty"`
}
