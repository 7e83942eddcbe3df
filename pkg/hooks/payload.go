package hooks

// Meta is embedded in every hook payload.
type Meta struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	CWD            string `json:"cwd"`
	HookEventName  string `json:"hook_event_name"`
}

// PreToolUsePayload is sent to PreToolUse hooks.
type PreToolUsePayload struct {
	Meta
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
	ToolUseID string         `json:"tool_use_id"`
}

// PostToolUsePayload is sent to PostToolUse hooks.
type PostToolUsePayload struct {
	Meta
	ToolName     string         `json:"tool_name"`
	ToolInput    map[string]any `json:"tool_input"`
	ToolResponse any            `json:"tool_response"`
	ToolUseID    string         `json:"tool_use_id"`
}

// UserPromptSubmitPayload is sent to UserPromptSubmit hooks.
type UserPromptSubmitPayload struct {
	Meta
	Prompt string `json:"prompt"`
}

// StopPayload is sent to Stop hooks. StopHookActive is true when the turn
// now ending was itself forced by a previous Stop hook, so hooks can avoid
// continuation loops.
type StopPayload struct {
	Meta
	StopHookActive bool `json:"stop_hook_active"`
}

// SubagentStopPayload is sent to SubagentStop hooks.
type SubagentStopPayload struct {
	Meta
	SubagentID      string `json:"subagent_id"`
	SubagentType    string `json:"subagent_type"`
	StopHookActive  bool   `json:"stop_hook_active"`
	TranscriptOfSub string `json:"subagent_transcript_path,omitempty"`
}

// NotificationPayload is sent to Notification hooks.
type NotificationPayload struct {
	Meta
	Message string `json:"message"`
}
