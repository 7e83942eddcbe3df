package types

// BlockType tags a block variant.
type BlockType string

const (
	BlockText          BlockType = "text"
	BlockError         BlockType = "error"
	BlockTool          BlockType = "tool"
	BlockImage         BlockType = "image"
	BlockDiff          BlockType = "diff"
	BlockCommandOutput BlockType = "command_output"
	BlockCompress      BlockType = "compress"
	BlockMemory        BlockType = "memory"
	BlockSubagent      BlockType = "subagent"
)

// ToolStage is the lifecycle stage of a tool block.
// Stages are strictly ordered and never revisited.
type ToolStage string

const (
	StageStart     ToolStage = "start"
	StageStreaming ToolStage = "streaming"
	StageRunning   ToolStage = "running"
	StageEnd       ToolStage = "end"
)

var stageOrder = map[ToolStage]int{
	StageStart:     0,
	StageStreaming: 1,
	StageRunning:   2,
	StageEnd:       3,
}

// After reports whether s comes strictly after other in the stage order.
func (s ToolStage) After(other ToolStage) bool {
	return stageOrder[s] > stageOrder[other]
}

// Block is one typed unit of message content. Which fields are meaningful
// depends on Type; unused fields stay at their zero value and are omitted
// from the persisted form.
type Block struct {
	Type BlockType `json:"type"`
	ID   string    `json:"id,omitempty"`

	// text, error, memory, compress
	Text string `json:"text,omitempty"`

	// image
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`

	// diff
	FilePath string `json:"file_path,omitempty"`
	OldText  string `json:"old_text,omitempty"`
	NewText  string `json:"new_text,omitempty"`

	// command_output
	Command string `json:"command,omitempty"`
	Output  string `json:"output,omitempty"`

	// tool
	ToolName  string         `json:"tool_name,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Stage     ToolStage      `json:"stage,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	Success   *bool          `json:"success,omitempty"`
	Result    string         `json:"result,omitempty"`
	ErrText   string         `json:"error,omitempty"`

	// subagent reference: the delegated session whose transcript backs
	// this block's display
	SubagentID   string `json:"subagent_id,omitempty"`
	SubagentType string `json:"subagent_type,omitempty"`
}

// AdvanceStage moves a tool block to the given stage. Backward transitions
// are rejected: once a block reaches end it stays there. Returns true if the
// stage actually changed.
func (b *Block) AdvanceStage(next ToolStage) bool {
	if b.Type != BlockTool {
		return false
	}
	if b.Stage != "" && !next.After(b.Stage) {
		return false
	}
	b.Stage = next
	return true
}

// EndTool marks a tool block terminal with its outcome.
func (b *Block) EndTool(success bool, result, errText string) {
	if !b.AdvanceStage(StageEnd) {
		return
	}
	b.Success = &success
	b.Result = result
	b.ErrText = errText
}

// TextBlock builds a plain text block.
func TextBlock(text string) Block {
	return Block{Type: BlockText, Text: text}
}

// ErrorBlock builds an error block.
func ErrorBlock(text string) Block {
	return Block{Type: BlockError, Text: text}
}

// MemoryBlock builds a memory block.
func MemoryBlock(text string) Block {
	return Block{Type: BlockMemory, Text: text}
}

// ToolBlock builds a tool block in the start stage.
func ToolBlock(toolUseID, toolName string, input map[string]any) Block {
	return Block{
		Type:      BlockTool,
		ToolUseID: toolUseID,
		ToolName:  toolName,
		Input:     input,
		Stage:     StageStart,
	}
}

// Message is one ordered entry of a conversation.
type Message struct {
	Role   Role    `json:"role"`
	Blocks []Block `json:"blocks"`
	Usage  *Usage  `json:"usage,omitempty"`
}
