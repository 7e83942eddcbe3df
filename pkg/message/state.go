// Package message keeps the in-memory ordered conversation for one session
// and mirrors it into the session store. Each State instance exclusively owns
// its backing session file.
package message

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rsmyth-dev/heron/pkg/session"
	"github.com/rsmyth-dev/heron/pkg/types"
)

// RestoreOptions selects how a State binds to a session.
// SessionID wins over ContinueLast; with neither set a fresh session starts.
type RestoreOptions struct {
	SessionID    string
	ContinueLast bool
}

// Options configures a new State.
type Options struct {
	Store           *session.Store // nil = in-memory only
	Workdir         string
	SessionType     types.SessionType
	ParentSessionID string
	Restore         RestoreOptions
	Logger          *slog.Logger
}

// State is the message state machine for one session.
type State struct {
	mu sync.Mutex

	sessionID string
	workdir   string
	messages  []types.Message
	store     *session.Store
	logger    *slog.Logger

	// pendingAssistant marks that the trailing assistant message is still
	// streaming and has not been persisted yet.
	pendingAssistant bool
}

// New creates a State, restoring a prior session per opts.Restore.
// A restoration failure is non-fatal: it is logged and a fresh session starts.
func New(opts Options) *State {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	st := &State{
		workdir: opts.Workdir,
		store:   opts.Store,
		logger:  logger,
	}

	sessionType := opts.SessionType
	if sessionType == "" {
		sessionType = types.SessionMain
	}

	if st.store != nil {
		if id, ok := st.restore(opts.Restore); ok {
			st.sessionID = id
			return st
		}
	}

	// Fresh session.
	st.sessionID = session.NewSessionID()
	if st.store != nil {
		err := st.store.WriteMeta(session.Meta{
			SessionID:       st.sessionID,
			SessionType:     sessionType,
			ParentSessionID: opts.ParentSessionID,
			Workdir:         opts.Workdir,
			StartedAt:       time.Now(),
		})
		if err != nil {
			logger.Warn("session metadata write failed", "session", st.sessionID, "err", err)
		}
	}
	return st
}

// restore attempts to load an existing session; ok=false falls back to fresh.
func (s *State) restore(opts RestoreOptions) (string, bool) {
	id := opts.SessionID
	if id == "" && opts.ContinueLast {
		latest, err := s.store.LatestFor(s.workdir)
		if err != nil {
			s.logger.Warn("no session to continue", "workdir", s.workdir, "err", err)
			return "", false
		}
		id = latest
	}
	if id == "" {
		return "", false
	}

	loaded, err := s.store.Load(id)
	if err != nil {
		s.logger.Warn("session restore failed, starting fresh", "session", id, "err", err)
		return "", false
	}
	for _, rec := range loaded.Messages {
		s.messages = append(s.messages, rec.Message)
	}
	return id, true
}

// SessionID returns the bound session id.
func (s *State) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// TranscriptPath returns the backing file path, or "" without a store.
func (s *State) TranscriptPath() string {
	if s.store == nil {
		return ""
	}
	return s.store.Path(s.SessionID())
}

// Messages returns a copy of the conversation.
func (s *State) Messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// AddUserMessage appends a user message built from text plus attachments
// and persists it immediately.
func (s *State) AddUserMessage(content string, attachments ...types.Block) error {
	blocks := make([]types.Block, 0, 1+len(attachments))
	if content != "" {
		blocks = append(blocks, types.TextBlock(content))
	}
	blocks = append(blocks, attachments...)
	return s.appendAndPersist(types.Message{Role: types.RoleUser, Blocks: blocks})
}

// AddMemoryBlock appends a memory block as its own user-role message.
func (s *State) AddMemoryBlock(content string) error {
	return s.appendAndPersist(types.Message{
		Role:   types.RoleUser,
		Blocks: []types.Block{types.MemoryBlock(content)},
	})
}

// AddSubagentMessage appends a subagent reference message.
func (s *State) AddSubagentMessage(subagentID, subagentType, summary string) error {
	return s.appendAndPersist(types.Message{
		Role: types.RoleSubagent,
		Blocks: []types.Block{{
			Type:         types.BlockSubagent,
			SubagentID:   subagentID,
			SubagentType: subagentType,
			Text:         summary,
		}},
	})
}

func (s *State) appendAndPersist(msg types.Message) error {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return s.persist(msg)
}

func (s *State) persist(msg types.Message) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.AppendMessage(s.SessionID(), msg, time.Now()); err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	return nil
}

// AppendOrUpdateAssistantBlock applies a streaming block update. Blocks are
// matched by index within the trailing assistant message; a new assistant
// message is opened when the conversation doesn't end with a streaming one.
// Tool stage updates honor monotonicity: stale stages are ignored.
func (s *State) AppendOrUpdateAssistantBlock(index int, block types.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) == 0 || s.messages[len(s.messages)-1].Role != types.RoleAssistant || !s.pendingAssistant {
		s.messages = append(s.messages, types.Message{Role: types.RoleAssistant})
		s.pendingAssistant = true
	}
	msg := &s.messages[len(s.messages)-1]

	for len(msg.Blocks) <= index {
		msg.Blocks = append(msg.Blocks, types.Block{})
	}

	existing := &msg.Blocks[index]
	if existing.Type == types.BlockTool && block.Type == types.BlockTool {
		// Preserve the stage machine: copy content, advance stage separately.
		stage := block.Stage
		content := block
		content.Stage = existing.Stage
		*existing = content
		existing.AdvanceStage(stage)
		return
	}
	*existing = block
}

// UpdateToolBlock finds the tool block with the given tool_use id in the
// trailing assistant message and applies fn to it.
func (s *State) UpdateToolBlock(toolUseID string, fn func(*types.Block)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.messages) - 1; i >= 0; i-- {
		msg := &s.messages[i]
		if msg.Role != types.RoleAssistant {
			continue
		}
		for j := range msg.Blocks {
			if msg.Blocks[j].Type == types.BlockTool && msg.Blocks[j].ToolUseID == toolUseID {
				fn(&msg.Blocks[j])
				return true
			}
		}
	}
	return false
}

// FinalizeAssistant seals the streaming assistant message, records its usage,
// and persists it. No-op if nothing is streaming.
func (s *State) FinalizeAssistant(usage types.Usage) error {
	s.mu.Lock()
	if !s.pendingAssistant || len(s.messages) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.pendingAssistant = false
	msg := &s.messages[len(s.messages)-1]
	u := usage
	msg.Usage = &u
	final := *msg
	s.mu.Unlock()

	return s.persist(final)
}

// AddCompressBlock replaces messages older than the last keepRecent with a
// single compress-block message carrying the summary. Returns the number of
// messages dropped.
func (s *State) AddCompressBlock(summary string, keepRecent int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keepRecent < 0 {
		keepRecent = 0
	}
	if len(s.messages) <= keepRecent {
		return 0
	}

	dropped := len(s.messages) - keepRecent
	kept := make([]types.Message, 0, keepRecent+1)
	kept = append(kept, types.Message{
		Role:   types.RoleUser,
		Blocks: []types.Block{{Type: types.BlockCompress, Text: summary}},
	})
	kept = append(kept, s.messages[dropped:]...)
	s.messages = kept
	return dropped
}

// SetMessages replaces the conversation wholesale. Intended for bulk restore
// and tests; nothing is persisted.
func (s *State) SetMessages(msgs []types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make([]types.Message, len(msgs))
	copy(s.messages, msgs)
	s.pendingAssistant = false
}

// ClearMessages empties the in-memory conversation. The persisted file is
// left intact; history is append-only.
func (s *State) ClearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.pendingAssistant = false
}

// Save flushes any buffered writes to disk.
func (s *State) Save() error {
	if s.store == nil {
		return nil
	}
	// The async writer confirms each append individually, so messages are
	// already durable by the time their Append call returned.
	return nil
}

// TotalUsage sums usage across all assistant messages.
func (s *State) TotalUsage() types.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total types.Usage
	for _, m := range s.messages {
		if m.Usage != nil {
			total.Add(*m.Usage)
		}
	}
	return total
}
