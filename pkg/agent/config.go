package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/rsmyth-dev/heron/pkg/bgtask"
	"github.com/rsmyth-dev/heron/pkg/hooks"
	"github.com/rsmyth-dev/heron/pkg/llm"
	"github.com/rsmyth-dev/heron/pkg/message"
	"github.com/rsmyth-dev/heron/pkg/permission"
	"github.com/rsmyth-dev/heron/pkg/session"
	"github.com/rsmyth-dev/heron/pkg/tools"
	"github.com/rsmyth-dev/heron/pkg/types"
)

// Defaults applied by Config.resolve.
const (
	DefaultModel              = "claude-sonnet-4-5"
	DefaultMaxTokens          = 16384
	DefaultCompressThreshold  = 160_000
	DefaultKeepRecentMessages = 8
	DefaultMaxDelegationDepth = 1
)

// Environment fallbacks consulted when the corresponding field is unset.
const (
	envModel      = "HERON_MODEL"
	envProjectDir = "HERON_PROJECT_DIR"
)

// Config holds everything an Agent needs. Required dependencies are injected
// explicitly; nothing reads ambient process state after construction.
type Config struct {
	// Model and prompt
	Model        string
	SystemPrompt string
	MaxTokens    int // per-request output budget

	// Execution limits
	MaxTurns int // 0 = unlimited

	// Context compression
	CompressThreshold  int // cumulative input tokens triggering a compress pass
	KeepRecentMessages int

	// Session identity
	Workdir         string
	SessionType     types.SessionType
	ParentSessionID string
	PermissionMode  types.PermissionMode

	// Restore policy: Resume wins over ContinueLast; neither = fresh session.
	Resume       string
	ContinueLast bool

	// Delegation
	DelegationDepth    int // 0 for the main agent
	MaxDelegationDepth int

	// Injected dependencies. Client and Tools are required.
	Client      llm.Client
	Tools       *tools.Registry
	Permissions *permission.Engine
	Hooks       *hooks.Runner
	Tasks       *bgtask.Registry
	Store       *session.Store // nil = in-memory session only
	Logger      *slog.Logger
}

// resolve applies environment fallbacks and built-in defaults in place.
// Called once at construction; components never consult the environment
// afterwards.
func (c *Config) resolve() {
	if c.Model == "" {
		c.Model = os.Getenv(envModel)
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Workdir == "" {
		c.Workdir = os.Getenv(envProjectDir)
	}
	if c.Workdir == "" {
		if wd, err := os.Getwd(); err == nil {
			c.Workdir = wd
		}
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.CompressThreshold == 0 {
		c.CompressThreshold = DefaultCompressThreshold
	}
	if c.KeepRecentMessages == 0 {
		c.KeepRecentMessages = DefaultKeepRecentMessages
	}
	if c.MaxDelegationDepth == 0 {
		c.MaxDelegationDepth = DefaultMaxDelegationDepth
	}
	if c.SessionType == "" {
		c.SessionType = types.SessionMain
	}
	if c.PermissionMode == "" {
		c.PermissionMode = types.PermissionModeDefault
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// validate fails fast on configuration errors. The Agent cannot be created
// from an invalid Config.
func (c *Config) validate() error {
	if c.Client == nil {
		return errors.New("agent: model client is required")
	}
	if c.Tools == nil {
		return errors.New("agent: tool registry is required")
	}
	if !c.PermissionMode.Valid() {
		return fmt.Errorf("agent: invalid permission mode %q", c.PermissionMode)
	}
	if c.MaxTurns < 0 {
		return fmt.Errorf("agent: negative max turns %d", c.MaxTurns)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("agent: invalid max tokens %d", c.MaxTokens)
	}
	if c.CompressThreshold < 1 {
		return fmt.Errorf("agent: invalid compress threshold %d", c.CompressThreshold)
	}
	if c.KeepRecentMessages < 0 {
		return fmt.Errorf("agent: negative keep-recent count %d", c.KeepRecentMessages)
	}
	if c.DelegationDepth < 0 || c.DelegationDepth > c.MaxDelegationDepth {
		return fmt.Errorf("agent: delegation depth %d exceeds limit %d",
			c.DelegationDepth, c.MaxDelegationDepth)
	}
	return nil
}

// newState builds the message state for this config.
func (c *Config) newState() *message.State {
	return message.New(message.Options{
		Store:           c.Store,
		Workdir:         c.Workdir,
		SessionType:     c.SessionType,
		ParentSessionID: c.ParentSessionID,
		Restore: message.RestoreOptions{
			SessionID:    c.Resume,
			ContinueLast: c.ContinueLast,
		},
		Logger: c.Logger,
	})
}
