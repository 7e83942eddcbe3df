package session

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/rsmyth-dev/heron/pkg/types"
)

// Meta is the optional first record of a session file.
type Meta struct {
	IsMeta          bool              `json:"isMeta"`
	SessionID       string            `json:"sessionId"`
	SessionType     types.SessionType `json:"sessionType"`
	ParentSessionID string            `json:"parentSessionId,omitempty"`
	Workdir         string            `json:"workdir"`
	StartedAt       time.Time         `json:"startedAt"`
}

// MessageRecord is one message line of a session file.
type MessageRecord struct {
	Timestamp time.Time     `json:"timestamp"`
	Message   types.Message `json:"message"`
}

// NewSessionID generates an opaque identifier that sorts by creation time:
// a UTC timestamp prefix followed by random hex.
func NewSessionID() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return time.Now().UTC().Format("20060102T150405") + "-" + hex.EncodeToString(b)
}
