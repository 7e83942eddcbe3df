package session

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/rsmyth-dev/heron/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRoundTrip(t *testing.T) {
	s := newTestStore(t)
	id := NewSessionID()

	if err := s.WriteMeta(Meta{SessionID: id, SessionType: types.SessionMain, Workdir: "/work", StartedAt: time.Now()}); err != nil {
		t.Fatalf("WriteMeta: %v", err)
	}

	const n = 7
	for i := 0; i < n; i++ {
		msg := types.Message{
			Role:   types.RoleUser,
			Blocks: []types.Block{types.TextBlock(fmt.Sprintf("message %d", i))},
		}
		if i%2 == 1 {
			msg.Role = types.RoleAssistant
		}
		if err := s.AppendMessage(id, msg, time.Now()); err != nil {
			t.Fatalf("AppendMessage %d: %v", i, err)
		}
	}

	loaded, err := s.Load(id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Meta == nil || loaded.Meta.SessionID != id || loaded.Meta.Workdir != "/work" {
		t.Fatalf("meta = %+v", loaded.Meta)
	}
	if len(loaded.Messages) != n {
		t.Fatalf("messages = %d, want %d", len(loaded.Messages), n)
	}
	for i, rec := range loaded.Messages {
		want := fmt.Sprintf("message %d", i)
		if rec.Message.Blocks[0].Text != want {
			t.Errorf("message %d text = %q, want %q", i, rec.Message.Blocks[0].Text, want)
		}
	}
}

func TestLoad_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Load("nope"); err != ErrSessionNotFound {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestLoad_SkipsCorruptLines(t *testing.T) {
	s := newTestStore(t)
	id := NewSessionID()
	s.WriteMeta(Meta{SessionID: id, Workdir: "/w"})
	s.AppendMessage(id, types.Message{Role: types.RoleUser, Blocks: []types.Block{types.TextBlock("ok")}}, time.Now())
	s.Close()

	// Simulate a torn write at the end of the file.
	f, err := os.OpenFile(s.Path(id), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(`{"timestamp":"2026-01-01T0`)
	f.Close()

	loaded, err := s.Load(id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Messages) != 1 {
		t.Errorf("messages = %d, want 1 (corrupt tail skipped)", len(loaded.Messages))
	}
}

func TestLatestFor(t *testing.T) {
	s := newTestStore(t)

	older := NewSessionID() + "-a"
	newer := NewSessionID() + "-b"
	s.WriteMeta(Meta{SessionID: older, Workdir: "/w1"})
	s.WriteMeta(Meta{SessionID: newer, Workdir: "/w1"})
	s.WriteMeta(Meta{SessionID: NewSessionID() + "-c", Workdir: "/other"})
	s.Close()

	// Force distinct mtimes.
	now := time.Now()
	os.Chtimes(s.Path(older), now.Add(-time.Hour), now.Add(-time.Hour))
	os.Chtimes(s.Path(newer), now, now)

	got, err := s.LatestFor("/w1")
	if err != nil {
		t.Fatalf("LatestFor: %v", err)
	}
	if got != newer {
		t.Errorf("latest = %s, want %s", got, newer)
	}

	if _, err := s.LatestFor("/missing"); err != ErrSessionNotFound {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestNewSessionID_Sortable(t *testing.T) {
	a := NewSessionID()
	time.Sleep(1100 * time.Millisecond)
	b := NewSessionID()
	if !(a < b) {
		t.Errorf("ids not time-ordered: %s >= %s", a, b)
	}
}
