// Package session persists one conversation per append-only JSONL file.
// The first line of a file is an optional metadata record; every following
// line is a timestamped message record. A session file has exactly one
// writer at a time, the message state instance that owns it.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rsmyth-dev/heron/pkg/types"
)

const fileExt = ".jsonl"

// Store reads and appends session files under a base directory.
type Store struct {
	baseDir string
	writer  *asyncWriter
	logger  *slog.Logger
}

// NewStore creates a Store rooted at baseDir, creating it if needed.
func NewStore(baseDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &Store{
		baseDir: baseDir,
		writer:  newAsyncWriter(),
		logger:  logger,
	}, nil
}

// Path returns the file path backing a session id.
func (s *Store) Path(sessionID string) string {
	return filepath.Join(s.baseDir, sessionID+fileExt)
}

// WriteMeta appends the metadata record. Callers invoke it exactly once,
// before the first message, on a fresh session.
func (s *Store) WriteMeta(meta Meta) error {
	meta.IsMeta = true
	return s.appendJSON(meta.SessionID, meta)
}

// AppendMessage appends one message record with the given timestamp.
func (s *Store) AppendMessage(sessionID string, msg types.Message, at time.Time) error {
	return s.appendJSON(sessionID, MessageRecord{Timestamp: at, Message: msg})
}

func (s *Store) appendJSON(sessionID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	data = append(data, '\n')

	errCh := make(chan error, 1)
	s.writer.Write(s.Path(sessionID), data, errCh)
	return <-errCh
}

// Loaded is the parsed content of a session file.
type Loaded struct {
	Meta     *Meta // nil when the file has no metadata line
	Messages []MessageRecord
}

// Load parses a session file. Unparseable lines are skipped with a warning
// so a torn final write does not lose the whole session.
func (s *Store) Load(sessionID string) (*Loaded, error) {
	f, err := os.Open(s.Path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	defer f.Close()

	loaded := &Loaded{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if first {
			first = false
			var meta Meta
			if err := json.Unmarshal([]byte(line), &meta); err == nil && meta.IsMeta {
				loaded.Meta = &meta
				continue
			}
		}

		var rec MessageRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			s.logger.Warn("skipping corrupt session line", "session", sessionID, "err", err)
			continue
		}
		loaded.Messages = append(loaded.Messages, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read session %s: %w", sessionID, err)
	}
	return loaded, nil
}

// Info summarizes one stored session.
type Info struct {
	SessionID  string
	Workdir    string
	ModifiedAt time.Time
}

// List returns all stored sessions, most recently modified first.
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var infos []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		id := strings.TrimSuffix(name, fileExt)
		infos = append(infos, Info{
			SessionID:  id,
			Workdir:    s.readWorkdir(id),
			ModifiedAt: fi.ModTime(),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ModifiedAt.After(infos[j].ModifiedAt)
	})
	return infos, nil
}

// LatestFor returns the most recently modified session id for a workdir.
func (s *Store) LatestFor(workdir string) (string, error) {
	infos, err := s.List()
	if err != nil {
		return "", err
	}
	for _, info := range infos {
		if info.Workdir == workdir {
			return info.SessionID, nil
		}
	}
	return "", ErrSessionNotFound
}

// readWorkdir peeks at the first line of a session file for its workdir.
func (s *Store) readWorkdir(sessionID string) string {
	f, err := os.Open(s.Path(sessionID))
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		return ""
	}
	var meta Meta
	if err := json.Unmarshal(scanner.Bytes(), &meta); err != nil || !meta.IsMeta {
		return ""
	}
	return meta.Workdir
}

// Delete removes a session file and its lock sidecar.
func (s *Store) Delete(sessionID string) error {
	path := s.Path(sessionID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return ErrSessionNotFound
	}
	_ = os.Remove(path + ".lock")
	return os.Remove(path)
}

// Close flushes the async writer and closes open files.
func (s *Store) Close() error {
	return s.writer.Close()
}
