package subagent

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Loader scans definition directories. Project definitions shadow user
// definitions of the same name.
type Loader struct {
	projectDir string
	userDir    string
	logger     *slog.Logger
}

// NewLoader builds a Loader for a workdir. userDir defaults to
// ~/.heron/agents when empty.
func NewLoader(workdir, userDir string, logger *slog.Logger) *Loader {
	if userDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			userDir = filepath.Join(home, ".heron", "agents")
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		projectDir: filepath.Join(workdir, ".heron", "agents"),
		userDir:    userDir,
		logger:     logger,
	}
}

// Dirs returns the directories the loader scans, for watching.
func (l *Loader) Dirs() []string {
	dirs := []string{l.projectDir}
	if l.userDir != "" {
		dirs = append(dirs, l.userDir)
	}
	return dirs
}

// LoadAll scans user then project directories. Missing directories are
// fine; unparseable files are logged and skipped.
func (l *Loader) LoadAll() map[string]Definition {
	defs := map[string]Definition{}
	l.scan(l.userDir, SourceUser, defs)
	l.scan(l.projectDir, SourceProject, defs)
	return defs
}

func (l *Loader) scan(dir string, source Source, defs map[string]Definition) {
	if dir == "" {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		def, err := ParseFile(path)
		if err != nil {
			l.logger.Warn("skipping subagent definition", "path", path, "err", err)
			continue
		}
		def.Source = source
		defs[def.Name] = *def
	}
}
