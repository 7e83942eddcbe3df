// Package subagent discovers subagent definitions and delegates tasks to
// isolated agent instances. Definitions are markdown files with a YAML
// frontmatter header; the body becomes the subagent's system prompt.
package subagent

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source identifies where a definition was loaded from.
type Source string

const (
	SourceUser    Source = "user"    // ~/.heron/agents/*.md
	SourceProject Source = "project" // <workdir>/.heron/agents/*.md
)

// Definition is one subagent type.
type Definition struct {
	Name        string
	Description string
	Tools       []string // nil = inherit the parent's full tool set
	Model       string   // "" or "inherit" = parent's model
	Prompt      string   // file body, used verbatim as the system prompt

	Source   Source
	FilePath string
}

// InheritsModel reports whether the definition defers model choice to the
// parent.
func (d Definition) InheritsModel() bool {
	return d.Model == "" || d.Model == "inherit"
}

var nameRe = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

type frontmatter struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Tools       flexStringList `yaml:"tools"`
	Model       string         `yaml:"model"`
}

// flexStringList accepts either a YAML list or a comma-separated scalar,
// e.g. `tools: Read, Bash` and `tools: [Read, Bash]` both parse.
type flexStringList []string

func (f *flexStringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*f = list
		return nil
	case yaml.ScalarNode:
		var out []string
		for _, part := range strings.Split(value.Value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		*f = out
		return nil
	default:
		return fmt.Errorf("tools must be a string or a list, got YAML kind %d", value.Kind)
	}
}

// ParseFile reads a definition from a markdown file.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subagent file %s: %w", path, err)
	}
	return ParseContent(data, path)
}

// ParseContent parses a definition from raw file content.
func ParseContent(data []byte, path string) (*Definition, error) {
	header, body := splitFrontmatter(string(data))
	if header == "" {
		return nil, fmt.Errorf("no frontmatter in %s", path)
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return nil, fmt.Errorf("parse frontmatter in %s: %w", path, err)
	}

	if fm.Name == "" {
		base := filepath.Base(path)
		fm.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if !nameRe.MatchString(fm.Name) {
		return nil, fmt.Errorf("invalid subagent name %q in %s (must be lowercase-hyphen)", fm.Name, path)
	}
	if fm.Description == "" {
		return nil, fmt.Errorf("missing description in %s", path)
	}

	return &Definition{
		Name:        fm.Name,
		Description: fm.Description,
		Tools:       []string(fm.Tools),
		Model:       fm.Model,
		Prompt:      strings.TrimSpace(body),
		FilePath:    path,
	}, nil
}

// splitFrontmatter separates the YAML header (between leading "---" lines)
// from the markdown body.
func splitFrontmatter(content string) (header, body string) {
	if !strings.HasPrefix(content, "---") {
		return "", content
	}
	rest := strings.TrimPrefix(content[3:], "\r")
	rest = strings.TrimPrefix(rest, "\n")

	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", content
	}
	header = rest[:end]
	body = rest[end+4:]
	body = strings.TrimPrefix(body, "\r")
	body = strings.TrimPrefix(body, "\n")
	return header, body
}
