package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rsmyth-dev/heron/pkg/types"
)

// EditTool performs an exact string replacement in one file.
type EditTool struct{}

func (e *EditTool) Name() string { return "Edit" }

func (e *EditTool) Description() string {
	return "Performs an exact string replacement in a file. Fails if old_string is not unique unless replace_all is set."
}

func (e *EditTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "The absolute path to the file to modify",
			},
			"old_string": map[string]any{
				"type":        "string",
				"description": "The text to replace",
			},
			"new_string": map[string]any{
				"type":        "string",
				"description": "The text to replace it with",
			},
			"replace_all": map[string]any{
				"type":        "boolean",
				"description": "Replace all occurrences of old_string (default false)",
			},
		},
		"required": []string{"file_path", "old_string", "new_string"},
	}
}

func (e *EditTool) FormatParams(input map[string]any) string {
	path, _ := input["file_path"].(string)
	return path
}

func (e *EditTool) Execute(_ context.Context, input map[string]any) (types.ToolResult, error) {
	path, okp := input["file_path"].(string)
	if !okp || path == "" {
		return fail("file_path is required"), nil
	}
	if !filepath.IsAbs(path) {
		return fail("file_path must be an absolute path"), nil
	}
	oldStr, oks := input["old_string"].(string)
	if !oks || oldStr == "" {
		return fail("old_string is required"), nil
	}
	newStr, okn := input["new_string"].(string)
	if !okn {
		return fail("new_string is required"), nil
	}
	if oldStr == newStr {
		return fail("old_string and new_string must be different"), nil
	}
	replaceAll, _ := input["replace_all"].(bool)

	count, err := applyEdit(path, oldStr, newStr, replaceAll)
	if err != nil {
		return fail("%s", err), nil
	}
	return ok(fmt.Sprintf("Replaced %d occurrence(s) in %s", count, path)), nil
}

// applyEdit is shared by Edit and MultiEdit.
func applyEdit(path, oldStr, newStr string, replaceAll bool) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	content := string(data)

	count := strings.Count(content, oldStr)
	if count == 0 {
		return 0, fmt.Errorf("old_string not found in %s", path)
	}
	if !replaceAll && count > 1 {
		return 0, fmt.Errorf("old_string found %d times in %s; use replace_all or a more unique string", count, path)
	}

	if replaceAll {
		content = strings.ReplaceAll(content, oldStr, newStr)
	} else {
		content = strings.Replace(content, oldStr, newStr, 1)
		count = 1
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return 0, err
	}
	return count, nil
}

// MultiEditTool applies a sequence of edits to one file atomically: either
// every edit applies or the file is untouched.
type MultiEditTool struct{}

type editSpec struct {
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	ReplaceAll bool   `json:"replace_all"`
}

func (m *MultiEditTool) Name() string { return "MultiEdit" }

func (m *MultiEditTool) Description() string {
	return "Applies multiple exact string replacements to one file in order. All edits succeed or none are applied."
}

func (m *MultiEditTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "The absolute path to the file to modify",
			},
			"edits": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"old_string":  map[string]any{"type": "string"},
						"new_string":  map[string]any{"type": "string"},
						"replace_all": map[string]any{"type": "boolean"},
					},
					"required": []string{"old_string", "new_string"},
				},
				"description": "Edits to apply in order",
			},
		},
		"required": []string{"file_path", "edits"},
	}
}

func (m *MultiEditTool) FormatParams(input map[string]any) string {
	path, _ := input["file_path"].(string)
	return path
}

func (m *MultiEditTool) Execute(_ context.Context, input map[string]any) (types.ToolResult, error) {
	path, okp := input["file_path"].(string)
	if !okp || path == "" {
		return fail("file_path is required"), nil
	}
	if !filepath.IsAbs(path) {
		return fail("file_path must be an absolute path"), nil
	}

	rawEdits, oke := input["edits"].([]any)
	if !oke || len(rawEdits) == 0 {
		return fail("edits is required and must be a non-empty array"), nil
	}
	edits := make([]editSpec, 0, len(rawEdits))
	for i, raw := range rawEdits {
		data, err := json.Marshal(raw)
		if err != nil {
			return fail("invalid edit at index %d", i), nil
		}
		var spec editSpec
		if err := json.Unmarshal(data, &spec); err != nil {
			return fail("invalid edit at index %d", i), nil
		}
		if spec.OldString == "" {
			return fail("edits[%d].old_string is required", i), nil
		}
		if spec.OldString == spec.NewString {
			return fail("edits[%d]: old_string and new_string must be different", i), nil
		}
		edits = append(edits, spec)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fail("%s", err), nil
	}
	content := string(data)

	// Validate and apply in memory first so a failing edit leaves the file
	// untouched.
	total := 0
	for i, spec := range edits {
		count := strings.Count(content, spec.OldString)
		if count == 0 {
			return fail("edits[%d]: old_string not found", i), nil
		}
		if !spec.ReplaceAll && count > 1 {
			return fail("edits[%d]: old_string found %d times; use replace_all", i, count), nil
		}
		if spec.ReplaceAll {
			content = strings.ReplaceAll(content, spec.OldString, spec.NewString)
			total += count
		} else {
			content = strings.Replace(content, spec.OldString, spec.NewString, 1)
			total++
		}
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fail("write file: %s", err), nil
	}
	return ok(fmt.Sprintf("Applied %d edit(s) (%d replacement(s)) to %s", len(edits), total, path)), nil
}
