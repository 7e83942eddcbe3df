package tools

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rsmyth-dev/heron/pkg/types"
)

// DeleteTool removes a single file. Directories are refused.
type DeleteTool struct{}

func (d *DeleteTool) Name() string { return "Delete" }

func (d *DeleteTool) Description() string {
	return "Deletes a file. Refuses to delete directories; use the Bash tool for that."
}

func (d *DeleteTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "The absolute path to the file to delete",
			},
		},
		"required": []string{"file_path"},
	}
}

func (d *DeleteTool) FormatParams(input map[string]any) string {
	path, _ := input["file_path"].(string)
	return path
}

func (d *DeleteTool) Execute(_ context.Context, input map[string]any) (types.ToolResult, error) {
	path, okp := input["file_path"].(string)
	if !okp || path == "" {
		return fail("file_path is required"), nil
	}
	if !filepath.IsAbs(path) {
		return fail("file_path must be an absolute path"), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return fail("%s", err), nil
	}
	if info.IsDir() {
		return fail("%s is a directory", path), nil
	}
	if err := os.Remove(path); err != nil {
		return fail("%s", err), nil
	}
	return ok("Deleted " + path), nil
}
