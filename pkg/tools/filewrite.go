package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rsmyth-dev/heron/pkg/types"
)

// WriteTool writes a file, creating parent directories as needed.
type WriteTool struct{}

func (w *WriteTool) Name() string { return "Write" }

func (w *WriteTool) Description() string {
	return "Writes content to a file, overwriting any existing content. Parent directories are created automatically."
}

func (w *WriteTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "The absolute path to the file to write",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The content to write",
			},
		},
		"required": []string{"file_path", "content"},
	}
}

func (w *WriteTool) FormatParams(input map[string]any) string {
	path, _ := input["file_path"].(string)
	return path
}

func (w *WriteTool) Execute(_ context.Context, input map[string]any) (types.ToolResult, error) {
	path, okp := input["file_path"].(string)
	if !okp || path == "" {
		return fail("file_path is required"), nil
	}
	if !filepath.IsAbs(path) {
		return fail("file_path must be an absolute path"), nil
	}
	content, okc := input["content"].(string)
	if !okc {
		return fail("content is required"), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fail("create parent directory: %s", err), nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fail("write file: %s", err), nil
	}
	return ok(fmt.Sprintf("Wrote %d bytes to %s", len(content), path)), nil
}
