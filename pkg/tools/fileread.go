package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	gopdf "github.com/ledongthuc/pdf"

	"github.com/rsmyth-dev/heron/pkg/types"
)

const (
	readDefaultLimit  = 2000 // lines
	readMaxLineLength = 2000 // characters
	readMaxPDFPages   = 20
)

// ReadTool reads text files with line numbers and extracts text from PDFs.
type ReadTool struct{}

func (r *ReadTool) Name() string { return "Read" }

func (r *ReadTool) Description() string {
	return `Reads a file from the local filesystem.

Usage:
- The file_path parameter must be an absolute path
- By default reads up to 2000 lines from the beginning of the file; use offset and limit for long files
- Lines longer than 2000 characters are truncated
- Results use cat -n format with line numbers starting at 1
- PDF files are read as extracted text; for PDFs over 20 pages the pages parameter is required (e.g. "1-5")
- This tool reads files, not directories`
}

func (r *ReadTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "The absolute path to the file to read",
			},
			"offset": map[string]any{
				"type":        "number",
				"description": "The line number to start reading from (1-indexed)",
			},
			"limit": map[string]any{
				"type":        "number",
				"description": "The number of lines to read",
			},
			"pages": map[string]any{
				"type":        "string",
				"description": "Page range for PDF files (e.g. \"1-5\", \"3\"). Max 20 pages per request.",
			},
		},
		"required": []string{"file_path"},
	}
}

func (r *ReadTool) FormatParams(input map[string]any) string {
	path, _ := input["file_path"].(string)
	return path
}

func (r *ReadTool) Execute(_ context.Context, input map[string]any) (types.ToolResult, error) {
	path, okp := input["file_path"].(string)
	if !okp || path == "" {
		return fail("file_path is required"), nil
	}
	if !filepath.IsAbs(path) {
		return fail("file_path must be an absolute path"), nil
	}

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return r.readPDF(path, input)
	}

	file, err := os.Open(path)
	if err != nil {
		return fail("%s", err), nil
	}
	defer file.Close()

	offset := 1
	if o, oko := input["offset"].(float64); oko && o > 0 {
		offset = int(o)
	}
	limit := readDefaultLimit
	if l, okl := input["limit"].(float64); okl && l > 0 {
		limit = int(l)
	}

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum, read := 0, 0
	for scanner.Scan() {
		lineNum++
		if lineNum < offset {
			continue
		}
		if read >= limit {
			break
		}
		line := scanner.Text()
		if len(line) > readMaxLineLength {
			line = line[:readMaxLineLength]
		}
		lines = append(lines, fmt.Sprintf("%6d\t%s", lineNum, line))
		read++
	}
	if err := scanner.Err(); err != nil {
		return fail("read file: %s", err), nil
	}
	if len(lines) == 0 {
		return ok("(empty file)"), nil
	}
	return ok(strings.Join(lines, "\n")), nil
}

func (r *ReadTool) readPDF(path string, input map[string]any) (types.ToolResult, error) {
	pdfFile, reader, err := gopdf.Open(path)
	if err != nil {
		return fail("open PDF: %s", err), nil
	}
	defer pdfFile.Close()

	totalPages := reader.NumPage()
	if totalPages == 0 {
		return ok("(empty PDF)"), nil
	}

	startPage, endPage := 1, totalPages
	if pagesStr, okp := input["pages"].(string); okp && pagesStr != "" {
		startPage, endPage, err = parsePageRange(pagesStr, totalPages)
		if err != nil {
			return fail("%s", err), nil
		}
	} else if totalPages > readMaxPDFPages {
		return fail("PDF has %d pages (max %d); use the pages parameter, e.g. \"1-5\"",
			totalPages, readMaxPDFPages), nil
	}
	if endPage-startPage+1 > readMaxPDFPages {
		return fail("requested %d pages (max %d per request)", endPage-startPage+1, readMaxPDFPages), nil
	}

	var b strings.Builder
	lineNum := 0
	for p := startPage; p <= endPage; p++ {
		page := reader.Page(p)
		if page.V.IsNull() {
			continue
		}
		text, extractErr := page.GetPlainText(nil)
		if extractErr != nil {
			fmt.Fprintf(&b, "[page %d: %s]\n", p, extractErr)
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			lineNum++
			if len(line) > readMaxLineLength {
				line = line[:readMaxLineLength]
			}
			fmt.Fprintf(&b, "%6d\t%s\n", lineNum, line)
		}
	}
	if b.Len() == 0 {
		return ok("(no text extracted from PDF)"), nil
	}
	return ok(strings.TrimRight(b.String(), "\n")), nil
}

// parsePageRange parses "3" or "1-5" against the page count.
func parsePageRange(s string, totalPages int) (start, end int, err error) {
	parts := strings.SplitN(s, "-", 2)
	start, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid page range %q", s)
	}
	end = start
	if len(parts) == 2 {
		end, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid page range %q", s)
		}
	}
	if start < 1 || end < start || end > totalPages {
		return 0, 0, fmt.Errorf("page range %q out of bounds (document has %d pages)", s, totalPages)
	}
	return start, end, nil
}
