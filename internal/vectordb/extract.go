package vectordb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

// plainExts are extensions whose bytes are used as-is. Source code is
// treated as plain text; the splitter applies language-aware separators.
var plainExts = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".rst": true,
	".py": true, ".go": true, ".js": true, ".ts": true,
	".java": true, ".c": true, ".h": true, ".cpp": true, ".hpp": true,
	".rs": true, ".rb": true, ".sh": true, ".sql": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".csv": true,
}

// ExtractText converts an uploaded file into plain text based on its
// extension. Unknown extensions are rejected rather than ingested as
// binary noise.
func ExtractText(fileName string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch {
	case plainExts[ext]:
		return string(data), nil
	case ext == ".html" || ext == ".htm":
		return extractHTML(data)
	case ext == ".ipynb":
		return extractNotebook(data)
	case ext == ".pdf":
		return extractPDF(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, ext)
	}
}

func extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()
	return strings.TrimSpace(doc.Find("body").Text()), nil
}

// extractNotebook flattens a Jupyter notebook into markdown: markdown
// cells verbatim, code cells fenced.
func extractNotebook(data []byte) (string, error) {
	var nb struct {
		Cells []struct {
			CellType string          `json:"cell_type"`
			Source   json.RawMessage `json:"source"`
		} `json:"cells"`
	}
	if err := json.Unmarshal(data, &nb); err != nil {
		return "", fmt.Errorf("parse notebook: %w", err)
	}
	var b strings.Builder
	for _, cell := range nb.Cells {
		src := cellSource(cell.Source)
		if strings.TrimSpace(src) == "" {
			continue
		}
		switch cell.CellType {
		case "markdown":
			b.WriteString(src)
		case "code":
			b.WriteString("```\n")
			b.WriteString(src)
			if !strings.HasSuffix(src, "\n") {
				b.WriteString("\n")
			}
			b.WriteString("```")
		default:
			continue
		}
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String()), nil
}

// cellSource handles both notebook source encodings: a single string or
// a list of lines.
func cellSource(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return strings.Join(lines, "")
	}
	return ""
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}
	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), nil
}
