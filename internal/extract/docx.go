package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
)

const docxBodyPath = "word/document.xml"

var (
	docxParagraph = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	docxRun       = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
)

// extractDOCX reads w:t runs paragraph by paragraph. lu4p/cat misses
// paragraphs that carry attributes, which most real documents do.
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("docx is not a zip archive: %w", err)
	}
	var body []byte
	for _, f := range zr.File {
		if f.Name != docxBodyPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", f.Name, err)
		}
		body, err = io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return "", fmt.Errorf("read %s: %w", f.Name, err)
		}
		break
	}
	if body == nil {
		return "", fmt.Errorf("%s not found", docxBodyPath)
	}

	var paragraphs []string
	for _, p := range docxParagraph.FindAll(body, -1) {
		var sb strings.Builder
		for _, run := range docxRun.FindAllSubmatch(p, -1) {
			sb.Write(run[1])
		}
		if line := strings.TrimSpace(html.UnescapeString(sb.String())); line != "" {
			paragraphs = append(paragraphs, line)
		}
	}
	return strings.Join(paragraphs, "\n\n"), nil
}
