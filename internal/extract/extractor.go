// Package extract turns uploaded file bytes into plain text.
package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/ragdesk/internal/pkg/errors"
)

type Extractor interface {
	Extract(data []byte, fileType string) (string, error)
}

type ExtractFunc func(data []byte) (string, error)

type Registry struct {
	funcs map[string]ExtractFunc
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]ExtractFunc)}
}

// NewDefault registers every format the service accepts.
func NewDefault() *Registry {
	r := NewRegistry()
	r.Register("txt", extractPlain)
	r.Register("csv", extractPlain)
	r.Register("md", extractMarkdown)
	r.Register("markdown", extractMarkdown)
	r.Register("pdf", extractPDF)
	r.Register("docx", extractDOCX)
	r.Register("xlsx", extractXLSX)
	r.Register("rtf", extractRich)
	r.Register("odt", extractRich)
	return r
}

func (r *Registry) Register(fileType string, fn ExtractFunc) {
	r.funcs[NormalizeType(fileType)] = fn
}

func (r *Registry) Supports(fileType string) bool {
	_, ok := r.funcs[NormalizeType(fileType)]
	return ok
}

func (r *Registry) Extract(data []byte, fileType string) (string, error) {
	fn, ok := r.funcs[NormalizeType(fileType)]
	if !ok {
		return "", errors.Invalid("unsupported file type %q", fileType)
	}
	text, err := fn(data)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", fileType, err)
	}
	return strings.TrimSpace(text), nil
}

// NormalizeType lowercases and strips a leading dot, so ".PDF" and "pdf" match.
func NormalizeType(fileType string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(fileType)), ".")
}

func extractPlain(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), "�"), nil
	}
	return string(data), nil
}
