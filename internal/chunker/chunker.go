// Package chunker splits extracted document text into overlapping segments.
package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/xxxsen/ragdesk/internal/model"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Chunker produces segments of at most Size runes where each segment after the
// first begins with the last Overlap runes of its predecessor.
type Chunker struct {
	size      int
	overlap   int
	tolerance int
}

// New validates size > overlap >= 0. A tolerance <= 0 defaults to size/5 and
// bounds how far back from a hard cut a natural separator is searched for.
func New(size, overlap, tolerance int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	if tolerance <= 0 {
		tolerance = size / 5
	}
	if tolerance > size-overlap-1 {
		tolerance = size - overlap - 1
	}
	return &Chunker{size: size, overlap: overlap, tolerance: tolerance}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split is deterministic and does no I/O. Whitespace-only text yields nil.
func (c *Chunker) Split(docID, text string) []model.TextSegment {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	n := len(runes)
	var segments []model.TextSegment
	start := 0
	for {
		end := start + c.size
		if end >= n {
			segments = append(segments, model.TextSegment{
				DocumentID: docID,
				Index:      len(segments),
				Content:    string(runes[start:]),
			})
			return segments
		}
		cut := c.findCut(runes, start, end)
		segments = append(segments, model.TextSegment{
			DocumentID: docID,
			Index:      len(segments),
			Content:    string(runes[start:cut]),
		})
		start = cut - c.overlap
	}
}

// findCut returns a position in (start+overlap, end]. Preference: paragraph
// break, line break, sentence end, any whitespace, then the hard cut at end.
func (c *Chunker) findCut(runes []rune, start, end int) int {
	lo := end - c.tolerance
	if floor := start + c.overlap + 1; lo < floor {
		lo = floor
	}
	if lo > end {
		return end
	}
	matchers := []func(i int) bool{
		func(i int) bool { return runes[i-1] == '\n' && i >= 2 && runes[i-2] == '\n' },
		func(i int) bool { return runes[i-1] == '\n' },
		func(i int) bool { return i >= 2 && isSentenceEnd(runes[i-2]) && unicode.IsSpace(runes[i-1]) },
		func(i int) bool { return unicode.IsSpace(runes[i-1]) },
	}
	for _, match := range matchers {
		for i := end; i >= lo; i-- {
			if match(i) {
				return i
			}
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？', ';', '؟', '׃':
		return true
	}
	return false
}
