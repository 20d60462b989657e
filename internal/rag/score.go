package rag

import (
	"github.com/xxxsen/ragdesk/internal/model"
)

const DefaultPreviewRunes = 200

// Confidence is the mean similarity of the matches clamped to [0, 1].
func Confidence(matches []model.RetrievalMatch) float64 {
	if len(matches) == 0 {
		return 0
	}
	var sum float64
	for _, m := range matches {
		sum += m.Score
	}
	mean := sum / float64(len(matches))
	if mean > 1 {
		return 1
	}
	if mean < 0 {
		return 0
	}
	return mean
}

// BuildSources keeps the retrieval order; the first source is primary.
func BuildSources(matches []model.RetrievalMatch, previewRunes int) []model.Source {
	sources := make([]model.Source, 0, len(matches))
	for i, m := range matches {
		sources = append(sources, model.Source{
			DocumentID:   m.DocumentID,
			DocumentName: m.DocumentName,
			Excerpt:      Preview(m.Text, previewRunes),
			Score:        m.Score,
			Rank:         i,
			Primary:      i == 0,
		})
	}
	return sources
}

func Preview(text string, n int) string {
	runes := []rune(text)
	if n <= 0 || len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "…"
}
