// Package rag holds the pure steps of answering a question: history bounding,
// query rewriting, language detection, prompt assembly and scoring.
package rag

import (
	"strings"

	"github.com/xxxsen/ragdesk/internal/model"
	"github.com/xxxsen/ragdesk/internal/pkg/errors"
)

const (
	DefaultMaxHistory      = 10
	DefaultRewriteUserTurn = 2
)

// BoundHistory validates roles and keeps the most recent limit turns.
func BoundHistory(history []model.ConversationTurn, limit int) ([]model.ConversationTurn, error) {
	for i, turn := range history {
		if !turn.Role.Valid() {
			return nil, errors.Invalid("history turn %d has unknown role %q", i, turn.Role)
		}
	}
	if limit >= 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]model.ConversationTurn, len(history))
	copy(out, history)
	return out, nil
}

// RewriteQuery prefixes the question with up to n of the latest user turns,
// oldest first, so short follow-ups still retrieve the right excerpts. The
// result is only used for retrieval, never shown to the model as the question.
func RewriteQuery(question string, history []model.ConversationTurn, n int) string {
	var picked []string
	for i := len(history) - 1; i >= 0 && len(picked) < n; i-- {
		if history[i].Role != model.RoleUser {
			continue
		}
		if c := strings.TrimSpace(history[i].Content); c != "" {
			picked = append(picked, c)
		}
	}
	if len(picked) == 0 {
		return question
	}
	parts := make([]string, 0, len(picked)+1)
	for i := len(picked) - 1; i >= 0; i-- {
		parts = append(parts, picked[i])
	}
	parts = append(parts, question)
	return strings.Join(parts, "\n")
}
