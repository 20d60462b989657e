package rag

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xxxsen/ragdesk/internal/ai"
	"github.com/xxxsen/ragdesk/internal/model"
	"github.com/xxxsen/ragdesk/internal/pkg/errors"
)

func turns(n int) []model.ConversationTurn {
	out := make([]model.ConversationTurn, 0, n)
	for i := 0; i < n; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		out = append(out, model.ConversationTurn{Role: role, Content: fmt.Sprintf("turn %d", i)})
	}
	return out
}

func TestBoundHistoryKeepsLatest(t *testing.T) {
	got, err := BoundHistory(turns(15), DefaultMaxHistory)
	require.NoError(t, err)
	require.Len(t, got, 10)
	require.Equal(t, "turn 5", got[0].Content)
	require.Equal(t, "turn 14", got[9].Content)

	got, err = BoundHistory(turns(3), DefaultMaxHistory)
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestBoundHistoryRejectsUnknownRole(t *testing.T) {
	_, err := BoundHistory([]model.ConversationTurn{{Role: "system", Content: "x"}}, DefaultMaxHistory)
	require.ErrorIs(t, err, errors.ErrValidation)
}

func TestRewriteQuery(t *testing.T) {
	history := []model.ConversationTurn{
		{Role: model.RoleUser, Content: "first"},
		{Role: model.RoleAssistant, Content: "reply"},
		{Role: model.RoleUser, Content: "second"},
		{Role: model.RoleAssistant, Content: "reply"},
		{Role: model.RoleUser, Content: "third"},
	}
	require.Equal(t, "second\nthird\nwhat about price?", RewriteQuery("what about price?", history, DefaultRewriteUserTurn))
	require.Equal(t, "q", RewriteQuery("q", nil, DefaultRewriteUserTurn))
	require.Equal(t, "q", RewriteQuery("q", []model.ConversationTurn{{Role: model.RoleAssistant, Content: "a"}}, 2))
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want model.Language
	}{
		{"What is the refund policy?", model.LanguageEnglish},
		{"מה מדיניות ההחזרים?", model.LanguageHebrew},
		{"Is שלום ok", model.LanguageHebrew},
		{"Refund policy for order שלום please", model.LanguageEnglish},
		{"12345 ?!", model.LanguageEnglish},
		{"", model.LanguageEnglish},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, DetectLanguage(tt.in))
		})
	}
}

func TestBuildMessages(t *testing.T) {
	history := []model.ConversationTurn{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, Content: "hello"},
	}
	matches := []model.RetrievalMatch{
		{Text: "Refunds take 5 days.", DocumentName: "policy.pdf", Score: 0.9},
		{Text: "Contact support.", DocumentName: "faq.md", Score: 0.7},
	}
	msgs := BuildMessages(model.LanguageEnglish, history, matches, "How long do refunds take?")
	require.Len(t, msgs, 4)
	require.Equal(t, ai.RoleSystem, msgs[0].Role)
	require.Contains(t, msgs[0].Content, "Answer only from the provided excerpts")
	require.Equal(t, ai.Message{Role: ai.RoleUser, Content: "hi"}, msgs[1])
	require.Equal(t, ai.Message{Role: ai.RoleAssistant, Content: "hello"}, msgs[2])
	last := msgs[3].Content
	require.Contains(t, last, "[1] (document: policy.pdf)\nRefunds take 5 days.")
	require.Contains(t, last, "[2] (document: faq.md)\nContact support.")
	require.True(t, strings.HasSuffix(last, "How long do refunds take?"))

	he := BuildMessages(model.LanguageHebrew, nil, matches, "q")
	require.Equal(t, SystemPrompt(model.LanguageHebrew), he[0].Content)
}

func TestNoResultsAnswer(t *testing.T) {
	require.NotEqual(t, NoResultsAnswer(model.LanguageEnglish), NoResultsAnswer(model.LanguageHebrew))
	require.Equal(t, model.LanguageHebrew, DetectLanguage(NoResultsAnswer(model.LanguageHebrew)))
}

func TestConfidence(t *testing.T) {
	require.Equal(t, 0.0, Confidence(nil))
	require.InDelta(t, 0.7, Confidence([]model.RetrievalMatch{{Score: 0.9}, {Score: 0.5}}), 1e-9)
	require.Equal(t, 1.0, Confidence([]model.RetrievalMatch{{Score: 1.2}, {Score: 1.0}}))
}

func TestBuildSources(t *testing.T) {
	long := strings.Repeat("א", 250)
	sources := BuildSources([]model.RetrievalMatch{
		{Text: long, DocumentID: "d1", DocumentName: "a", Score: 0.9},
		{Text: "short", DocumentID: "d2", DocumentName: "b", Score: 0.6},
	}, DefaultPreviewRunes)
	require.Len(t, sources, 2)
	require.True(t, sources[0].Primary)
	require.Equal(t, 0, sources[0].Rank)
	require.Equal(t, 201, len([]rune(sources[0].Excerpt)))
	require.True(t, strings.HasSuffix(sources[0].Excerpt, "…"))
	require.False(t, sources[1].Primary)
	require.Equal(t, 1, sources[1].Rank)
	require.Equal(t, "short", sources[1].Excerpt)
	require.Empty(t, BuildSources(nil, DefaultPreviewRunes))
}
