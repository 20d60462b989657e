package rag

import (
	"fmt"
	"strings"

	"github.com/xxxsen/ragdesk/internal/ai"
	"github.com/xxxsen/ragdesk/internal/model"
)

const systemPromptEN = `You are a support assistant for the customer's knowledge base.
Answer in English.
Answer only from the provided excerpts. If they do not contain the answer, say you don't know.
Cite excerpts by their number in square brackets, e.g. [1].`

const systemPromptHE = `אתה עוזר תמיכה עבור מאגר הידע של הלקוח.
ענה בעברית.
ענה אך ורק על סמך הקטעים שסופקו. אם התשובה אינה מופיעה בהם, אמור שאינך יודע.
ציין את הקטעים לפי המספר שלהם בסוגריים מרובעים, למשל [1].`

const (
	noResultsEN = "I couldn't find any relevant information in your documents to answer this question."
	noResultsHE = "לא מצאתי מידע רלוונטי במסמכים שלך כדי לענות על שאלה זו."
)

func SystemPrompt(lang model.Language) string {
	if lang == model.LanguageHebrew {
		return systemPromptHE
	}
	return systemPromptEN
}

// NoResultsAnswer is returned verbatim when retrieval finds nothing.
func NoResultsAnswer(lang model.Language) string {
	if lang == model.LanguageHebrew {
		return noResultsHE
	}
	return noResultsEN
}

// BuildMessages lays out the generation request: system instruction, prior
// turns, then one user message carrying numbered excerpts and the question.
func BuildMessages(lang model.Language, history []model.ConversationTurn, matches []model.RetrievalMatch, question string) []ai.Message {
	msgs := make([]ai.Message, 0, len(history)+2)
	msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: SystemPrompt(lang)})
	for _, turn := range history {
		role := ai.RoleUser
		if turn.Role == model.RoleAssistant {
			role = ai.RoleAssistant
		}
		msgs = append(msgs, ai.Message{Role: role, Content: turn.Content})
	}
	msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: FormatContext(matches, question)})
	return msgs
}

func FormatContext(matches []model.RetrievalMatch, question string) string {
	var sb strings.Builder
	sb.WriteString("Excerpts:\n\n")
	for i, m := range matches {
		fmt.Fprintf(&sb, "[%d] (document: %s)\n%s\n\n", i+1, m.DocumentName, strings.TrimSpace(m.Text))
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	return sb.String()
}
