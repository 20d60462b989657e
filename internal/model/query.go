package model

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Language string

const (
	LanguageEnglish Language = "en"
	LanguageHebrew  Language = "he"
)

// RetrievalMatch is a single ranked hit from a collection search.
type RetrievalMatch struct {
	Text         string  `json:"text"`
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	ChunkIndex   int     `json:"chunk_index"`
	Score        float64 `json:"score"`
}

type Source struct {
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Excerpt      string  `json:"excerpt"`
	Score        float64 `json:"score"`
	Rank         int     `json:"rank"`
	Primary      bool    `json:"primary"`
}

type QueryResult struct {
	Answer         string   `json:"answer"`
	Sources        []Source `json:"sources"`
	Confidence     float64  `json:"confidence"`
	TokensUsed     int      `json:"tokens_used"`
	ResponseTimeMs int64    `json:"response_time_ms"`
	Language       Language `json:"language"`
}
