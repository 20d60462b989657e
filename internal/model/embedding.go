package model

// Metadata keys attached to every vector entry.
const (
	MetaDocumentID   = "document_id"
	MetaDocumentName = "document_name"
	MetaChunkIndex   = "chunk_index"
	MetaTenantID     = "tenant_id"
)

// TextSegment is one chunk of a document's extracted text. It lives only
// until it has been embedded and stored.
type TextSegment struct {
	DocumentID string
	Index      int
	Content    string
}

// EmbeddingRecord is what gets upserted into a tenant collection.
type EmbeddingRecord struct {
	Vector       []float32
	Text         string
	DocumentID   string
	DocumentName string
	ChunkIndex   int
	TenantID     string
}

func (r *EmbeddingRecord) Metadata() map[string]interface{} {
	return map[string]interface{}{
		MetaDocumentID:   r.DocumentID,
		MetaDocumentName: r.DocumentName,
		MetaChunkIndex:   r.ChunkIndex,
		MetaTenantID:     r.TenantID,
	}
}

type EmbeddingCache struct {
	ModelName   string    `json:"model_name"`
	TaskType    string    `json:"task_type"`
	ContentHash string    `json:"content_hash"`
	Embedding   []float32 `json:"embedding"`
	Ctime       int64     `json:"ctime"`
}
