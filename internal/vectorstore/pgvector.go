package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/xxxsen/ragdesk/internal/model"
	"github.com/xxxsen/ragdesk/internal/pkg/dbutil"
)

// hnsw indexes in pgvector cap out at 2000 dimensions.
const maxIndexedDim = 2000

var filterColumns = map[string]string{
	model.MetaDocumentID:   "document_id",
	model.MetaDocumentName: "document_name",
	model.MetaTenantID:     "tenant_id",
}

// PGVectorStore keeps one table per collection.
type PGVectorStore struct {
	db *sql.DB
}

func NewPGVector(db *sql.DB) *PGVectorStore {
	return &PGVectorStore{db: db}
}

func tableName(collection string) string {
	return "vec_" + collection
}

func (s *PGVectorStore) CreateCollection(ctx context.Context, name string, dim int, metric Metric) error {
	if err := validateCollection(name); err != nil {
		return err
	}
	if metric != MetricCosine {
		return fmt.Errorf("unsupported metric %q", metric)
	}
	if dim <= 0 {
		return fmt.Errorf("invalid vector dimension %d", dim)
	}
	table := tableName(name)
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		document_name TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		ctime BIGINT NOT NULL,
		PRIMARY KEY (document_id, chunk_index)
	)`, table, dim)
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	if dim <= maxIndexedDim {
		index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, table, table)
		if _, err := s.db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("index collection %s: %w", name, err)
		}
	}
	return nil
}

func (s *PGVectorStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	if err := validateCollection(name); err != nil {
		return false, err
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, tableName(name)).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *PGVectorStore) Upsert(ctx context.Context, collection string, rec *model.EmbeddingRecord) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (document_id, chunk_index, document_name, tenant_id, content, embedding, ctime)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (document_id, chunk_index) DO UPDATE SET
			document_name = EXCLUDED.document_name,
			tenant_id = EXCLUDED.tenant_id,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			ctime = EXCLUDED.ctime`, tableName(collection))
	_, err := s.db.ExecContext(ctx, query,
		rec.DocumentID,
		rec.ChunkIndex,
		rec.DocumentName,
		rec.TenantID,
		rec.Text,
		pgvector.NewVector(rec.Vector),
		time.Now().UnixMilli(),
	)
	return err
}

func (s *PGVectorStore) Search(ctx context.Context, collection string, vec []float32, k int, minScore float64) ([]model.RetrievalMatch, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT document_id, chunk_index, document_name, content, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1, document_id, chunk_index
		LIMIT $3`, tableName(collection))
	rows, err := s.db.QueryContext(ctx, query, pgvector.NewVector(vec), minScore, k)
	if err != nil {
		if dbutil.IsUndefinedTable(err) {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()
	var matches []model.RetrievalMatch
	for rows.Next() {
		var m model.RetrievalMatch
		if err := rows.Scan(&m.DocumentID, &m.ChunkIndex, &m.DocumentName, &m.Text, &m.Score); err != nil {
			return nil, err
		}
		m.Score = clampScore(m.Score)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *PGVectorStore) DeleteByFilter(ctx context.Context, collection string, field string, value string) (int64, error) {
	if err := validateCollection(collection); err != nil {
		return 0, err
	}
	column, ok := filterColumns[field]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFilter, field)
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, tableName(collection), column), value)
	if err != nil {
		if dbutil.IsUndefinedTable(err) {
			return 0, nil
		}
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PGVectorStore) DeleteCollection(ctx context.Context, name string) error {
	if err := validateCollection(name); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableName(name)))
	return err
}
