package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/xxxsen/ragdesk/internal/model"
)

type memCollection struct {
	dim     int
	records map[string]*model.EmbeddingRecord
}

// MemoryStore keeps vectors in process and scans them linearly.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

func NewMemory() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memCollection)}
}

func recordKey(docID string, idx int) string {
	return fmt.Sprintf("%s#%d", docID, idx)
}

func (m *MemoryStore) CreateCollection(ctx context.Context, name string, dim int, metric Metric) error {
	if err := validateCollection(name); err != nil {
		return err
	}
	if metric != MetricCosine {
		return fmt.Errorf("unsupported metric %q", metric)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		m.collections[name] = &memCollection{dim: dim, records: make(map[string]*model.EmbeddingRecord)}
	}
	return nil
}

func (m *MemoryStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.collections[name]
	return ok, nil
}

func (m *MemoryStore) Upsert(ctx context.Context, collection string, rec *model.EmbeddingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s does not exist", collection)
	}
	if c.dim > 0 && len(rec.Vector) != c.dim {
		return fmt.Errorf("vector dimension %d does not match collection dimension %d", len(rec.Vector), c.dim)
	}
	cp := *rec
	cp.Vector = append([]float32(nil), rec.Vector...)
	c.records[recordKey(rec.DocumentID, rec.ChunkIndex)] = &cp
	return nil
}

func (m *MemoryStore) Search(ctx context.Context, collection string, vec []float32, k int, minScore float64) ([]model.RetrievalMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok || k <= 0 {
		return nil, nil
	}
	var matches []model.RetrievalMatch
	for _, rec := range c.records {
		score := clampScore(cosine(vec, rec.Vector))
		if score < minScore {
			continue
		}
		matches = append(matches, model.RetrievalMatch{
			Text:         rec.Text,
			DocumentID:   rec.DocumentID,
			DocumentName: rec.DocumentName,
			ChunkIndex:   rec.ChunkIndex,
			Score:        score,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].DocumentID != matches[j].DocumentID {
			return matches[i].DocumentID < matches[j].DocumentID
		}
		return matches[i].ChunkIndex < matches[j].ChunkIndex
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (m *MemoryStore) DeleteByFilter(ctx context.Context, collection string, field string, value string) (int64, error) {
	if _, ok := filterColumns[field]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFilter, field)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return 0, nil
	}
	var n int64
	for key, rec := range c.records {
		if rec.Metadata()[field] == value {
			delete(c.records, key)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteCollection(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, name)
	return nil
}

// Count reports how many records a collection holds.
func (m *MemoryStore) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collections[collection]; ok {
		return len(c.records)
	}
	return 0
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
