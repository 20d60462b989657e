package vectorstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xxxsen/ragdesk/internal/model"
)

func rec(doc string, idx int, vec ...float32) *model.EmbeddingRecord {
	return &model.EmbeddingRecord{
		Vector:       vec,
		Text:         doc + " text",
		DocumentID:   doc,
		DocumentName: doc + ".txt",
		ChunkIndex:   idx,
		TenantID:     "t1",
	}
}

func TestMemorySearchRanksAndFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.CreateCollection(ctx, "tenant_t1", 2, MetricCosine))
	require.NoError(t, s.Upsert(ctx, "tenant_t1", rec("a", 0, 1, 0)))
	require.NoError(t, s.Upsert(ctx, "tenant_t1", rec("b", 0, 0.8, 0.6)))
	require.NoError(t, s.Upsert(ctx, "tenant_t1", rec("c", 0, 0, 1)))
	require.NoError(t, s.Upsert(ctx, "tenant_t1", rec("d", 0, -1, 0)))

	got, err := s.Search(ctx, "tenant_t1", []float32{1, 0}, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].DocumentID)
	require.InDelta(t, 1.0, got[0].Score, 1e-6)
	require.Equal(t, "b", got[1].DocumentID)
	require.InDelta(t, 0.8, got[1].Score, 1e-6)

	got, err = s.Search(ctx, "tenant_t1", []float32{1, 0}, 1, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestMemoryUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.CreateCollection(ctx, "c1", 2, MetricCosine))
	require.NoError(t, s.Upsert(ctx, "c1", rec("a", 0, 1, 0)))
	require.NoError(t, s.Upsert(ctx, "c1", rec("a", 0, 0, 1)))
	require.Equal(t, 1, s.Count("c1"))
	require.Error(t, s.Upsert(ctx, "c1", rec("a", 1, 1, 0, 0)))
	require.Error(t, s.Upsert(ctx, "missing", rec("a", 0, 1, 0)))
}

func TestMemorySearchMissingCollection(t *testing.T) {
	got, err := NewMemory().Search(context.Background(), "nope", []float32{1}, 5, 0.5)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestMemoryDeleteByFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.CreateCollection(ctx, "c1", 2, MetricCosine))
	require.NoError(t, s.Upsert(ctx, "c1", rec("a", 0, 1, 0)))
	require.NoError(t, s.Upsert(ctx, "c1", rec("a", 1, 1, 0)))
	require.NoError(t, s.Upsert(ctx, "c1", rec("b", 0, 1, 0)))

	n, err := s.DeleteByFilter(ctx, "c1", model.MetaDocumentID, "a")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	require.Equal(t, 1, s.Count("c1"))

	_, err = s.DeleteByFilter(ctx, "c1", "content", "x")
	require.ErrorIs(t, err, ErrUnsupportedFilter)

	require.NoError(t, s.DeleteCollection(ctx, "c1"))
	ok, err := s.CollectionExists(ctx, "c1")
	require.NoError(t, err)
	require.False(t, ok)
}

type lazyStore struct {
	*MemoryStore
	visibleAfter int
	checks       int
	created      bool
}

func (l *lazyStore) CreateCollection(ctx context.Context, name string, dim int, metric Metric) error {
	l.created = true
	return l.MemoryStore.CreateCollection(ctx, name, dim, metric)
}

func (l *lazyStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	l.checks++
	if !l.created || l.checks <= l.visibleAfter {
		return false, nil
	}
	return l.MemoryStore.CollectionExists(ctx, name)
}

func TestEnsureCollectionPolls(t *testing.T) {
	s := &lazyStore{MemoryStore: NewMemory(), visibleAfter: 3}
	err := EnsureCollection(context.Background(), s, "c1", 2, ReadyConfig{Interval: time.Millisecond, Attempts: 5})
	require.NoError(t, err)
	require.Equal(t, 4, s.checks)
}

func TestEnsureCollectionGivesUp(t *testing.T) {
	s := &lazyStore{MemoryStore: NewMemory(), visibleAfter: 100}
	err := EnsureCollection(context.Background(), s, "c1", 2, ReadyConfig{Interval: time.Millisecond, Attempts: 3})
	require.True(t, errors.Is(err, ErrCollectionNotReady))
	require.Equal(t, 4, s.checks)
}

func TestEnsureCollectionExisting(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.CreateCollection(context.Background(), "c1", 2, MetricCosine))
	require.NoError(t, EnsureCollection(context.Background(), s, "c1", 2, ReadyConfig{}))
}

func TestCollectionName(t *testing.T) {
	require.Equal(t, "tenant_0a1b_c2", CollectionName("0A1B-c2"))
	require.NoError(t, validateCollection(CollectionName("550e8400-e29b-41d4-a716-446655440000")))
}
