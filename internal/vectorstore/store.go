// Package vectorstore persists chunk embeddings per tenant collection and
// answers nearest-neighbour queries over them.
package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/ragdesk/internal/model"
	"go.uber.org/zap"
)

type Metric string

const MetricCosine Metric = "cosine"

var (
	ErrCollectionNotReady = fmt.Errorf("collection not ready")
	ErrUnsupportedFilter  = fmt.Errorf("unsupported filter field")
)

type Store interface {
	// CreateCollection is idempotent.
	CreateCollection(ctx context.Context, name string, dim int, metric Metric) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	// Upsert replaces any record with the same document id and chunk index.
	Upsert(ctx context.Context, collection string, rec *model.EmbeddingRecord) error
	// Search returns at most k matches scoring at least minScore, best first.
	// A missing collection yields no matches.
	Search(ctx context.Context, collection string, vec []float32, k int, minScore float64) ([]model.RetrievalMatch, error)
	DeleteByFilter(ctx context.Context, collection string, field string, value string) (int64, error)
	DeleteCollection(ctx context.Context, name string) error
}

func New(kind string, db *sql.DB) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "pgvector":
		if db == nil {
			return nil, fmt.Errorf("pgvector store requires a database")
		}
		return NewPGVector(db), nil
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported vector store type: %s", kind)
	}
}

type ReadyConfig struct {
	Interval time.Duration
	Attempts int
}

// EnsureCollection creates the collection when missing and polls until the
// store reports it, giving up after cfg.Attempts checks.
func EnsureCollection(ctx context.Context, s Store, name string, dim int, cfg ReadyConfig) error {
	exists, err := s.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := s.CreateCollection(ctx, name, dim, MetricCosine); err != nil {
		return err
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		exists, err := s.CollectionExists(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			logutil.GetLogger(ctx).Info("vector collection ready", zap.String("collection", name), zap.Int("attempt", i+1))
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Interval):
		}
	}
	return fmt.Errorf("%w: %s after %d attempts", ErrCollectionNotReady, name, attempts)
}

var collectionNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,48}$`)

// CollectionName derives a store-safe collection name for a tenant.
func CollectionName(tenantID string) string {
	var sb strings.Builder
	sb.WriteString("tenant_")
	for _, r := range strings.ToLower(tenantID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	name := sb.String()
	if len(name) > 49 {
		name = name[:49]
	}
	return name
}

// ValidCollection reports whether name is usable as a collection name.
func ValidCollection(name string) bool {
	return collectionNameRe.MatchString(name)
}

func validateCollection(name string) error {
	if !ValidCollection(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
