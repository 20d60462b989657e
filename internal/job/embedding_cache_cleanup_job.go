package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	cacheCleanupBatch     = 1000
	defaultCacheRetention = 30 * 24 * time.Hour
)

type CacheCleaner interface {
	DeleteBefore(ctx context.Context, cutoff int64, batch int) (int64, error)
}

// EmbeddingCacheCleanupJob expires persisted embeddings so a model change
// does not leave the old vectors around forever.
type EmbeddingCacheCleanupJob struct {
	cache     CacheCleaner
	retention time.Duration
	now       func() time.Time
}

func NewEmbeddingCacheCleanupJob(cache CacheCleaner, retention time.Duration) *EmbeddingCacheCleanupJob {
	if retention <= 0 {
		retention = defaultCacheRetention
	}
	return &EmbeddingCacheCleanupJob{cache: cache, retention: retention, now: time.Now}
}

func (j *EmbeddingCacheCleanupJob) Name() string {
	return "embedding_cache_cleanup"
}

func (j *EmbeddingCacheCleanupJob) Run(ctx context.Context) error {
	if j.cache == nil {
		return nil
	}
	cutoff := j.now().Add(-j.retention)
	removed, err := j.cache.DeleteBefore(ctx, cutoff.UnixMilli(), cacheCleanupBatch)
	if err != nil {
		return err
	}
	if removed > 0 {
		logutil.GetLogger(ctx).Info("embedding cache expired",
			zap.Int64("removed", removed), zap.Time("cutoff", cutoff))
	}
	return nil
}
