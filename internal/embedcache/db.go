package embedcache

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/ragdesk/internal/ai"
	"github.com/xxxsen/ragdesk/internal/model"
	"go.uber.org/zap"
)

// Store is the persistent side of the cache; repo.EmbeddingCacheRepo implements it.
type Store interface {
	Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error)
	Save(ctx context.Context, item *model.EmbeddingCache) error
}

// WithStore consults store before calling e. Cache failures are logged and
// treated as misses so a cache outage never fails ingestion.
func WithStore(e ai.IEmbedder, store Store) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &storeEmbedder{next: e, store: store}
}

type storeEmbedder struct {
	next  ai.IEmbedder
	store Store
}

func (d *storeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	logger := logutil.GetLogger(ctx)
	key := newCacheKey(d.next.ModelName(), taskType, text)
	values, ok, err := d.store.Get(ctx, key.Model, key.TaskType, key.ContentHash)
	if err != nil {
		logger.Warn("read embedding cache failed", zap.Error(err))
	} else if ok {
		logger.Debug("embedding cache hit", zap.String("layer", "db"), zap.String("task_type", taskType))
		return values, nil
	}
	res, err := d.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	if err := d.store.Save(ctx, &model.EmbeddingCache{
		ModelName:   key.Model,
		TaskType:    key.TaskType,
		ContentHash: key.ContentHash,
		Embedding:   res,
		Ctime:       time.Now().UnixMilli(),
	}); err != nil {
		logger.Warn("write embedding cache failed", zap.Error(err))
	}
	return res, nil
}

func (d *storeEmbedder) ModelName() string {
	return d.next.ModelName()
}
