package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type DeletedPurger interface {
	PurgeDeleted(ctx context.Context, olderThan time.Duration) (int64, error)
}

type DeletedDocumentPurgeJob struct {
	docs      DeletedPurger
	retention time.Duration
}

func NewDeletedDocumentPurgeJob(docs DeletedPurger, retention time.Duration) *DeletedDocumentPurgeJob {
	return &DeletedDocumentPurgeJob{docs: docs, retention: retention}
}

func (j *DeletedDocumentPurgeJob) Name() string {
	return "deleted_document_purge"
}

func (j *DeletedDocumentPurgeJob) Run(ctx context.Context) error {
	if j.docs == nil {
		return nil
	}
	retention := j.retention
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	purged, err := j.docs.PurgeDeleted(ctx, retention)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("deleted documents purged", zap.Int64("count", purged))
	return nil
}
