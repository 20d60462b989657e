package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const staleSweepBatch = 200

type StaleSweeper interface {
	SweepStale(ctx context.Context, olderThan time.Duration, batch uint) (int, error)
}

// StaleRunSweeperJob fails ingestion runs that stopped reporting progress,
// typically because the process restarted while they were queued or running.
type StaleRunSweeperJob struct {
	docs     StaleSweeper
	staleFor time.Duration
}

func NewStaleRunSweeperJob(docs StaleSweeper, staleFor time.Duration) *StaleRunSweeperJob {
	return &StaleRunSweeperJob{docs: docs, staleFor: staleFor}
}

func (j *StaleRunSweeperJob) Name() string {
	return "stale_run_sweeper"
}

func (j *StaleRunSweeperJob) Run(ctx context.Context) error {
	if j.docs == nil {
		return nil
	}
	staleFor := j.staleFor
	if staleFor <= 0 {
		staleFor = time.Hour
	}
	total := 0
	for {
		n, err := j.docs.SweepStale(ctx, staleFor, staleSweepBatch)
		if err != nil {
			return err
		}
		total += n
		if n < staleSweepBatch {
			break
		}
	}
	if total > 0 {
		logutil.GetLogger(ctx).Warn("stale ingestion runs failed", zap.Int("count", total))
	}
	return nil
}
