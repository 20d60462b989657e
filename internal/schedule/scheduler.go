// Package schedule runs maintenance jobs on cron specs.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/trace"
	"go.uber.org/zap"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Scheduler interface {
	AddJob(job Job, spec string) error
	Start(ctx context.Context)
	Stop()
}

// CronScheduler accepts five-field specs and descriptors such as @hourly.
// A tick that fires while the previous run of the same job is still going
// is dropped.
type CronScheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	base    atomic.Pointer[context.Context]
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &CronScheduler{
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
	}
}

// AddJob registers job under its name; a name can only be scheduled once.
func (c *CronScheduler) AddJob(job Job, spec string) error {
	name := job.Name()
	if _, ok := c.entries[name]; ok {
		return fmt.Errorf("job %s already scheduled", name)
	}
	logger := logutil.GetLogger(context.Background()).With(zap.String("job", name), zap.String("spec", spec))
	entryID, err := c.cron.AddFunc(spec, c.wrap(job, spec))
	if err != nil {
		logger.Error("schedule job failed", zap.Error(err))
		return fmt.Errorf("schedule job %s: %w", name, err)
	}
	c.entries[name] = entryID
	logger.Info("job scheduled")
	return nil
}

// Entries lists the scheduled job names.
func (c *CronScheduler) Entries() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.base.Store(&ctx)
	c.cron.Start()
}

// Stop waits for running jobs to return.
func (c *CronScheduler) Stop() {
	<-c.cron.Stop().Done()
}

func (c *CronScheduler) baseContext() context.Context {
	if ctx := c.base.Load(); ctx != nil {
		return *ctx
	}
	return context.Background()
}

type guardedJob struct {
	job     Job
	spec    string
	running atomic.Bool
}

func (c *CronScheduler) wrap(job Job, spec string) func() {
	g := &guardedJob{job: job, spec: spec}
	return func() { g.fire(c.baseContext()) }
}

func (g *guardedJob) fire(base context.Context) {
	ctx := trace.WithTraceId(base, "job-"+g.job.Name()+"-"+uuid.NewString()[:8])
	logger := logutil.GetLogger(ctx).With(zap.String("job", g.job.Name()), zap.String("spec", g.spec))
	if !g.running.CompareAndSwap(false, true) {
		logger.Info("job skipped: still running")
		return
	}
	defer g.running.Store(false)

	start := time.Now()
	logger.Info("job started")
	err := runJob(ctx, g.job)
	elapsed := time.Since(start)
	if err != nil {
		logger.Error("job finished", zap.Error(err), zap.Duration("duration", elapsed))
		return
	}
	logger.Info("job finished", zap.Duration("duration", elapsed))
}

func runJob(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}
