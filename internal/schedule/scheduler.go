package schedule

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/kdani7777/Soothsayer/internal/middleware"
	"github.com/kdani7777/Soothsayer/internal/worker"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// CronScheduler runs jobs on five-field cron specs. A job whose previous run
// is still going is skipped.
type CronScheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	ctx     context.Context
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &CronScheduler{
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
	}
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	logger := slog.With("job", job.Name(), "spec", spec)
	entryID, err := c.cron.AddFunc(spec, c.wrap(job, spec))
	if err != nil {
		logger.Error("schedule job failed", "error", err)
		return err
	}
	c.entries[job.Name()] = entryID
	logger.Info("job scheduled")
	return nil
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.ctx = ctx
	c.cron.Start()
}

func (c *CronScheduler) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

func (c *CronScheduler) wrap(job Job, spec string) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			slog.Info("job skipped: still running", "job", job.Name(), "spec", spec)
			return
		}
		defer running.Store(false)

		ctx := c.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		ctx = middleware.WithCorrelationID(ctx, uuid.NewString())

		start := time.Now()
		slog.InfoContext(ctx, "job started", "job", job.Name(), "spec", spec)
		err := job.Run(ctx)
		elapsed := time.Since(start)
		if err != nil {
			slog.ErrorContext(ctx, "job finished", "job", job.Name(), "error", err, "duration", elapsed)
			return
		}
		slog.InfoContext(ctx, "job finished", "job", job.Name(), "duration", elapsed)
	}
}

// IngestJob enqueues an ingest task for a fixed prefix.
type IngestJob struct {
	Publisher worker.TaskPublisher
	Prefix    string
}

func (j IngestJob) Name() string {
	return "ingest:" + j.Prefix
}

func (j IngestJob) Run(ctx context.Context) error {
	return worker.PublishIngestTask(ctx, j.Publisher, j.Prefix)
}
