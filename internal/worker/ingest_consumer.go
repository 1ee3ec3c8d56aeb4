package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/kdani7777/Soothsayer/features/job"
	"github.com/kdani7777/Soothsayer/internal/ingest"
	"github.com/kdani7777/Soothsayer/internal/middleware"
)

const (
	handlerName = "ingest-worker"

	DefaultTimeout     = 30 * time.Minute
	DefaultMaxAttempts = 5

	touchInterval = 30 * time.Second
)

// IngestConsumer runs the ingestion pipeline for each ingest task.
//
// Embedding failures are requeued because nothing has been written yet.
// Upload failures are recorded as failed jobs and acked, since a redelivery
// would upload the already stored batches a second time.
type IngestConsumer struct {
	loader        Loader
	pipeline      Runner
	jobs          JobRecorder
	defaultPrefix string
	timeout       time.Duration
	maxAttempts   uint16
}

func NewIngestConsumer(l Loader, p Runner, j JobRecorder, defaultPrefix string) *IngestConsumer {
	return &IngestConsumer{
		loader:        l,
		pipeline:      p,
		jobs:          j,
		defaultPrefix: defaultPrefix,
		timeout:       DefaultTimeout,
		maxAttempts:   DefaultMaxAttempts,
	}
}

// WithTimeout bounds a single task run.
func (h *IngestConsumer) WithTimeout(d time.Duration) *IngestConsumer {
	if d > 0 {
		h.timeout = d
	}
	return h
}

func (h *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload IngestTaskPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if payload.Prefix == "" {
		payload.Prefix = h.defaultPrefix
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	go keepAlive(ctx, m)

	slog.InfoContext(ctx, "ingest task received", "prefix", payload.Prefix, "attempt", m.Attempts)

	docs, err := h.loader.Load(ctx, payload.Prefix)
	if err != nil {
		slog.ErrorContext(ctx, "load documents failed", "prefix", payload.Prefix, "error", err)
		return h.retryOrRecord(ctx, m, payload, job.StageLoad, err)
	}

	report, err := h.pipeline.Run(ctx, docs...)
	if err == nil {
		slog.InfoContext(ctx, "ingest task complete",
			"prefix", payload.Prefix,
			"documents", len(docs),
			"processed", report.Processed,
			"skipped", report.Skipped,
			"uploaded", report.Upload.Uploaded,
		)
		return nil
	}

	if errors.Is(err, ingest.ErrEmbedding) {
		slog.ErrorContext(ctx, "embedding failed, nothing uploaded", "prefix", payload.Prefix, "error", err)
		return h.retryOrRecord(ctx, m, payload, job.StageEmbed, err)
	}

	slog.ErrorContext(ctx, "upload failed",
		"prefix", payload.Prefix,
		"uploaded", report.Upload.Uploaded,
		"failed_batches", len(report.Upload.Failed),
		"error", err,
	)
	h.record(ctx, m, payload, job.StageUpload, err)
	return nil
}

// keepAlive touches m until ctx ends so nsqd does not redeliver a long run.
func keepAlive(ctx context.Context, m *nsq.Message) {
	if m.Delegate == nil {
		return
	}
	ticker := time.NewTicker(touchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Touch()
		}
	}
}

// retryOrRecord requeues the message until its attempts run out, then keeps
// it as a failed job.
func (h *IngestConsumer) retryOrRecord(ctx context.Context, m *nsq.Message, payload IngestTaskPayload, stage job.Stage, err error) error {
	if m.Attempts < h.maxAttempts {
		return err
	}
	h.record(ctx, m, payload, stage, err)
	return nil
}

func (h *IngestConsumer) record(ctx context.Context, m *nsq.Message, payload IngestTaskPayload, stage job.Stage, cause error) {
	if h.jobs == nil {
		return
	}
	failedJob := &job.Job{
		Prefix:   payload.Prefix,
		Stage:    stage,
		Handler:  handlerName,
		Payload:  json.RawMessage(m.Body),
		Error:    cause.Error(),
		Attempts: int(m.Attempts),
	}
	// The task context may already be past its deadline.
	ctx = context.WithoutCancel(ctx)
	if err := h.jobs.Save(ctx, failedJob); err != nil {
		slog.ErrorContext(ctx, "failed to save failed job", "error", err)
		return
	}
	slog.InfoContext(ctx, "saved failed job for retry", "job_id", failedJob.ID)
}
