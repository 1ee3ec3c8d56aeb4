package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeConcurrent Mode = "concurrent"
)

const (
	DefaultBatchSize = 100
	DefaultWorkers   = 30
)

type UploaderOptions struct {
	BatchSize int
	Workers   int
	Mode      Mode
	// RatePerSecond caps upsert calls per second. Zero means unlimited.
	RatePerSecond float64
}

type UploadReport struct {
	Batches  int           `json:"batches"`
	Uploaded int           `json:"uploaded"`
	Failed   []*BatchError `json:"failed,omitempty"`
}

// Partial reports whether some batches landed while others failed.
func (r UploadReport) Partial() bool {
	return r.Uploaded > 0 && len(r.Failed) > 0
}

type Uploader struct {
	index     Index
	batchSize int
	workers   int
	mode      Mode
	limiter   *rate.Limiter
}

func NewUploader(index Index, opts UploaderOptions) *Uploader {
	u := &Uploader{
		index:     index,
		batchSize: opts.BatchSize,
		workers:   opts.Workers,
		mode:      opts.Mode,
	}
	if u.batchSize <= 0 {
		u.batchSize = DefaultBatchSize
	}
	if u.workers <= 0 {
		u.workers = DefaultWorkers
	}
	if u.mode == "" {
		u.mode = ModeConcurrent
	}
	if opts.RatePerSecond > 0 {
		u.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	return u
}

// Batches cuts items into consecutive slices of at most size elements.
func Batches[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

// Upload writes records in batches. Sequential mode stops at the first
// failed batch. Concurrent mode lets every batch finish and then returns the
// first error seen; the report lists every failed batch.
func (u *Uploader) Upload(ctx context.Context, records []Record) (UploadReport, error) {
	batches := Batches(records, u.batchSize)
	report := UploadReport{Batches: len(batches)}
	if len(batches) == 0 {
		return report, nil
	}

	if u.mode == ModeSequential {
		return u.uploadSequential(ctx, batches, report)
	}
	return u.uploadConcurrent(ctx, batches, report)
}

func (u *Uploader) uploadSequential(ctx context.Context, batches [][]Record, report UploadReport) (UploadReport, error) {
	for i, batch := range batches {
		if err := u.upsert(ctx, batch); err != nil {
			be := &BatchError{Batch: i, Size: len(batch), Err: err}
			report.Failed = append(report.Failed, be)
			slog.ErrorContext(ctx, "batch upload failed", "batch", i, "size", len(batch), "error", err)
			return report, be
		}
		report.Uploaded += len(batch)
	}
	return report, nil
}

func (u *Uploader) uploadConcurrent(ctx context.Context, batches [][]Record, report UploadReport) (UploadReport, error) {
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(u.workers)

	for i, batch := range batches {
		g.Go(func() error {
			err := u.upsert(ctx, batch)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				be := &BatchError{Batch: i, Size: len(batch), Err: err}
				report.Failed = append(report.Failed, be)
				slog.ErrorContext(ctx, "batch upload failed", "batch", i, "size", len(batch), "error", err)
				return be
			}
			report.Uploaded += len(batch)
			return nil
		})
	}

	err := g.Wait()
	slices.SortFunc(report.Failed, func(a, b *BatchError) int { return a.Batch - b.Batch })
	if err != nil {
		return report, fmt.Errorf("%d of %d batches failed: %w", len(report.Failed), report.Batches, err)
	}
	return report, nil
}

func (u *Uploader) upsert(ctx context.Context, batch []Record) error {
	if u.limiter != nil {
		if err := u.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return u.index.Upsert(ctx, batch)
}
