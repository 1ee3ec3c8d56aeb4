package worker

import (
	"context"

	"github.com/kdani7777/Soothsayer/features/job"
	"github.com/kdani7777/Soothsayer/internal/ingest"
	"github.com/kdani7777/Soothsayer/internal/text"
)

type Loader interface {
	Load(ctx context.Context, prefix string) ([]text.Document, error)
}

type Runner interface {
	Run(ctx context.Context, docs ...text.Document) (ingest.Report, error)
}

type JobRecorder interface {
	Save(ctx context.Context, job *job.Job) error
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}
