package job

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kdani7777/Soothsayer/internal/config"
)

const publishTimeout = 5 * time.Second

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo   Repository
	pub    EventPublisher
	logger *slog.Logger
}

func NewService(repo Repository, pub EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, pub: pub, logger: logger}
}

// List returns failed jobs newest first. An empty stage matches all.
func (s *Service) List(ctx context.Context, stage Stage) ([]Job, error) {
	jobs, err := s.repo.List(ctx)
	if err != nil || stage == "" {
		return jobs, err
	}
	filtered := jobs[:0]
	for _, j := range jobs {
		if j.Stage == stage {
			filtered = append(filtered, j)
		}
	}
	return filtered, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.Get(ctx, id)
}

// Retry republishes the job's original task and forgets the job.
func (s *Service) Retry(ctx context.Context, id string) error {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(config.TopicIngestRaces, job.Payload)
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-time.After(publishTimeout):
		return errors.New("timeout waiting for NSQ publish")
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "job republished", "job_id", id, "prefix", job.Prefix)
	return s.repo.Delete(ctx, id)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
