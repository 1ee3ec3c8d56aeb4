package worker_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/kdani7777/Soothsayer/features/job"
	"github.com/kdani7777/Soothsayer/internal/ingest"
	"github.com/kdani7777/Soothsayer/internal/text"
)

type MockLoader struct{ mock.Mock }

func (m *MockLoader) Load(ctx context.Context, prefix string) ([]text.Document, error) {
	args := m.Called(ctx, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]text.Document), args.Error(1)
}

type MockRunner struct{ mock.Mock }

func (m *MockRunner) Run(ctx context.Context, docs ...text.Document) (ingest.Report, error) {
	args := m.Called(ctx, docs)
	return args.Get(0).(ingest.Report), args.Error(1)
}

type MockJobRepo struct{ mock.Mock }

func (m *MockJobRepo) Save(ctx context.Context, j *job.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}
