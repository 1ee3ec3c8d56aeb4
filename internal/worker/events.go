package worker

import (
	"context"
	"encoding/json"

	"github.com/kdani7777/Soothsayer/internal/config"
	"github.com/kdani7777/Soothsayer/internal/middleware"
)

// IngestTaskPayload asks a worker to ingest every object under Prefix.
type IngestTaskPayload struct {
	Prefix        string `json:"prefix"`
	CorrelationID string `json:"correlation_id"`
}

// PublishIngestTask enqueues an ingest task carrying the correlation id of
// ctx.
func PublishIngestTask(ctx context.Context, pub TaskPublisher, prefix string) error {
	payload := IngestTaskPayload{Prefix: prefix}
	if id := middleware.GetCorrelationID(ctx); id != "unknown" {
		payload.CorrelationID = id
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return pub.Publish(config.TopicIngestRaces, body)
}
