package config

const (
	// TopicIngestRaces carries requests to (re)ingest race documents from S3.
	TopicIngestRaces = "ingest.task.races"

	// ChannelIngestWorker is the consumer channel of the ingest worker.
	ChannelIngestWorker = "worker"
)
