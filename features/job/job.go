package job

import (
	"encoding/json"
	"time"
)

// Stage names the ingest step that failed.
type Stage string

const (
	StageLoad   Stage = "load"
	StageEmbed  Stage = "embed"
	StageUpload Stage = "upload"
)

// Job is an ingest task that failed terminally. Payload is the original task
// body and is republished verbatim on retry.
type Job struct {
	ID        string          `json:"id"`
	Prefix    string          `json:"prefix"`
	Stage     Stage           `json:"stage"`
	Handler   string          `json:"handler"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"created_at"`
}
