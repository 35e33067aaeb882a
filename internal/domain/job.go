package domain

import (
	"encoding/json"
	"time"
)

// Job is one record-set submission travelling through the journal, the queue
// and the worker pool. Payload is kept raw so malformed submissions still reach
// a worker and come out as error-shaped decisions.
type Job struct {
	ID          string          `json:"id" msgpack:"id"`
	Payload     json.RawMessage `json:"payload" msgpack:"payload"`
	SubmittedAt time.Time       `json:"submitted_at" msgpack:"submitted_at"`
	Source      string          `json:"source,omitempty" msgpack:"source,omitempty"`
}

// Outcome is what sinks receive for every processed job.
type Outcome struct {
	JobID        string         `json:"job_id"`
	Source       string         `json:"source,omitempty"`
	Decision     DecisionRecord `json:"decision"`
	NumThreats   int            `json:"num_threats"`
	FeaturesUsed []float64      `json:"features_used"`
	CompletedAt  time.Time      `json:"completed_at"`
}
