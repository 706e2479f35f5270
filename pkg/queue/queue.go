package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Publisher enqueues messages for registered jobs.
type Publisher interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error)
}

// Config contains the configuration for the queue. It doubles as the queue
// section of the service config.
type Config struct {
	Workers     int           `yaml:"workers" default:"2" validate:"gte=1"`
	RetryLimit  int           `yaml:"retry_limit" default:"3"`
	RetryDelay  time.Duration `yaml:"retry_delay" default:"10s"`
	PollTimeout time.Duration `yaml:"poll_timeout" default:"1s"`
	KeyPrefix   string        `yaml:"key_prefix" default:"stockcast:queue"`
}

// Message represents a message in the queue
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}
