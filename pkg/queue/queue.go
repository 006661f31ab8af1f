package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotRunning   = errors.New("queue not running")
	ErrFull         = errors.New("queue full")
	ErrUnknownType  = errors.New("no job registered for type")
	ErrAlreadyStart = errors.New("queue already running")
)

// Queue is a background work queue with typed job handlers.
type Queue interface {
	RegisterJob(job Job)
	Start() error
	Stop(ctx context.Context) error
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// DeadLetterReader lists messages that exhausted their retries, newest first.
type DeadLetterReader interface {
	DeadLetters(ctx context.Context, n int64) ([]Message, error)
}

// QueueConfig contains the configuration for the queue
type QueueConfig struct {
	Workers    int           // number of workers
	QueueSize  int           // buffered messages (memory queue only)
	RetryLimit int           // number of maximum retries
	RetryDelay time.Duration // delay before the first retry, doubled per attempt
}

// Message represents a message in the queue
type Message struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Attempts  int         `json:"attempts"`
	Timestamp time.Time   `json:"timestamp"`
}

// backoff doubles base for every attempt after the first, capped at
// 64 times base.
func backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 7 {
		attempt = 7
	}
	return base << (attempt - 1)
}

// ParsePayload decodes a handler payload into T. In-process queues pass the
// value itself; Redis passes raw JSON.
func ParsePayload[T any](payload interface{}) (*T, error) {
	var raw []byte
	switch p := payload.(type) {
	case *T:
		if p == nil {
			return nil, errors.New("nil payload")
		}
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	case map[string]interface{}:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode payload map: %w", err)
		}
		raw = b
	default:
		return nil, fmt.Errorf("invalid payload type: %T", payload)
	}

	result := new(T)
	if err := json.Unmarshal(raw, result); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return result, nil
}
