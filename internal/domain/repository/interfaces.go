package repository

import (
	"context"

	"TradeSync/internal/domain/models"
)

// ModelStore persists serialized model artifacts under a name.
// Load returns models.ErrModelNotFound when nothing is stored under name.
type ModelStore interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, blob []byte) error
	List(ctx context.Context) ([]string, error)
}

// JobStore owns training job records. Update applies fn under the store's
// lock (or transaction) and persists the result only if fn succeeds.
type JobStore interface {
	Create(ctx context.Context, job *models.TrainingJob) error
	Get(ctx context.Context, id string) (*models.TrainingJob, error)
	Update(ctx context.Context, id string, fn func(*models.TrainingJob) error) (*models.TrainingJob, error)
}

// EventPublisher broadcasts generated signals and job lifecycle changes.
type EventPublisher interface {
	PublishSignal(ctx context.Context, symbol string, sig models.Signal) error
	PublishJob(ctx context.Context, job *models.TrainingJob) error
}

type Metrics interface {
	RecordSignal(label, source string)
	RecordCacheLookup(hit bool)
	RecordFallback(reason string)
	RecordTrainingJob(kind, status string)
	RecordLatency(op string, seconds float64)
	RecordEvent(kind, result string)
}
