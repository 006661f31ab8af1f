package repository

import (
	"context"
	"time"

	"TradeSync/internal/domain/models"
	domrepo "TradeSync/internal/domain/repository"
	pkgkafka "TradeSync/pkg/kafka"
)

// Publisher is the producing side of pkg/kafka.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// SignalEvent is the wire shape of a published signal.
type SignalEvent struct {
	Symbol      string        `json:"symbol"`
	Signal      models.Signal `json:"signal"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// JobEvent is the wire shape of a training job state change.
type JobEvent struct {
	Job       *models.TrainingJob `json:"job"`
	EmittedAt time.Time           `json:"emitted_at"`
}

// KafkaEventPublisher writes signal events keyed by symbol and job events
// keyed by job id.
type KafkaEventPublisher struct {
	producer    Publisher
	signalTopic string
	jobTopic    string
	now         func() time.Time
}

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)

// NewKafkaEventPublisher creates a publisher. An empty topic disables that
// event kind.
func NewKafkaEventPublisher(producer Publisher, signalTopic, jobTopic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, signalTopic: signalTopic, jobTopic: jobTopic, now: time.Now}
}

func (p *KafkaEventPublisher) PublishSignal(ctx context.Context, symbol string, sig models.Signal) error {
	if p.signalTopic == "" {
		return nil
	}
	return p.producer.Publish(ctx, p.signalTopic, []byte(symbol), SignalEvent{
		Symbol:      symbol,
		Signal:      sig,
		GeneratedAt: p.now().UTC(),
	})
}

func (p *KafkaEventPublisher) PublishJob(ctx context.Context, job *models.TrainingJob) error {
	if p.jobTopic == "" || job == nil {
		return nil
	}
	return p.producer.Publish(ctx, p.jobTopic, []byte(job.ID), JobEvent{Job: job, EmittedAt: p.now().UTC()})
}

var _ Publisher = (*pkgkafka.Producer)(nil)
