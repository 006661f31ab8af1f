package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"TradeSync/pkg/logger"
)

// MemoryQueue is an in-process queue backed by a buffered channel and a
// fixed pool of workers.
type MemoryQueue struct {
	logger *logger.Logger
	config *QueueConfig

	mu        sync.RWMutex
	jobs      map[string]Job
	isRunning bool
	messages  chan Message
	dead      []Message

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// maxDeadLetters bounds the dead-letter lists of both queues.
const maxDeadLetters = 100

var (
	_ Queue            = (*MemoryQueue)(nil)
	_ DeadLetterReader = (*MemoryQueue)(nil)
)

func NewMemoryQueue(lgr *logger.Logger, config *QueueConfig) *MemoryQueue {
	if config == nil {
		config = &QueueConfig{}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryQueue{
		logger:   lgr,
		config:   config,
		jobs:     make(map[string]Job),
		messages: make(chan Message, config.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (q *MemoryQueue) RegisterJob(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.jobs[job.Type()]; exists {
		q.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	q.jobs[job.Type()] = job
	q.logger.Info("job registered",
		logger.String("job", job.Name()),
		logger.String("type", job.Type()))
}

func (q *MemoryQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.isRunning {
		return ErrAlreadyStart
	}
	q.isRunning = true
	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.logger.Info("memory queue started", logger.Int("workers", q.config.Workers))
	return nil
}

// Stop cancels in-flight handlers and waits for workers to exit. Messages
// still buffered are dropped.
func (q *MemoryQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = false
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		q.logger.Info("memory queue stopped", logger.Int("dropped", len(q.messages)))
		return nil
	}
}

// Enqueue never blocks: a full buffer is reported as ErrFull.
func (q *MemoryQueue) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if !q.isRunning {
		return ErrNotRunning
	}
	if _, exists := q.jobs[msgType]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownType, msgType)
	}

	msg := Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	select {
	case q.messages <- msg:
		return nil
	default:
		return ErrFull
	}
}

func (q *MemoryQueue) worker(id int) {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			q.logger.Debug("queue worker stopping", logger.Int("worker_id", id))
			return
		case msg := <-q.messages:
			q.process(msg)
		}
	}
}

func (q *MemoryQueue) process(msg Message) {
	q.mu.RLock()
	job, exists := q.jobs[msg.Type]
	q.mu.RUnlock()
	if !exists {
		q.logger.Error("no job found", logger.String("type", msg.Type), logger.String("id", msg.ID))
		q.deadLetter(msg)
		return
	}

	for {
		err := runJob(q.ctx, job, msg.Payload)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		q.logger.Error("message processing error",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempt", msg.Attempts+1),
			logger.Error(err))
		if msg.Attempts >= q.config.RetryLimit {
			q.logger.Error("max retries reached", logger.String("id", msg.ID), logger.String("job", job.Name()))
			q.deadLetter(msg)
			return
		}
		msg.Attempts++

		select {
		case <-q.ctx.Done():
			return
		case <-time.After(backoff(q.config.RetryDelay, msg.Attempts)):
		}
	}
}

func (q *MemoryQueue) deadLetter(msg Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, msg)
	if len(q.dead) > maxDeadLetters {
		q.dead = q.dead[len(q.dead)-maxDeadLetters:]
	}
}

// DeadLetters returns up to n failed messages, newest first.
func (q *MemoryQueue) DeadLetters(_ context.Context, n int64) ([]Message, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]Message, 0, len(q.dead))
	for i := len(q.dead) - 1; i >= 0 && int64(len(out)) < n; i-- {
		out = append(out, q.dead[i])
	}
	return out, nil
}

// runJob converts a handler panic into an error so one bad message cannot
// take a worker down.
func runJob(ctx context.Context, job Job, payload interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Handle(ctx, payload)
}
