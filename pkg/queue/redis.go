package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"TradeSync/pkg/logger"
)

// wireMessage is a Message as stored in Redis. The payload stays raw so each
// handler decodes it into its own type through ParsePayload.
type wireMessage struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

// promoteDue moves retries whose time has come back onto the work list. It
// runs as one script so concurrent processes never deliver a retry twice.
var promoteDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, m in ipairs(due) do
  redis.call('ZREM', KEYS[1], m)
  redis.call('LPUSH', KEYS[2], m)
end
return #due
`)

// requeueInflight returns messages a previous run of this consumer left on
// its processing list to the consuming end of the work list.
var requeueInflight = redis.NewScript(`
local n = 0
while true do
  local m = redis.call('LPOP', KEYS[1])
  if not m then break end
  redis.call('RPUSH', KEYS[2], m)
  n = n + 1
end
return n
`)

// RedisQueue is a list-backed queue shared by every process pointing at the
// same Redis. A message stays on the consumer's processing list until its
// handler returns, so a crashed process gets it back on the next Start.
// Failed messages wait in a sorted set until their retry time and land in a
// bounded dead-letter list after RetryLimit retries.
type RedisQueue struct {
	logger   *logger.Logger
	config   *QueueConfig
	client   *redis.Client
	prefix   string
	consumer string

	mu        sync.RWMutex
	jobs      map[string]Job
	isRunning bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
}

var (
	_ Queue            = (*RedisQueue)(nil)
	_ DeadLetterReader = (*RedisQueue)(nil)
)

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix namespaces the queue keys.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) { r.prefix = prefix }
}

// WithConsumer names this process's processing list. The name must be stable
// across restarts and unique among live processes.
func WithConsumer(name string) RedisQueueOption {
	return func(r *RedisQueue) {
		if name != "" {
			r.consumer = name
		}
	}
}

func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	if config == nil {
		config = &QueueConfig{}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &RedisQueue{
		logger:   lgr,
		config:   config,
		client:   client,
		prefix:   "tradesync:queue",
		consumer: "default",
		jobs:     make(map[string]Job),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisQueue) key(name string) string { return r.prefix + ":" + name }

func (r *RedisQueue) processingKey() string { return r.key("processing:" + r.consumer) }

func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Type()]; exists {
		r.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.logger.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

// Start pings Redis, requeues messages a previous run left unfinished and
// launches the workers and the retry promoter.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRunning {
		return ErrAlreadyStart
	}
	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	keys := []string{r.processingKey(), r.key("messages")}
	n, err := requeueInflight.Run(ctx, r.client, keys).Int()
	if err != nil {
		return fmt.Errorf("requeue in-flight messages: %w", err)
	}
	if n > 0 {
		r.logger.Warn("requeued unfinished messages", logger.Int("count", n), logger.String("consumer", r.consumer))
	}
	r.isRunning = true

	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.promoteRetries()

	r.logger.Info("redis queue started",
		logger.Int("workers", r.config.Workers),
		logger.String("prefix", r.prefix))
	return nil
}

// Stop cancels in-flight handlers and waits for workers to exit. Cancelled
// messages stay on the processing list for the next Start.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		r.logger.Info("redis queue stopped")
		return nil
	}
}

func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running, known := r.isRunning, r.jobs[msgType] != nil
	r.mu.RUnlock()

	if !running {
		return ErrNotRunning
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownType, msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(wireMessage{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: r.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.key("messages"), data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// DeadLetters returns up to n messages that exhausted their retries, newest
// first.
func (r *RedisQueue) DeadLetters(ctx context.Context, n int64) ([]Message, error) {
	items, err := r.client.LRange(ctx, r.key("dlq"), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange dlq: %w", err)
	}
	out := make([]Message, 0, len(items))
	for _, item := range items {
		var m wireMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("decode dlq message: %w", err)
		}
		out = append(out, m.message())
	}
	return out, nil
}

func (m wireMessage) message() Message {
	return Message{ID: m.ID, Type: m.Type, Payload: m.Payload, Attempts: m.Attempts, Timestamp: m.Timestamp}
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.logger.Debug("queue worker started", logger.Int("worker_id", id))

	for r.ctx.Err() == nil {
		data, err := r.client.BLMove(r.ctx, r.key("messages"), r.processingKey(), "RIGHT", "LEFT", time.Second).Result()
		switch {
		case err == nil:
			r.handle(data)
		case errors.Is(err, redis.Nil), r.ctx.Err() != nil:
		default:
			r.logger.Error("blmove error", logger.Error(err))
			select {
			case <-r.ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
	r.logger.Debug("queue worker stopping", logger.Int("worker_id", id))
}

func (r *RedisQueue) handle(data string) {
	var msg wireMessage
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		r.logger.Error("undecodable message dropped", logger.Error(err))
		r.ack(data, nil)
		return
	}

	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("no job found", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.deadLetter(data, msg)
		return
	}

	start := r.now()
	err := runJob(r.ctx, job, msg.Payload)
	switch {
	case err == nil:
		r.ack(data, nil)
	case errors.Is(err, context.Canceled):
		r.logger.Warn("message cancelled, left for redelivery",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Duration("elapsed_ms", r.now().Sub(start)))
	default:
		r.fail(data, msg, job, err)
	}
}

// ack removes data from the processing list. extra runs in the same
// transaction so a message is never both rescheduled and redelivered.
func (r *RedisQueue) ack(data string, extra func(redis.Pipeliner)) {
	// Background context: the outcome must be recorded even while stopping.
	ctx := context.Background()
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if extra != nil {
			extra(pipe)
		}
		pipe.LRem(ctx, r.processingKey(), 1, data)
		return nil
	})
	if err != nil {
		r.logger.Error("ack message", logger.Error(err))
	}
}

func (r *RedisQueue) fail(data string, msg wireMessage, job Job, err error) {
	r.logger.Error("message processing error",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	if msg.Attempts >= r.config.RetryLimit {
		r.logger.Error("max retries reached", logger.String("id", msg.ID), logger.String("job", job.Name()))
		r.deadLetter(data, msg)
		return
	}

	msg.Attempts++
	at := r.now().Add(backoff(r.config.RetryDelay, msg.Attempts))
	retry, merr := json.Marshal(msg)
	if merr != nil {
		r.logger.Error("marshal retry", logger.Error(merr))
		return
	}
	r.ack(data, func(pipe redis.Pipeliner) {
		pipe.ZAdd(context.Background(), r.key("retry"), redis.Z{
			Score:  float64(at.UnixMilli()),
			Member: retry,
		})
	})
	r.logger.Info("scheduled retry",
		logger.String("id", msg.ID),
		logger.Int("attempt", msg.Attempts),
		logger.String("retry_at", at.Format(time.RFC3339)))
}

// deadLetter keeps the newest maxDeadLetters messages.
func (r *RedisQueue) deadLetter(data string, msg wireMessage) {
	dead, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal dlq", logger.Error(err))
		return
	}
	r.ack(data, func(pipe redis.Pipeliner) {
		ctx := context.Background()
		pipe.LPush(ctx, r.key("dlq"), dead)
		pipe.LTrim(ctx, r.key("dlq"), 0, maxDeadLetters-1)
	})
}

func (r *RedisQueue) promoteRetries() {
	defer r.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			now := strconv.FormatInt(r.now().UnixMilli(), 10)
			keys := []string{r.key("retry"), r.key("messages")}
			if err := promoteDue.Run(r.ctx, r.client, keys, now, 100).Err(); err != nil && r.ctx.Err() == nil {
				r.logger.Error("promote retries", logger.Error(err))
			}
		}
	}
}
