package middleware

import (
	"context"
	"sync"
	"time"

	"TradeSync/internal/domain/models"
	domrepo "TradeSync/internal/domain/repository"
	applogger "TradeSync/pkg/logger"
)

// event is one buffered publish call.
type event struct {
	symbol string
	signal models.Signal
	job    *models.TrainingJob
}

// EventPipeline sits between the use cases and the event broker. Publishing
// never blocks the caller: events are buffered, signal events are throttled
// per symbol and failed deliveries are retried with backoff until the
// buffer overflows.
type EventPipeline struct {
	next    domrepo.EventPublisher
	metrics domrepo.Metrics
	log     *applogger.Logger

	maxRPS   int
	bufSize  int
	attempts int
	bufCh    chan event

	mu        sync.Mutex
	lastSeen  map[string]time.Time
	lastPrune time.Time
	started   bool
	stopCh    chan struct{}
	done      chan struct{}
	now       func() time.Time
}

var _ domrepo.EventPublisher = (*EventPipeline)(nil)

type PipelineOption func(*EventPipeline)

// WithMaxRPS caps signal events per symbol per second; 0 disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(p *EventPipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets how many events may wait for delivery.
func WithBufferSize(n int) PipelineOption {
	return func(p *EventPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithMaxAttempts bounds delivery attempts per event.
func WithMaxAttempts(n int) PipelineOption {
	return func(p *EventPipeline) {
		if n > 0 {
			p.attempts = n
		}
	}
}

func NewEventPipeline(next domrepo.EventPublisher, metrics domrepo.Metrics, log *applogger.Logger, opts ...PipelineOption) *EventPipeline {
	p := &EventPipeline{
		next:     next,
		metrics:  metrics,
		log:      log,
		maxRPS:   20,
		bufSize:  1000,
		attempts: 3,
		lastSeen: make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan event, p.bufSize)
	return p
}

// Start launches the delivery goroutine.
func (p *EventPipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	go p.run()
}

// Stop drains what is already buffered, bounded by ctx.
func (p *EventPipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	p.mu.Unlock()

	close(p.stopCh)
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *EventPipeline) PublishSignal(_ context.Context, symbol string, sig models.Signal) error {
	if !p.allow(symbol) {
		p.metrics.RecordEvent("signal", "throttled")
		return nil
	}
	p.enqueue(event{symbol: symbol, signal: sig}, "signal")
	return nil
}

func (p *EventPipeline) PublishJob(_ context.Context, job *models.TrainingJob) error {
	p.enqueue(event{job: job.Clone()}, "job")
	return nil
}

func (p *EventPipeline) enqueue(ev event, kind string) {
	select {
	case p.bufCh <- ev:
	default:
		p.metrics.RecordEvent(kind, "dropped")
	}
}

func (p *EventPipeline) run() {
	defer close(p.done)
	ctx := context.Background()
	for {
		select {
		case ev := <-p.bufCh:
			p.deliver(ctx, ev)
		case <-p.stopCh:
			for {
				select {
				case ev := <-p.bufCh:
					p.deliver(ctx, ev)
				default:
					return
				}
			}
		}
	}
}

func (p *EventPipeline) deliver(ctx context.Context, ev event) {
	kind := "signal"
	if ev.job != nil {
		kind = "job"
	}
	backoff := 50 * time.Millisecond
	for attempt := 1; ; attempt++ {
		var err error
		if ev.job != nil {
			err = p.next.PublishJob(ctx, ev.job)
		} else {
			err = p.next.PublishSignal(ctx, ev.symbol, ev.signal)
		}
		if err == nil {
			p.metrics.RecordEvent(kind, "delivered")
			return
		}
		if attempt >= p.attempts {
			p.metrics.RecordEvent(kind, "failed")
			p.log.Warn("event delivery failed", applogger.String("kind", kind), applogger.Error(err))
			return
		}
		select {
		case <-time.After(backoff):
		case <-p.stopCh:
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
}

func (p *EventPipeline) allow(symbol string) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	// The throttle interval never exceeds a second, so older entries are dead.
	if now.Sub(p.lastPrune) >= time.Second {
		for sym, at := range p.lastSeen {
			if now.Sub(at) >= time.Second {
				delete(p.lastSeen, sym)
			}
		}
		p.lastPrune = now
	}
	last, seen := p.lastSeen[symbol]
	if seen && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
