package logger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships a batch of aggregated error entries somewhere durable.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

type CollectorConfig struct {
	FlushInterval  time.Duration // e.g. 30s
	CountThreshold int           // unique entries before an early flush
	Topic          string
	Publisher      Publisher
}

type ErrorDigest struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// ErrorCollector deduplicates repeated error logs and periodically flushes
// one digest per distinct (level, message, fields, caller).
type ErrorCollector struct {
	cfg     *CollectorConfig
	mu      sync.Mutex
	digests map[string]*ErrorDigest
	now     func() time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewErrorCollector(cfg *CollectorConfig) *ErrorCollector {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &ErrorCollector{
		cfg:     cfg,
		digests: make(map[string]*ErrorDigest),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}

	c.wg.Add(1)
	go c.loop()
	return c
}

func (c *ErrorCollector) Add(level, message string, fields map[string]interface{}, caller string) {
	now := c.now()
	key := digestKey(level, message, fields, caller)

	c.mu.Lock()
	if d, ok := c.digests[key]; ok {
		d.Count++
		d.LastSeen = now
	} else {
		c.digests[key] = &ErrorDigest{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	var batch []ErrorDigest
	if len(c.digests) >= c.cfg.CountThreshold {
		batch = c.drainLocked()
	}
	c.mu.Unlock()

	if batch != nil {
		go c.send(batch)
	}
}

// Pending reports how many distinct digests are waiting for the next flush.
func (c *ErrorCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.digests)
}

func digestKey(level, message string, fields map[string]interface{}, caller string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s", level, message, caller)
	for _, k := range keys {
		v, _ := json.Marshal(fields[k])
		fmt.Fprintf(h, "|%s=%s", k, v)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *ErrorCollector) loop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.ctx.Done():
			c.flush()
			return
		}
	}
}

func (c *ErrorCollector) flush() {
	c.mu.Lock()
	batch := c.drainLocked()
	c.mu.Unlock()
	if batch != nil {
		c.send(batch)
	}
}

func (c *ErrorCollector) drainLocked() []ErrorDigest {
	if len(c.digests) == 0 {
		return nil
	}
	batch := make([]ErrorDigest, 0, len(c.digests))
	for _, d := range c.digests {
		batch = append(batch, *d)
	}
	c.digests = make(map[string]*ErrorDigest)
	return batch
}

func (c *ErrorCollector) send(batch []ErrorDigest) {
	if c.cfg.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.cfg.Publisher.Publish(ctx, c.cfg.Topic, []byte("error-digest"), batch); err != nil {
		// the logger itself is the failing sink, so fall back to stderr
		fmt.Fprintf(os.Stderr, "error collector: publish %d digests: %v\n", len(batch), err)
	}
}

// Close stops the flush loop after a final synchronous flush.
func (c *ErrorCollector) Close() {
	c.cancel()
	c.wg.Wait()
}
