package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"TradeSync/internal/domain/models"
	pkgcache "TradeSync/pkg/cache"
	"TradeSync/pkg/logger"
)

const (
	DefaultTTL = 60 * time.Second
	keyPrefix  = "signal"
)

type envelope struct {
	Fingerprint string        `json:"fingerprint"`
	ExpiresAt   int64         `json:"expires_at"` // unix nanoseconds
	Signal      models.Signal `json:"signal"`
}

// SignalCache memoizes generated signals by input fingerprint. Entries are
// plain JSON and are validated on every read; anything unreadable, stale or
// out of shape is dropped and reported as a miss.
type SignalCache struct {
	store pkgcache.Store
	ttl   time.Duration
	now   func() time.Time
	log   *logger.Logger
}

type Option func(*SignalCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *SignalCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *SignalCache) { c.now = now }
}

func NewSignalCache(store pkgcache.Store, log *logger.Logger, opts ...Option) *SignalCache {
	c := &SignalCache{store: store, ttl: DefaultTTL, now: time.Now, log: log}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SignalCache) TTL() time.Duration { return c.ttl }

// Fingerprint hashes the exact bits of every price and volume plus the
// normalized indicator set.
func Fingerprint(series models.HistoricalSeries, indicators models.IndicatorSet) string {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(len(series)))
	h.Write(buf[:])
	for _, p := range series {
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(p.Price))
		h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(p.Volume))
		h.Write(buf[:])
	}
	for _, ind := range indicators {
		fmt.Fprintf(h, "|%s=%d", ind.Name, ind.Period)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached signal for fp. Any failure is a miss.
func (c *SignalCache) Get(ctx context.Context, fp string) (models.Signal, bool) {
	key := pkgcache.GenerateKey(keyPrefix, fp)
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, pkgcache.ErrCacheMiss) {
			c.log.Warn("signal cache read failed", logger.String("fingerprint", fp), logger.Error(err))
		}
		return models.Signal{}, false
	}

	sig, err := c.decode(raw, fp)
	if err != nil {
		c.log.Warn("discarding invalid signal cache entry", logger.String("fingerprint", fp), logger.Error(err))
		_ = c.store.Delete(ctx, key)
		return models.Signal{}, false
	}
	return sig, true
}

// Put stores sig for fp with the cache TTL. Failures are logged and swallowed.
func (c *SignalCache) Put(ctx context.Context, fp string, sig models.Signal) {
	env := envelope{Fingerprint: fp, ExpiresAt: c.now().Add(c.ttl).UnixNano(), Signal: sig}
	raw, err := json.Marshal(env)
	if err == nil {
		err = c.store.Set(ctx, pkgcache.GenerateKey(keyPrefix, fp), raw, c.ttl)
	}
	if err != nil {
		c.log.Warn("signal cache write failed", logger.String("fingerprint", fp), logger.Error(err))
	}
}

func (c *SignalCache) decode(raw []byte, fp string) (models.Signal, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return models.Signal{}, fmt.Errorf("decode: %w", err)
	}
	if env.Fingerprint != fp {
		return models.Signal{}, errors.New("fingerprint mismatch")
	}
	if c.now().UnixNano() >= env.ExpiresAt {
		return models.Signal{}, errors.New("entry expired")
	}
	if err := ValidateSignal(env.Signal); err != nil {
		return models.Signal{}, err
	}
	return env.Signal, nil
}

// ValidateSignal checks the structural invariants of a signal.
func ValidateSignal(s models.Signal) error {
	if !s.Label.Valid() {
		return fmt.Errorf("invalid label %q", s.Label)
	}
	if math.IsNaN(s.Confidence) || s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("confidence out of range: %v", s.Confidence)
	}
	if s.ModelVersion == "" {
		return errors.New("empty model version")
	}
	if s.FeatureImportance != nil {
		if len(s.FeatureImportance) != models.FeatureCount {
			return fmt.Errorf("feature importance has %d entries", len(s.FeatureImportance))
		}
		for _, v := range s.FeatureImportance {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.New("feature importance is not finite")
			}
		}
	}
	return nil
}
