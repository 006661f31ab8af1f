package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"TradeSync/internal/domain/models"
	domrepo "TradeSync/internal/domain/repository"
)

const maxUpdateRetries = 10

// RedisJobStore keeps one JSON document per job. Updates use WATCH/MULTI so
// two workers can never both move a job out of the same state.
type RedisJobStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ domrepo.JobStore = (*RedisJobStore)(nil)

func NewRedisJobStore(client *redis.Client, prefix string, ttl time.Duration) *RedisJobStore {
	return &RedisJobStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisJobStore) key(id string) string {
	return s.prefix + ":job:" + id
}

func (s *RedisJobStore) Create(ctx context.Context, job *models.TrainingJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	created, err := s.client.SetNX(ctx, s.key(job.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	if !created {
		return fmt.Errorf("create job %s: already exists", job.ID)
	}
	return nil
}

func (s *RedisJobStore) Get(ctx context.Context, id string) (*models.TrainingJob, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	var job models.TrainingJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (s *RedisJobStore) Update(ctx context.Context, id string, fn func(*models.TrainingJob) error) (*models.TrainingJob, error) {
	key := s.key(id)
	var updated *models.TrainingJob

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return models.ErrJobNotFound
		}
		if err != nil {
			return err
		}
		var job models.TrainingJob
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("decode job %s: %w", id, err)
		}
		if err := fn(&job); err != nil {
			return err
		}
		next, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, s.ttl)
			return nil
		})
		if err == nil {
			updated = &job
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("update job %s: too much contention", id)
}
