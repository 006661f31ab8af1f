package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TradeSync/internal/domain/models"
	domrepo "TradeSync/internal/domain/repository"
)

// MemoryJobStore keeps training jobs in process memory. Finished jobs older
// than the retention window are pruned on Create.
type MemoryJobStore struct {
	mu        sync.Mutex
	jobs      map[string]*models.TrainingJob
	retention time.Duration
	now       func() time.Time
}

var _ domrepo.JobStore = (*MemoryJobStore)(nil)

func NewMemoryJobStore(retention time.Duration) *MemoryJobStore {
	return &MemoryJobStore{
		jobs:      make(map[string]*models.TrainingJob),
		retention: retention,
		now:       time.Now,
	}
}

func (s *MemoryJobStore) Create(_ context.Context, job *models.TrainingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("create job %s: already exists", job.ID)
	}
	s.prune()
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (*models.TrainingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, models.ErrJobNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryJobStore) Update(_ context.Context, id string, fn func(*models.TrainingJob) error) (*models.TrainingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jobs[id]
	if !ok {
		return nil, models.ErrJobNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.jobs[id] = next
	return next.Clone(), nil
}

func (s *MemoryJobStore) prune() {
	if s.retention <= 0 {
		return
	}
	cutoff := s.now().Add(-s.retention)
	for id, job := range s.jobs {
		if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}
