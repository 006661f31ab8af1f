package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"TradeSync/internal/domain/models"
)

func TestMemoryJobStoreUpdateIsIsolated(t *testing.T) {
	store := NewMemoryJobStore(time.Hour)
	ctx := context.Background()
	job := &models.TrainingJob{ID: "j1", Kind: models.JobKindRL, Status: models.JobQueued, CreatedAt: time.Now()}

	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, job); err == nil {
		t.Fatalf("expected duplicate create to fail")
	}
	job.Status = models.JobCompleted
	got, _ := store.Get(ctx, "j1")
	if got.Status != models.JobQueued {
		t.Fatalf("store shares memory with caller")
	}

	_, err := store.Update(ctx, "j1", func(j *models.TrainingJob) error {
		j.Error = "partial"
		return errors.New("abort")
	})
	if err == nil {
		t.Fatalf("expected update error")
	}
	got, _ = store.Get(ctx, "j1")
	if got.Error != "" {
		t.Fatalf("failed update must not persist, got %q", got.Error)
	}

	now := time.Now()
	for _, to := range []models.JobStatus{models.JobTraining, models.JobCompleted} {
		if _, err := store.Update(ctx, "j1", func(j *models.TrainingJob) error { return j.Transition(to, now) }); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}
	_, err = store.Update(ctx, "j1", func(j *models.TrainingJob) error { return j.Transition(models.JobFailed, now) })
	if !errors.Is(err, models.ErrJobTerminal) {
		t.Fatalf("expected ErrJobTerminal, got %v", err)
	}
	got, _ = store.Get(ctx, "j1")
	if got.Status != models.JobCompleted {
		t.Fatalf("terminal job changed to %s", got.Status)
	}
}

func TestMemoryJobStoreMissing(t *testing.T) {
	store := NewMemoryJobStore(0)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, models.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	_, err := store.Update(context.Background(), "nope", func(*models.TrainingJob) error { return nil })
	if !errors.Is(err, models.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryJobStorePrunesFinishedJobs(t *testing.T) {
	store := NewMemoryJobStore(time.Minute)
	base := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return base }
	ctx := context.Background()

	old := base.Add(-2 * time.Minute)
	_ = store.Create(ctx, &models.TrainingJob{ID: "old", Status: models.JobCompleted, FinishedAt: &old})
	_ = store.Create(ctx, &models.TrainingJob{ID: "new", Status: models.JobQueued})

	if _, err := store.Get(ctx, "old"); !errors.Is(err, models.ErrJobNotFound) {
		t.Fatalf("expected old job pruned, got %v", err)
	}
	if _, err := store.Get(ctx, "new"); err != nil {
		t.Fatalf("new job missing: %v", err)
	}
}
