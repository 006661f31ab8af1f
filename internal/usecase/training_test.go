package usecase

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"TradeSync/internal/domain/models"
	domrepo "TradeSync/internal/domain/repository"
	"TradeSync/internal/repository"
	"TradeSync/internal/services/model"
	"TradeSync/internal/services/rl"
	"TradeSync/pkg/logger"
	"TradeSync/pkg/metrics"
	"TradeSync/pkg/queue"
)

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, string, interface{}) error {
	return errors.New("queue down")
}

// unreliableStore fails Update a fixed number of times while the job sits in
// the given status.
type unreliableStore struct {
	*repository.MemoryJobStore
	mu       sync.Mutex
	status   models.JobStatus
	failures int
}

func (s *unreliableStore) Update(ctx context.Context, id string, fn func(*models.TrainingJob) error) (*models.TrainingJob, error) {
	if cur, err := s.MemoryJobStore.Get(ctx, id); err == nil {
		s.mu.Lock()
		fail := cur.Status == s.status && s.failures > 0
		if fail {
			s.failures--
		}
		s.mu.Unlock()
		if fail {
			return nil, errors.New("store unavailable")
		}
	}
	return s.MemoryJobStore.Update(ctx, id, fn)
}

func newTrainingService(t *testing.T) (*TrainingService, *model.Registry) {
	t.Helper()
	return newTrainingServiceWith(t, repository.NewMemoryJobStore(time.Hour), &queue.QueueConfig{Workers: 1})
}

func newTrainingServiceWith(t *testing.T, store domrepo.JobStore, qcfg *queue.QueueConfig) (*TrainingService, *model.Registry) {
	t.Helper()
	log := logger.Nop()
	reg := model.NewRegistry(nil, log)
	q := queue.NewMemoryQueue(log, qcfg)
	svc := NewTrainingService(store, q, reg, nil, metrics.Nop{}, log,
		WithRLConfig(rl.Config{Hidden: 8, LearningRate: 0.001, Seed: 1}))
	for _, job := range svc.Jobs() {
		q.RegisterJob(job)
	}
	if err := q.Start(); err != nil {
		t.Fatalf("start queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Stop(context.Background()) })
	return svc, reg
}

func waitTerminal(t *testing.T, svc *TrainingService, id string) *models.TrainingJob {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := svc.Status(context.Background(), id)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return nil
}

func TestSubmitRLCompletes(t *testing.T) {
	svc, _ := newTrainingService(t)
	rows := [][]float64{{100, 1}, {101, 1}, {100.5, 1}, {102, 1}}

	job, err := svc.SubmitRL(context.Background(), rows, 5)
	if err != nil {
		t.Fatalf("SubmitRL: %v", err)
	}
	if job.Status != models.JobQueued || job.ID == "" {
		t.Fatalf("expected queued job with id, got %+v", job)
	}

	done := waitTerminal(t, svc, job.ID)
	if done.Status != models.JobCompleted {
		t.Fatalf("expected completed, got %s (%s)", done.Status, done.Error)
	}
	if done.Metrics["episodes"] != 5 || done.Metrics["steps"] != 15 {
		t.Fatalf("unexpected metrics %v", done.Metrics)
	}
	if done.ModelVersion != rl.ModelVersion {
		t.Fatalf("expected model version %s, got %s", rl.ModelVersion, done.ModelVersion)
	}
	if done.StartedAt == nil || done.FinishedAt == nil {
		t.Fatalf("expected lifecycle timestamps")
	}
}

func TestSubmitRLMalformedSeriesFails(t *testing.T) {
	svc, _ := newTrainingService(t)

	job, err := svc.SubmitRL(context.Background(), [][]float64{{100}}, 1)
	if err != nil {
		t.Fatalf("SubmitRL: %v", err)
	}
	done := waitTerminal(t, svc, job.ID)
	if done.Status != models.JobFailed {
		t.Fatalf("expected failed, got %s", done.Status)
	}
	if !strings.Contains(done.Error, "training failure") {
		t.Fatalf("expected training failure message, got %q", done.Error)
	}
}

func TestSubmitEnqueueFailureMarksJobFailed(t *testing.T) {
	log := logger.Nop()
	store := repository.NewMemoryJobStore(time.Hour)
	svc := NewTrainingService(store, failingQueue{}, model.NewRegistry(nil, log), nil, metrics.Nop{}, log)

	job, err := svc.SubmitRL(context.Background(), [][]float64{{1}, {2}}, 1)
	if err == nil {
		t.Fatalf("expected enqueue error")
	}
	if job == nil || job.Status != models.JobFailed {
		t.Fatalf("expected failed job, got %+v", job)
	}
	stored, _ := store.Get(context.Background(), job.ID)
	if stored.Status != models.JobFailed {
		t.Fatalf("store has %s", stored.Status)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	svc, _ := newTrainingService(t)
	if _, err := svc.Status(context.Background(), "missing"); !errors.Is(err, models.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func wave(n int) models.HistoricalSeries {
	out := make(models.HistoricalSeries, n)
	for i := range out {
		out[i] = models.MarketDataPoint{
			Price:  100 + 5*math.Sin(float64(i)/4),
			Volume: 1000 + float64(i%7)*50,
		}
	}
	return out
}

func TestSubmitForestRegistersAndActivates(t *testing.T) {
	svc, reg := newTrainingService(t)
	req := models.TrainModelRequest{
		ModelName:    "wave-1",
		TrainingData: wave(120),
		Horizon:      3,
		Threshold:    0.001,
		Estimators:   5,
		MaxDepth:     4,
		Activate:     true,
	}

	job, err := svc.SubmitForest(context.Background(), req)
	if err != nil {
		t.Fatalf("SubmitForest: %v", err)
	}
	done := waitTerminal(t, svc, job.ID)
	if done.Status != models.JobCompleted {
		t.Fatalf("expected completed, got %s (%s)", done.Status, done.Error)
	}
	if done.Metrics["activated"] != 1 {
		t.Fatalf("expected activation, metrics=%v", done.Metrics)
	}
	if h := reg.Active(); h == nil || h.Version != "wave-1" {
		t.Fatalf("expected wave-1 active, got %+v", h)
	}
	if reg.Active().Metadata.Source != model.SourceTrained {
		t.Fatalf("expected trained source")
	}
}

func TestSubmitForestTooFewSamples(t *testing.T) {
	svc, reg := newTrainingService(t)
	req := models.TrainModelRequest{
		ModelName: "tiny", TrainingData: wave(40), Horizon: 5, Threshold: 0.001, Estimators: 3, MaxDepth: 3,
	}
	job, err := svc.SubmitForest(context.Background(), req)
	if err != nil {
		t.Fatalf("SubmitForest: %v", err)
	}
	done := waitTerminal(t, svc, job.ID)
	if done.Status != models.JobFailed {
		t.Fatalf("expected failed, got %s", done.Status)
	}
	if len(reg.Versions()) != 0 {
		t.Fatalf("nothing should be registered, got %v", reg.Versions())
	}
}

func TestLabelledSamples(t *testing.T) {
	series := make(models.HistoricalSeries, 60)
	for i := range series {
		series[i] = models.MarketDataPoint{Price: 100 + float64(i), Volume: 10}
	}
	X, y, err := LabelledSamples(series, 5, 0.001)
	if err != nil {
		t.Fatalf("LabelledSamples: %v", err)
	}
	// prefixes of length 20..55
	if len(X) != 36 || len(y) != 36 {
		t.Fatalf("expected 36 samples, got %d", len(X))
	}
	for i, label := range y {
		if label != models.LabelBuy.Class() {
			t.Fatalf("sample %d: rising prices should label BUY, got %d", i, label)
		}
		if len(X[i]) != models.FeatureCount {
			t.Fatalf("sample %d has %d features", i, len(X[i]))
		}
	}
}

func TestStoreFailuresDoNotStrandJobs(t *testing.T) {
	rows := [][]float64{{100, 1}, {101, 1}, {100.5, 1}, {102, 1}}
	cases := map[string]struct {
		status     models.JobStatus
		failures   int
		retryLimit int
	}{
		"terminal write retried in place": {models.JobTraining, settleAttempts - 1, 0},
		"start write redelivered":         {models.JobQueued, 1, 2},
		"terminal write redelivered":      {models.JobTraining, settleAttempts + 1, 3},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			store := &unreliableStore{MemoryJobStore: repository.NewMemoryJobStore(time.Hour), status: tc.status, failures: tc.failures}
			svc, _ := newTrainingServiceWith(t, store, &queue.QueueConfig{Workers: 1, RetryLimit: tc.retryLimit, RetryDelay: time.Millisecond})

			job, err := svc.SubmitRL(context.Background(), rows, 3)
			if err != nil {
				t.Fatalf("SubmitRL: %v", err)
			}
			done := waitTerminal(t, svc, job.ID)
			if done.Status != models.JobCompleted {
				t.Fatalf("expected completed, got %s (%s)", done.Status, done.Error)
			}
			if done.Metrics["episodes"] != 3 {
				t.Fatalf("metrics lost: %v", done.Metrics)
			}
		})
	}
}
