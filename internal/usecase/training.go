package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"TradeSync/internal/domain/models"
	domrepo "TradeSync/internal/domain/repository"
	"TradeSync/internal/services/features"
	"TradeSync/internal/services/model"
	"TradeSync/internal/services/rl"
	"TradeSync/pkg/logger"
	"TradeSync/pkg/queue"
)

const (
	TaskTrainRL     = "train_rl"
	TaskTrainForest = "train_forest"

	// MinForestSamples is the smallest labelled set a forest job accepts.
	MinForestSamples = 30

	settleAttempts = 3
	settleBackoff  = 20 * time.Millisecond
)

// Enqueuer is the producing side of the training queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// ModelRegistrar receives forests produced by supervised training jobs.
type ModelRegistrar interface {
	Register(ctx context.Context, version string, f *model.Forest, meta model.Metadata) *model.Handle
	Switch(version string) bool
}

type rlTask struct {
	JobID    string      `json:"job_id"`
	Rows     [][]float64 `json:"rows"`
	Episodes int         `json:"episodes"`
}

type forestTask struct {
	JobID   string                   `json:"job_id"`
	Request models.TrainModelRequest `json:"request"`
}

// TrainingService submits training jobs and runs them on queue workers.
// Job state lives in the JobStore; callers poll Status.
type TrainingService struct {
	jobs     domrepo.JobStore
	queue    Enqueuer
	registry ModelRegistrar
	events   domrepo.EventPublisher
	metrics  domrepo.Metrics
	log      *logger.Logger
	rlConfig rl.Config
	episodes int
	seed     int64
	now      func() time.Time
}

type TrainingOption func(*TrainingService)

func WithRLConfig(cfg rl.Config) TrainingOption {
	return func(s *TrainingService) { s.rlConfig = cfg }
}

func WithDefaultEpisodes(n int) TrainingOption {
	return func(s *TrainingService) {
		if n > 0 {
			s.episodes = n
		}
	}
}

func WithForestSeed(seed int64) TrainingOption {
	return func(s *TrainingService) { s.seed = seed }
}

func NewTrainingService(
	jobs domrepo.JobStore,
	q Enqueuer,
	registry ModelRegistrar,
	events domrepo.EventPublisher,
	metrics domrepo.Metrics,
	log *logger.Logger,
	opts ...TrainingOption,
) *TrainingService {
	s := &TrainingService{
		jobs:     jobs,
		queue:    q,
		registry: registry,
		events:   events,
		metrics:  metrics,
		log:      log,
		rlConfig: rl.DefaultConfig(),
		episodes: rl.DefaultEpisodes,
		seed:     42,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitRL records a queued RL job and hands it to a worker. The rows are
// validated by the worker, so a malformed table yields a failed job rather
// than a rejected request.
func (s *TrainingService) SubmitRL(ctx context.Context, rows [][]float64, episodes int) (*models.TrainingJob, error) {
	if episodes <= 0 {
		episodes = s.episodes
	}
	job := s.newJob(models.JobKindRL, map[string]any{
		"episodes": episodes,
		"rows":     len(rows),
	})
	task := &rlTask{JobID: job.ID, Rows: rows, Episodes: episodes}
	return s.submit(ctx, job, TaskTrainRL, task)
}

// SubmitForest records a queued supervised training job.
func (s *TrainingService) SubmitForest(ctx context.Context, req models.TrainModelRequest) (*models.TrainingJob, error) {
	job := s.newJob(models.JobKindForest, map[string]any{
		"model_name":   req.ModelName,
		"horizon":      req.Horizon,
		"threshold":    req.Threshold,
		"n_estimators": req.Estimators,
		"max_depth":    req.MaxDepth,
		"activate":     req.Activate,
		"points":       len(req.TrainingData),
	})
	task := &forestTask{JobID: job.ID, Request: req}
	return s.submit(ctx, job, TaskTrainForest, task)
}

// Status returns a snapshot of the job.
func (s *TrainingService) Status(ctx context.Context, id string) (*models.TrainingJob, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("job status %s: %w", id, err)
	}
	return job, nil
}

// Jobs returns the queue handlers owned by this service.
func (s *TrainingService) Jobs() []queue.Job {
	return []queue.Job{&rlJob{svc: s}, &forestJob{svc: s}}
}

func (s *TrainingService) newJob(kind models.JobKind, params map[string]any) *models.TrainingJob {
	return &models.TrainingJob{
		ID:         uuid.NewString(),
		Kind:       kind,
		Status:     models.JobQueued,
		Parameters: params,
		CreatedAt:  s.now(),
	}
}

func (s *TrainingService) submit(ctx context.Context, job *models.TrainingJob, taskType string, task interface{}) (*models.TrainingJob, error) {
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.recordTransition(ctx, job)

	if err := s.queue.Enqueue(ctx, taskType, task); err != nil {
		s.log.Error("failed to enqueue training job", logger.String("job_id", job.ID), logger.Error(err))
		failed, uerr := s.finish(ctx, job.ID, models.JobFailed, func(j *models.TrainingJob) {
			j.Error = fmt.Sprintf("%v: job could not be scheduled", models.ErrTrainingFailure)
		})
		if uerr != nil {
			return nil, fmt.Errorf("enqueue job %s: %w", job.ID, uerr)
		}
		return failed, fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}

	s.log.Info("training job queued",
		logger.String("job_id", job.ID),
		logger.String("kind", string(job.Kind)))
	return job.Clone(), nil
}

// execute drives one job from queued to a terminal state. Training
// failures are recorded on the job and not returned. Store errors are
// returned so the queue redelivers the task; a redelivered job still in
// training is run again.
func (s *TrainingService) execute(ctx context.Context, id string, train func(context.Context, *models.TrainingJob) error) error {
	job, err := s.begin(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) || errors.Is(err, models.ErrJobTerminal) || errors.Is(err, models.ErrInvalidTransition) {
			s.log.Warn("training job not startable", logger.String("job_id", id), logger.Error(err))
			return nil
		}
		return fmt.Errorf("start job %s: %w", id, err)
	}

	start := s.now()
	err = s.safely(ctx, job, train)
	if err != nil {
		msg := err.Error()
		if !errors.Is(err, models.ErrTrainingFailure) {
			s.log.Error("training job crashed", logger.String("job_id", id), logger.Error(err))
			msg = fmt.Sprintf("%v: internal error", models.ErrTrainingFailure)
		}
		if err := s.settle(ctx, id, models.JobFailed, func(j *models.TrainingJob) { j.Error = msg }); err != nil {
			return err
		}
		s.log.Warn("training job failed",
			logger.String("job_id", id),
			logger.String("error", msg),
			logger.Duration("elapsed_ms", s.now().Sub(start)))
		return nil
	}

	if err := s.settle(ctx, id, models.JobCompleted, func(j *models.TrainingJob) {
		j.Metrics = job.Metrics
		j.ModelVersion = job.ModelVersion
	}); err != nil {
		return err
	}
	s.metrics.RecordLatency("train_"+string(job.Kind), s.now().Sub(start).Seconds())
	s.log.Info("training job completed",
		logger.String("job_id", id),
		logger.String("model_version", job.ModelVersion),
		logger.Duration("elapsed_ms", s.now().Sub(start)))
	return nil
}

// begin moves a queued job to training. A job already in training was
// delivered before and lost its terminal write, so it is resumed as is.
func (s *TrainingService) begin(ctx context.Context, id string) (*models.TrainingJob, error) {
	resumed := false
	job, err := s.jobs.Update(ctx, id, func(j *models.TrainingJob) error {
		if j.Status == models.JobTraining {
			resumed = true
			return nil
		}
		return j.Transition(models.JobTraining, s.now())
	})
	if err != nil {
		return nil, err
	}
	if resumed {
		s.log.Warn("resuming training job", logger.String("job_id", id))
	} else {
		s.recordTransition(ctx, job)
	}
	return job, nil
}

// settle writes the terminal state, retrying store errors a few times. The
// write ignores cancellation so a stopping worker still records the result.
// A job another delivery already finished is left alone.
func (s *TrainingService) settle(ctx context.Context, id string, to models.JobStatus, mutate func(*models.TrainingJob)) error {
	ctx = context.WithoutCancel(ctx)
	var err error
	for attempt := 1; attempt <= settleAttempts; attempt++ {
		if _, err = s.finish(ctx, id, to, mutate); err == nil || errors.Is(err, models.ErrJobTerminal) {
			return nil
		}
		s.log.Warn("job store update failed",
			logger.String("job_id", id),
			logger.String("status", string(to)),
			logger.Int("attempt", attempt),
			logger.Error(err))
		time.Sleep(time.Duration(attempt) * settleBackoff)
	}
	return fmt.Errorf("finish job %s as %s: %w", id, to, err)
}

func (s *TrainingService) safely(ctx context.Context, job *models.TrainingJob, train func(context.Context, *models.TrainingJob) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("training panic: %v", r)
		}
	}()
	return train(ctx, job)
}

// finish applies a transition plus an optional mutation atomically in the store.
func (s *TrainingService) finish(ctx context.Context, id string, to models.JobStatus, mutate func(*models.TrainingJob)) (*models.TrainingJob, error) {
	job, err := s.jobs.Update(ctx, id, func(j *models.TrainingJob) error {
		if err := j.Transition(to, s.now()); err != nil {
			return err
		}
		if mutate != nil {
			mutate(j)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordTransition(ctx, job)
	return job, nil
}

func (s *TrainingService) recordTransition(ctx context.Context, job *models.TrainingJob) {
	s.metrics.RecordTrainingJob(string(job.Kind), string(job.Status))
	if s.events == nil {
		return
	}
	if err := s.events.PublishJob(ctx, job); err != nil {
		s.log.Warn("failed to publish job event", logger.String("job_id", job.ID), logger.Error(err))
	}
}

func (s *TrainingService) trainRL(task *rlTask) func(context.Context, *models.TrainingJob) error {
	return func(_ context.Context, job *models.TrainingJob) error {
		m, err := rl.NewTrainer(s.rlConfig).Train(task.Rows, task.Episodes)
		if err != nil {
			return err
		}
		job.Metrics = m.AsMap()
		job.ModelVersion = m.ModelVersion
		return nil
	}
}

func (s *TrainingService) trainForest(task *forestTask) func(context.Context, *models.TrainingJob) error {
	return func(ctx context.Context, job *models.TrainingJob) error {
		req := task.Request
		X, y, err := LabelledSamples(req.TrainingData, req.Horizon, req.Threshold)
		if err != nil {
			return err
		}
		params := model.ForestParams{
			Estimators:      req.Estimators,
			MaxDepth:        req.MaxDepth,
			MinSamplesSplit: 2,
			Seed:            s.seed,
		}
		forest, err := model.FitForest(X, y, models.NumClasses, params)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrTrainingFailure, err)
		}
		s.registry.Register(ctx, req.ModelName, forest, model.Metadata{
			Source:     model.SourceTrained,
			TrainedAt:  s.now(),
			Estimators: req.Estimators,
			MaxDepth:   req.MaxDepth,
			Samples:    len(X),
		})
		activated := req.Activate && s.registry.Switch(req.ModelName)

		counts := make([]float64, models.NumClasses)
		for _, c := range y {
			counts[c]++
		}
		job.Metrics = map[string]float64{
			"samples":    float64(len(X)),
			"sell":       counts[0],
			"hold":       counts[1],
			"buy":        counts[2],
			"train_acc":  trainingAccuracy(forest, X, y),
			"activated":  boolMetric(activated),
			"n_features": float64(models.FeatureCount),
		}
		job.ModelVersion = req.ModelName
		return nil
	}
}

// LabelledSamples turns a price series into a supervised dataset. Each
// prefix with enough history becomes one feature row, labelled by the
// forward return over horizon: above threshold is BUY, below -threshold is
// SELL, anything else HOLD.
func LabelledSamples(series models.HistoricalSeries, horizon int, threshold float64) ([][]float64, []int, error) {
	if horizon <= 0 {
		return nil, nil, fmt.Errorf("%w: horizon must be positive", models.ErrTrainingFailure)
	}
	var (
		X [][]float64
		y []int
	)
	for end := features.MinHistory; end+horizon <= len(series); end++ {
		cur := series[end-1].Price
		next := series[end-1+horizon].Price
		if cur <= 0 || math.IsNaN(next) || math.IsInf(next, 0) {
			continue
		}
		fv := features.Extract(series[:end], nil)
		ret := (next - cur) / cur
		label := models.LabelHold
		switch {
		case ret > threshold:
			label = models.LabelBuy
		case ret < -threshold:
			label = models.LabelSell
		}
		X = append(X, fv.Slice())
		y = append(y, label.Class())
	}
	if len(X) < MinForestSamples {
		return nil, nil, fmt.Errorf("%w: %d labelled samples, need %d", models.ErrTrainingFailure, len(X), MinForestSamples)
	}
	return X, y, nil
}

func trainingAccuracy(f *model.Forest, X [][]float64, y []int) float64 {
	hits := 0
	for i, x := range X {
		proba, err := f.PredictProba(x)
		if err != nil {
			continue
		}
		if argmaxIndex(proba) == y[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(X))
}

func argmaxIndex(xs []float64) int {
	best := 0
	for i := range xs {
		if xs[i] > xs[best] {
			best = i
		}
	}
	return best
}

func boolMetric(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

type rlJob struct{ svc *TrainingService }

var _ queue.Job = (*rlJob)(nil)

func (j *rlJob) Name() string { return "rl_training" }
func (j *rlJob) Type() string { return TaskTrainRL }

func (j *rlJob) Handle(ctx context.Context, payload interface{}) error {
	task, err := queue.ParsePayload[rlTask](payload)
	if err != nil {
		j.svc.log.Error("bad rl task payload", logger.Error(err))
		return nil
	}
	return j.svc.execute(ctx, task.JobID, j.svc.trainRL(task))
}

type forestJob struct{ svc *TrainingService }

var _ queue.Job = (*forestJob)(nil)

func (j *forestJob) Name() string { return "forest_training" }
func (j *forestJob) Type() string { return TaskTrainForest }

func (j *forestJob) Handle(ctx context.Context, payload interface{}) error {
	task, err := queue.ParsePayload[forestTask](payload)
	if err != nil {
		j.svc.log.Error("bad forest task payload", logger.Error(err))
		return nil
	}
	return j.svc.execute(ctx, task.JobID, j.svc.trainForest(task))
}
