package models

import (
	"fmt"
	"time"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobTraining  JobStatus = "training"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

type JobKind string

const (
	JobKindRL     JobKind = "rl"
	JobKindForest JobKind = "forest"
)

// TrainingJob is the externally visible record of a background training run.
type TrainingJob struct {
	ID           string             `json:"job_id"`
	Kind         JobKind            `json:"kind"`
	Status       JobStatus          `json:"status"`
	Parameters   map[string]any     `json:"parameters,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	ModelVersion string             `json:"model_version,omitempty"`
	Error        string             `json:"error,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	StartedAt    *time.Time         `json:"started_at,omitempty"`
	FinishedAt   *time.Time         `json:"finished_at,omitempty"`
}

var allowedTransitions = map[JobStatus][]JobStatus{
	JobQueued:   {JobTraining, JobFailed},
	JobTraining: {JobCompleted, JobFailed},
}

// Transition moves the job to status `to` and stamps the matching time.
// Terminal jobs never change again.
func (j *TrainingJob) Transition(to JobStatus, at time.Time) error {
	if j.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobTerminal, j.ID, j.Status)
	}
	for _, next := range allowedTransitions[j.Status] {
		if next != to {
			continue
		}
		j.Status = to
		switch {
		case to == JobTraining:
			j.StartedAt = &at
		case to.Terminal():
			j.FinishedAt = &at
		}
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
}

// Clone returns a deep copy safe to hand out of a store.
func (j *TrainingJob) Clone() *TrainingJob {
	if j == nil {
		return nil
	}
	cp := *j
	if j.Parameters != nil {
		cp.Parameters = make(map[string]any, len(j.Parameters))
		for k, v := range j.Parameters {
			cp.Parameters[k] = v
		}
	}
	if j.Metrics != nil {
		cp.Metrics = make(map[string]float64, len(j.Metrics))
		for k, v := range j.Metrics {
			cp.Metrics[k] = v
		}
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}
