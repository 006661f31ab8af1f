package models

import "errors"

var (
	ErrInsufficientData    = errors.New("insufficient data")
	ErrModelUnavailable    = errors.New("model unavailable")
	ErrPredictionFailure   = errors.New("prediction failure")
	ErrCacheUnavailable    = errors.New("cache unavailable")
	ErrTrainingFailure     = errors.New("training failure")
	ErrUnknownModelVersion = errors.New("unknown model version")
	ErrModelNotFound       = errors.New("model artifact not found")
	ErrJobNotFound         = errors.New("job not found")
	ErrJobTerminal         = errors.New("job already finished")
	ErrInvalidTransition   = errors.New("invalid job status transition")
	ErrSeriesUnavailable   = errors.New("series provider unavailable")
)
