package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signals      *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	fallbacks    *prometheus.CounterVec
	trainingJobs *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	events       *prometheus.CounterVec
}

// New registers the recorder's collectors on reg (prometheus.DefaultRegisterer
// when nil).
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradesync_signals_total",
				Help: "Signals returned, by label and source",
			},
			[]string{"label", "source"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradesync_signal_cache_lookups_total",
				Help: "Signal cache lookups by result",
			},
			[]string{"result"},
		),
		fallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradesync_signal_fallbacks_total",
				Help: "Times the model path degraded to the rule-based strategy",
			},
			[]string{"reason"},
		),
		trainingJobs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradesync_training_jobs_total",
				Help: "Training job state changes by kind and status",
			},
			[]string{"kind", "status"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradesync_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		events: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradesync_events_total",
				Help: "Outbound events by kind and delivery result",
			},
			[]string{"kind", "result"},
		),
	}
}

func (r *Recorder) RecordSignal(label, source string) {
	r.signals.WithLabelValues(label, source).Inc()
}

func (r *Recorder) RecordCacheLookup(hit bool) {
	r.cacheLookups.WithLabelValues(strconv.FormatBool(hit)).Inc()
}

func (r *Recorder) RecordFallback(reason string) {
	r.fallbacks.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordTrainingJob(kind, status string) {
	r.trainingJobs.WithLabelValues(kind, status).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordEvent(kind, result string) {
	r.events.WithLabelValues(kind, result).Inc()
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordSignal(string, string)      {}
func (Nop) RecordCacheLookup(bool)           {}
func (Nop) RecordFallback(string)            {}
func (Nop) RecordTrainingJob(string, string) {}
func (Nop) RecordLatency(string, float64)    {}
func (Nop) RecordEvent(string, string)       {}
