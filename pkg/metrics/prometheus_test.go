package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordSignal("BUY", "model")
	r.RecordSignal("BUY", "model")
	r.RecordCacheLookup(true)
	r.RecordFallback("model_unavailable")
	r.RecordTrainingJob("rl", "completed")
	r.RecordLatency("generate_signal", 0.01)
	r.RecordEvent("signal", "delivered")

	if got := testutil.ToFloat64(r.signals.WithLabelValues("BUY", "model")); got != 2 {
		t.Fatalf("expected 2 BUY signals, got %v", got)
	}
	if got := testutil.ToFloat64(r.cacheLookups.WithLabelValues("true")); got != 1 {
		t.Fatalf("expected 1 cache hit, got %v", got)
	}
	if n, err := testutil.GatherAndCount(reg); err != nil || n != 6 {
		t.Fatalf("expected 6 series, got %d err=%v", n, err)
	}
}
