package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublishEncodesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "snappy", prometheus.NewRegistry())

	err := p.Publish(context.Background(), "signals", []byte("AAPL"), map[string]any{"signal": "BUY"})
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != "signals" || string(msg.Key) != "AAPL" {
		t.Fatalf("unexpected routing: topic=%s key=%s", msg.Topic, msg.Key)
	}
	var body map[string]string
	if err := json.Unmarshal(msg.Value, &body); err != nil || body["signal"] != "BUY" {
		t.Fatalf("unexpected value %s (err=%v)", msg.Value, err)
	}
}

func TestPublishBatchPassesRawBytes(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "snappy", prometheus.NewRegistry())

	err := p.PublishBatch(context.Background(), "raw", []Message{
		{Key: []byte("a"), Value: []byte("one")},
		{Key: []byte("b"), Value: "two"},
	})
	if err != nil {
		t.Fatalf("PublishBatch returned error: %v", err)
	}
	if string(w.msgs[0].Value) != "one" || string(w.msgs[1].Value) != "two" {
		t.Fatalf("raw values were re-encoded: %q %q", w.msgs[0].Value, w.msgs[1].Value)
	}
}

func TestPublishCountsErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newProducer(w, "snappy", prometheus.NewRegistry())

	before := testutil.ToFloat64(p.metrics.messages.WithLabelValues("failing", "snappy", "error"))
	if err := p.Publish(context.Background(), "failing", nil, "x"); err == nil {
		t.Fatalf("expected write error")
	}
	after := testutil.ToFloat64(p.metrics.messages.WithLabelValues("failing", "snappy", "error"))
	if after-before != 1 {
		t.Fatalf("expected error counter +1, got %v", after-before)
	}
}

func TestProducerConfigWriter(t *testing.T) {
	cfg := defaultProducerConfig()
	WithBrokers([]string{"k1:9092", "k2:9092"})(cfg)
	WithCompression("zstd")(cfg)
	WithHashByKey(false)(cfg)
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	w := cfg.writer()
	if w.Compression != kafka.Zstd {
		t.Fatalf("expected zstd, got %v", w.Compression)
	}
	if _, ok := w.Balancer.(*kafka.LeastBytes); !ok {
		t.Fatalf("expected least-bytes balancer without key hashing, got %T", w.Balancer)
	}
	if w.RequiredAcks != kafka.RequireAll {
		t.Fatalf("expected acks=all by default")
	}
}

func TestProducerConfigRejects(t *testing.T) {
	if _, err := NewProducer(); err == nil {
		t.Fatalf("expected error without brokers")
	}
	if _, err := NewProducer(WithBrokers([]string{"k:9092"}), WithCompression("brotli")); err == nil {
		t.Fatalf("expected error for unknown compression")
	}
}
