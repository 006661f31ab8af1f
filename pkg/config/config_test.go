package config

import (
	"testing"
	"time"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\nsignals:\n  cache_ttl: 5s\n"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if c.Signals.CacheTTL != 5*time.Second {
		t.Fatalf("expected explicit ttl 5s, got %v", c.Signals.CacheTTL)
	}
	if c.Models.Estimators != 100 || c.Models.MaxDepth != 10 || c.Models.Seed != 42 {
		t.Fatalf("unexpected model defaults: %+v", c.Models)
	}
	if c.Training.DefaultEpisodes != 100 {
		t.Fatalf("expected 100 default episodes, got %d", c.Training.DefaultEpisodes)
	}
	if c.UsesRedis() {
		t.Fatalf("default config should not need redis")
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	if _, err := Parse([]byte("signals:\n  cache_backend: memcached\n")); err == nil {
		t.Fatalf("expected error for unknown cache backend")
	}
	if _, err := Parse([]byte("models:\n  store: clickhouse\n")); err == nil {
		t.Fatalf("expected error for clickhouse store without clickhouse enabled")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}
	env := map[string]string{
		"MODEL_DIR":     "/var/models",
		"KAFKA_BROKERS": "k1:9092,k2:9092",
	}
	c.applyEnv(func(k string) string { return env[k] })

	if c.Models.Dir != "/var/models" {
		t.Fatalf("expected model dir override, got %q", c.Models.Dir)
	}
	if !c.Kafka.Enabled || len(c.Kafka.Brokers) != 2 {
		t.Fatalf("expected kafka enabled with 2 brokers, got %+v", c.Kafka.Brokers)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestValidateRequiresSharedJobStoreForRedisQueue(t *testing.T) {
	if _, err := Parse([]byte("training:\n  queue: redis\n  job_store: memory\n")); err == nil {
		t.Fatalf("expected error for redis queue with in-memory job store")
	}
	c, err := Parse([]byte("training:\n  queue: redis\n  job_store: redis\n"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if !c.UsesRedis() {
		t.Fatalf("redis queue should need redis")
	}
	if _, err := Parse([]byte("training:\n  queue: memory\n  job_store: redis\n")); err != nil {
		t.Fatalf("in-memory queue with redis job store should be valid: %v", err)
	}
}
