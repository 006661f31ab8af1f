package model

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"TradeSync/internal/domain/models"
	"TradeSync/pkg/logger"
)

type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemStore() *memStore { return &memStore{blobs: map[string][]byte{}} }

func (s *memStore) Load(_ context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[name]
	if !ok {
		return nil, models.ErrModelNotFound
	}
	return b, nil
}

func (s *memStore) Save(_ context.Context, name string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[name] = blob
	return nil
}

func (s *memStore) List(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.blobs))
	for name := range s.blobs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

var smallParams = ForestParams{Estimators: 3, MaxDepth: 3, Seed: 42}

func TestRegistryBootstrapsAndPersists(t *testing.T) {
	store := newMemStore()
	r := NewRegistry(store, logger.Nop(), WithForestParams(smallParams))

	if r.Active() != nil {
		t.Fatalf("empty registry must have no active model")
	}
	h, err := r.Load(context.Background(), "1.0.0")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if h.Metadata.Source != SourceBootstrap {
		t.Fatalf("expected bootstrap source, got %s", h.Metadata.Source)
	}
	if r.Active() != h {
		t.Fatalf("first loaded model should become active")
	}
	if _, err := store.Load(context.Background(), "1.0.0"); err != nil {
		t.Fatalf("bootstrap model was not persisted: %v", err)
	}

	r2 := NewRegistry(store, logger.Nop(), WithForestParams(smallParams))
	h2, err := r2.Load(context.Background(), "1.0.0")
	if err != nil {
		t.Fatalf("reload returned error: %v", err)
	}
	if len(h2.Classifier.(*Forest).Trees) != 3 {
		t.Fatalf("expected stored forest to be decoded")
	}
}

func TestRegistrySwitchUnknownVersion(t *testing.T) {
	r := NewRegistry(nil, logger.Nop(), WithForestParams(smallParams))
	if _, err := r.Load(context.Background(), "1.0.0"); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if r.Switch("9.9.9") {
		t.Fatalf("switch to unknown version must report false")
	}
	if got := r.Active().Version; got != "1.0.0" {
		t.Fatalf("active version changed to %s", got)
	}
}

func TestRegistrySwitchKeepsInFlightHandle(t *testing.T) {
	r := NewRegistry(nil, logger.Nop(), WithForestParams(smallParams))
	ctx := context.Background()
	old, _ := r.Load(ctx, "a")
	if _, err := r.Load(ctx, "b"); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	inFlight := r.Active()
	if !r.Switch("b") {
		t.Fatalf("expected switch to b")
	}
	if inFlight != old || inFlight.Version != "a" {
		t.Fatalf("handle captured before switch must stay on version a")
	}
	st := r.Status()
	if st.ActiveVersion != "b" || len(st.Versions) != 2 || !st.Bootstrap {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestRegistryRegisterTrained(t *testing.T) {
	store := newMemStore()
	r := NewRegistry(store, logger.Nop(), WithForestParams(smallParams))
	f, _ := Bootstrap(smallParams, 60, models.FeatureCount, models.NumClasses)

	h := r.Register(context.Background(), "trained-1", f, Metadata{Source: SourceTrained, Samples: 60})
	if r.Active() != h {
		t.Fatalf("first registered model should become active")
	}
	if r.Status().Bootstrap {
		t.Fatalf("trained model must not be reported as bootstrap")
	}
	if _, ok := store.blobs["trained-1"]; !ok {
		t.Fatalf("registered model was not persisted")
	}
}

func TestRegistryRestoresPersistedModelsAfterRestart(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	first := NewRegistry(store, logger.Nop(), WithForestParams(smallParams))
	if _, err := first.Load(ctx, "1.0.0"); err != nil {
		t.Fatalf("load default: %v", err)
	}
	f, _ := Bootstrap(smallParams, 60, models.FeatureCount, models.NumClasses)
	first.Register(ctx, "trained-old", f, Metadata{Source: SourceTrained, Samples: 60, TrainedAt: t0})
	first.Register(ctx, "trained-new", f, Metadata{Source: SourceTrained, Samples: 60, TrainedAt: t0.Add(time.Hour)})
	store.blobs["corrupt"] = []byte("{not json")

	second := NewRegistry(store, logger.Nop(), WithForestParams(smallParams))
	if _, err := second.Load(ctx, "1.0.0"); err != nil {
		t.Fatalf("load default after restart: %v", err)
	}
	n, err := second.Restore(ctx)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 restored models, got %d (%v)", n, second.Versions())
	}
	if got := second.Active().Version; got != "trained-new" {
		t.Fatalf("expected newest trained model to replace the bootstrap, got %s", got)
	}
	if !second.Switch("trained-old") {
		t.Fatalf("restored version should be switchable")
	}
	if again, _ := second.Restore(ctx); again != 0 {
		t.Fatalf("second restore should be a no-op, added %d", again)
	}
}

func TestRegistryRestoreKeepsTrainedActive(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	f, _ := Bootstrap(smallParams, 60, models.FeatureCount, models.NumClasses)

	seed := NewRegistry(store, logger.Nop(), WithForestParams(smallParams))
	seed.Register(ctx, "trained-a", f, Metadata{Source: SourceTrained, Samples: 60})
	seed.Register(ctx, "trained-b", f, Metadata{Source: SourceTrained, Samples: 60})

	r := NewRegistry(store, logger.Nop(), WithForestParams(smallParams))
	if _, err := r.Load(ctx, "trained-a"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := r.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := r.Active().Version; got != "trained-a" {
		t.Fatalf("restore must not replace a trained active model, got %s", got)
	}
}
