package model

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"TradeSync/internal/domain/models"
	"TradeSync/internal/domain/repository"
	"TradeSync/internal/domain/service"
	"TradeSync/pkg/logger"
)

const (
	bootstrapSamples = 1000
)

// Handle is an immutable loaded model. Callers that obtained a handle keep
// using it even if the registry switches to another version meanwhile.
type Handle struct {
	Version    string
	Classifier service.Classifier
	Metadata   Metadata
}

// Registry holds named model versions and the currently active one.
// Loads, registrations and switches are serialized; Active is lock-free.
type Registry struct {
	mu       sync.Mutex
	versions map[string]*Handle
	active   atomic.Pointer[Handle]

	store  repository.ModelStore
	params ForestParams
	log    *logger.Logger
	now    func() time.Time
}

type RegistryOption func(*Registry)

func WithForestParams(p ForestParams) RegistryOption {
	return func(r *Registry) { r.params = p }
}

func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry. store may be nil, in which case
// models live only in memory.
func NewRegistry(store repository.ModelStore, log *logger.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		versions: make(map[string]*Handle),
		store:    store,
		params:   DefaultForestParams(),
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load makes version available. A persisted artifact is decoded when
// present; otherwise a bootstrap forest is synthesized and persisted. The
// first model loaded becomes active.
func (r *Registry) Load(ctx context.Context, version string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.versions[version]; ok {
		return h, nil
	}

	h, err := r.loadStored(ctx, version)
	if errors.Is(err, models.ErrModelNotFound) {
		h, err = r.bootstrap(ctx, version)
	}
	if err != nil {
		return nil, err
	}

	r.versions[version] = h
	if r.active.Load() == nil {
		r.active.Store(h)
	}
	r.log.Info("model loaded",
		logger.String("version", version),
		logger.String("source", h.Metadata.Source),
		logger.Int("estimators", h.Metadata.Estimators))
	return h, nil
}

func (r *Registry) loadStored(ctx context.Context, version string) (*Handle, error) {
	if r.store == nil {
		return nil, models.ErrModelNotFound
	}
	blob, err := r.store.Load(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", version, err)
	}
	forest, meta, err := DecodeArtifact(blob)
	if err != nil {
		return nil, err
	}
	return &Handle{Version: version, Classifier: forest, Metadata: meta}, nil
}

func (r *Registry) bootstrap(ctx context.Context, version string) (*Handle, error) {
	start := r.now()
	forest, err := Bootstrap(r.params, bootstrapSamples, models.FeatureCount, models.NumClasses)
	if err != nil {
		return nil, fmt.Errorf("bootstrap model %s: %w", version, err)
	}
	meta := Metadata{
		Family:     FamilyRandomForest,
		Source:     SourceBootstrap,
		TrainedAt:  r.now(),
		Estimators: r.params.Estimators,
		MaxDepth:   r.params.MaxDepth,
		Samples:    bootstrapSamples,
	}
	r.log.Warn("no stored artifact, synthesized bootstrap model",
		logger.String("version", version),
		logger.Duration("fit_ms", r.now().Sub(start)))
	r.persist(ctx, version, forest, meta)
	return &Handle{Version: version, Classifier: forest, Metadata: meta}, nil
}

// Restore loads every persisted artifact that is not registered yet and
// returns how many were added. Artifacts that fail to decode are logged and
// skipped. When the active model is a bootstrap, the most recently trained
// restored model takes its place.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}
	names, err := r.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore models: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		restored int
		newest   *Handle
	)
	for _, name := range names {
		if _, ok := r.versions[name]; ok {
			continue
		}
		h, err := r.loadStored(ctx, name)
		if err != nil {
			r.log.Error("skipping unreadable model artifact", logger.String("version", name), logger.Error(err))
			continue
		}
		r.versions[name] = h
		restored++
		if h.Metadata.Source != SourceBootstrap &&
			(newest == nil || h.Metadata.TrainedAt.After(newest.Metadata.TrainedAt)) {
			newest = h
		}
	}

	if cur := r.active.Load(); newest != nil && (cur == nil || cur.Metadata.Source == SourceBootstrap) {
		r.active.Store(newest)
		r.log.Info("active model restored", logger.String("version", newest.Version))
	}
	if restored > 0 {
		r.log.Info("models restored", logger.Int("count", restored))
	}
	return restored, nil
}

// persist is best effort: a model that could not be saved is still served.
func (r *Registry) persist(ctx context.Context, version string, f *Forest, meta Metadata) {
	if r.store == nil {
		return
	}
	blob, err := EncodeArtifact(version, f, meta)
	if err == nil {
		err = r.store.Save(ctx, version, blob)
	}
	if err != nil {
		r.log.Error("failed to persist model", logger.String("version", version), logger.Error(err))
	}
}

// Register adds (or replaces) a trained model under version.
func (r *Registry) Register(ctx context.Context, version string, f *Forest, meta Metadata) *Handle {
	meta.Family = FamilyRandomForest
	if meta.TrainedAt.IsZero() {
		meta.TrainedAt = r.now()
	}
	h := &Handle{Version: version, Classifier: f, Metadata: meta}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.persist(ctx, version, f, meta)
	r.versions[version] = h
	if cur := r.active.Load(); cur == nil || cur.Version == version {
		r.active.Store(h)
	}
	r.log.Info("model registered", logger.String("version", version), logger.Int("samples", meta.Samples))
	return h
}

// Switch activates a previously loaded version. Unknown versions are logged
// and leave the active model untouched.
func (r *Registry) Switch(version string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.versions[version]
	if !ok {
		r.log.Warn("model switch to unknown version ignored", logger.String("version", version))
		return false
	}
	r.active.Store(h)
	r.log.Info("active model switched", logger.String("version", version))
	return true
}

// Active returns the current model or nil when nothing is loaded.
func (r *Registry) Active() *Handle {
	return r.active.Load()
}

func (r *Registry) Versions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.versions))
	for v := range r.versions {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Status() models.ModelStatus {
	st := models.ModelStatus{Versions: r.Versions()}
	if h := r.Active(); h != nil {
		st.ModelsLoaded = true
		st.ActiveVersion = h.Version
		st.Source = h.Metadata.Source
		st.Bootstrap = h.Metadata.Source == SourceBootstrap
		st.TrainedAt = h.Metadata.TrainedAt.Unix()
	}
	return st
}
