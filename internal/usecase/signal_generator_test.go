package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"TradeSync/internal/domain/models"
	"TradeSync/internal/service/cache"
	"TradeSync/internal/services/explain"
	"TradeSync/internal/services/model"
	pkgcache "TradeSync/pkg/cache"
	"TradeSync/pkg/logger"
	"TradeSync/pkg/metrics"
)

type countingClassifier struct {
	calls atomic.Int32
	proba []float64
	err   error
	panic bool
}

func (c *countingClassifier) PredictProba(x []float64) ([]float64, error) {
	c.calls.Add(1)
	if c.panic {
		panic("boom")
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.proba, nil
}

func (c *countingClassifier) NumFeatures() int { return models.FeatureCount }

type staticModel struct{ h *model.Handle }

func (s staticModel) Active() *model.Handle { return s.h }

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func ascending(n int) models.HistoricalSeries {
	out := make(models.HistoricalSeries, n)
	for i := range out {
		out[i] = models.MarketDataPoint{Price: 100 + float64(i), Volume: 1000 + float64(i*10)}
	}
	return out
}

func newGenerator(t *testing.T, clf *countingClassifier, clk *clock) *SignalGenerator {
	t.Helper()
	var active staticModel
	if clf != nil {
		active.h = &model.Handle{Version: "test-1", Classifier: clf}
	}
	store := pkgcache.NewMemoryCache(pkgcache.WithMemoryClock(clk.Now), pkgcache.WithMemoryCleanup(0))
	t.Cleanup(func() { _ = store.Close() })
	sc := cache.NewSignalCache(store, logger.Nop(), cache.WithClock(clk.Now), cache.WithTTL(time.Minute))
	g := NewSignalGenerator(active, sc, explain.NewTreeExplainer(), nil, nil, metrics.Nop{}, logger.Nop())
	g.now = clk.Now
	return g
}

func TestGenerateUsesModelAndCaches(t *testing.T) {
	clf := &countingClassifier{proba: []float64{0.1, 0.2, 0.7}}
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	g := newGenerator(t, clf, clk)
	req := SignalRequest{Symbol: "AAPL", Series: ascending(30)}

	first := g.Generate(context.Background(), req)
	if first.Label != models.LabelBuy || first.Confidence != 0.7 {
		t.Fatalf("unexpected model signal: %+v", first)
	}
	if first.ModelVersion != "test-1" {
		t.Fatalf("expected model version test-1, got %s", first.ModelVersion)
	}
	if first.FeatureImportance != nil {
		t.Fatalf("unsupported classifier should not carry attributions")
	}

	second := g.Generate(context.Background(), req)
	if clf.calls.Load() != 1 {
		t.Fatalf("expected cached second call, classifier ran %d times", clf.calls.Load())
	}
	if second.Label != first.Label || second.Confidence != first.Confidence || second.Reasoning != first.Reasoning {
		t.Fatalf("cached signal differs: %+v vs %+v", second, first)
	}
}

func TestGenerateRecomputesAfterTTL(t *testing.T) {
	clf := &countingClassifier{proba: []float64{0.6, 0.3, 0.1}}
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	g := newGenerator(t, clf, clk)
	req := SignalRequest{Symbol: "AAPL", Series: ascending(30)}

	g.Generate(context.Background(), req)
	clk.t = clk.t.Add(61 * time.Second)
	sig := g.Generate(context.Background(), req)
	if clf.calls.Load() != 2 {
		t.Fatalf("expected recompute after ttl, classifier ran %d times", clf.calls.Load())
	}
	if sig.Label != models.LabelSell {
		t.Fatalf("expected SELL, got %s", sig.Label)
	}
}

func TestGenerateWithoutModelFallsBack(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	g := newGenerator(t, nil, clk)

	sig := g.Generate(context.Background(), SignalRequest{Symbol: "AAPL", Series: ascending(25)})
	if sig.Label != models.LabelBuy {
		t.Fatalf("expected BUY from crossover, got %+v", sig)
	}
	if sig.ModelVersion != models.RuleBasedVersion {
		t.Fatalf("expected rule-based version, got %s", sig.ModelVersion)
	}
	if sig.Confidence <= 0 || sig.Confidence > 0.8 {
		t.Fatalf("confidence out of range: %v", sig.Confidence)
	}
}

func TestGenerateShortSeries(t *testing.T) {
	clf := &countingClassifier{proba: []float64{0.1, 0.2, 0.7}}
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	g := newGenerator(t, clf, clk)

	sig := g.Generate(context.Background(), SignalRequest{Symbol: "AAPL", Series: ascending(5)})
	if sig.Label != models.LabelHold || sig.Confidence != 0.5 {
		t.Fatalf("expected HOLD 0.5, got %+v", sig)
	}
	if sig.Reasoning != "Insufficient data for analysis" {
		t.Fatalf("unexpected reasoning: %q", sig.Reasoning)
	}
	if clf.calls.Load() != 0 {
		t.Fatalf("classifier should not run on short series")
	}
}

func TestGenerateSkipsModelBelowFeatureHistory(t *testing.T) {
	clf := &countingClassifier{proba: []float64{0.1, 0.2, 0.7}}
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	g := newGenerator(t, clf, clk)

	sig := g.Generate(context.Background(), SignalRequest{Symbol: "AAPL", Series: ascending(15)})
	if clf.calls.Load() != 0 {
		t.Fatalf("classifier should not see a zero feature vector")
	}
	if sig.ModelVersion != models.RuleBasedVersion {
		t.Fatalf("expected rule-based signal, got %+v", sig)
	}
}

func TestGenerateRecoversClassifierFailures(t *testing.T) {
	cases := map[string]*countingClassifier{
		"panic":     {panic: true},
		"error":     {err: errors.New("bad input")},
		"bad shape": {proba: []float64{1}},
		"bad value": {proba: []float64{-0.5, 0.5, 1.0}},
	}
	for name, clf := range cases {
		t.Run(name, func(t *testing.T) {
			clk := &clock{t: time.Unix(1_700_000_000, 0)}
			g := newGenerator(t, clf, clk)
			sig := g.Generate(context.Background(), SignalRequest{Symbol: "AAPL", Series: ascending(25)})
			if sig.ModelVersion != models.RuleBasedVersion {
				t.Fatalf("expected fallback, got %+v", sig)
			}
			if sig.Label != models.LabelBuy {
				t.Fatalf("expected crossover BUY, got %s", sig.Label)
			}
		})
	}
}

func TestGenerateAttachesTreeAttributions(t *testing.T) {
	params := model.DefaultForestParams()
	params.Estimators = 5
	params.MaxDepth = 4
	forest, err := model.Bootstrap(params, 200, models.FeatureCount, models.NumClasses)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	g := newGenerator(t, nil, clk)
	g.models = staticModel{h: &model.Handle{Version: "forest-1", Classifier: forest}}

	sig := g.Generate(context.Background(), SignalRequest{Symbol: "MSFT", Series: ascending(40)})
	if sig.ModelVersion != "forest-1" {
		t.Fatalf("expected forest signal, got %+v", sig)
	}
	if len(sig.FeatureImportance) != models.FeatureCount {
		t.Fatalf("expected %d attributions, got %d", models.FeatureCount, len(sig.FeatureImportance))
	}
}

func TestGenerateForSymbolWithoutProvider(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	g := newGenerator(t, nil, clk)
	if _, err := g.GenerateForSymbol(context.Background(), "AAPL", 100, "1m", nil); !errors.Is(err, models.ErrSeriesUnavailable) {
		t.Fatalf("expected ErrSeriesUnavailable, got %v", err)
	}
}

func TestBootstrapModelIsNotASignalSource(t *testing.T) {
	params := model.DefaultForestParams()
	params.Estimators = 3
	params.MaxDepth = 3
	reg := model.NewRegistry(nil, logger.Nop(), model.WithForestParams(params))
	if _, err := reg.Load(context.Background(), "1.0.0"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reg.Status().Bootstrap {
		t.Fatalf("expected a bootstrap model to be active")
	}

	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	g := newGenerator(t, nil, clk)
	g.models = reg

	sig := g.Generate(context.Background(), SignalRequest{Symbol: "AAPL", Series: ascending(25)})
	if sig.ModelVersion != models.RuleBasedVersion || sig.Label != models.LabelBuy {
		t.Fatalf("expected rule-based BUY while only the bootstrap model is loaded, got %+v", sig)
	}

	forest, err := model.Bootstrap(params, 100, models.FeatureCount, models.NumClasses)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	reg.Register(context.Background(), "trained-1", forest, model.Metadata{Source: model.SourceTrained})
	if !reg.Switch("trained-1") {
		t.Fatalf("switch to trained model failed")
	}
	clk.t = clk.t.Add(time.Hour)
	sig = g.Generate(context.Background(), SignalRequest{Symbol: "AAPL", Series: ascending(25)})
	if sig.ModelVersion != "trained-1" {
		t.Fatalf("expected trained model to serve signals, got %+v", sig)
	}
}
