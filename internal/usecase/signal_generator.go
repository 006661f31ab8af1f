package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"TradeSync/internal/domain/models"
	domrepo "TradeSync/internal/domain/repository"
	domsvc "TradeSync/internal/domain/service"
	"TradeSync/internal/service/cache"
	"TradeSync/internal/services/features"
	"TradeSync/internal/services/model"
	"TradeSync/internal/services/strategy"
	"TradeSync/pkg/logger"
)

// ActiveModel exposes the model currently selected for inference.
type ActiveModel interface {
	Active() *model.Handle
}

// SignalCache memoizes signals by input fingerprint.
type SignalCache interface {
	Get(ctx context.Context, fp string) (models.Signal, bool)
	Put(ctx context.Context, fp string, sig models.Signal)
}

type SignalRequest struct {
	Symbol     string
	Series     models.HistoricalSeries
	Indicators models.IndicatorSet
}

// SignalGenerator turns a price series into a trading signal. It never
// fails: every problem on the model path degrades to the rule-based strategy.
type SignalGenerator struct {
	models    ActiveModel
	cache     SignalCache
	explainer domsvc.Explainer
	provider  domrepo.SeriesProvider
	events    domrepo.EventPublisher
	metrics   domrepo.Metrics
	log       *logger.Logger
	now       func() time.Time
}

func NewSignalGenerator(
	active ActiveModel,
	signalCache SignalCache,
	explainer domsvc.Explainer,
	provider domrepo.SeriesProvider,
	events domrepo.EventPublisher,
	metrics domrepo.Metrics,
	log *logger.Logger,
) *SignalGenerator {
	return &SignalGenerator{
		models:    active,
		cache:     signalCache,
		explainer: explainer,
		provider:  provider,
		events:    events,
		metrics:   metrics,
		log:       log,
		now:       time.Now,
	}
}

type outcomeKind int

const (
	outcomeOK outcomeKind = iota
	outcomeDegraded
	outcomeFailed
)

// outcome is the tagged result of one pipeline stage.
type outcome struct {
	kind   outcomeKind
	reason string
	err    error
}

var stageOK = outcome{kind: outcomeOK}

func failed(reason string, err error) outcome {
	return outcome{kind: outcomeFailed, reason: reason, err: err}
}

func degraded(reason string, err error) outcome {
	return outcome{kind: outcomeDegraded, reason: reason, err: err}
}

// generation carries the state of one request through the stages.
type generation struct {
	req      SignalRequest
	handle   *model.Handle
	features models.FeatureVector
	proba    []float64
	class    int
	signal   models.Signal
}

// Generate returns the cached signal for identical input or computes a new
// one and caches it.
func (g *SignalGenerator) Generate(ctx context.Context, req SignalRequest) models.Signal {
	start := g.now()
	defer func() { g.metrics.RecordLatency("generate_signal", g.now().Sub(start).Seconds()) }()

	fp := cache.Fingerprint(req.Series, req.Indicators)
	if sig, hit := g.cache.Get(ctx, fp); hit {
		g.metrics.RecordCacheLookup(true)
		g.metrics.RecordSignal(string(sig.Label), models.SourceCache)
		return sig
	}
	g.metrics.RecordCacheLookup(false)

	run := &generation{req: req}
	source := models.SourceModel
	if len(req.Series) < strategy.MinPoints {
		run.signal = strategy.InsufficientData()
		source = models.SourceRuleBased
	} else if out := g.runModel(run); out.kind == outcomeFailed {
		g.metrics.RecordFallback(out.reason)
		g.log.Warn("model path unavailable, using rule-based signal",
			logger.String("symbol", req.Symbol),
			logger.String("reason", out.reason),
			logger.Error(out.err))
		run.signal = strategy.MovingAverageCrossover(req.Series)
		source = models.SourceRuleBased
	}

	g.cache.Put(ctx, fp, run.signal)
	g.metrics.RecordSignal(string(run.signal.Label), source)
	g.publish(ctx, req.Symbol, run.signal)
	return run.signal
}

// GenerateForSymbol loads the latest n points from the series provider.
func (g *SignalGenerator) GenerateForSymbol(ctx context.Context, symbol string, n int, tf domrepo.Timeframe, indicators models.IndicatorSet) (models.Signal, error) {
	if g.provider == nil {
		return models.Signal{}, models.ErrSeriesUnavailable
	}
	series, err := g.provider.LatestSeries(ctx, symbol, n, tf)
	if err != nil {
		return models.Signal{}, fmt.Errorf("load series %s: %w", symbol, err)
	}
	return g.Generate(ctx, SignalRequest{Symbol: symbol, Series: series, Indicators: indicators}), nil
}

func (g *SignalGenerator) runModel(run *generation) outcome {
	stages := []func(*generation) outcome{
		g.selectModel,
		g.extract,
		g.predict,
		g.explain,
	}
	for _, stage := range stages {
		out := stage(run)
		switch out.kind {
		case outcomeFailed:
			return out
		case outcomeDegraded:
			g.log.Debug("signal stage degraded", logger.String("reason", out.reason), logger.Error(out.err))
		}
	}
	return stageOK
}

func (g *SignalGenerator) selectModel(run *generation) outcome {
	run.handle = g.models.Active()
	if run.handle == nil {
		return failed("model_unavailable", models.ErrModelUnavailable)
	}
	// A bootstrap forest is fitted on random labels and only keeps the
	// pipeline warm until a trained model is activated.
	if run.handle.Metadata.Source == model.SourceBootstrap {
		return failed("bootstrap_model", fmt.Errorf("%w: %s is a bootstrap model", models.ErrModelUnavailable, run.handle.Version))
	}
	return stageOK
}

func (g *SignalGenerator) extract(run *generation) outcome {
	run.features = features.Extract(run.req.Series, run.req.Indicators)
	if run.features.IsZero() {
		return failed("insufficient_data", fmt.Errorf("%w: %d points", models.ErrInsufficientData, len(run.req.Series)))
	}
	return stageOK
}

func (g *SignalGenerator) predict(run *generation) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = failed("prediction_failure", fmt.Errorf("%w: panic: %v", models.ErrPredictionFailure, r))
		}
	}()

	proba, err := run.handle.Classifier.PredictProba(run.features.Slice())
	if err != nil {
		return failed("prediction_failure", fmt.Errorf("%w: %v", models.ErrPredictionFailure, err))
	}
	if len(proba) != models.NumClasses {
		return failed("prediction_failure", fmt.Errorf("%w: %d class scores", models.ErrPredictionFailure, len(proba)))
	}
	best := 0
	for i, p := range proba {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return failed("prediction_failure", fmt.Errorf("%w: probability %v", models.ErrPredictionFailure, p))
		}
		if p > proba[best] {
			best = i
		}
	}

	label, _ := models.LabelForClass(best)
	run.proba = proba
	run.class = best
	run.signal = models.Signal{
		Label:        label,
		Confidence:   proba[best],
		Reasoning:    strategy.ModelReasoning(label, proba[best], run.req.Series),
		ModelVersion: run.handle.Version,
	}
	return stageOK
}

func (g *SignalGenerator) explain(run *generation) outcome {
	if g.explainer == nil {
		return degraded("explainer_disabled", nil)
	}
	phi, supported := g.explainer.Explain(run.handle.Classifier, run.features.Slice(), run.class)
	if !supported || len(phi) != models.FeatureCount {
		return degraded("explanation_unavailable", nil)
	}
	run.signal.FeatureImportance = phi
	return stageOK
}

func (g *SignalGenerator) publish(ctx context.Context, symbol string, sig models.Signal) {
	if g.events == nil {
		return
	}
	if err := g.events.PublishSignal(ctx, symbol, sig); err != nil {
		g.log.Warn("failed to publish signal event", logger.String("symbol", symbol), logger.Error(err))
	}
}
