package strategy

import (
	"strings"
	"testing"

	"TradeSync/internal/domain/models"
)

func prices(ps ...float64) models.HistoricalSeries {
	s := make(models.HistoricalSeries, len(ps))
	for i, p := range ps {
		s[i] = models.MarketDataPoint{Price: p, Volume: 1, Timestamp: int64(i)}
	}
	return s
}

func repeat(p float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = p
	}
	return out
}

func TestCrossoverBoundaries(t *testing.T) {
	flat := MovingAverageCrossover(prices(repeat(100, 20)...))
	if flat.Label != models.LabelHold || flat.Confidence != 0.6 {
		t.Fatalf("ratio 1.00 should HOLD with 0.6, got %+v", flat)
	}

	// long MA = 100, short MA = 102
	up := MovingAverageCrossover(prices(append(repeat(98, 10), repeat(102, 10)...)...))
	if up.Label != models.LabelBuy || up.Confidence != 0.8 {
		t.Fatalf("ratio 1.02 should BUY capped at 0.8, got %+v", up)
	}

	down := MovingAverageCrossover(prices(append(repeat(102, 10), repeat(98, 10)...)...))
	if down.Label != models.LabelSell {
		t.Fatalf("ratio 0.98 should SELL, got %+v", down)
	}
}

func TestCrossoverAscendingSeries(t *testing.T) {
	ps := make([]float64, 25)
	for i := range ps {
		ps[i] = 100 + float64(i)
	}
	sig := MovingAverageCrossover(prices(ps...))
	if sig.Label != models.LabelBuy || sig.Confidence > 0.8 || sig.Confidence <= 0 {
		t.Fatalf("ascending series should BUY with confidence in (0, 0.8], got %+v", sig)
	}
	if sig.ModelVersion != models.RuleBasedVersion || !strings.Contains(sig.Reasoning, "MA10") {
		t.Fatalf("unexpected signal metadata: %+v", sig)
	}
}

func TestCrossoverSmallGapConfidence(t *testing.T) {
	// long MA = 100, short MA = 101.2 -> gap 1.2% -> confidence 0.6
	sig := MovingAverageCrossover(prices(append(repeat(98.8, 10), repeat(101.2, 10)...)...))
	if sig.Label != models.LabelBuy || sig.Confidence < 0.59 || sig.Confidence > 0.61 {
		t.Fatalf("expected BUY near 0.6, got %+v", sig)
	}
}

func TestInsufficientData(t *testing.T) {
	sig := MovingAverageCrossover(prices(repeat(100, 9)...))
	if sig.Label != models.LabelHold || sig.Confidence != 0.5 || sig.Reasoning != "Insufficient data for analysis" {
		t.Fatalf("unexpected signal: %+v", sig)
	}
}

func TestModelReasoning(t *testing.T) {
	r := ModelReasoning(models.LabelBuy, 0.4567, prices(repeat(100, 5)...))
	if r != "AI model recommends BUY with 45.7% confidence. Based on pattern recognition." {
		t.Fatalf("unexpected reasoning: %q", r)
	}
	r = ModelReasoning(models.LabelSell, 0.5, prices(repeat(100, 20)...))
	if !strings.Contains(r, "20-period price change: +0.00%") || !strings.Contains(r, "Recent volatility: 0.00%") {
		t.Fatalf("unexpected reasoning: %q", r)
	}
}
