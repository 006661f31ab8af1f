package features

import (
	"math"
	"testing"

	"TradeSync/internal/domain/models"
)

func ramp(n int, start, step float64) models.HistoricalSeries {
	s := make(models.HistoricalSeries, n)
	for i := range s {
		s[i] = models.MarketDataPoint{Symbol: "AAPL", Price: start + float64(i)*step, Volume: 1000 + float64(i), Timestamp: int64(i)}
	}
	return s
}

func TestExtractShortSeriesIsZero(t *testing.T) {
	for _, n := range []int{0, 1, 10, 19} {
		if v := Extract(ramp(n, 100, 1), nil); !v.IsZero() {
			t.Fatalf("n=%d: expected zero vector, got %v", n, v)
		}
	}
}

func TestExtractColumns(t *testing.T) {
	s := ramp(25, 100, 1)
	v := Extract(s, nil)

	if v[0] != 124 {
		t.Fatalf("price: got %v", v[0])
	}
	if v[1] != 1024 {
		t.Fatalf("volume: got %v", v[1])
	}
	if v[2] != 119.5 {
		t.Fatalf("sma10: got %v", v[2])
	}
	if v[3] != 114.5 {
		t.Fatalf("sma20: got %v", v[3])
	}
	if v[4] < 99.99 || v[4] > 100 {
		t.Fatalf("rsi of a strictly rising series should be ~100, got %v", v[4])
	}
	if math.Abs(v[6]-1.0/123) > 1e-12 {
		t.Fatalf("pct change: got %v", v[6])
	}
	if v[7] <= 0 {
		t.Fatalf("volatility should be positive for a ramp, got %v", v[7])
	}
	if v[8] != 0 || v[9] != 0 {
		t.Fatalf("expected zero padding, got %v %v", v[8], v[9])
	}
}

func TestExtractFlatSeries(t *testing.T) {
	s := ramp(30, 50, 0)
	v := Extract(s, nil)
	if v[4] != 50 {
		t.Fatalf("rsi of a flat series should be neutral, got %v", v[4])
	}
	if v[6] != 0 || v[7] != 0 {
		t.Fatalf("flat series should have zero change and volatility, got %v %v", v[6], v[7])
	}
}

func TestExtractIndicatorsAppendInOrder(t *testing.T) {
	s := ramp(30, 100, 2)
	set := models.NewIndicatorSet(map[string]int{"momentum": 5, "ema": 3, "unknown": 4})
	v := Extract(s, set)

	if want := EMA(s.Prices(), 3); v[8] != want {
		t.Fatalf("ema column: got %v want %v", v[8], want)
	}
	if v[9] != 10 {
		t.Fatalf("momentum(5) of a step-2 ramp should be 10, got %v", v[9])
	}
}

func TestExtractTruncatesExtraIndicators(t *testing.T) {
	s := ramp(30, 100, 1)
	set := models.NewIndicatorSet(map[string]int{"ema": 0, "momentum": 0, "sma": 5, "volume_sma": 5})
	v := Extract(s, set)
	if len(v) != models.FeatureCount {
		t.Fatalf("vector length %d", len(v))
	}
}

func TestExtractSanitizesNonFinite(t *testing.T) {
	s := ramp(25, 100, 1)
	s[len(s)-1].Volume = math.Inf(1)
	s[len(s)-2].Price = math.NaN()
	v := Extract(s, nil)
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			t.Fatalf("component %d is not finite: %v", i, x)
		}
	}
}

func TestRSIBounds(t *testing.T) {
	down := ramp(20, 200, -3).Prices()
	if r := RSI(down, 14); r != 0 {
		t.Fatalf("strictly falling series should have rsi 0, got %v", r)
	}
	if r := RSI([]float64{1, 2}, 14); r != 0 {
		t.Fatalf("too short series should give 0, got %v", r)
	}
}

func TestMovingAverageClampsWindow(t *testing.T) {
	if got := MovingAverage([]float64{1, 2, 3}, 10); got != 2 {
		t.Fatalf("expected 2, got %v", got)
	}
}
