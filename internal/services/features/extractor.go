package features

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"TradeSync/internal/domain/models"
)

// MinHistory is the shortest series that yields a non-zero feature vector.
const MinHistory = 20

const (
	smaShort     = 10
	smaLong      = 20
	rsiPeriod    = 14
	volumeWindow = 10
	volWindow    = 10
	rsiEpsilon   = 1e-10
)

var defaultPeriods = map[string]int{
	"ema":        12,
	"momentum":   10,
	"sma":        10,
	"volume_sma": 10,
}

// Extract summarizes the latest point of series as a fixed-length vector.
//
// Column order: price, volume, SMA10, SMA20, RSI14, volume SMA10, pct change,
// volatility (sample std of the last 10 pct changes), then any requested
// indicators in set order. The row is zero-padded or truncated to
// models.FeatureCount. Series shorter than MinHistory give the zero vector.
func Extract(series models.HistoricalSeries, indicators models.IndicatorSet) models.FeatureVector {
	var out models.FeatureVector
	if len(series) < MinHistory {
		return out
	}

	prices := series.Prices()
	volumes := series.Volumes()
	returns := PctChanges(prices)

	row := []float64{
		prices[len(prices)-1],
		volumes[len(volumes)-1],
		tailMean(prices, smaShort),
		tailMean(prices, smaLong),
		RSI(prices, rsiPeriod),
		tailMean(volumes, volumeWindow),
		returns[len(returns)-1],
		tailStdDev(returns, volWindow),
	}
	for _, ind := range indicators {
		if v, ok := indicator(ind, prices, volumes); ok {
			row = append(row, v)
		}
	}

	for i := 0; i < len(out) && i < len(row); i++ {
		out[i] = finite(row[i])
	}
	return out
}

func indicator(ind models.Indicator, prices, volumes []float64) (float64, bool) {
	def, known := defaultPeriods[ind.Name]
	if !known {
		return 0, false
	}
	period := ind.Period
	if period <= 0 {
		period = def
	}

	switch ind.Name {
	case "ema":
		return EMA(prices, period), true
	case "momentum":
		return Momentum(prices, period), true
	case "sma":
		return tailMean(prices, period), true
	case "volume_sma":
		return tailMean(volumes, period), true
	}
	return 0, false
}

// PctChanges returns r[i] = (p[i]-p[i-1])/p[i-1] with r[0] = 0, so the result
// has the same length as prices. A zero previous price yields 0.
func PctChanges(prices []float64) []float64 {
	out := make([]float64, len(prices))
	for i := 1; i < len(prices); i++ {
		if prev := prices[i-1]; prev != 0 {
			out[i] = (prices[i] - prev) / prev
		}
	}
	return out
}

// RSI is the relative strength index over the last period price changes,
// using simple averages of gains and losses. A window with no movement is 50.
func RSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return 0
	}
	var gain, loss float64
	for i := len(prices) - period; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	if avgGain == 0 && avgLoss == 0 {
		return 50
	}
	rsi := 100 - 100/(1+avgGain/(avgLoss+rsiEpsilon))
	return math.Max(0, math.Min(100, rsi))
}

// EMA is the recursive exponential moving average with alpha = 2/(span+1),
// seeded with the first price.
func EMA(prices []float64, span int) float64 {
	if len(prices) == 0 || span <= 0 {
		return 0
	}
	alpha := 2 / (float64(span) + 1)
	ema := prices[0]
	for _, p := range prices[1:] {
		ema = alpha*p + (1-alpha)*ema
	}
	return ema
}

// Momentum is p[t] - p[t-n], or 0 when the series is too short.
func Momentum(prices []float64, n int) float64 {
	if n <= 0 || len(prices) <= n {
		return 0
	}
	return prices[len(prices)-1] - prices[len(prices)-1-n]
}

// MovingAverage is the mean of the last min(window, len(xs)) values.
func MovingAverage(xs []float64, window int) float64 {
	if len(xs) == 0 || window <= 0 {
		return 0
	}
	if window > len(xs) {
		window = len(xs)
	}
	return stat.Mean(xs[len(xs)-window:], nil)
}

func tailMean(xs []float64, window int) float64 {
	if window <= 0 || len(xs) < window {
		return 0
	}
	return stat.Mean(xs[len(xs)-window:], nil)
}

func tailStdDev(xs []float64, window int) float64 {
	if window <= 1 || len(xs) < window {
		return 0
	}
	return stat.StdDev(xs[len(xs)-window:], nil)
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
