package strategy

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"TradeSync/internal/domain/models"
	"TradeSync/internal/services/features"
)

// MinPoints is the shortest series any strategy will judge.
const MinPoints = 10

const (
	shortWindow  = 10
	longWindow   = 20
	band         = 0.01
	gapScale     = 50
	maxTrendConf = 0.8
	sidewaysConf = 0.6
	unknownConf  = 0.5
)

// InsufficientData is returned for series shorter than MinPoints.
func InsufficientData() models.Signal {
	return models.Signal{
		Label:        models.LabelHold,
		Confidence:   unknownConf,
		Reasoning:    "Insufficient data for analysis",
		ModelVersion: models.RuleBasedVersion,
	}
}

// MovingAverageCrossover compares a short and a long moving average of the
// prices. A gap beyond 1% of the long average is a trend; the confidence
// grows with the gap and is capped at 0.8.
func MovingAverageCrossover(series models.HistoricalSeries) models.Signal {
	if len(series) < MinPoints {
		return InsufficientData()
	}
	prices := series.Prices()
	sw := min(shortWindow, len(prices))
	lw := min(longWindow, len(prices))
	short := features.MovingAverage(prices, sw)
	long := features.MovingAverage(prices, lw)

	sig := models.Signal{ModelVersion: models.RuleBasedVersion}
	switch {
	case long > 0 && short > long*(1+band):
		sig.Label = models.LabelBuy
		sig.Confidence = math.Min(maxTrendConf, (short-long)/long*gapScale)
		sig.Reasoning = fmt.Sprintf("Short-term trend bullish (MA%d: %.2f > MA%d: %.2f)", sw, short, lw, long)
	case long > 0 && short < long*(1-band):
		sig.Label = models.LabelSell
		sig.Confidence = math.Min(maxTrendConf, (long-short)/long*gapScale)
		sig.Reasoning = fmt.Sprintf("Short-term trend bearish (MA%d: %.2f < MA%d: %.2f)", sw, short, lw, long)
	default:
		sig.Label = models.LabelHold
		sig.Confidence = sidewaysConf
		sig.Reasoning = "Market trending sideways - waiting for clearer signal"
	}
	if math.IsNaN(sig.Confidence) {
		sig.Label, sig.Confidence = models.LabelHold, sidewaysConf
	}
	return sig
}

// ModelReasoning explains a model decision with a few descriptive statistics
// of the input prices.
func ModelReasoning(label models.SignalLabel, confidence float64, series models.HistoricalSeries) string {
	prices := series.Prices()
	var reasons []string
	if n := len(prices); n >= longWindow && prices[n-longWindow] != 0 {
		change := (prices[n-1] - prices[n-longWindow]) / prices[n-longWindow] * 100
		reasons = append(reasons, fmt.Sprintf("20-period price change: %+.2f%%", change))
	}
	if len(prices) >= shortWindow {
		returns := features.PctChanges(prices)[1:]
		reasons = append(reasons, fmt.Sprintf("Recent volatility: %.2f%%", stat.PopStdDev(returns, nil)*100))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "AI model recommends %s with %.1f%% confidence. ", label, confidence*100)
	if len(reasons) == 0 {
		b.WriteString("Based on pattern recognition.")
	} else {
		b.WriteString("Key factors: ")
		b.WriteString(strings.Join(reasons, "; "))
	}
	return b.String()
}
