package backtest

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"

	"TradeSync/internal/domain/models"
	"TradeSync/internal/services/features"
)

const (
	tradingDays   = 252
	sharpeEpsilon = 1e-6
)

var ErrTooFewPrices = errors.New("backtest: need at least 2 prices")

// BuyAndHold evaluates holding the instrument across the whole series.
// Sharpe is annualized from per-step simple returns.
func BuyAndHold(series models.HistoricalSeries) (models.BacktestResult, error) {
	prices := series.Prices()
	if len(prices) < 2 {
		return models.BacktestResult{}, ErrTooFewPrices
	}
	if prices[0] == 0 {
		return models.BacktestResult{}, errors.New("backtest: first price is zero")
	}

	returns := features.PctChanges(prices)[1:]
	mean, std := stat.MeanStdDev(returns, nil)
	if len(returns) < 2 {
		std = 0
	}

	res := models.BacktestResult{
		TotalReturn:  (prices[len(prices)-1] - prices[0]) / prices[0],
		SharpeRatio:  mean / (std + sharpeEpsilon) * math.Sqrt(tradingDays),
		MaxDrawdown:  maxDrawdown(prices),
		Observations: len(prices),
	}
	if len(series) > 0 {
		res.Symbol = series[0].Symbol
	}
	return res, nil
}

// maxDrawdown is the largest peak-to-trough fall as a fraction of the peak.
func maxDrawdown(prices []float64) float64 {
	peak, worst := prices[0], 0.0
	for _, p := range prices {
		if p > peak {
			peak = p
		}
		if peak > 0 {
			if dd := (peak - p) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}
