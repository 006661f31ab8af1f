package repository

import (
	"context"
	"time"

	"TradeSync/internal/domain/models"
)

// Timeframe is the bucket width of a candle series.
type Timeframe string

const (
	TF1s Timeframe = "1s"
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
)

var timeframeWidths = map[Timeframe]time.Duration{
	TF1s: time.Second,
	TF1m: time.Minute,
	TF5m: 5 * time.Minute,
}

// Width returns the bucket duration, or 0 for an unsupported timeframe.
func (tf Timeframe) Width() time.Duration { return timeframeWidths[tf] }

func (tf Timeframe) Valid() bool { return tf.Width() > 0 }

// NormalizeTimeframe maps unknown or empty input to one minute buckets.
func NormalizeTimeframe(s string) Timeframe {
	if tf := Timeframe(s); tf.Valid() {
		return tf
	}
	return TF1m
}

// SeriesProvider supplies the most recent history of a symbol, oldest first.
type SeriesProvider interface {
	LatestSeries(ctx context.Context, symbol string, n int, tf Timeframe) (models.HistoricalSeries, error)
}
