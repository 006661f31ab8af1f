package models

import (
	"sort"
	"strings"
	"time"
)

// FeatureCount is the fixed length of every feature vector fed to a model.
const FeatureCount = 10

// MarketDataPoint is one observation of a symbol.
type MarketDataPoint struct {
	Symbol        string   `json:"symbol"`
	Price         float64  `json:"price" validate:"gte=0"`
	Timestamp     int64    `json:"timestamp"`
	Volume        float64  `json:"volume" validate:"gte=0"`
	Change        *float64 `json:"change,omitempty"`
	ChangePercent *float64 `json:"change_percent,omitempty"`
}

// HistoricalSeries is ordered by ascending timestamp.
type HistoricalSeries []MarketDataPoint

// SeriesByTime orders points by ascending timestamp in place. Points sharing a
// timestamp, including ones sent without any, keep their submitted order.
func SeriesByTime(points []MarketDataPoint) HistoricalSeries {
	sort.SliceStable(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })
	return HistoricalSeries(points)
}

func (s HistoricalSeries) Prices() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Price
	}
	return out
}

func (s HistoricalSeries) Volumes() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Volume
	}
	return out
}

// FeatureVector is a fixed-length numeric summary of the latest point of a series.
type FeatureVector [FeatureCount]float64

// IsZero reports whether every component is zero, the "not enough history" marker.
func (v FeatureVector) IsZero() bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func (v FeatureVector) Slice() []float64 {
	out := make([]float64, FeatureCount)
	copy(out, v[:])
	return out
}

// Indicator is an optional extra column requested by the caller, e.g. ema/12.
type Indicator struct {
	Name   string `json:"name"`
	Period int    `json:"period"`
}

// IndicatorSet is always kept sorted by name without duplicates so that two
// equal requests produce the same features and the same cache fingerprint.
type IndicatorSet []Indicator

func NewIndicatorSet(req map[string]int) IndicatorSet {
	if len(req) == 0 {
		return nil
	}
	set := make(IndicatorSet, 0, len(req))
	for name, period := range req {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		set = append(set, Indicator{Name: name, Period: period})
	}
	sort.Slice(set, func(i, j int) bool {
		if set[i].Name == set[j].Name {
			return set[i].Period < set[j].Period
		}
		return set[i].Name < set[j].Name
	})

	out := set[:0]
	for i, ind := range set {
		if i > 0 && ind.Name == set[i-1].Name {
			continue
		}
		out = append(out, ind)
	}
	return out
}

// Candle represents an OHLCV record read from the candles store.
type Candle struct {
	Bucket time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// CandlesToSeries uses the close of each bucket as the observed price.
func CandlesToSeries(candles []Candle) HistoricalSeries {
	out := make(HistoricalSeries, len(candles))
	for i, c := range candles {
		out[i] = MarketDataPoint{
			Symbol:    c.Symbol,
			Price:     c.Close,
			Timestamp: c.Bucket.Unix(),
			Volume:    c.Volume,
		}
	}
	return out
}
