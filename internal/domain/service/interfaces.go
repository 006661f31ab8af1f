package service

import (
	"context"

	"TradeSync/internal/domain/models"
)

// Classifier scores a feature vector over models.NumClasses classes.
type Classifier interface {
	PredictProba(x []float64) ([]float64, error)
	NumFeatures() int
}

// Explainer attributes a prediction for one class to the input features.
// ok is false when the classifier family is not supported.
type Explainer interface {
	Explain(c Classifier, x []float64, class int) (attribution []float64, ok bool)
}

// SentimentOracle scores free text as bullish, bearish or neutral.
type SentimentOracle interface {
	Analyze(ctx context.Context, text string) (models.SentimentResult, error)
}
