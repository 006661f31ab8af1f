package sentiment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"TradeSync/internal/domain/models"
	"TradeSync/internal/domain/service"
	xhttp "TradeSync/pkg/http"
	"TradeSync/pkg/logger"
)

const maxOracleChars = 512

type oracleRequest struct {
	Text string `json:"text"`
}

type oracleResponse struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// HTTPOracle asks an external classification service (FinBERT-style labels
// positive/neutral/negative) to score text.
type HTTPOracle struct {
	url    string
	client *xhttp.Client
}

var _ service.SentimentOracle = (*HTTPOracle)(nil)

func NewHTTPOracle(url string, timeout time.Duration, client *xhttp.Client) *HTTPOracle {
	if client == nil {
		client = xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithRetry(2, 50*time.Millisecond))
	}
	return &HTTPOracle{url: url, client: client}
}

func (o *HTTPOracle) Analyze(ctx context.Context, text string) (models.SentimentResult, error) {
	if o.url == "" {
		return models.SentimentResult{}, errors.New("sentiment oracle url not configured")
	}
	body := oracleRequest{Text: truncateRunes(text, maxOracleChars)}

	var resp oracleResponse
	if err := o.client.PostJSON(ctx, o.url, body, &resp); err != nil {
		return models.SentimentResult{}, fmt.Errorf("sentiment oracle: %w", err)
	}

	label := Neutral
	switch strings.ToLower(resp.Label) {
	case "positive":
		label = Bullish
	case "negative":
		label = Bearish
	}
	return models.SentimentResult{
		Sentiment:  label,
		Score:      resp.Score,
		Confidence: resp.Score,
		KeyPhrases: KeyPhrases(text),
		Source:     SourceOracle,
	}, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Fallback tries the primary oracle and degrades to the secondary on error.
type Fallback struct {
	primary   service.SentimentOracle
	secondary service.SentimentOracle
	log       *logger.Logger
}

var _ service.SentimentOracle = (*Fallback)(nil)

func NewFallback(primary, secondary service.SentimentOracle, log *logger.Logger) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, log: log}
}

func (f *Fallback) Analyze(ctx context.Context, text string) (models.SentimentResult, error) {
	if f.primary != nil {
		res, err := f.primary.Analyze(ctx, text)
		if err == nil {
			return res, nil
		}
		f.log.Warn("sentiment oracle failed, using lexicon", logger.Error(err))
	}
	return f.secondary.Analyze(ctx, text)
}
