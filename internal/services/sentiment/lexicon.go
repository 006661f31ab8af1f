package sentiment

import (
	"context"
	"math"
	"regexp"
	"strings"

	"TradeSync/internal/domain/models"
	"TradeSync/internal/domain/service"
)

const (
	Bullish = "BULLISH"
	Bearish = "BEARISH"
	Neutral = "NEUTRAL"

	SourceLexicon = "rule-based"
	SourceOracle  = "oracle"

	neutralBand   = 0.1
	maxConfidence = 0.9
	maxKeyPhrases = 5
)

var defaultTerms = map[string]float64{
	"bullish": 0.8,
	"bearish": -0.8,
	"rally":   0.7,
	"plunge":  -0.7,
}

var tickerLike = regexp.MustCompile(`\b[A-Z]{2,5}\b`)

// Lexicon scores text by summing the weights of known market terms.
type Lexicon struct {
	terms map[string]float64
}

var _ service.SentimentOracle = (*Lexicon)(nil)

func NewLexicon() *Lexicon {
	return &Lexicon{terms: defaultTerms}
}

func (l *Lexicon) Analyze(_ context.Context, text string) (models.SentimentResult, error) {
	score := 0.0
	for _, word := range strings.Fields(strings.ToLower(text)) {
		score += l.terms[word]
	}

	label := Neutral
	switch {
	case score > neutralBand:
		label = Bullish
	case score < -neutralBand:
		label = Bearish
	}
	abs := math.Abs(score)
	return models.SentimentResult{
		Sentiment:  label,
		Score:      abs,
		Confidence: math.Min(maxConfidence, abs),
		KeyPhrases: KeyPhrases(text),
		Source:     SourceLexicon,
	}, nil
}

// KeyPhrases returns up to five ticker-like uppercase tokens.
func KeyPhrases(text string) []string {
	found := tickerLike.FindAllString(text, maxKeyPhrases)
	if found == nil {
		return []string{}
	}
	return found
}
