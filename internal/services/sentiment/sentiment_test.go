package sentiment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"TradeSync/pkg/logger"
)

func TestLexiconLabels(t *testing.T) {
	cases := []struct {
		text  string
		label string
		score float64
	}{
		{"Analysts turn bullish as AAPL starts a rally", Bullish, 1.5},
		{"Stocks plunge on bearish outlook", Bearish, 1.5},
		{"Markets closed flat", Neutral, 0},
		{"bullish but bearish", Neutral, 0},
	}
	lex := NewLexicon()
	for _, c := range cases {
		res, err := lex.Analyze(context.Background(), c.text)
		if err != nil {
			t.Fatalf("Analyze returned error: %v", err)
		}
		if res.Sentiment != c.label || res.Score < c.score-1e-9 || res.Score > c.score+1e-9 {
			t.Fatalf("%q: got %s %.2f", c.text, res.Sentiment, res.Score)
		}
		if res.Confidence > maxConfidence {
			t.Fatalf("confidence above cap: %v", res.Confidence)
		}
	}
}

func TestKeyPhrasesLimit(t *testing.T) {
	got := KeyPhrases("AA BB CC DD EE FF lower TOOLONG")
	if len(got) != 5 || got[0] != "AA" {
		t.Fatalf("unexpected key phrases: %v", got)
	}
	if kp := KeyPhrases("nothing here"); kp == nil || len(kp) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", kp)
	}
}

func TestHTTPOracleMapsLabels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req oracleRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(oracleResponse{Label: "Negative", Score: 0.93})
	}))
	defer srv.Close()

	res, err := NewHTTPOracle(srv.URL, time.Second, nil).Analyze(context.Background(), "TSLA misses estimates")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if res.Sentiment != Bearish || res.Confidence != 0.93 || res.Source != SourceOracle {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestFallbackUsesLexiconOnOracleError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	fb := NewFallback(NewHTTPOracle(srv.URL, time.Second, nil), NewLexicon(), logger.Nop())
	res, err := fb.Analyze(context.Background(), "a bullish rally")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if res.Source != SourceLexicon || res.Sentiment != Bullish {
		t.Fatalf("expected lexicon fallback, got %+v", res)
	}
}
