package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"TradeSync/internal/domain/models"
	domrepo "TradeSync/internal/domain/repository"
	pkgch "TradeSync/pkg/clickhouse"
	applogger "TradeSync/pkg/logger"
)

// CHSeriesProvider reads price series from ClickHouse candle tables, one
// table per timeframe.
type CHSeriesProvider struct {
	db       *sql.DB
	database string
	prefix   string
	l        *applogger.Logger
}

var _ domrepo.SeriesProvider = (*CHSeriesProvider)(nil)

func NewCHSeriesProvider(ch *pkgch.Client, database, prefix string, l *applogger.Logger) *CHSeriesProvider {
	return &CHSeriesProvider{db: ch.DB(), database: database, prefix: prefix, l: l}
}

// LatestSeries returns up to n closes for symbol in ascending time order.
func (s *CHSeriesProvider) LatestSeries(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) (models.HistoricalSeries, error) {
	candles, err := s.latestCandles(ctx, symbol, n, tf)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no candles for %s", models.ErrSeriesUnavailable, symbol)
	}
	return models.CandlesToSeries(candles), nil
}

func (s *CHSeriesProvider) latestCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	start := time.Now()
	if !tf.Valid() {
		return nil, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	table := pkgch.CandlesTable(s.database, s.prefix, string(tf))

	const qtpl = `
        SELECT bucket, symbol, open, high, low, close, vol
        FROM %s
        WHERE symbol = ?
        ORDER BY bucket DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, table), symbol, n)
	if err != nil {
		s.l.Error("clickhouse latest_candles query error",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.Int("limit", n),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, n)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		s.l.Error("clickhouse latest_candles rows error",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("rows: %w", err)
	}
	reverseCandles(out)

	s.l.Debug("clickhouse latest_candles ok",
		applogger.String("table", table),
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// reverseCandles flips newest-first query results to ascending order.
func reverseCandles(cs []models.Candle) {
	for i, j := 0, len(cs)-1; i < j; i, j = i+1, j-1 {
		cs[i], cs[j] = cs[j], cs[i]
	}
}
