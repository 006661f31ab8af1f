package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"TradeSync/internal/domain/models"
	domrepo "TradeSync/internal/domain/repository"
	pkgch "TradeSync/pkg/clickhouse"
)

// CHModelStore keeps artifacts in a ReplacingMergeTree keyed by name; the
// newest updated_at wins.
type CHModelStore struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

var _ domrepo.ModelStore = (*CHModelStore)(nil)

func NewCHModelStore(ch *pkgch.Client, database, table string) *CHModelStore {
	return &CHModelStore{db: ch.DB(), table: database + "." + table, now: time.Now}
}

func (s *CHModelStore) Load(ctx context.Context, name string) ([]byte, error) {
	q := fmt.Sprintf("SELECT blob FROM %s WHERE name = ? ORDER BY updated_at DESC LIMIT 1", s.table)
	var blob string
	err := s.db.QueryRowContext(ctx, q, name).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrModelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", name, err)
	}
	return []byte(blob), nil
}

func (s *CHModelStore) Save(ctx context.Context, name string, blob []byte) error {
	q := fmt.Sprintf("INSERT INTO %s (name, blob, updated_at) VALUES (?, ?, ?)", s.table)
	if _, err := s.db.ExecContext(ctx, q, name, string(blob), s.now().UTC()); err != nil {
		return fmt.Errorf("save model %s: %w", name, err)
	}
	return nil
}

func (s *CHModelStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT DISTINCT name FROM %s ORDER BY name", s.table))
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan model name: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
