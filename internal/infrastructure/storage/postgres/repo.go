package postgres

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/jackc/pgx/v5/stdlib"

	"mt5rtd/internal/application/port"
	"mt5rtd/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// migrate only creates missing tables; the surrounding application owns the schema.
func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS portfolio_positions (
  id BIGSERIAL PRIMARY KEY,
  symbol VARCHAR(20) NOT NULL,
  quantity NUMERIC NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_symbol ON portfolio_positions(symbol);

CREATE TABLE IF NOT EXISTS tickers (
  id BIGSERIAL PRIMARY KEY,
  symbol VARCHAR(20) NOT NULL UNIQUE,
  type VARCHAR(20) NOT NULL,
  company_id BIGINT
);

CREATE TABLE IF NOT EXISTS asset_metrics (
  symbol VARCHAR(20) PRIMARY KEY,
  last_price DOUBLE PRECISION,
  previous_close DOUBLE PRECISION,
  previous_close_correct DOUBLE PRECISION,
  price_change DOUBLE PRECISION,
  price_change_percent DOUBLE PRECISION,
  volume DOUBLE PRECISION,
  open_price DOUBLE PRECISION,
  high_price DOUBLE PRECISION,
  low_price DOUBLE PRECISION,
  updated_at TIMESTAMPTZ NOT NULL
);
`)
	return err
}

func (r *Repo) HeldSymbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM portfolio_positions WHERE quantity > 0 ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) PreviousCloseCorrected(ctx context.Context, symbol string) (float64, bool, error) {
	var v sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `SELECT previous_close_correct FROM asset_metrics WHERE symbol=$1`, symbol).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if !v.Valid || v.Float64 <= 0 {
		return 0, false, nil
	}
	return v.Float64, true, nil
}

func (r *Repo) EnsureTicker(ctx context.Context, symbol, tickerType string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tickers(symbol, type, company_id) VALUES($1, $2, NULL) ON CONFLICT(symbol) DO NOTHING`,
		symbol, tickerType)
	return err
}

func (r *Repo) UpsertMetric(ctx context.Context, row model.MetricRow) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO asset_metrics(symbol, last_price, previous_close, previous_close_correct,
			price_change, price_change_percent, volume, open_price, high_price, low_price, updated_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT(symbol) DO UPDATE SET
		last_price=EXCLUDED.last_price,
		previous_close=COALESCE(EXCLUDED.previous_close, asset_metrics.previous_close),
		previous_close_correct=COALESCE(EXCLUDED.previous_close_correct, asset_metrics.previous_close_correct),
		price_change=EXCLUDED.price_change,
		price_change_percent=EXCLUDED.price_change_percent,
		volume=EXCLUDED.volume,
		open_price=EXCLUDED.open_price,
		high_price=EXCLUDED.high_price,
		low_price=EXCLUDED.low_price,
		updated_at=EXCLUDED.updated_at
	`,
		row.Symbol,
		row.LastPrice,
		model.NullIfUnknown(row.PreviousClose),
		model.NullIfUnknown(row.PreviousCloseCorrected),
		row.PriceChange,
		row.PriceChangePercent,
		row.Volume,
		model.NullIfUnknown(row.Open),
		model.NullIfUnknown(row.High),
		model.NullIfUnknown(row.Low),
		row.UpdatedAt,
	)
	return err
}

var _ port.MetricsStore = (*Repo)(nil)
