package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"mt5rtd/internal/application/port"
	"mt5rtd/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS portfolio_positions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  symbol TEXT NOT NULL,
  quantity REAL NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_symbol ON portfolio_positions(symbol);

CREATE TABLE IF NOT EXISTS tickers (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  symbol TEXT NOT NULL UNIQUE,
  type TEXT NOT NULL,
  company_id INTEGER
);

CREATE TABLE IF NOT EXISTS asset_metrics (
  symbol TEXT PRIMARY KEY,
  last_price REAL,
  previous_close REAL,
  previous_close_correct REAL,
  price_change REAL,
  price_change_percent REAL,
  volume REAL,
  open_price REAL,
  high_price REAL,
  low_price REAL,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_updated ON asset_metrics(updated_at);
`)
	return err
}

// UpsertPosition records a holding; rows with quantity > 0 join the working set.
func (r *Repo) UpsertPosition(ctx context.Context, symbol string, quantity float64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO portfolio_positions(symbol, quantity, updated_at) VALUES(?, ?, ?)`,
		symbol, quantity, time.Now().UnixMilli())
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
	err := r.db.QueryRowContext(ctx, `SELECT previous_close_correct FROM asset_metrics WHERE symbol=?`, symbol).Scan(&v)
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
		`INSERT INTO tickers(symbol, type, company_id) VALUES(?, ?, NULL) ON CONFLICT(symbol) DO NOTHING`,
		symbol, tickerType)
	return err
}

func (r *Repo) UpsertMetric(ctx context.Context, row model.MetricRow) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO asset_metrics(symbol, last_price, previous_close, previous_close_correct,
			price_change, price_change_percent, volume, open_price, high_price, low_price, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
		last_price=excluded.last_price,
		previous_close=COALESCE(excluded.previous_close, asset_metrics.previous_close),
		previous_close_correct=COALESCE(excluded.previous_close_correct, asset_metrics.previous_close_correct),
		price_change=excluded.price_change,
		price_change_percent=excluded.price_change_percent,
		volume=excluded.volume,
		open_price=excluded.open_price,
		high_price=excluded.high_price,
		low_price=excluded.low_price,
		updated_at=excluded.updated_at
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
		row.UpdatedAt.UnixMilli(),
	)
	return err
}

// GetMetric reads back one metric row; unknown prices come back as 0.
func (r *Repo) GetMetric(ctx context.Context, symbol string) (model.MetricRow, error) {
	var (
		row                              model.MetricRow
		prev, prevCorr, change, pct, vol sql.NullFloat64
		last, open, high, low            sql.NullFloat64
		updated                          int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT symbol, last_price, previous_close, previous_close_correct, price_change,
			price_change_percent, volume, open_price, high_price, low_price, updated_at
		FROM asset_metrics WHERE symbol=?`, symbol).
		Scan(&row.Symbol, &last, &prev, &prevCorr, &change, &pct, &vol, &open, &high, &low, &updated)
	if err != nil {
		return model.MetricRow{}, err
	}
	row.LastPrice = last.Float64
	row.PreviousClose = prev.Float64
	row.PreviousCloseCorrected = prevCorr.Float64
	row.PriceChange = change.Float64
	row.PriceChangePercent = pct.Float64
	row.Volume = vol.Float64
	row.Open = open.Float64
	row.High = high.Float64
	row.Low = low.Float64
	row.UpdatedAt = time.UnixMilli(updated).UTC()
	return row, nil
}

// TickerType returns the catalog type of symbol.
func (r *Repo) TickerType(ctx context.Context, symbol string) (string, error) {
	var t string
	err := r.db.QueryRowContext(ctx, `SELECT type FROM tickers WHERE symbol=?`, symbol).Scan(&t)
	return t, err
}

var _ port.MetricsStore = (*Repo)(nil)
