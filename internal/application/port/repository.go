package port

import (
	"context"

	"mt5rtd/internal/domain/model"
)

// MetricsStore is the relational store the worker reads held symbols from and
// writes normalized quotes to.
type MetricsStore interface {
	// HeldSymbols lists distinct symbols with a positive position quantity.
	HeldSymbols(ctx context.Context) ([]string, error)

	// PreviousCloseCorrected returns the stored corrected previous close, or
	// false when the row or value is absent.
	PreviousCloseCorrected(ctx context.Context, symbol string) (float64, bool, error)

	// EnsureTicker inserts a catalog row if missing and ignores conflicts.
	EnsureTicker(ctx context.Context, symbol, tickerType string) error

	// UpsertMetric writes a metric row keyed by symbol. Unknown previous
	// close values never overwrite stored ones.
	UpsertMetric(ctx context.Context, row model.MetricRow) error

	Ping(ctx context.Context) error
	Close() error
}
