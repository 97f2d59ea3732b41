package rtd

import (
	"context"

	"mt5rtd/internal/application/port"
	"mt5rtd/internal/domain"
	"mt5rtd/internal/domain/model"
)

type noopStore struct{}

// NewNoopStore returns a MetricsStore that holds nothing and drops writes.
func NewNoopStore() port.MetricsStore { return noopStore{} }

func (noopStore) HeldSymbols(ctx context.Context) ([]string, error) { return nil, nil }
func (noopStore) PreviousCloseCorrected(ctx context.Context, symbol string) (float64, bool, error) {
	return 0, false, nil
}
func (noopStore) EnsureTicker(ctx context.Context, symbol, tickerType string) error { return nil }
func (noopStore) UpsertMetric(ctx context.Context, row model.MetricRow) error       { return nil }
func (noopStore) Ping(ctx context.Context) error                                    { return nil }
func (noopStore) Close() error                                                      { return nil }

type noopPublisher struct{}

func NewNoopPublisher() port.Publisher { return noopPublisher{} }

func (noopPublisher) Publish(ctx context.Context, room string, q domain.Quote) error { return nil }
