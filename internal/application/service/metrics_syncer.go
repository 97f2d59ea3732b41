package service

import (
	"context"
	"fmt"
	"time"

	"mt5rtd/internal/application/port"
	"mt5rtd/internal/domain"
	"mt5rtd/internal/domain/model"

	"github.com/rs/zerolog/log"
)

// MetricsSyncer persists normalized quotes into the metrics store.
type MetricsSyncer struct {
	store   port.MetricsStore
	session port.Session
	now     func() time.Time
}

func NewMetricsSyncer(store port.MetricsStore, session port.Session) *MetricsSyncer {
	return &MetricsSyncer{store: store, session: session, now: time.Now}
}

// Upsert writes q as the latest metric row of its symbol. Previous close
// precedence is quote, then stored corrected value, then a provider query.
func (s *MetricsSyncer) Upsert(ctx context.Context, q domain.Quote) error {
	if err := s.store.EnsureTicker(ctx, q.Symbol, model.DefaultTickerType); err != nil {
		return fmt.Errorf("ensure ticker %s: %w", q.Symbol, err)
	}

	prevClose := s.previousClose(ctx, q)
	change, pct := domain.PriceChange(q.Price, prevClose, q.Open)

	row := model.MetricRow{
		Symbol:                 q.Symbol,
		LastPrice:              q.Price,
		PreviousClose:          prevClose,
		PreviousCloseCorrected: prevClose,
		PriceChange:            change,
		PriceChangePercent:     pct,
		Volume:                 float64(q.Volume),
		Open:                   q.Open,
		High:                   orElse(q.High, q.Price),
		Low:                    orElse(q.Low, q.Price),
		UpdatedAt:              s.now().UTC(),
	}
	if err := s.store.UpsertMetric(ctx, row); err != nil {
		return fmt.Errorf("upsert metric %s: %w", q.Symbol, err)
	}
	return nil
}

func (s *MetricsSyncer) previousClose(ctx context.Context, q domain.Quote) float64 {
	if q.PreviousClose > 0 {
		return q.PreviousClose
	}

	v, ok, err := s.store.PreviousCloseCorrected(ctx, q.Symbol)
	if err != nil {
		log.Debug().Err(err).Str("symbol", q.Symbol).Msg("stored previous close unavailable")
	}
	if ok && v > 0 {
		return v
	}

	if s.session == nil {
		return 0
	}
	return ProviderPreviousClose(ctx, s.session, q.Symbol)
}

// ProviderPreviousClose asks the terminal for the prior session close: the
// daily bar one back, or two back when that one is missing.
func ProviderPreviousClose(ctx context.Context, session port.Session, symbol string) float64 {
	for _, offset := range []int{1, 2} {
		bars := session.Bars(ctx, symbol, domain.TimeframeD1, offset, 1)
		if len(bars) > 0 && bars[0].Close > 0 {
			return bars[0].Close
		}
	}
	return 0
}

func orElse(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}
