package service

import (
	"context"
	"testing"

	"mt5rtd/internal/domain"
	"mt5rtd/internal/domain/model"
	"mt5rtd/internal/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertPreservesStoredPreviousClose(t *testing.T) {
	store := testutils.NewMemoryStore()
	store.Rows["PETR4"] = model.MetricRow{Symbol: "PETR4", PreviousClose: 113.82, PreviousCloseCorrected: 113.82}
	fs := testutils.NewFakeSession("PETR4")

	s := NewMetricsSyncer(store, fs)
	err := s.Upsert(context.Background(), domain.Quote{Symbol: "PETR4", Price: 115, PreviousClose: 0})
	require.NoError(t, err)

	row, ok := store.Row("PETR4")
	require.True(t, ok)
	assert.Equal(t, 113.82, row.PreviousCloseCorrected)
	assert.InDelta(t, 1.18, row.PriceChange, 1e-9)
	assert.Equal(t, 0, fs.CallCount("bars:PETR4:D1:1"), "provider is not queried when the store has a value")
}

func TestUpsertOpenFallback(t *testing.T) {
	store := testutils.NewMemoryStore()
	s := NewMetricsSyncer(store, nil)

	err := s.Upsert(context.Background(), domain.Quote{Symbol: "VALE3", Price: 61.32, Open: 60})
	require.NoError(t, err)

	row, _ := store.Row("VALE3")
	assert.InDelta(t, 2.2, row.PriceChangePercent, 1e-9)
	assert.Equal(t, 61.32, row.LastPrice)
	assert.Equal(t, 61.32, row.High, "unknown high falls back to last")
	assert.Equal(t, 61.32, row.Low)
	assert.Equal(t, model.DefaultTickerType, store.Tickers["VALE3"])
}

func TestUpsertProviderPreviousClose(t *testing.T) {
	store := testutils.NewMemoryStore()
	fs := testutils.NewFakeSession("ITUB4")
	fs.SetBars("ITUB4", domain.TimeframeD1,
		domain.Bar{Close: 30},
		domain.Bar{Close: 0},
		domain.Bar{Close: 33},
	)

	s := NewMetricsSyncer(store, fs)
	require.NoError(t, s.Upsert(context.Background(), domain.Quote{Symbol: "ITUB4", Price: 33}))

	row, _ := store.Row("ITUB4")
	assert.Equal(t, 30.0, row.PreviousClose)
	assert.InDelta(t, 10.0, row.PriceChangePercent, 1e-9)
	assert.Equal(t, 1, fs.CallCount("bars:ITUB4:D1:2"), "offset 2 is tried when offset 1 has no close")
}

func TestUpsertQuotePreviousCloseWins(t *testing.T) {
	store := testutils.NewMemoryStore()
	store.Rows["ABEV3"] = model.MetricRow{Symbol: "ABEV3", PreviousCloseCorrected: 13}
	s := NewMetricsSyncer(store, nil)

	require.NoError(t, s.Upsert(context.Background(), domain.Quote{Symbol: "ABEV3", Price: 14, PreviousClose: 12.5}))
	row, _ := store.Row("ABEV3")
	assert.Equal(t, 12.5, row.PreviousCloseCorrected)
}

func TestUpsertStoreFailure(t *testing.T) {
	store := testutils.NewMemoryStore()
	store.SetFail(true)
	s := NewMetricsSyncer(store, nil)

	err := s.Upsert(context.Background(), domain.Quote{Symbol: "WEGE3", Price: 40})
	assert.ErrorIs(t, err, testutils.ErrStoreDown)
}
