package testutils

import (
	"context"
	"errors"
	"sync"

	"mt5rtd/internal/application/port"
	"mt5rtd/internal/domain/model"
)

var ErrStoreDown = errors.New("store unavailable")

// MemoryStore is an in-memory MetricsStore with the same COALESCE semantics
// as the SQL stores.
type MemoryStore struct {
	Mu sync.Mutex

	Positions map[string]float64
	Rows      map[string]model.MetricRow
	Tickers   map[string]string
	Upserts   []model.MetricRow
	Pings     int
	Fail      bool
	// FailWrites fails only UpsertMetric.
	FailWrites bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Positions: map[string]float64{},
		Rows:      map[string]model.MetricRow{},
		Tickers:   map[string]string{},
	}
}

func (m *MemoryStore) SetFail(v bool) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Fail = v
}

func (m *MemoryStore) Row(symbol string) (model.MetricRow, bool) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	r, ok := m.Rows[symbol]
	return r, ok
}

func (m *MemoryStore) UpsertCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Upserts)
}

func (m *MemoryStore) HeldSymbols(ctx context.Context) ([]string, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Fail {
		return nil, ErrStoreDown
	}
	var out []string
	for sym, qty := range m.Positions {
		if qty > 0 {
			out = append(out, sym)
		}
	}
	return out, nil
}

func (m *MemoryStore) PreviousCloseCorrected(ctx context.Context, symbol string) (float64, bool, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Fail {
		return 0, false, ErrStoreDown
	}
	r, ok := m.Rows[symbol]
	if !ok || r.PreviousCloseCorrected <= 0 {
		return 0, false, nil
	}
	return r.PreviousCloseCorrected, true, nil
}

func (m *MemoryStore) EnsureTicker(ctx context.Context, symbol, tickerType string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Fail {
		return ErrStoreDown
	}
	if _, ok := m.Tickers[symbol]; !ok {
		m.Tickers[symbol] = tickerType
	}
	return nil
}

func (m *MemoryStore) UpsertMetric(ctx context.Context, row model.MetricRow) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Fail || m.FailWrites {
		return ErrStoreDown
	}
	m.Upserts = append(m.Upserts, row)
	if prev, ok := m.Rows[row.Symbol]; ok {
		if row.PreviousClose <= 0 {
			row.PreviousClose = prev.PreviousClose
		}
		if row.PreviousCloseCorrected <= 0 {
			row.PreviousCloseCorrected = prev.PreviousCloseCorrected
		}
	}
	m.Rows[row.Symbol] = row
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Pings++
	if m.Fail {
		return ErrStoreDown
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

var _ port.MetricsStore = (*MemoryStore)(nil)
