package service

import (
	"context"
	"sort"
	"sync"

	"mt5rtd/internal/application/port"
	"mt5rtd/internal/domain"

	"github.com/rs/zerolog/log"
)

const DefaultMaxActivationRetries = 3

// Activator owns the per-symbol realtime activation state.
//
// Records are created only by SyncUniverse and never deleted. Provider calls
// are made without holding the lock, so readers (IsActive, Counts) never wait
// on the terminal.
type Activator struct {
	session     port.Session
	maxRetries  int
	onExhausted func(symbol string)

	mu      sync.RWMutex
	records map[string]*domain.ActivationRecord
}

func NewActivator(session port.Session, maxRetries int) *Activator {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxActivationRetries
	}
	return &Activator{
		session:    session,
		maxRetries: maxRetries,
		records:    make(map[string]*domain.ActivationRecord),
	}
}

// OnExhausted registers a hook called once when a symbol reaches the retry limit.
func (a *Activator) OnExhausted(fn func(symbol string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onExhausted = fn
}

func (a *Activator) MaxRetries() int { return a.maxRetries }

// SyncUniverse seeds Unknown records for symbols not tracked yet and returns
// how many were added.
func (a *Activator) SyncUniverse(symbols []string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	added := 0
	for _, s := range symbols {
		sym := domain.NormalizeSymbol(s)
		if sym == "" {
			continue
		}
		if _, ok := a.records[sym]; ok {
			continue
		}
		a.records[sym] = &domain.ActivationRecord{Symbol: sym, State: domain.StateUnknown}
		added++
	}
	return added
}

// Known reports whether symbol belongs to the provider universe.
func (a *Activator) Known(symbol string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.records[symbol]
	return ok
}

func (a *Activator) IsActive(symbol string) bool {
	return a.state(symbol) == domain.StateRealtimeActive
}

func (a *Activator) IsFailed(symbol string) bool {
	return a.state(symbol) == domain.StateFailed
}

func (a *Activator) state(symbol string) domain.ActivationState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if r, ok := a.records[symbol]; ok {
		return r.State
	}
	return domain.StateUnknown
}

// Record returns a copy of the activation record for symbol.
func (a *Activator) Record(symbol string) (domain.ActivationRecord, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.records[symbol]
	if !ok {
		return domain.ActivationRecord{}, false
	}
	return *r, true
}

// Activate tries to enable realtime streaming for symbol. It is a no-op
// returning true for symbols already active and false for symbols outside
// the universe.
func (a *Activator) Activate(ctx context.Context, symbol string) bool {
	a.mu.RLock()
	rec, ok := a.records[symbol]
	active := ok && rec.State == domain.StateRealtimeActive
	a.mu.RUnlock()
	if !ok {
		return false
	}
	if active {
		return true
	}

	via, success := a.probe(ctx, symbol)

	a.mu.Lock()
	if success {
		rec.State = domain.StateRealtimeActive
		rec.FailureCount = 0
		a.mu.Unlock()
		log.Info().Str("symbol", symbol).Str("via", via).Msg("realtime active")
		return true
	}

	if rec.FailureCount < a.maxRetries {
		rec.FailureCount++
	}
	failures := rec.FailureCount
	exhausted := failures >= a.maxRetries && rec.State != domain.StateFailed
	if failures >= a.maxRetries {
		rec.State = domain.StateFailed
	}
	hook := a.onExhausted
	a.mu.Unlock()

	log.Warn().Str("symbol", symbol).Int("failures", failures).Msg("realtime activation failed")
	if exhausted {
		log.Warn().Str("symbol", symbol).Int("failures", failures).Msg("activation retries exhausted")
		if hook != nil {
			hook(symbol)
		}
	}
	return false
}

func (a *Activator) probe(ctx context.Context, symbol string) (string, bool) {
	if a.session.SymbolSelect(ctx, symbol) && a.tickLive(ctx, symbol) {
		return "symbol_select", true
	}
	if a.session.MarketBookAdd(ctx, symbol) && a.tickLive(ctx, symbol) {
		return "market_book_add", true
	}
	return "", false
}

func (a *Activator) tickLive(ctx context.Context, symbol string) bool {
	t, ok := a.session.Tick(ctx, symbol)
	return ok && t.Bid > 0
}

// Counts returns tracked, realtime-active and failed totals.
func (a *Activator) Counts() (tracked, active, failed int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, r := range a.records {
		switch r.State {
		case domain.StateRealtimeActive:
			active++
		case domain.StateFailed:
			failed++
		}
	}
	return len(a.records), active, failed
}

// SymbolsIn lists symbols currently in state, sorted.
func (a *Activator) SymbolsIn(state domain.ActivationState) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0)
	for sym, r := range a.records {
		if r.State == state {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}
