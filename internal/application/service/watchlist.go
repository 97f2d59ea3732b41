package service

import (
	"sync"

	"mt5rtd/internal/domain"
)

// Watchlist is the mandatory symbol set refreshed every tick.
type Watchlist struct {
	mu    sync.RWMutex
	order []string
}

func NewWatchlist(symbols []string) *Watchlist {
	return &Watchlist{order: domain.NormalizeSymbols(symbols)}
}

func (w *Watchlist) Symbols() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.order...)
}

// Remove drops symbol from the mandatory set.
func (w *Watchlist) Remove(symbol string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, s := range w.order {
		if s == symbol {
			w.order = append(w.order[:i], w.order[i+1:]...)
			return true
		}
	}
	return false
}
