package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mt5rtd/internal/application/port"
	"mt5rtd/internal/domain"
)

// FakeSession is a scriptable in-memory terminal.
//
// Ticks are returned by every Tick call. StreamTicks are returned only once
// the symbol was selected or its market book was added, which models a
// terminal that streams only activated symbols.
type FakeSession struct {
	Mu sync.Mutex

	Universe    []string
	ConnectErr  error
	SelectOK    map[string]bool
	BookOK      map[string]bool
	Ticks       map[string]domain.Tick
	StreamTicks map[string]domain.Tick
	BarsByKey   map[string][]domain.Bar
	// CallDelay is applied to every query; it returns early when ctx ends.
	CallDelay time.Duration
	// EmptyListings makes the next n Symbols calls return nothing.
	EmptyListings int

	connected bool
	selected  map[string]bool
	booked    map[string]bool
	Calls     map[string]int
	Released  []string
	Logins    []port.Credentials
}

func NewFakeSession(universe ...string) *FakeSession {
	return &FakeSession{
		Universe:    universe,
		SelectOK:    map[string]bool{},
		BookOK:      map[string]bool{},
		Ticks:       map[string]domain.Tick{},
		StreamTicks: map[string]domain.Tick{},
		BarsByKey:   map[string][]domain.Bar{},
		selected:    map[string]bool{},
		booked:      map[string]bool{},
		Calls:       map[string]int{},
	}
}

func barsKey(symbol string, tf domain.Timeframe) string {
	return fmt.Sprintf("%s:%s", symbol, tf)
}

// SetBars stores bars for symbol/timeframe, oldest first.
func (f *FakeSession) SetBars(symbol string, tf domain.Timeframe, bars ...domain.Bar) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.BarsByKey[barsKey(symbol, tf)] = bars
}

func (f *FakeSession) SetTick(symbol string, t domain.Tick) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.Ticks[symbol] = t
}

func (f *FakeSession) SetStreamTick(symbol string, t domain.Tick) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.StreamTicks[symbol] = t
}

// SetConnected simulates a stalled or recovered terminal link.
func (f *FakeSession) SetConnected(v bool) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.connected = v
}

func (f *FakeSession) CallCount(name string) int {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	return f.Calls[name]
}

func (f *FakeSession) ReleasedSymbols() []string {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	return append([]string(nil), f.Released...)
}

func (f *FakeSession) wait(ctx context.Context) bool {
	f.Mu.Lock()
	d := f.CallDelay
	f.Mu.Unlock()
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (f *FakeSession) count(name string) {
	f.Calls[name]++
}

func (f *FakeSession) Connect(ctx context.Context, cred port.Credentials) error {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.count("connect")
	f.Logins = append(f.Logins, cred)
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.connected = true
	return nil
}

func (f *FakeSession) Disconnect(ctx context.Context) error {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.count("disconnect")
	f.connected = false
	return nil
}

func (f *FakeSession) Connected() bool {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	return f.connected
}

func (f *FakeSession) Symbols(ctx context.Context) []string {
	if !f.wait(ctx) {
		return nil
	}
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.count("symbols")
	if f.EmptyListings > 0 {
		f.EmptyListings--
		return nil
	}
	return append([]string(nil), f.Universe...)
}

func (f *FakeSession) SymbolSelect(ctx context.Context, symbol string) bool {
	if !f.wait(ctx) {
		return false
	}
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.count("select:" + symbol)
	if f.SelectOK[symbol] {
		f.selected[symbol] = true
		return true
	}
	return false
}

func (f *FakeSession) MarketBookAdd(ctx context.Context, symbol string) bool {
	if !f.wait(ctx) {
		return false
	}
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.count("book:" + symbol)
	if f.BookOK[symbol] {
		f.booked[symbol] = true
		return true
	}
	return false
}

func (f *FakeSession) MarketBookRelease(ctx context.Context, symbol string) bool {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.count("release:" + symbol)
	f.Released = append(f.Released, symbol)
	delete(f.booked, symbol)
	return true
}

func (f *FakeSession) Tick(ctx context.Context, symbol string) (domain.Tick, bool) {
	if !f.wait(ctx) {
		return domain.Tick{}, false
	}
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.count("tick:" + symbol)
	if t, ok := f.StreamTicks[symbol]; ok && (f.selected[symbol] || f.booked[symbol]) {
		return t, true
	}
	t, ok := f.Ticks[symbol]
	return t, ok
}

func (f *FakeSession) Bars(ctx context.Context, symbol string, tf domain.Timeframe, offset, count int) []domain.Bar {
	if !f.wait(ctx) {
		return nil
	}
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.count(fmt.Sprintf("bars:%s:%s:%d", symbol, tf, offset))
	all := f.BarsByKey[barsKey(symbol, tf)]
	end := len(all) - offset
	if end <= 0 || count <= 0 {
		return nil
	}
	start := end - count
	if start < 0 {
		start = 0
	}
	return append([]domain.Bar(nil), all[start:end]...)
}

var _ port.Session = (*FakeSession)(nil)
