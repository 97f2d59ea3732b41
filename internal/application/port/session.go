package port

import (
	"context"

	"mt5rtd/internal/domain"
)

// Credentials used to log in to the trading terminal.
type Credentials struct {
	Login    int64
	Password string
	Server   string
}

// Session is the single exclusive connection to the market-data terminal.
//
// Connect is the only call that reports failure as an error. Every query
// returns an empty result (nil slice, false) on transient failure or when the
// terminal has no data.
type Session interface {
	Connect(ctx context.Context, cred Credentials) error
	Disconnect(ctx context.Context) error
	Connected() bool

	Symbols(ctx context.Context) []string
	SymbolSelect(ctx context.Context, symbol string) bool
	MarketBookAdd(ctx context.Context, symbol string) bool
	MarketBookRelease(ctx context.Context, symbol string) bool
	Tick(ctx context.Context, symbol string) (domain.Tick, bool)
	// Bars returns up to count bars starting offset bars back from the
	// current one, oldest first.
	Bars(ctx context.Context, symbol string, tf domain.Timeframe, offset, count int) []domain.Bar
}
