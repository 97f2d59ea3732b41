package service

import (
	"context"

	"mt5rtd/internal/application/port"
	"mt5rtd/internal/domain"

	"github.com/rs/zerolog/log"
)

// Strategy is one step of the quote fallback chain. A strategy accepts only
// quotes with a positive price.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, symbol string) (domain.Quote, bool)
}

// RealtimeTick reads the tick of a symbol already streaming.
type RealtimeTick struct {
	Session   port.Session
	Activator *Activator
}

func (s RealtimeTick) Name() string { return "realtime_tick" }

func (s RealtimeTick) Attempt(ctx context.Context, symbol string) (domain.Quote, bool) {
	if !s.Activator.IsActive(symbol) {
		return domain.Quote{}, false
	}
	q, ok := tickQuote(ctx, s.Session, symbol)
	if !ok {
		log.Warn().Str("symbol", symbol).Msg("realtime active but tick invalid")
	}
	return q, ok
}

// OnDemandActivation activates a symbol that has not failed yet, then reads its tick.
type OnDemandActivation struct {
	Session   port.Session
	Activator *Activator
}

func (s OnDemandActivation) Name() string { return "on_demand_activation" }

func (s OnDemandActivation) Attempt(ctx context.Context, symbol string) (domain.Quote, bool) {
	// active symbols were already covered by RealtimeTick
	if s.Activator.IsActive(symbol) || s.Activator.IsFailed(symbol) {
		return domain.Quote{}, false
	}
	if !s.Activator.Activate(ctx, symbol) {
		return domain.Quote{}, false
	}
	return tickQuote(ctx, s.Session, symbol)
}

// ForcedProbe reads the last known tick without activation.
type ForcedProbe struct {
	Session port.Session
}

func (s ForcedProbe) Name() string { return "forced_probe" }

func (s ForcedProbe) Attempt(ctx context.Context, symbol string) (domain.Quote, bool) {
	q, ok := tickQuote(ctx, s.Session, symbol)
	if ok {
		log.Debug().Str("symbol", symbol).Msg("tick obtained without activation")
	}
	return q, ok
}

// MinuteBar synthesizes a non-realtime quote from the latest 1-minute bar.
type MinuteBar struct {
	Session port.Session
}

func (s MinuteBar) Name() string { return "minute_bar" }

func (s MinuteBar) Attempt(ctx context.Context, symbol string) (domain.Quote, bool) {
	bars := s.Session.Bars(ctx, symbol, domain.TimeframeM1, 0, 1)
	if len(bars) == 0 {
		return domain.Quote{}, false
	}
	b := bars[len(bars)-1]
	if b.Close <= 0 {
		return domain.Quote{}, false
	}
	log.Debug().Str("symbol", symbol).Msg("using M1 bar as last resort")
	return domain.NewBarQuote(symbol, b, domain.SourceM1Fallback), true
}

func tickQuote(ctx context.Context, session port.Session, symbol string) (domain.Quote, bool) {
	t, ok := session.Tick(ctx, symbol)
	if !ok || t.Bid <= 0 {
		return domain.Quote{}, false
	}
	return domain.NewTickQuote(symbol, t), true
}

// DefaultStrategies returns the fallback chain in priority order.
func DefaultStrategies(session port.Session, activator *Activator) []Strategy {
	return []Strategy{
		RealtimeTick{Session: session, Activator: activator},
		OnDemandActivation{Session: session, Activator: activator},
		ForcedProbe{Session: session},
		MinuteBar{Session: session},
	}
}

// Resolver produces one normalized quote per symbol by walking the strategy
// chain and enriching the first accepted quote with daily context.
type Resolver struct {
	session    port.Session
	activator  *Activator
	strategies []Strategy
}

func NewResolver(session port.Session, activator *Activator, strategies ...Strategy) *Resolver {
	if len(strategies) == 0 {
		strategies = DefaultStrategies(session, activator)
	}
	return &Resolver{session: session, activator: activator, strategies: strategies}
}

// Resolve returns false when no strategy produced a quote or the symbol is
// outside the provider universe.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (domain.Quote, bool) {
	if !r.activator.Known(symbol) {
		log.Debug().Str("symbol", symbol).Msg("symbol not in provider universe")
		return domain.Quote{}, false
	}
	for _, s := range r.strategies {
		if ctx.Err() != nil {
			return domain.Quote{}, false
		}
		q, ok := s.Attempt(ctx, symbol)
		if !ok || q.Price <= 0 {
			continue
		}
		q.ApplyDaily(r.session.Bars(ctx, symbol, domain.TimeframeD1, 0, 2))
		return q, true
	}
	log.Debug().Str("symbol", symbol).Msg("no valid quote")
	return domain.Quote{}, false
}
