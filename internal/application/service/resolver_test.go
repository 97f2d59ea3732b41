package service

import (
	"context"
	"testing"

	"mt5rtd/internal/domain"
	"mt5rtd/internal/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolverFixture(symbols ...string) (*testutils.FakeSession, *Activator, *Resolver) {
	fs := testutils.NewFakeSession(symbols...)
	a := NewActivator(fs, 3)
	a.SyncUniverse(symbols)
	return fs, a, NewResolver(fs, a)
}

func TestResolveRealtimeWithDailyContext(t *testing.T) {
	fs, a, r := newResolverFixture("AAA3")
	fs.SelectOK["AAA3"] = true
	fs.SetStreamTick("AAA3", domain.Tick{Bid: 10.5, Ask: 10.6, Last: 10.55})
	fs.SetBars("AAA3", domain.TimeframeD1,
		domain.Bar{Open: 9.8, High: 10.1, Low: 9.7, Close: 10.0},
		domain.Bar{Open: 10.2, High: 10.7, Low: 10.1, Close: 10.55},
	)
	require.True(t, a.Activate(context.Background(), "AAA3"))

	q, ok := r.Resolve(context.Background(), "AAA3")
	require.True(t, ok)
	assert.Equal(t, 10.55, q.Price)
	assert.True(t, q.IsRealtime)
	assert.Equal(t, 10.0, q.PreviousClose)
	assert.Equal(t, 10.2, q.Open)
	assert.Equal(t, 10.7, q.High)
	assert.Equal(t, 10.1, q.Low)
}

func TestResolveOnDemandActivation(t *testing.T) {
	fs, a, r := newResolverFixture("AAA3")
	fs.SelectOK["AAA3"] = true
	fs.SetStreamTick("AAA3", domain.Tick{Bid: 7})

	q, ok := r.Resolve(context.Background(), "AAA3")
	require.True(t, ok)
	assert.Equal(t, 7.0, q.Price)
	assert.True(t, a.IsActive("AAA3"))
}

func TestResolveForcedProbe(t *testing.T) {
	fs, a, r := newResolverFixture("AAA3")
	fs.SetTick("AAA3", domain.Tick{Bid: 3.3})

	q, ok := r.Resolve(context.Background(), "AAA3")
	require.True(t, ok)
	assert.Equal(t, 3.3, q.Price)
	assert.False(t, a.IsActive("AAA3"))
	rec, _ := a.Record("AAA3")
	assert.Equal(t, 1, rec.FailureCount, "on-demand attempt was counted")
}

func TestResolveFallsBackToMinuteBar(t *testing.T) {
	fs, _, r := newResolverFixture("AAA3")
	fs.SetBars("AAA3", domain.TimeframeM1,
		domain.Bar{Close: 12.0},
		domain.Bar{Open: 12.1, High: 12.4, Low: 12.0, Close: 12.34},
	)

	q, ok := r.Resolve(context.Background(), "AAA3")
	require.True(t, ok)
	assert.False(t, q.IsRealtime)
	assert.Equal(t, domain.SourceM1Fallback, q.Source)
	assert.Equal(t, 12.34, q.Price)
}

func TestResolveSkipsOnDemandForFailedSymbol(t *testing.T) {
	fs, a, r := newResolverFixture("AAA3")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		a.Activate(ctx, "AAA3")
	}
	require.True(t, a.IsFailed("AAA3"))
	before := fs.CallCount("select:AAA3")

	_, ok := r.Resolve(ctx, "AAA3")
	assert.False(t, ok)
	assert.Equal(t, before, fs.CallCount("select:AAA3"))
}

func TestResolveNoQuote(t *testing.T) {
	fs, _, r := newResolverFixture("AAA3")
	fs.SetTick("AAA3", domain.Tick{Bid: 0, Last: 5})
	fs.SetBars("AAA3", domain.TimeframeM1, domain.Bar{Close: 0})

	_, ok := r.Resolve(context.Background(), "AAA3")
	assert.False(t, ok)

	_, ok = r.Resolve(context.Background(), "NOPE3")
	assert.False(t, ok)
	assert.Equal(t, 0, fs.CallCount("tick:NOPE3"))
}

type stubStrategy struct {
	name  string
	quote domain.Quote
	ok    bool
	calls *[]string
}

func (s stubStrategy) Name() string { return s.name }

func (s stubStrategy) Attempt(ctx context.Context, symbol string) (domain.Quote, bool) {
	*s.calls = append(*s.calls, s.name)
	return s.quote, s.ok
}

func TestResolveStopsAtFirstSuccess(t *testing.T) {
	fs := testutils.NewFakeSession("AAA3")
	a := NewActivator(fs, 3)
	a.SyncUniverse(fs.Universe)

	var calls []string
	r := NewResolver(fs, a,
		stubStrategy{name: "first", calls: &calls},
		stubStrategy{name: "zero", ok: true, calls: &calls},
		stubStrategy{name: "third", ok: true, quote: domain.Quote{Symbol: "AAA3", Price: 1}, calls: &calls},
		stubStrategy{name: "never", ok: true, quote: domain.Quote{Symbol: "AAA3", Price: 2}, calls: &calls},
	)

	q, ok := r.Resolve(context.Background(), "AAA3")
	require.True(t, ok)
	assert.Equal(t, 1.0, q.Price)
	assert.Equal(t, []string{"first", "zero", "third"}, calls, "zero-priced quotes are rejected")
}
