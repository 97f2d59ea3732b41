package rtd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mt5rtd/internal/application/port"
	"mt5rtd/internal/application/service"
	"mt5rtd/internal/domain"

	"github.com/rs/zerolog/log"
)

var (
	ErrConnect              = errors.New("provider connect failed")
	ErrStopTimeout          = errors.New("worker did not stop in time")
	ErrProviderDisconnected = errors.New("provider disconnected")
)

const (
	DefaultPollInterval = time.Second
	DefaultRetryBackoff = 30 * time.Second
	DefaultStopTimeout  = 15 * time.Second
)

type Deps struct {
	Session     port.Session
	Credentials port.Credentials
	// Store may be nil; quotes are then only published.
	Store     port.MetricsStore
	Publisher port.Publisher
	Watchlist []string

	PollInterval         time.Duration
	RetryBackoff         time.Duration
	MaxActivationRetries int
	// SymbolTimeout bounds one symbol's resolution inside a tick. Zero leaves
	// only the provider's own timeout.
	SymbolTimeout time.Duration
	StopTimeout   time.Duration
}

// Worker keeps quotes of the working set fresh. Every provider call happens
// on the scheduler goroutine; the control methods only touch the activation
// state and subscription registry.
type Worker struct {
	deps      Deps
	storeless bool

	activator *service.Activator
	resolver  *service.Resolver
	syncer    *service.MetricsSyncer
	subs      *service.SubscriptionRegistry
	watchlist *service.Watchlist

	lifecycle sync.Mutex
	running   atomic.Bool
	cancel    context.CancelFunc
	finished  chan struct{}

	pendingMu sync.Mutex
	pending   map[string]struct{}
	wake      chan struct{}

	storeOK    atomic.Bool
	lastUpdate atomic.Pointer[time.Time]
}

func NewWorker(deps Deps) *Worker {
	if deps.PollInterval <= 0 {
		deps.PollInterval = DefaultPollInterval
	}
	if deps.RetryBackoff <= 0 {
		deps.RetryBackoff = DefaultRetryBackoff
	}
	if deps.MaxActivationRetries <= 0 {
		deps.MaxActivationRetries = service.DefaultMaxActivationRetries
	}
	if deps.StopTimeout <= 0 {
		deps.StopTimeout = DefaultStopTimeout
	}
	storeless := deps.Store == nil
	if storeless {
		deps.Store = NewNoopStore()
	}
	if deps.Publisher == nil {
		deps.Publisher = NewNoopPublisher()
	}

	w := &Worker{
		deps:      deps,
		storeless: storeless,
		activator: service.NewActivator(deps.Session, deps.MaxActivationRetries),
		subs:      service.NewSubscriptionRegistry(),
		watchlist: service.NewWatchlist(deps.Watchlist),
		pending:   make(map[string]struct{}),
		wake:      make(chan struct{}, 1),
	}
	w.resolver = service.NewResolver(deps.Session, w.activator)
	w.syncer = service.NewMetricsSyncer(deps.Store, deps.Session)
	w.activator.OnExhausted(func(symbol string) {
		if w.watchlist.Remove(symbol) {
			log.Warn().Str("symbol", symbol).Msg("removed from watchlist after activation retries")
		}
	})
	return w
}

func (w *Worker) Activator() *service.Activator { return w.activator }

func (w *Worker) Running() bool { return w.running.Load() }

// Start connects to the provider, syncs the symbol universe, activates the
// watchlist and launches the scheduler loop. It is a no-op when running.
func (w *Worker) Start(ctx context.Context) error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	if w.running.Load() {
		log.Info().Msg("rtd worker already running")
		return nil
	}
	// a previous Stop may still be tearing down after a timeout
	if w.finished != nil {
		select {
		case <-w.finished:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := w.deps.Session.Connect(ctx, w.deps.Credentials); err != nil {
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}
	log.Info().Str("server", w.deps.Credentials.Server).Msg("provider connected")

	w.syncUniverse(ctx)
	w.checkStore(ctx)
	if err := w.activateWatchlist(ctx); err != nil {
		_ = w.deps.Session.Disconnect(context.Background())
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	w.cancel = cancel
	w.finished = finished
	w.running.Store(true)

	go func() {
		defer close(finished)
		w.loop(loopCtx)
	}()

	log.Info().
		Dur("interval", w.deps.PollInterval).
		Strs("watchlist", w.watchlist.Symbols()).
		Msg("rtd worker started")
	return nil
}

// syncUniverse loads the provider universe and drops watchlist symbols the
// provider does not offer. An empty listing is transient and changes nothing.
func (w *Worker) syncUniverse(ctx context.Context) bool {
	universe := w.deps.Session.Symbols(ctx)
	if len(universe) == 0 {
		log.Warn().Msg("provider returned no symbols, universe sync deferred")
		return false
	}
	added := w.activator.SyncUniverse(universe)
	log.Info().Int("symbols", len(universe)).Int("added", added).Msg("provider universe synced")

	for _, sym := range w.watchlist.Symbols() {
		if !w.activator.Known(sym) {
			w.watchlist.Remove(sym)
			log.Warn().Str("symbol", sym).Msg("watchlist symbol not offered by provider")
		}
	}
	return true
}

// activateWatchlist retries each watchlist symbol until it is active or its
// retries are exhausted.
func (w *Worker) checkStore(ctx context.Context) {
	if w.storeless {
		return
	}
	if err := w.deps.Store.Ping(ctx); err != nil {
		w.storeOK.Store(false)
		log.Warn().Err(err).Msg("metrics store unreachable")
		return
	}
	w.storeOK.Store(true)
}

func (w *Worker) activateWatchlist(ctx context.Context) error {
	for _, sym := range w.watchlist.Symbols() {
		for w.activator.Known(sym) && !w.activator.IsActive(sym) && !w.activator.IsFailed(sym) {
			if err := ctx.Err(); err != nil {
				return err
			}
			w.activator.Activate(ctx, sym)
		}
	}
	_, active, failed := w.activator.Counts()
	log.Info().Int("active", active).Int("failed", failed).Msg("watchlist activation pass done")
	return nil
}

// Stop signals the loop, waits up to StopTimeout for it, then releases market
// books and disconnects. On timeout the teardown completes in the background
// once the in-flight provider call returns. A stopped worker is a no-op.
func (w *Worker) Stop(ctx context.Context) error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	if !w.running.Load() {
		return nil
	}
	w.running.Store(false)
	w.cancel()

	finished := w.finished
	timer := time.NewTimer(w.deps.StopTimeout)
	defer timer.Stop()

	select {
	case <-finished:
		log.Info().Msg("rtd worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		log.Warn().Dur("timeout", w.deps.StopTimeout).Msg("rtd worker stop timed out, teardown continues in background")
		return ErrStopTimeout
	}
}

func (w *Worker) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), w.deps.StopTimeout)
	defer cancel()

	for _, sym := range w.activator.SymbolsIn(domain.StateRealtimeActive) {
		if !w.deps.Session.MarketBookRelease(ctx, sym) {
			log.Debug().Str("symbol", sym).Msg("market book release failed")
		}
	}
	if err := w.deps.Session.Disconnect(ctx); err != nil {
		log.Warn().Err(err).Msg("provider disconnect")
	}
}

// Subscribe adds symbol to room and queues an eager activation for the
// scheduler when the symbol is not streaming yet. It reports whether the pair
// was new.
func (w *Worker) Subscribe(room, symbol string) bool {
	room = strings.TrimSpace(room)
	sym := domain.NormalizeSymbol(symbol)
	if room == "" || sym == "" {
		return false
	}
	added := w.subs.Subscribe(room, sym)
	if added {
		log.Info().Str("room", room).Str("symbol", sym).Msg("subscribed")
	}
	if !w.activator.IsActive(sym) {
		w.queueActivation(sym)
	}
	return added
}

func (w *Worker) Unsubscribe(room, symbol string) bool {
	removed := w.subs.Unsubscribe(strings.TrimSpace(room), domain.NormalizeSymbol(symbol))
	if removed {
		log.Info().Str("room", room).Str("symbol", symbol).Msg("unsubscribed")
	}
	return removed
}

func (w *Worker) SymbolsForRoom(room string) []string {
	return w.subs.SymbolsForRoom(strings.TrimSpace(room))
}

func (w *Worker) Rooms() map[string][]string {
	return w.subs.Snapshot()
}

func (w *Worker) queueActivation(symbol string) {
	w.pendingMu.Lock()
	w.pending[symbol] = struct{}{}
	w.pendingMu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) takePending() []string {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if len(w.pending) == 0 {
		return nil
	}
	out := make([]string, 0, len(w.pending))
	for sym := range w.pending {
		out = append(out, sym)
	}
	clear(w.pending)
	sort.Strings(out)
	return out
}

// drainActivations runs queued subscription activations. Failed symbols are
// retried here, outside the mandatory watchlist.
func (w *Worker) drainActivations(ctx context.Context) {
	for _, sym := range w.takePending() {
		if ctx.Err() != nil {
			w.queueActivation(sym)
			continue
		}
		if !w.activator.Known(sym) || w.activator.IsActive(sym) {
			continue
		}
		w.activator.Activate(ctx, sym)
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer w.teardown()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
			w.drainActivations(ctx)
			continue
		case <-timer.C:
		}

		started := time.Now()
		wait := w.deps.PollInterval
		if err := w.safeTick(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Dur("backoff", w.deps.RetryBackoff).Msg("rtd tick failed")
			wait = w.deps.RetryBackoff
		} else if elapsed := time.Since(started); elapsed < wait {
			wait -= elapsed
		} else {
			wait = 0
		}
		timer.Reset(wait)
	}
}

func (w *Worker) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()
	return w.tick(ctx)
}

func (w *Worker) tick(ctx context.Context) error {
	resync := false
	if !w.deps.Session.Connected() {
		log.Warn().Msg("provider disconnected, reconnecting")
		if err := w.deps.Session.Connect(ctx, w.deps.Credentials); err != nil {
			return fmt.Errorf("%w: %w", ErrProviderDisconnected, err)
		}
		resync = true
	}
	if tracked, _, _ := w.activator.Counts(); tracked == 0 {
		resync = true
	}
	if resync {
		w.syncUniverse(ctx)
	}

	w.drainActivations(ctx)

	symbols := w.workingSet(ctx)
	for _, sym := range symbols {
		if ctx.Err() != nil {
			return nil
		}
		w.processSymbol(ctx, sym)
	}

	now := time.Now().UTC()
	w.lastUpdate.Store(&now)
	log.Debug().Int("symbols", len(symbols)).Msg("rtd tick done")
	return nil
}

// workingSet is watchlist ∪ held positions ∪ subscribed symbols.
func (w *Worker) workingSet(ctx context.Context) []string {
	set := w.watchlist.Symbols()

	held, err := w.deps.Store.HeldSymbols(ctx)
	if err != nil {
		w.storeOK.Store(false)
		log.Warn().Err(err).Msg("held symbols unavailable")
	} else {
		w.storeOK.Store(true)
		set = append(set, held...)
	}

	set = append(set, w.subs.AllSymbols()...)
	return domain.NormalizeSymbols(set)
}

func (w *Worker) processSymbol(ctx context.Context, symbol string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("symbol", symbol).Interface("panic", r).Msg("symbol update panicked")
		}
	}()

	if w.deps.SymbolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.deps.SymbolTimeout)
		defer cancel()
	}

	q, ok := w.resolver.Resolve(ctx, symbol)
	if !ok {
		return
	}

	for _, room := range w.subs.RoomsForSymbol(symbol) {
		if err := w.deps.Publisher.Publish(ctx, room, q); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Str("room", room).Msg("publish failed")
		}
	}

	if err := w.syncer.Upsert(ctx, q); err != nil {
		w.storeOK.Store(false)
		log.Warn().Err(err).Str("symbol", symbol).Msg("persist failed")
	}
}

// Stats never fails. A disconnected provider reports zero active symbols.
func (w *Worker) Stats() Stats {
	running := w.running.Load()
	connected := running && w.deps.Session.Connected()
	tracked, active, failed := w.activator.Counts()
	rooms := w.subs.Snapshot()

	roomNames := make([]string, 0, len(rooms))
	for r := range rooms {
		roomNames = append(roomNames, r)
	}
	sort.Strings(roomNames)

	st := Stats{
		Status:            "inactive",
		Running:           running,
		Connected:         connected,
		TrackedSymbols:    tracked,
		ActiveCount:       active,
		FailedCount:       failed,
		Subscriptions:     w.subs.Total(),
		TotalRooms:        len(rooms),
		ActiveRooms:       roomNames,
		SubscribedTickers: rooms,
		Watchlist:         w.watchlist.Symbols(),
		RealtimeActive:    w.activator.SymbolsIn(domain.StateRealtimeActive),
		RealtimeFailed:    w.activator.SymbolsIn(domain.StateFailed),
		DatabaseConnected: !w.storeless && w.storeOK.Load(),
		LastUpdate:        w.lastUpdate.Load(),
	}
	if running {
		st.Status = "active"
	}
	if !connected {
		st.ActiveCount = 0
		st.RealtimeActive = []string{}
	}
	return st
}
