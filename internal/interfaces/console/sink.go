package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"mt5rtd/internal/application/port"
	"mt5rtd/internal/domain"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiDim    = "\033[2m"
)

func colorize(s, c string) string { return c + s + ansiReset }

// Sink prints every published quote as one line. Used when no outbound
// transport is configured.
type Sink struct {
	out   io.Writer
	color bool

	mu     sync.Mutex
	states map[string]*domain.PriceState
}

func NewSink() port.Publisher {
	return &Sink{out: os.Stdout, color: true, states: make(map[string]*domain.PriceState)}
}

// NewSinkTo writes plain lines to w.
func NewSinkTo(w io.Writer) *Sink {
	return &Sink{out: w, states: make(map[string]*domain.PriceState)}
}

func (s *Sink) Publish(ctx context.Context, room string, q domain.Quote) error {
	tag := "RT"
	if !q.IsRealtime {
		tag = string(q.Source)
	}
	price := fmt.Sprintf("%10.2f", q.Price)
	arrow := " "
	switch s.track(room, q) {
	case domain.DirectionUp:
		arrow = "+"
		price = s.paint(price, ansiGreen)
	case domain.DirectionDown:
		arrow = "-"
		price = s.paint(price, ansiRed)
	default:
		price = s.paint(price, ansiYellow)
	}

	_, err := fmt.Fprintf(s.out, "%s [%s] %-8s %s%s bid=%.2f ask=%.2f prev=%.2f %s\n",
		s.paint(q.Time.Local().Format("2006-01-02 15:04:05"), ansiDim),
		room, q.Symbol, arrow, price, q.Bid, q.Ask, q.PreviousClose, tag)
	return err
}

// track keys by room so each room's stream shows its own movement.
func (s *Sink) track(room string, q domain.Quote) domain.Direction {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := room + "|" + q.Symbol
	st, ok := s.states[key]
	if !ok {
		st = &domain.PriceState{}
		s.states[key] = st
	}
	st.Update(q.Price)
	return st.Direction
}

func (s *Sink) paint(v, c string) string {
	if !s.color {
		return v
	}
	return colorize(v, c)
}
