package testutils

import (
	"context"
	"sync"

	"mt5rtd/internal/application/port"
	"mt5rtd/internal/domain"
)

// Published is one recorded Publish call.
type Published struct {
	Room  string
	Quote domain.Quote
}

// RecordingPublisher keeps every published quote in memory.
type RecordingPublisher struct {
	mu   sync.Mutex
	msgs []Published
	Err  error
}

func NewRecordingPublisher() *RecordingPublisher { return &RecordingPublisher{} }

func (p *RecordingPublisher) Publish(ctx context.Context, room string, q domain.Quote) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, Published{Room: room, Quote: q})
	return p.Err
}

func (p *RecordingPublisher) Messages() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.msgs...)
}

// ForRoom returns quotes delivered to room, in order.
func (p *RecordingPublisher) ForRoom(room string) []domain.Quote {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Quote
	for _, m := range p.msgs {
		if m.Room == room {
			out = append(out, m.Quote)
		}
	}
	return out
}

var _ port.Publisher = (*RecordingPublisher)(nil)
