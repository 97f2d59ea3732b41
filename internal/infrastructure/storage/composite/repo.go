package composite

import (
	"context"

	"mt5rtd/internal/application/port"
	"mt5rtd/internal/domain"
)

// Publisher fans each quote out to every configured publisher.
type Publisher struct {
	pubs []port.Publisher
}

func New(pubs ...port.Publisher) *Publisher {
	// nil publishers are allowed; filter in constructor for safety
	out := make([]port.Publisher, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	return &Publisher{pubs: out}
}

func (c *Publisher) Len() int { return len(c.pubs) }

// Publish delivers to all publishers and returns the first error.
func (c *Publisher) Publish(ctx context.Context, room string, q domain.Quote) error {
	var firstErr error
	for _, p := range c.pubs {
		if err := p.Publish(ctx, room, q); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.Publisher = (*Publisher)(nil)
