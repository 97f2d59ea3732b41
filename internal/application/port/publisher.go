package port

import (
	"context"

	"mt5rtd/internal/domain"
)

// Publisher delivers a quote to one consumer room.
type Publisher interface {
	Publish(ctx context.Context, room string, q domain.Quote) error
}
