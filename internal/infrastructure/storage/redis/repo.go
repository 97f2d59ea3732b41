package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mt5rtd/internal/application/port"
	"mt5rtd/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Repo publishes quote events to per-room channels and keeps the latest quote
// of every symbol in one hash.
type Repo struct {
	rdb       *redis.Client
	prefix    string
	ttl       time.Duration
	keyLatest string // prefix + ":latest"
}

func New(rdb *redis.Client, prefix string, ttl time.Duration) *Repo {
	return &Repo{
		rdb:       rdb,
		prefix:    prefix,
		ttl:       ttl,
		keyLatest: prefix + ":latest",
	}
}

// RoomChannel is the pub/sub channel a room's consumers subscribe to.
func (r *Repo) RoomChannel(room string) string {
	return fmt.Sprintf("%s:room:%s", r.prefix, room)
}

func (r *Repo) Publish(ctx context.Context, room string, q domain.Quote) error {
	if q.Price <= 0 {
		return nil
	}
	quote, err := json.Marshal(q)
	if err != nil {
		return err
	}
	event, err := json.Marshal(domain.NewPriceUpdate(room, q))
	if err != nil {
		return err
	}

	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, q.Symbol, string(quote))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	pipe.Publish(ctx, r.RoomChannel(room), string(event))
	_, err = pipe.Exec(ctx)
	return err
}

// Latest returns the last published quote of symbol.
func (r *Repo) Latest(ctx context.Context, symbol string) (domain.Quote, bool, error) {
	raw, err := r.rdb.HGet(ctx, r.keyLatest, symbol).Result()
	if err == redis.Nil {
		return domain.Quote{}, false, nil
	}
	if err != nil {
		return domain.Quote{}, false, err
	}
	var q domain.Quote
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return domain.Quote{}, false, err
	}
	return q, true, nil
}

var _ port.Publisher = (*Repo)(nil)
