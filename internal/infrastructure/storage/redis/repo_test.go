package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mt5rtd/internal/domain"
)

func newTestRepo(t *testing.T) (*Repo, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, "rtd", time.Minute), rdb, mr
}

func TestRedisPublishToRoom(t *testing.T) {
	repo, rdb, _ := newTestRepo(t)
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, repo.RoomChannel("room1"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	q := domain.Quote{Symbol: "AAA3", Price: 10.55, Bid: 10.5, Ask: 10.6, IsRealtime: true, Source: domain.SourceRealtime}
	require.NoError(t, repo.Publish(ctx, "room1", q))

	select {
	case msg := <-sub.Channel():
		var ev domain.QuoteEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		assert.Equal(t, domain.EventPriceUpdate, ev.Type)
		assert.Equal(t, "room1", ev.Room)
		assert.Equal(t, 10.55, ev.Data.Price)
		assert.True(t, ev.Data.IsRealtime)
	case <-time.After(2 * time.Second):
		t.Fatal("no message on room channel")
	}
}

func TestRedisLatestHash(t *testing.T) {
	repo, _, mr := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Publish(ctx, "room1", domain.Quote{Symbol: "PETR4", Price: 37}))
	require.NoError(t, repo.Publish(ctx, "room2", domain.Quote{Symbol: "PETR4", Price: 37.5}))
	require.NoError(t, repo.Publish(ctx, "room1", domain.Quote{Symbol: "ZERO3", Price: 0}))

	q, ok, err := repo.Latest(ctx, "PETR4")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 37.5, q.Price)

	_, ok, err = repo.Latest(ctx, "ZERO3")
	require.NoError(t, err)
	assert.False(t, ok, "zero-priced quotes are not cached")

	assert.Equal(t, time.Minute, mr.TTL("rtd:latest"))
}
