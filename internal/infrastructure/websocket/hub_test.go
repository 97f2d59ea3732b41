package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mt5rtd/internal/domain"
)

type fakeController struct {
	mu   sync.Mutex
	subs map[string][]string
}

func (f *fakeController) Subscribe(room, symbol string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs[room] {
		if s == symbol {
			return false
		}
	}
	f.subs[room] = append(f.subs[room], symbol)
	return true
}

func (f *fakeController) Unsubscribe(room, symbol string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.subs[room] {
		if s == symbol {
			f.subs[room] = append(f.subs[room][:i], f.subs[room][i+1:]...)
			return true
		}
	}
	return false
}

func (f *fakeController) SymbolsForRoom(room string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subs[room]...)
}

func startHub(t *testing.T) (*Hub, *fakeController, *httptest.Server) {
	t.Helper()
	ctrl := &fakeController{subs: map[string][]string{}}
	hub := NewHub(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, ctrl, srv
}

func dial(t *testing.T, srv *httptest.Server, room string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?room=" + room
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(msg, v))
}

func TestHubSubscribeCommand(t *testing.T) {
	_, ctrl, srv := startHub(t)
	conn := dial(t, srv, "room1")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"subscribe","symbol":"PETR4"}`)))
	var r reply
	readJSON(t, conn, &r)
	assert.Equal(t, "subscribed", r.Type)
	assert.True(t, r.Changed)
	assert.Equal(t, []string{"PETR4"}, ctrl.SymbolsForRoom("room1"))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"symbols"}`)))
	readJSON(t, conn, &r)
	assert.Equal(t, "room_symbols", r.Type)
	assert.Equal(t, []string{"PETR4"}, r.Symbols)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	readJSON(t, conn, &r)
	assert.Equal(t, "error", r.Type)
}

func TestHubPublishOnlyToRoom(t *testing.T) {
	hub, _, srv := startHub(t)
	a := dial(t, srv, "room1")
	b := dial(t, srv, "room2")

	// round-trip a command so both clients are registered
	for _, c := range []*websocket.Conn{a, b} {
		require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"action":"symbols"}`)))
		var r reply
		readJSON(t, c, &r)
	}
	assert.Equal(t, 2, hub.Clients())

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, "room2", domain.Quote{Symbol: "VALE3", Price: 60}))
	require.NoError(t, hub.Publish(ctx, "room1", domain.Quote{Symbol: "PETR4", Price: 37}))

	var ev domain.QuoteEvent
	readJSON(t, a, &ev)
	assert.Equal(t, domain.EventPriceUpdate, ev.Type)
	assert.Equal(t, "PETR4", ev.Data.Symbol)

	readJSON(t, b, &ev)
	assert.Equal(t, "VALE3", ev.Data.Symbol)
}

func TestHubRequiresRoom(t *testing.T) {
	_, _, srv := startHub(t)
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHubPublishAfterClose(t *testing.T) {
	hub := NewHub(&fakeController{subs: map[string][]string{}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	err := hub.Publish(context.Background(), "room1", domain.Quote{Symbol: "X", Price: 1})
	assert.ErrorIs(t, err, ErrHubClosed)
}
