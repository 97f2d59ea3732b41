package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"mt5rtd/internal/application/port"
	"mt5rtd/internal/domain"
)

var (
	ErrHubClosed  = errors.New("websocket hub closed")
	ErrHubBacklog = errors.New("websocket hub backlog full")
)

// Controller 订阅指令的下游，由 rtd worker 实现
type Controller interface {
	Subscribe(room, symbol string) bool
	Unsubscribe(room, symbol string) bool
	SymbolsForRoom(room string) []string
}

type roomMessage struct {
	room    string
	payload []byte
}

type clientMessage struct {
	client  *Client
	payload []byte
}

// Hub 按 room 分组的 websocket 推送中心；rooms/clients 只由 Run 协程修改
type Hub struct {
	ctrl Controller

	register   chan *Client
	unregister chan *Client
	broadcast  chan roomMessage
	direct     chan clientMessage
	done       chan struct{}

	rooms   map[string]map[*Client]struct{}
	clients atomic.Int64
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func NewHub(ctrl Controller) *Hub {
	return &Hub{
		ctrl:       ctrl,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		// 缓冲队列，避免 worker 在推送时阻塞
		broadcast: make(chan roomMessage, 1024),
		direct:    make(chan clientMessage, 64),
		done:      make(chan struct{}),
		rooms:     make(map[string]map[*Client]struct{}),
	}
}

// Run 是 hub 主循环，ctx 结束时关闭所有客户端
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, members := range h.rooms {
				for c := range members {
					close(c.send)
				}
			}
			h.rooms = map[string]map[*Client]struct{}{}
			h.clients.Store(0)
			return

		case c := <-h.register:
			members, ok := h.rooms[c.room]
			if !ok {
				members = make(map[*Client]struct{})
				h.rooms[c.room] = members
			}
			members[c] = struct{}{}
			h.clients.Add(1)

		case c := <-h.unregister:
			h.remove(c)

		case m := <-h.direct:
			if _, ok := h.rooms[m.client.room][m.client]; ok {
				select {
				case m.client.send <- m.payload:
				default:
				}
			}

		case msg := <-h.broadcast:
			for c := range h.rooms[msg.room] {
				select {
				case c.send <- msg.payload:
				default:
					// 客户端过慢，断开以免阻塞 hub
					h.remove(c)
				}
			}
		}
	}
}

func (h *Hub) remove(c *Client) {
	members, ok := h.rooms[c.room]
	if !ok {
		return
	}
	if _, ok := members[c]; !ok {
		return
	}
	delete(members, c)
	close(c.send)
	h.clients.Add(-1)
	if len(members) == 0 {
		delete(h.rooms, c.room)
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) sendTo(c *Client, payload []byte) {
	select {
	case h.direct <- clientMessage{client: c, payload: payload}:
	case <-h.done:
	}
}

// Clients 当前连接数
func (h *Hub) Clients() int { return int(h.clients.Load()) }

// Publish 将报价推送给 room 内的所有连接，不阻塞调用方
func (h *Hub) Publish(ctx context.Context, room string, q domain.Quote) error {
	payload, err := json.Marshal(domain.NewPriceUpdate(room, q))
	if err != nil {
		return err
	}
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}
	select {
	case h.broadcast <- roomMessage{room: room, payload: payload}:
		return nil
	default:
		return ErrHubBacklog
	}
}

// ServeWS 升级连接并加入 query 参数 room 指定的房间
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	room := strings.TrimSpace(r.URL.Query().Get("room"))
	if room == "" {
		http.Error(w, "room is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &Client{hub: h, conn: conn, room: room, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	log.Debug().Str("room", room).Msg("ws client connected")

	go c.writePump()
	go c.readPump()
}

var _ port.Publisher = (*Hub)(nil)
