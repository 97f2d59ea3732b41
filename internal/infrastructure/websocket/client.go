package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Client 单个 websocket 连接，固定属于一个 room
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	room string
	send chan []byte
}

// command 客户端上行指令
type command struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
}

type reply struct {
	Type    string   `json:"type"`
	Room    string   `json:"room"`
	Symbol  string   `json:"symbol,omitempty"`
	Changed bool     `json:"changed,omitempty"`
	Symbols []string `json:"symbols,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// readPump 处理上行指令，同时充当连接看门狗
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
		log.Debug().Str("room", c.room).Msg("ws client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("room", c.room).Msg("ws read error")
			}
			return
		}
		c.handle(message)
	}
}

func (c *Client) handle(message []byte) {
	var cmd command
	if err := json.Unmarshal(message, &cmd); err != nil {
		c.reply(reply{Type: "error", Room: c.room, Error: "invalid command"})
		return
	}

	ctrl := c.hub.ctrl
	switch cmd.Action {
	case "subscribe":
		added := ctrl.Subscribe(c.room, cmd.Symbol)
		c.reply(reply{Type: "subscribed", Room: c.room, Symbol: cmd.Symbol, Changed: added})
	case "unsubscribe":
		removed := ctrl.Unsubscribe(c.room, cmd.Symbol)
		c.reply(reply{Type: "unsubscribed", Room: c.room, Symbol: cmd.Symbol, Changed: removed})
	case "symbols":
		c.reply(reply{Type: "room_symbols", Room: c.room, Symbols: ctrl.SymbolsForRoom(c.room)})
	default:
		c.reply(reply{Type: "error", Room: c.room, Error: "unknown action " + cmd.Action})
	}
}

func (c *Client) reply(r reply) {
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	c.hub.sendTo(c, b)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("room", c.room).Msg("ws write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
