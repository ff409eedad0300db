package broadcast

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/borderwars/server/internal/dispatcher"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Message is an incoming frame from an observer.
type Message struct {
	Action    string   `json:"action"`
	CountryID string   `json:"country_id,omitempty"`
	Command   string   `json:"command,omitempty"`
	Args      []string `json:"args,omitempty"`
}

// Response reports the outcome of a command frame back to the sender.
type Response struct {
	Type    string `json:"type"`
	Command string `json:"command,omitempty"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Client is one observer connection. The hub owns the send channel; the
// write pump drains it.
type Client struct {
	hub  *Hub
	disp *dispatcher.Dispatcher
	conn *ws.Conn
	send chan []byte
	log  *slog.Logger
}

// NewClient wraps an upgraded connection. The caller registers it with the
// hub and starts both pumps.
func NewClient(hub *Hub, disp *dispatcher.Dispatcher, conn *ws.Conn, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		hub:  hub,
		disp: disp,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		log:  log,
	}
}

// ReadPump reads observer frames until the connection drops.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseGoingAway, ws.CloseNormalClosure) {
				c.log.Warn("observer read error", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply(Response{Type: "error", Error: "malformed message"})
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg Message) {
	switch msg.Action {
	case "subscribe":
		if msg.CountryID == "" {
			c.reply(Response{Type: "error", Error: "subscribe requires country_id"})
			return
		}
		c.hub.Subscribe(c, msg.CountryID)
		c.reply(Response{Type: "subscribed", Result: msg.CountryID})
	case "unsubscribe":
		if msg.CountryID == "" {
			c.reply(Response{Type: "error", Error: "unsubscribe requires country_id"})
			return
		}
		c.hub.Unsubscribe(c, msg.CountryID)
		c.reply(Response{Type: "unsubscribed", Result: msg.CountryID})
	case "command":
		result, err := c.disp.Dispatch(dispatcher.Event{
			Command:   msg.Command,
			Args:      msg.Args,
			Timestamp: time.Now(),
		})
		resp := Response{Type: "result", Command: msg.Command, Result: result}
		if err != nil {
			resp.Error = err.Error()
		}
		c.reply(resp)
	default:
		c.reply(Response{Type: "error", Error: "unknown action: " + msg.Action})
	}
}

// reply queues a response frame without blocking the read pump. It goes
// through the hub so the send never races the hub closing the channel.
func (c *Client) reply(r Response) {
	data, err := json.Marshal(r)
	if err != nil {
		c.log.Error("failed to encode response", "error", err)
		return
	}
	c.hub.deliver(c, data)
}

// WritePump drains the send channel and keeps the connection alive with
// pings. It exits when the hub closes the channel or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
				return
			}

			w, err := c.conn.NextWriter(ws.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(data)

			// Coalesce whatever else is already queued into one frame.
			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handler upgrades HTTP requests to observer connections.
func Handler(hub *Hub, disp *dispatcher.Dispatcher, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", "error", err)
			return
		}
		client := NewClient(hub, disp, conn, log)
		if !hub.Register(client) {
			_ = conn.Close()
			return
		}
		go client.WritePump()
		go client.ReadPump()
	}
}
