package live

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendQueueSize  = 16
)

var (
	errConnClosed   = errors.New("connection closed")
	errSlowConsumer = errors.New("subscriber cannot keep up")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// The discussion stream is public, same as the article thread.
		return true
	},
}

// Handler upgrades the request to a websocket and serves the live stream.
// An articleId query parameter subscribes the client immediately; later the
// client may switch rooms with {"action":"join","articleId":"..."}.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to upgrade connection", "error", err)

			return
		}

		client := &wsClient{
			hub:  h,
			conn: conn,
			send: make(chan Event, sendQueueSize),
			done: make(chan struct{}),
		}

		go client.writePump()

		if articleID := r.URL.Query().Get("articleId"); articleID != "" {
			h.Subscribe(client, articleID)
		}

		go client.readPump()
	})
}

type wsClient struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan Event
	done      chan struct{}
	closeOnce sync.Once
}

var _ Conn = (*wsClient)(nil)

// Send hands the event to the write pump. It never blocks: a client whose
// queue is full is considered too slow and gets dropped from its room.
func (c *wsClient) Send(event Event) error {
	select {
	case <-c.done:
		return errConnClosed
	case c.send <- event:
		return nil
	default:
		return errSlowConsumer
	}
}

type clientMessage struct {
	Action    string `json:"action"`
	ArticleID string `json:"articleId"`
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.Unsubscribe(c)
		c.closeOnce.Do(func() { close(c.done) })

		err := c.conn.Close()
		if err != nil {
			slog.Debug("failed to close connection", "error", err)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage

		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket closed unexpectedly", "error", err)
			}

			return
		}

		switch msg.Action {
		case "join":
			if msg.ArticleID != "" {
				c.hub.Subscribe(c, msg.ArticleID)
			}
		case "leave":
			c.hub.Unsubscribe(c)
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		err := c.conn.Close()
		if err != nil {
			slog.Debug("failed to close connection", "error", err)
		}
	}()

	for {
		select {
		case event := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			err := c.conn.WriteJSON(event)
			if err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

			return
		}
	}
}
