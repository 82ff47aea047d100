package services

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4 * 1024
)

// WSClientConfig holds session timings
type WSClientConfig struct {
	PingInterval time.Duration
	PongWait     time.Duration
	SendBuffer   int
}

// WSClient is a Channel backed by a gorilla websocket connection.
// Outbound frames go through a buffered queue drained by WritePump.
type WSClient struct {
	conn *websocket.Conn
	cfg  WSClientConfig
	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewWSClient wraps conn
func NewWSClient(conn *websocket.Conn, cfg WSClientConfig) *WSClient {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	return &WSClient{
		conn: conn,
		cfg:  cfg,
		send: make(chan []byte, cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

// Send enqueues data without blocking; false means the frame was dropped
func (c *WSClient) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which closes the connection
func (c *WSClient) Close() {
	c.once.Do(func() { close(c.done) })
}

// WritePump drains the send queue and keeps the connection alive with pings
func (c *WSClient) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// ReadPump reads frames until the connection fails, passing each to onMessage.
// It returns the error that ended the session.
func (c *WSClient) ReadPump(onMessage func(data []byte)) error {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		onMessage(data)
	}
}
