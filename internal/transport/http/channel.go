package http

import (
	"errors"
	"sync"
	"time"

	"live-quiz-service/internal/protocol"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	joinWait       = 10 * time.Second
	maxMessageSize = 8 << 10

	DefaultSendBuffer = 32
)

var (
	errChannelClosed = errors.New("connection closed")
	errSlowConsumer  = errors.New("outbound buffer full")
)

// wsChannel is the app.Channel for one websocket. Only its writer goroutine writes to the socket;
// Send never blocks, and a full buffer drops the connection.
type wsChannel struct {
	conn *websocket.Conn
	send chan protocol.Message
	done chan struct{}
	once sync.Once
	gone chan struct{}
}

func newWSChannel(conn *websocket.Conn, buffer int) *wsChannel {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	c := &wsChannel{
		conn: conn,
		send: make(chan protocol.Message, buffer),
		done: make(chan struct{}),
		gone: make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.writeLoop()
	return c
}

func (c *wsChannel) Send(msg protocol.Message) error {
	select {
	case <-c.done:
		return errChannelClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		_ = c.Close()
		return errSlowConsumer
	}
}

// Close flushes queued messages and then closes the socket. It is safe to call more than once.
func (c *wsChannel) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// Read returns the next inbound envelope. wait bounds how long to wait for it.
func (c *wsChannel) Read(wait time.Duration) (protocol.Envelope, error) {
	var env protocol.Envelope
	if err := c.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return env, err
	}
	err := c.conn.ReadJSON(&env)
	return env, err
}

// Wait blocks until the socket has been closed by the writer.
func (c *wsChannel) Wait() {
	<-c.gone
}

func (c *wsChannel) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.gone)
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			c.flush()
			return
		}
	}
}

func (c *wsChannel) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		default:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func (c *wsChannel) write(msg protocol.Message) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}
