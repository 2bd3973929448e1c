// Package websocket wraps gorilla/websocket for the apiserver's live
// subscription surface: one Conn per accepted UI client, pumping
// Add/Remove envelopes out and subscribe/unsubscribe control frames in,
// with buffered send/receive channels and a ping/pong keep-alive loop
// around each accepted connection.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ServerConfig configures an accepted connection's keep-alive behavior.
type ServerConfig struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	BufferSize   int
}

func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
		BufferSize:   256,
	}
}

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ConnectionState mirrors the accepted connection's lifecycle.
type ConnectionState int

const (
	StateConnected ConnectionState = iota
	StateClosing
	StateClosed
)

// ErrorHandler is invoked on read/write errors (logged by the caller).
type ErrorHandler func(err error)

// MessageHandler is invoked for each inbound client frame (subscribe,
// unsubscribe, ping).
type MessageHandler func(data []byte)

// Conn is one accepted websocket connection, running independent
// read/write pumps over buffered channels so a slow client cannot block
// the engine's fan-out goroutine (the engine hands each subscriber a
// channel buffered to 4096 updates and discards a subscription whose
// buffer is full or whose receiver is gone).
type Conn struct {
	config *ServerConfig
	conn   *websocket.Conn

	stateMu sync.RWMutex
	state   ConnectionState

	send    chan []byte
	onError ErrorHandler
	onMsg   MessageHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Accept upgrades an HTTP request to a websocket connection.
func Accept(w http.ResponseWriter, r *http.Request, config *ServerConfig) (*Conn, error) {
	if config == nil {
		config = DefaultServerConfig()
	}
	raw, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket: upgrade: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		config: config,
		conn:   raw,
		state:  StateConnected,
		send:   make(chan []byte, config.BufferSize),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (c *Conn) OnError(h ErrorHandler)     { c.onError = h }
func (c *Conn) OnMessage(h MessageHandler) { c.onMsg = h }

// Run starts the read and write pumps and blocks until the connection
// closes. Call it from the HTTP handler goroutine that accepted c.
func (c *Conn) Run() {
	c.wg.Add(2)
	go c.writePump()
	c.readPump()
	c.wg.Wait()
}

// Send enqueues data for delivery; it never blocks -- a full buffer
// drops the connection rather than stalling the engine's fan-out.
func (c *Conn) Send(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		c.Close()
		return false
	}
}

// SendMessage marshals and enqueues a Message envelope.
func (c *Conn) SendMessage(m *Message) error {
	data, err := m.ToJSON()
	if err != nil {
		return err
	}
	c.Send(data)
	return nil
}

func (c *Conn) State() ConnectionState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Conn) setState(s ConnectionState) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// Close tears down the connection; safe to call multiple times.
func (c *Conn) Close() {
	if c.State() == StateClosed {
		return
	}
	c.setState(StateClosing)
	c.cancel()
	_ = c.conn.Close()
	c.setState(StateClosed)
}

func (c *Conn) readPump() {
	defer c.wg.Done()
	defer c.Close()
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.onError != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.onError(fmt.Errorf("websocket: read: %w", err))
			}
			return
		}
		if c.onMsg != nil {
			c.onMsg(data)
		}
	}
}

func (c *Conn) writePump() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if c.onError != nil {
					c.onError(fmt.Errorf("websocket: write: %w", err))
				}
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
