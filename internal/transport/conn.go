package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/codeconnect/collab/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
)

var ErrNotConnected = errors.New("channel not connected")

// Handler receives every decoded server event in arrival order
type Handler func(protocol.Envelope)

// Conn is the persistent channel to the collaboration server. It owns one
// reader goroutine and serializes writes; the connected flag flips on
// connect and disconnect. A dropped connection does not re-join any room.
type Conn struct {
	ws       *websocket.Conn
	handler  Handler
	onChange func(bool)

	mu        sync.Mutex
	connected bool

	writeMu   sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

// Dial connects to the channel endpoint, retrying with exponential backoff
// until the context is done. The handler runs on the reader goroutine.
func Dial(ctx context.Context, url string, handler Handler, onChange func(bool)) (*Conn, error) {
	var ws *websocket.Conn
	operation := func() error {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			slog.Debug("channel dial failed, retrying", "url", url, "err", err)
			return err
		}
		ws = conn
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return nil, err
	}

	c := &Conn{
		ws:       ws,
		handler:  handler,
		onChange: onChange,
		closed:   make(chan struct{}),
	}
	c.setConnected(true)

	go c.readPump()
	go c.pingLoop()

	return c, nil
}

// Connected reports the current channel state
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Conn) setConnected(connected bool) {
	c.mu.Lock()
	changed := c.connected != connected
	c.connected = connected
	c.mu.Unlock()

	if changed && c.onChange != nil {
		c.onChange(connected)
	}
}

// Emit sends one event to the server
func (c *Conn) Emit(event string, payload any) error {
	if !c.Connected() {
		return ErrNotConnected
	}

	data, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) readPump() {
	defer func() {
		c.setConnected(false)
		c.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("channel read error", "err", err)
			}
			break
		}

		env, err := protocol.Decode(data)
		if err != nil {
			slog.Debug("skipping malformed channel frame", "err", err)
			continue
		}

		c.handler(env)
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Close tears the channel down; safe to call more than once
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.setConnected(false)

		c.writeMu.Lock()
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		err = c.ws.Close()
	})
	return err
}
