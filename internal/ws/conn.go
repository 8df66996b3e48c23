package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn wraps a WebSocket connection with a write lock. Only the owning
// goroutine may call Read; writes from any goroutine are serialized.
type Conn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	writeWait time.Duration
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, writeWait time.Duration) *Conn {
	return &Conn{ws: ws, writeWait: writeWait}
}

// prepareRead applies the frame size ceiling and an initial read deadline.
// The deadline is renewed on every read, ping and pong; onAlive is called
// each time.
func (c *Conn) prepareRead(maxFrameBytes int64, pongWait time.Duration, onAlive func()) {
	c.ws.SetReadLimit(maxFrameBytes)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))

	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		onAlive()
		return nil
	})
	c.ws.SetPingHandler(func(appData string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		onAlive()
		err := c.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
}

// Read returns the next data frame and renews the read deadline.
func (c *Conn) Read(pongWait time.Duration) (int, []byte, error) {
	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		return 0, nil, err
	}
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	return mt, data, nil
}

// WriteFrame writes a payload frame. Payload writes have no deadline.
func (c *Conn) WriteFrame(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(messageType, data)
}

// WriteEvent writes v as a JSON text frame bounded by the write wait.
func (c *Conn) WriteEvent(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
	err = c.ws.WriteMessage(websocket.TextMessage, data)
	c.ws.SetWriteDeadline(time.Time{})
	return err
}

// Ping sends a heartbeat ping. Control writes are safe alongside WriteFrame.
func (c *Conn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

// Close sends a close frame with code and reason, then closes the
// transport. Only the first call has an effect.
func (c *Conn) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait))
		_ = c.ws.Close()
	})
}

// closeCodeFor maps a read error to the close frame sent back.
func closeCodeFor(err error) (int, string) {
	var ce *websocket.CloseError
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		return websocket.CloseMessageTooBig, "message too big"
	case errors.As(err, &ce):
		return websocket.CloseNormalClosure, ""
	default:
		return websocket.CloseGoingAway, "read failed"
	}
}
