package hub

import (
	"sync"

	"github.com/gorilla/websocket"
)

// wsConn adapts *websocket.Conn to registry.Conn. gorilla/websocket
// connections require a single writer at a time; wsConn serializes writes
// the same way the teacher's forwardPeerEvents goroutine implicitly relied
// on a single sender per socket.
type wsConn struct {
	mu sync.Mutex
	c  *websocket.Conn
}

func newWSConn(c *websocket.Conn) *wsConn {
	return &wsConn{c: c}
}

func (w *wsConn) Send(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteJSON(v)
}

func (w *wsConn) Close() error {
	return w.c.Close()
}
