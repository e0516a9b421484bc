package ws

import (
	"sync"
	"time"

	"github.com/beamchat/relay/internal/core"
)

// Socket is an indirection over *websocket.Conn to ease testing.
type Socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
	Close() error
}

// Conn is the transport endpoint for one client. It implements
// core.SignalConnection: the router enqueues, the write pump drains.
type Conn struct {
	sock Socket
	out  *outQueue
	once sync.Once
}

func newConn(sock Socket, queueSize int) *Conn {
	return &Conn{
		sock: sock,
		out:  newOutQueue(queueSize),
	}
}

func (c *Conn) TrySend(f core.Frame, class core.EventClass) error {
	return c.out.Push(f, class)
}

// Close shuts the queue and the underlying socket. Safe to call from the
// read pump, the write pump, and the controller; only the first call acts.
func (c *Conn) Close() {
	c.once.Do(func() {
		c.out.Close()
		_ = c.sock.Close()
	})
}
