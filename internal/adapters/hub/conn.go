package hub

import (
	"sync"

	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/gorilla/websocket"
)

// peerConn is one connected participant. Its room is guarded by Hub.mu.
type peerConn struct {
	id   domain.ParticipantID
	conn *websocket.Conn
	send chan []byte
	room domain.RoomID

	mu     sync.Mutex
	closed bool
}

func newPeerConn(id domain.ParticipantID, conn *websocket.Conn, buffer int) *peerConn {
	return &peerConn{
		id:   id,
		conn: conn,
		send: make(chan []byte, buffer),
	}
}

func (c *peerConn) TrySend(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrChannelClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return domain.ErrBackpressure
	}
}

func (c *peerConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}
