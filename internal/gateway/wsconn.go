package gateway

import (
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 5 * time.Second
)

// wsConn adapts an upgraded gobwas connection to the session.Conn and
// registry.Handle contracts. Writes are serialized with a mutex: the owning
// session (auth failure reply) and the delivery path (deliver/broadcast) may
// target the same connection concurrently.
type wsConn struct {
	conn      net.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWSConn(conn net.Conn) *wsConn {
	return &wsConn{conn: conn}
}

// Receive blocks for the next text or binary frame from the client.
// A non-zero timeout sets a read deadline; expiry surfaces as a net.Error
// with Timeout() true. Close frames and transport failures surface as errors,
// which is how the session observes closure.
func (c *wsConn) Receive(timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		c.conn.SetReadDeadline(time.Time{})
	}

	data, _, err := wsutil.ReadClientData(c.conn)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Send writes one text frame to the client.
func (c *wsConn) Send(message []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return wsutil.WriteServerMessage(c.conn, ws.OpText, message)
}

// Close tears down the underlying connection. Safe to call more than once;
// both the session's defer and server shutdown may race here.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
	return nil
}
