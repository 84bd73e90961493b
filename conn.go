package quic

import (
	"net"
	"time"

	"github.com/goburrow/quince/transport"
)

// Conn is the embedder-facing handle for one QUIC connection, returned to
// a Handler's Serve method.
type Conn interface {
	RemoteAddr() net.Addr
	// Stream returns the stream with the given id, creating it if this
	// side is allowed to open it and it does not exist yet. It returns nil
	// if the id is invalid for this connection's role.
	Stream(id uint64) *transport.Stream
	// Close starts an application-level close: a CONNECTION_CLOSE carrying
	// errCode and reason is sent and the connection drains.
	Close(errCode uint64, reason string)
}

// remoteConn pairs a transport.Conn with the network address it is
// associated with and the engine bookkeeping needed to drive it: outgoing
// datagrams are written through sock, not directly, so both client and
// server engines share the same send path.
type remoteConn struct {
	scid []byte
	addr net.Addr
	conn *transport.Conn
}

var _ Conn = (*remoteConn)(nil)

func (c *remoteConn) RemoteAddr() net.Addr {
	return c.addr
}

func (c *remoteConn) Stream(id uint64) *transport.Stream {
	st, err := c.conn.Stream(id)
	if err != nil {
		return nil
	}
	return st
}

func (c *remoteConn) Close(errCode uint64, reason string) {
	c.conn.Close(true, errCode, reason)
}

// accepted reports whether this connection has left the handshake state,
// used by the engine to emit a single EventConnAccept.
func (c *remoteConn) accepted() bool {
	return c.conn.IsEstablished()
}

// idleDeadline returns the absolute time the engine's timer wheel should
// next call OnTimeout on this connection, or the zero time when every
// timer is disarmed.
func (c *remoteConn) idleDeadline(now time.Time) time.Time {
	d := c.conn.Timeout()
	if d < 0 {
		return time.Time{}
	}
	return now.Add(d)
}
