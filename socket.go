package quic

import (
	"net"
	"time"
)

// socket is the minimal datagram transport the engine needs; socket_linux.go
// and socket_other.go provide platform-specific implementations that both
// satisfy it.
type socket interface {
	// readFrom blocks until a datagram arrives or the read deadline
	// passes, returning the datagram's length and source address.
	readFrom(b []byte) (int, net.Addr, error)
	// writeTo sends a single datagram to addr.
	writeTo(b []byte, addr net.Addr) (int, error)
	// setReadDeadline bounds the next readFrom; the zero time blocks
	// indefinitely.
	setReadDeadline(t time.Time) error
	localAddr() net.Addr
	close() error
}
