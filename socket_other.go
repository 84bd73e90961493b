//go:build !linux

package quic

import (
	"net"
	"time"
)

// udpSocket is the portable socket implementation backed directly by
// net.UDPConn, used on every platform without epoll support.
type udpSocket struct {
	conn *net.UDPConn
}

func listenUDP(addr string) (socket, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	return &udpSocket{conn: conn}, nil
}

func (s *udpSocket) readFrom(b []byte) (int, net.Addr, error) {
	return s.conn.ReadFromUDP(b)
}

func (s *udpSocket) writeTo(b []byte, addr net.Addr) (int, error) {
	return s.conn.WriteTo(b, addr)
}

func (s *udpSocket) setReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

func (s *udpSocket) localAddr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *udpSocket) close() error {
	return s.conn.Close()
}
