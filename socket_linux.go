//go:build linux

package quic

import (
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// epollSocket is the Linux socket implementation: a UDP socket whose
// readiness is multiplexed through a single epoll instance instead of
// blocking inside the runtime's netpoller, so one engine goroutine can own
// the receive loop for every connection without per-read goroutine churn.
type epollSocket struct {
	conn     *net.UDPConn
	fd       int
	epfd     int
	laddr    net.Addr
	deadline time.Time
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
	sc, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, err
	}
	var fd int
	ctrlErr := sc.Control(func(p uintptr) { fd = int(p) })
	if ctrlErr != nil {
		conn.Close()
		return nil, ctrlErr
	}
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("quic: epoll_create1: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		unix.Close(epfd)
		conn.Close()
		return nil, fmt.Errorf("quic: epoll_ctl: %w", err)
	}
	return &epollSocket{
		conn:  conn,
		fd:    fd,
		epfd:  epfd,
		laddr: conn.LocalAddr(),
	}, nil
}

// readFrom waits on epoll for the socket to become readable, then performs
// the actual read through net.UDPConn so address parsing and EINTR/EAGAIN
// retries stay in the standard library's hands. The wait is bounded by the
// deadline set via setReadDeadline.
func (s *epollSocket) readFrom(b []byte) (int, net.Addr, error) {
	var events [1]unix.EpollEvent
	for {
		timeout := -1
		if !s.deadline.IsZero() {
			d := time.Until(s.deadline)
			if d <= 0 {
				return 0, nil, os.ErrDeadlineExceeded
			}
			timeout = int(d / time.Millisecond)
			if timeout == 0 {
				timeout = 1
			}
		}
		n, err := unix.EpollWait(s.epfd, events[:], timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, nil, fmt.Errorf("quic: epoll_wait: %w", err)
		}
		if n > 0 {
			break
		}
		if !s.deadline.IsZero() && !time.Now().Before(s.deadline) {
			return 0, nil, os.ErrDeadlineExceeded
		}
	}
	return s.conn.ReadFromUDP(b)
}

func (s *epollSocket) setReadDeadline(t time.Time) error {
	s.deadline = t
	return nil
}

func (s *epollSocket) writeTo(b []byte, addr net.Addr) (int, error) {
	return s.conn.WriteTo(b, addr)
}

func (s *epollSocket) localAddr() net.Addr {
	return s.laddr
}

func (s *epollSocket) close() error {
	unix.Close(s.epfd)
	return s.conn.Close()
}
