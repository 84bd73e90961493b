package quic

import (
	"crypto/rand"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/goburrow/quince/transport"
)

var (
	errMalformedHeader = errors.New("quic: malformed packet header")
	errNotInitial      = errors.New("quic: first packet from a new address was not an initial packet")
)

// Handler reacts to connection and stream events. Serve is called from the
// engine's single event-loop goroutine, so implementations must not block.
type Handler interface {
	Serve(c Conn, events []transport.Event)
}

const maxDatagramSize = 65527

// engine drives one UDP socket: it owns the receive loop, the CID and
// address registries, the timer wheel for idle/PTO expiry, and dispatches
// decoded events to the configured Handler. Client and Server are thin
// role-specific wrappers around the same engine.
type engine struct {
	config *transport.Config

	sock  socket
	reg   *registry
	wheel *timerWheel

	handler Handler
	log     logger

	isClient bool

	// mu serializes all connection work: the serve goroutine's datagram
	// handling and timer sweeps, and connect calls arriving from the
	// embedder's goroutine.
	mu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
	readBuf   []byte
	outBufs   *datagramPool

	tokens       *transport.TokenSource
	requireRetry bool
}

func newEngine(config *transport.Config, isClient bool) *engine {
	e := &engine{
		config:   config,
		reg:      newRegistry(),
		wheel:    newTimerWheel(),
		isClient: isClient,
		closed:   make(chan struct{}),
		readBuf:  make([]byte, maxDatagramSize),
		outBufs:  newDatagramPool(),
	}
	if !isClient {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err == nil {
			e.tokens, _ = transport.NewTokenSource(secret)
		}
	}
	return e
}

func (e *engine) setHandler(h Handler) {
	e.handler = h
}

func (e *engine) setLogger(level int, w io.Writer) {
	e.log.level = logLevel(level)
	e.log.setWriter(w)
}

func (e *engine) listenAndServe(addr string) error {
	sock, err := listenUDP(addr)
	if err != nil {
		return err
	}
	e.sock = sock
	go e.serve()
	return nil
}

func (e *engine) localAddr() net.Addr {
	if e.sock == nil {
		return nil
	}
	return e.sock.localAddr()
}

// maxTimerSlack bounds how long the serve loop may block in readFrom when
// no connection timer is armed, so work queued from the embedder's
// goroutine (a Connect, a stream write) is picked up promptly.
const maxTimerSlack = time.Second

// serve is the engine's single receive goroutine: it alternates between
// reading one datagram (bounded by the earliest connection timer) and
// sweeping any connections whose timer has fired.
func (e *engine) serve() {
	for {
		select {
		case <-e.closed:
			return
		default:
		}
		now := time.Now()
		e.mu.Lock()
		e.sweepTimers(now)
		deadline := now.Add(maxTimerSlack)
		if next, ok := e.wheel.next(); ok && next.Before(deadline) {
			deadline = next
		}
		e.mu.Unlock()
		e.sock.setReadDeadline(deadline)
		n, addr, err := e.sock.readFrom(e.readBuf)
		if err != nil {
			select {
			case <-e.closed:
				return
			default:
				continue
			}
		}
		packetsReceivedTotal.Inc()
		e.mu.Lock()
		e.handleDatagram(e.readBuf[:n], addr)
		e.mu.Unlock()
	}
}

func (e *engine) sweepTimers(now time.Time) {
	for _, c := range e.wheel.expired(now) {
		c.conn.OnTimeout(now)
		e.afterConnWork(c, now)
	}
}

func (e *engine) handleDatagram(b []byte, addr net.Addr) {
	c := e.reg.findByAddr(addr)
	if c == nil {
		dcid, ok := peekDestinationCID(b, localCIDLength)
		if ok {
			c = e.reg.findByCID(dcid)
		}
	}
	if c == nil {
		if e.isClient {
			packetsDroppedTotal.WithLabelValues("no_connection").Inc()
			return
		}
		var err error
		c, err = e.acceptNew(b, addr)
		if err != nil {
			packetsDroppedTotal.WithLabelValues("accept_failed").Inc()
			return
		}
		if c == nil {
			// Retry issued or version negotiation sent; nothing further
			// to do with this datagram.
			return
		}
	}
	now := time.Now()
	wasEstablished := c.accepted()
	if _, err := c.conn.Write(b); err != nil {
		packetsDroppedTotal.WithLabelValues("decode_error").Inc()
	}
	if !wasEstablished && c.accepted() {
		connectionsAcceptedTotal.Inc()
		if !e.isClient && e.tokens != nil {
			// Hand the client a token it can present next time to skip
			// the Retry round trip (spec section 4.6, NEW_TOKEN issuance).
			if tok, err := e.tokens.Mint(now, addr, nil); err == nil {
				c.conn.QueueNewToken(tok)
			}
		}
		e.dispatch(c, []transport.Event{{Type: transport.EventConnAccept}})
	}
	e.afterConnWork(c, now)
}

// afterConnWork flushes any datagrams the connection already has queued,
// hands its pending events to the Handler (which may itself queue new
// stream writes in response), flushes again so those responses go out
// immediately, reschedules the connection's timer, and retires it from the
// registry once fully closed.
func (e *engine) afterConnWork(c *remoteConn, now time.Time) {
	e.flush(c)
	events := c.conn.Events(nil)
	if len(events) > 0 {
		e.dispatch(c, events)
		e.flush(c)
	}
	if c.conn.IsClosed() {
		e.reg.remove(c)
		e.wheel.remove(c)
		connectionsActive.Dec()
		e.dispatch(c, []transport.Event{{Type: transport.EventConnClose}})
		return
	}
	e.wheel.schedule(c, c.idleDeadline(now))
}

// flush drains every datagram the connection is ready to send.
func (e *engine) flush(c *remoteConn) {
	out := e.outBufs.get()
	defer e.outBufs.put(out)
	for {
		n, err := c.conn.Read(out)
		if err != nil || n == 0 {
			return
		}
		if _, werr := e.sock.writeTo(out[:n], c.addr); werr == nil {
			packetsSentTotal.Inc()
		}
	}
}

func (e *engine) dispatch(c *remoteConn, events []transport.Event) {
	if e.handler != nil {
		e.handler.Serve(c, events)
	}
}

// acceptNew handles the first datagram from an address the registry does
// not yet know. It peeks the packet's version and CIDs without any keys: an
// unsupported version gets a Version Negotiation reply, and, when retry
// validation is enabled, a missing or invalid address-validation token gets
// a Retry reply instead of a connection.
func (e *engine) acceptNew(b []byte, addr net.Addr) (*remoteConn, error) {
	version, dcid, scid, token, isInitial, ok := transport.PeekLongHeader(b)
	if !ok {
		return nil, errMalformedHeader
	}
	if !transport.VersionSupported(version) {
		vn := transport.EncodeVersionNegotiation(dcid, scid)
		e.sock.writeTo(vn, addr)
		return nil, nil
	}
	if !isInitial {
		return nil, errNotInitial
	}
	var odcid []byte
	if e.requireRetry && e.tokens != nil {
		now := time.Now()
		if len(token) == 0 {
			newSCID, err := randomServerCID()
			if err != nil {
				return nil, err
			}
			minted, err := e.tokens.Mint(now, addr, dcid)
			if err != nil {
				return nil, err
			}
			retry, err := transport.EncodeRetry(version, scid, newSCID, dcid, minted)
			if err != nil {
				return nil, err
			}
			e.sock.writeTo(retry, addr)
			return nil, nil
		}
		validated, valid := e.tokens.Validate(now, token, addr)
		if !valid {
			newSCID, err := randomServerCID()
			if err != nil {
				return nil, err
			}
			minted, err := e.tokens.Mint(now, addr, dcid)
			if err != nil {
				return nil, err
			}
			retry, err := transport.EncodeRetry(version, scid, newSCID, dcid, minted)
			if err != nil {
				return nil, err
			}
			e.sock.writeTo(retry, addr)
			return nil, nil
		}
		odcid = validated
	}
	newSCID, err := randomServerCID()
	if err != nil {
		return nil, err
	}
	conn, err := transport.Accept(newSCID, odcid, e.config)
	if err != nil {
		return nil, err
	}
	c := &remoteConn{scid: newSCID, addr: addr, conn: conn}
	e.reg.addByCID(newSCID, c)
	e.reg.addByAddr(addr, c)
	connectionsActive.Inc()
	e.log.attachLogger(c)
	return c, nil
}

// localCIDLength is the fixed length of every CID this engine issues: the
// 12 bytes of an xid. A fixed length is what lets short-header packets,
// whose DCID field carries no length prefix, be routed by CID at all.
const localCIDLength = 12

func randomServerCID() ([]byte, error) {
	// xid encodes a mongo-style 12-byte id (timestamp + machine + counter):
	// reused here as a cheap, collision-resistant server CID source so the
	// hot accept path avoids an extra crypto/rand syscall.
	id := xid.New()
	b := id.Bytes()
	cid := make([]byte, len(b))
	copy(cid, b)
	return cid, nil
}

func (e *engine) connect(addr string) (*remoteConn, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	scid, err := randomServerCID()
	if err != nil {
		return nil, err
	}
	conn, err := transport.Connect(scid, e.config)
	if err != nil {
		return nil, err
	}
	c := &remoteConn{scid: scid, addr: raddr, conn: conn}
	e.reg.addByCID(scid, c)
	e.reg.addByAddr(raddr, c)
	connectionsActive.Inc()
	e.log.attachLogger(c)
	e.mu.Lock()
	e.afterConnWork(c, time.Now())
	e.mu.Unlock()
	return c, nil
}

func (e *engine) close() error {
	e.closeOnce.Do(func() {
		close(e.closed)
	})
	if e.sock != nil {
		return e.sock.close()
	}
	return nil
}

// peekDestinationCID extracts the destination connection id from a raw
// datagram without fully decoding it, used to route packets for connections
// whose address has changed (NAT rebinding, path migration). Short-header
// DCIDs carry no length prefix, so shortCIDLen supplies the fixed length
// this engine issues its own CIDs at.
func peekDestinationCID(b []byte, shortCIDLen int) ([]byte, bool) {
	if len(b) < 1 {
		return nil, false
	}
	if b[0]&0x80 != 0 {
		// Long header: version(4) dcil(1) dcid(dcil)
		if len(b) < 6 {
			return nil, false
		}
		dcil := int(b[5])
		if len(b) < 6+dcil {
			return nil, false
		}
		return b[6 : 6+dcil], true
	}
	if len(b) < 1+shortCIDLen {
		return nil, false
	}
	return b[1 : 1+shortCIDLen], true
}
