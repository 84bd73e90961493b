package transport

import (
	"fmt"
	"sort"
)

// Stream states, per spec section 3: idle -> open (send|recv) ->
// half-closed -> closed; reset jumps the affected direction to closed
// immediately.
type streamState uint8

const (
	streamOpen streamState = iota
	streamHalfClosed
	streamClosed
)

// Stream is one QUIC stream's local state: send/receive offsets and
// windows, FIN flags, buffered send data and a reassembly buffer for
// received data (spec section 3).
type Stream struct {
	id   uint64
	bidi bool

	send sendBuffer
	recv recvBuffer

	flow          flowControl
	connFlow      *flowControl // back-reference for aggregate accounting
	updateMaxData bool

	sendState streamState
	recvState streamState

	resetPend bool // RESET_STREAM queued but not yet framed
	resetSent bool
	resetCode uint64
	resetSize uint64
	stopPend  bool // STOP_SENDING queued but not yet framed
	stopSent  bool
	stopCode  uint64

	peerStopped bool
	peerReset   bool
}

func newStream(id uint64, bidi bool) *Stream {
	return &Stream{id: id, bidi: bidi}
}

// isStreamLocal reports whether id was initiated by us (the endpoint acting
// as isClient).
func isStreamLocal(id uint64, isClient bool) bool {
	clientInitiated := id&0x1 == 0
	return clientInitiated == isClient
}

// isStreamBidi reports whether id names a bidirectional stream.
func isStreamBidi(id uint64) bool {
	return id&0x2 == 0
}

// Write appends data to the stream's send queue, to be scheduled for
// transmission subject to flow control (spec section 4.4, "write"). Writes
// never block or fail for flow control: unsent data is simply buffered.
func (s *Stream) Write(data []byte) (int, error) {
	if s.sendState == streamClosed {
		return 0, newError(StreamStateError, "stream send side closed")
	}
	s.send.write(data)
	return len(data), nil
}

// Close sets FIN on the stream's final outbound data.
func (s *Stream) Close() error {
	if s.sendState == streamClosed {
		return nil
	}
	s.send.closeSend()
	return nil
}

// Reset abruptly terminates the send side, queueing a RESET_STREAM with the
// given application error code at the current send offset as final size.
// Buffered but unsent data is discarded.
func (s *Stream) Reset(errCode uint64) {
	if s.resetPend || s.resetSent {
		return
	}
	s.resetPend = true
	s.resetCode = errCode
	s.resetSize = s.send.length
	s.send.chunks = nil
	s.sendState = streamClosed
}

// StopSending queues a STOP_SENDING signalling the peer that incoming data
// on this stream will be discarded.
func (s *Stream) StopSending(errCode uint64) {
	if s.stopPend || s.stopSent {
		return
	}
	s.stopPend = true
	s.stopCode = errCode
}

// PeerClosed reports whether the peer has finished its send side of the
// stream, either cleanly (FIN fully delivered) or via RESET_STREAM.
func (s *Stream) PeerClosed() bool {
	return s.peerReset || s.peerHalfClosed()
}

// Read returns the contiguous prefix of received bytes currently available.
func (s *Stream) Read(buf []byte) (int, error) {
	n, fin := s.recv.read(buf)
	if n > 0 && s.flow.shouldUpdateMaxRecv() {
		s.updateMaxData = true
	}
	if n == 0 && fin {
		return 0, errStreamClosed
	}
	return n, nil
}

// pushRecv delivers a received STREAM-frame chunk into the reassembly
// buffer.
func (s *Stream) pushRecv(data []byte, offset uint64, fin bool) error {
	return s.recv.push(data, offset, fin)
}

// popSend returns up to max bytes of outstanding send data for framing.
func (s *Stream) popSend(max int) (data []byte, offset uint64, fin bool) {
	return s.send.pop(max)
}

func (s *Stream) ackMaxData() {
	s.updateMaxData = false
}

func (s *Stream) peerHalfClosed() bool {
	return s.recv.hasFin && s.recv.readOffset == s.recv.finOffset
}

func (s *Stream) String() string {
	return fmt.Sprintf("id=%d send_off=%d recv_off=%d", s.id, s.send.length, s.recv.readOffset)
}

var errStreamClosed = newError(NoError, "stream closed")

// streamLimits tracks the locally-imposed and peer-imposed caps on the
// number of concurrently open streams, separately for each (direction,
// initiator) combination.
type streamLimits struct {
	localMaxBidi uint64
	localMaxUni  uint64
	peerMaxBidi  uint64
	peerMaxUni   uint64
	nextBidi     uint64
	nextUni      uint64
	openBidi     uint64
	openUni      uint64

	blockedBidi bool // hit peerMaxBidi; STREAMS_BLOCKED owed
	blockedUni  bool // hit peerMaxUni; STREAMS_BLOCKED owed
}

// streamMap owns every stream for a connection, keyed by stream id, plus
// the concurrency limits governing new stream creation (spec section 4.4).
type streamMap struct {
	streams  map[uint64]*Stream
	limits   streamLimits
	isClient bool
}

func (m *streamMap) init(maxBidi, maxUni uint64, isClient bool) {
	m.streams = make(map[uint64]*Stream)
	m.limits.localMaxBidi = maxBidi
	m.limits.localMaxUni = maxUni
	m.isClient = isClient
}

func (m *streamMap) get(id uint64) *Stream {
	return m.streams[id]
}

// create allocates a new stream with id, enforcing the relevant
// concurrency limit.
func (m *streamMap) create(id uint64, local, bidi bool) (*Stream, error) {
	if local {
		if bidi && m.limits.openBidi >= m.limits.peerMaxBidi {
			m.limits.blockedBidi = true
			return nil, newError(StreamLimitError, "bidi stream limit")
		}
		if !bidi && m.limits.openUni >= m.limits.peerMaxUni {
			m.limits.blockedUni = true
			return nil, newError(StreamLimitError, "uni stream limit")
		}
	} else {
		if bidi && m.limits.openBidi >= m.limits.localMaxBidi {
			return nil, newError(StreamLimitError, "bidi stream limit")
		}
		if !bidi && m.limits.openUni >= m.limits.localMaxUni {
			return nil, newError(StreamLimitError, "uni stream limit")
		}
	}
	if bidi {
		m.limits.openBidi++
	} else {
		m.limits.openUni++
	}
	st := newStream(id, bidi)
	m.streams[id] = st
	return st, nil
}

// peekLocalID returns the next unused locally-initiated stream id of the
// requested directionality (spec section 4.4, "open assigns next local id of
// correct parity"). The cursor only advances via advanceLocalID, once the
// stream is actually created, so a failed open does not leave an id gap.
func (m *streamMap) peekLocalID(bidi bool) uint64 {
	low := uint64(0)
	if !m.isClient {
		low = 1
	}
	if bidi {
		return low + m.limits.nextBidi*4
	}
	return low + 2 + m.limits.nextUni*4
}

func (m *streamMap) advanceLocalID(bidi bool) {
	if bidi {
		m.limits.nextBidi++
	} else {
		m.limits.nextUni++
	}
}

func (m *streamMap) setPeerMaxStreamsBidi(max uint64) {
	if max > m.limits.peerMaxBidi {
		m.limits.peerMaxBidi = max
		m.limits.blockedBidi = false
	}
}

func (m *streamMap) setPeerMaxStreamsUni(max uint64) {
	if max > m.limits.peerMaxUni {
		m.limits.peerMaxUni = max
		m.limits.blockedUni = false
	}
}

// hasFlushable reports whether any stream has data, a FIN, a pending reset
// or stop signal, or a MAX_STREAM_DATA update ready to send.
func (m *streamMap) hasFlushable() bool {
	for _, st := range m.streams {
		if st.send.hasPending() || st.updateMaxData || st.resetPend || st.stopPend {
			return true
		}
	}
	return false
}

// orderedIDs returns every stream id in a deterministic send order: streams
// with more outstanding send bytes are scheduled first, with ascending
// stream id as a tie-break, so frame scheduling does not depend on Go's
// randomized map iteration order (spec section 4.4).
func (m *streamMap) orderedIDs() []uint64 {
	ids := make([]uint64, 0, len(m.streams))
	for id := range m.streams {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		pi := m.streams[ids[i]].send.pending()
		pj := m.streams[ids[j]].send.pending()
		if pi != pj {
			return pi > pj
		}
		return ids[i] < ids[j]
	})
	return ids
}
