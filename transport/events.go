package transport

// EventType classifies a Conn-level Event delivered to the embedder via
// Events (spec section 6, "Embedder API").
type EventType uint8

const (
	// EventStream indicates a stream has data available to read, has been
	// reset by the peer, or the peer asked to stop receiving on it.
	EventStream EventType = iota
	// EventStreamComplete indicates a stream's send side has been fully
	// acknowledged and its bookkeeping can be released.
	EventStreamComplete
	// EventConnAccept indicates the connection has completed its handshake
	// and is ready for use; the engine synthesizes this, it is never
	// produced by Conn itself.
	EventConnAccept
	// EventConnClose indicates the connection has fully closed and has
	// been (or is about to be) removed from the engine's registry.
	EventConnClose
)

// Event is a single notable occurrence the embedder should react to,
// collected during Write/Read and drained via Conn.Events.
type Event struct {
	Type      EventType
	StreamID  uint64
	ErrorCode uint64
}

func newStreamRecvEvent(streamID uint64) Event {
	return Event{Type: EventStream, StreamID: streamID}
}

func newStreamResetEvent(streamID, errorCode uint64) Event {
	return Event{Type: EventStream, StreamID: streamID, ErrorCode: errorCode}
}

func newStreamStopEvent(streamID, errorCode uint64) Event {
	return Event{Type: EventStream, StreamID: streamID, ErrorCode: errorCode}
}

func newStreamCompleteEvent(streamID uint64) Event {
	return Event{Type: EventStreamComplete, StreamID: streamID}
}
