package transport

// flowControl implements one direction pair of flow-control accounting,
// shared by both the connection level (aggregating all streams) and each
// individual stream (spec section 4.2 "Flow control").
type flowControl struct {
	// Receive side.
	maxRecv       uint64 // advertised to peer (last MAX_DATA/MAX_STREAM_DATA sent)
	maxRecvNext   uint64 // value to advertise next time we raise the window
	received      uint64 // bytes received so far

	// Send side.
	maxSend     uint64 // peer-advertised limit (from MAX_DATA/MAX_STREAM_DATA)
	sent        uint64 // bytes sent so far
	blockedSent bool   // a *_BLOCKED at the current limit has been queued
}

func (f *flowControl) init(maxRecv, maxSend uint64) {
	f.maxRecv = maxRecv
	f.maxRecvNext = maxRecv
	f.maxSend = maxSend
}

// canRecv returns how many more bytes may be received before hitting the
// advertised window.
func (f *flowControl) canRecv() uint64 {
	if f.received >= f.maxRecv {
		return 0
	}
	return f.maxRecv - f.received
}

func (f *flowControl) addRecv(n int) {
	f.received += uint64(n)
}

// canSend returns how many more bytes may be sent before hitting the peer's
// advertised window.
func (f *flowControl) canSend() uint64 {
	if f.sent >= f.maxSend {
		return 0
	}
	return f.maxSend - f.sent
}

func (f *flowControl) addSend(n int) {
	f.sent += uint64(n)
}

// addSendMax raises the sent high-water mark to end, returning how many new
// bytes that accounts for (zero for retransmissions below the mark).
func (f *flowControl) addSendMax(end uint64) int {
	if end <= f.sent {
		return 0
	}
	n := end - f.sent
	f.sent = end
	return int(n)
}

func (f *flowControl) setMaxSend(max uint64) {
	if max > f.maxSend {
		f.maxSend = max
		f.blockedSent = false
	}
}

// recvHighWater accounts a received byte range ending at end against the
// advertised window, where the window is an absolute offset limit rather
// than a byte count (stream-level accounting). It reports false on a
// flow-control violation.
func (f *flowControl) recvHighWater(end uint64) bool {
	if end > f.maxRecv {
		return false
	}
	if end > f.received {
		f.received = end
	}
	return true
}

// shouldUpdateMaxRecv reports whether the remaining receive window has
// dropped below half of the last advertised window, in which case a new
// MAX_DATA/MAX_STREAM_DATA should be scheduled (spec section 4.2).
func (f *flowControl) shouldUpdateMaxRecv() bool {
	if f.maxRecv == 0 {
		return false
	}
	remaining := f.maxRecv - f.received
	if remaining >= f.maxRecv/2 {
		return false
	}
	// Offer a new limit maxRecv bytes beyond the current receive point.
	next := f.received + f.maxRecv
	if next > f.maxRecvNext {
		f.maxRecvNext = next
		return true
	}
	return false
}

// needMaxRecvUpdate is the non-mutating form of shouldUpdateMaxRecv, safe
// to call as a pure scheduling predicate.
func (f *flowControl) needMaxRecvUpdate() bool {
	if f.maxRecvNext > f.maxRecv {
		return true
	}
	if f.maxRecv == 0 {
		return false
	}
	return f.maxRecv-f.received < f.maxRecv/2
}

// commitMaxRecv advances the advertised window to maxRecvNext once the
// MAX_DATA/MAX_STREAM_DATA carrying it has been queued for sending.
func (f *flowControl) commitMaxRecv() {
	f.maxRecv = f.maxRecvNext
}

// shouldSendBlocked reports whether a *_BLOCKED frame should be queued: the
// send side has hit the peer's window and no blocked signal has been sent at
// this limit yet (spec section 3, the `blocked` pending flag).
func (f *flowControl) shouldSendBlocked() bool {
	return f.sent >= f.maxSend && !f.blockedSent
}

func (f *flowControl) markBlockedSent() {
	f.blockedSent = true
}
