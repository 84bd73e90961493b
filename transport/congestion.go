package transport

import "time"

// Congestion control constants from RFC 9002 section 7.
const (
	kInitialRTT                     = 333 * time.Millisecond
	kPacketThreshold                = 3
	kTimeThresholdNum               = 9
	kTimeThresholdDen               = 8
	kGranularity                    = time.Millisecond
	kPersistentCongestionMultiplier = 3
	minimumWindowPackets            = 2
)

// congestionState implements NewReno (RFC 9002 section 7.3): exponential
// growth in slow start until a loss halves the window, then congestion
// avoidance with per-RTT additive growth.
type congestionState struct {
	maxDatagramSize uint64

	congestionWindow uint64
	bytesInFlight    uint64
	ssthresh         uint64

	recoveryStartTime time.Time

	ackedBytesInRound uint64
}

func initialWindow(maxDatagramSize uint64) uint64 {
	w := 10 * maxDatagramSize
	min := 2 * maxDatagramSize
	if min < 14720 {
		min = 14720
	}
	if w < min {
		return w
	}
	return min
}

func (c *congestionState) init(maxDatagramSize uint64) {
	c.maxDatagramSize = maxDatagramSize
	c.congestionWindow = initialWindow(maxDatagramSize)
	c.ssthresh = ^uint64(0)
}

func (c *congestionState) minimumWindow() uint64 {
	return minimumWindowPackets * c.maxDatagramSize
}

// inSlowStart reports whether the controller has not yet seen a loss since
// the last window reduction.
func (c *congestionState) inSlowStart() bool {
	return c.congestionWindow < c.ssthresh
}

// onPacketSentCC accounts size bytes as newly in flight.
func (c *congestionState) onPacketSentCC(size uint64) {
	c.bytesInFlight += size
}

// onPacketAcked grows the window: exponentially during slow start, by one
// maximum datagram size per window's worth of acked bytes during avoidance.
func (c *congestionState) onPacketAcked(size uint64, sentTime, now time.Time) {
	if c.bytesInFlight >= size {
		c.bytesInFlight -= size
	} else {
		c.bytesInFlight = 0
	}
	if c.isAppOrFlowControlLimited() {
		return
	}
	if c.inSlowStart() {
		c.congestionWindow += size
		return
	}
	c.ackedBytesInRound += size
	if c.ackedBytesInRound >= c.congestionWindow {
		c.ackedBytesInRound -= c.congestionWindow
		c.congestionWindow += c.maxDatagramSize
	}
}

// isAppOrFlowControlLimited is a hook for callers that track send
// starvation; the base controller is never limited on its own.
func (c *congestionState) isAppOrFlowControlLimited() bool {
	return false
}

// onCongestionEvent halves the window (once per recovery period) on
// detecting loss or ECN-CE, per RFC 9002 section 7.3.2.
func (c *congestionState) onCongestionEvent(sentTime, now time.Time) {
	if !c.recoveryStartTime.IsZero() && !sentTime.After(c.recoveryStartTime) {
		return // already in a recovery period covering this loss
	}
	c.recoveryStartTime = now
	c.congestionWindow /= 2
	if c.congestionWindow < c.minimumWindow() {
		c.congestionWindow = c.minimumWindow()
	}
	c.ssthresh = c.congestionWindow
	c.ackedBytesInRound = 0
}

// onPersistentCongestion collapses the window to the minimum, per RFC 9002
// section 7.6.2.
func (c *congestionState) onPersistentCongestion() {
	c.congestionWindow = c.minimumWindow()
	c.recoveryStartTime = time.Time{}
}

func (c *congestionState) onPacketDiscarded(size uint64) {
	if c.bytesInFlight >= size {
		c.bytesInFlight -= size
	} else {
		c.bytesInFlight = 0
	}
}

// available returns how many more bytes may currently be sent under the
// congestion window.
func (c *congestionState) available() uint64 {
	if c.bytesInFlight >= c.congestionWindow {
		return 0
	}
	return c.congestionWindow - c.bytesInFlight
}
