package transport

import (
	"time"

	"golang.org/x/time/rate"
)

// pacer smooths packet transmission across a congestion window instead of
// bursting it all at once (spec section 4.5, "Pacing"), implemented on top
// of a token-bucket limiter whose burst is a quarter of the congestion
// window plus one minimum-size packet.
type pacer struct {
	limiter *rate.Limiter
}

func newPacer() *pacer {
	return &pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
}

// update retunes the pacing rate from the current congestion window and
// smoothed RTT: 1.25 * window / rtt bytes per second, per RFC 9002 section
// 7.7, burstable up to a quarter of the window plus MinInitialPacketSize
// bytes.
func (p *pacer) update(congestionWindow uint64, smoothedRTT time.Duration) {
	if smoothedRTT <= 0 || congestionWindow == 0 {
		p.limiter.SetLimit(rate.Inf)
		return
	}
	ratePerSec := float64(congestionWindow) * 1.25 / smoothedRTT.Seconds()
	burst := int(congestionWindow/4) + MinInitialPacketSize
	p.limiter.SetLimit(rate.Limit(ratePerSec))
	p.limiter.SetBurst(burst)
}

// allow reports whether size bytes may be sent at now without exceeding the
// pacing rate; it does not block.
func (p *pacer) allow(now time.Time, size int) bool {
	return p.limiter.AllowN(now, size)
}

// nextSendTime returns how long after now the caller must wait before size
// bytes would be allowed, used to arm a pacing timer instead of busy-polling.
func (p *pacer) nextSendTime(now time.Time, size int) time.Duration {
	r := p.limiter.ReserveN(now, size)
	if !r.OK() {
		return 0
	}
	delay := r.DelayFrom(now)
	r.Cancel()
	return delay
}
