package transport

import "time"

// outgoingPacket records the frames and metadata of one packet as it is
// being assembled, before it is hashed into a sentPacket record by
// onPacketSent (spec section 3, "Packet Metadata Record").
type outgoingPacket struct {
	packetNumber uint64
	frames       []frame
	ackEliciting bool
	inFlight     bool
	size         uint64
	timeSent     time.Time
}

func newOutgoingPacket(pn uint64, now time.Time) *outgoingPacket {
	return &outgoingPacket{packetNumber: pn, timeSent: now}
}

func (op *outgoingPacket) addFrame(f frame) {
	op.frames = append(op.frames, f)
	typ := frameTypeOf(f)
	if isFrameAckEliciting(typ) {
		op.ackEliciting = true
		op.inFlight = true
	}
	if typ == frameTypePadding {
		op.inFlight = true
	}
}

// frameTypeOf returns the wire type of a decoded/constructed frame, used
// only for the ack-eliciting/in-flight classification above.
func frameTypeOf(f frame) uint64 {
	switch f.(type) {
	case *paddingFrame:
		return frameTypePadding
	case *pingFrame:
		return frameTypePing
	case *ackFrame:
		return frameTypeAck
	case *resetStreamFrame:
		return frameTypeResetStream
	case *stopSendingFrame:
		return frameTypeStopSending
	case *cryptoFrame:
		return frameTypeCrypto
	case *newTokenFrame:
		return frameTypeNewToken
	case *streamFrame:
		return frameTypeStream
	case *maxDataFrame:
		return frameTypeMaxData
	case *maxStreamDataFrame:
		return frameTypeMaxStreamData
	case *maxStreamsFrame:
		return frameTypeMaxStreamsBidi
	case *dataBlockedFrame:
		return frameTypeDataBlocked
	case *streamDataBlockedFrame:
		return frameTypeStreamDataBlocked
	case *streamsBlockedFrame:
		return frameTypeStreamsBlockedBidi
	case *newConnectionIDFrame:
		return frameTypeNewConnectionID
	case *retireConnectionIDFrame:
		return frameTypeRetireConnectionID
	case *pathChallengeFrame:
		return frameTypePathChallenge
	case *pathResponseFrame:
		return frameTypePathResponse
	case *connectionCloseFrame:
		return frameTypeConnectionClose
	case *handshakeDoneFrame:
		return frameTypeHanshakeDone
	default:
		return frameTypePadding
	}
}

// sentPacket is the parallel metadata-array entry kept for every in-flight
// packet until it is acknowledged, declared lost, or its space is dropped
// (spec section 9, "parallel metadata array" design note): the frames it
// carried are retained only long enough to requeue them on loss.
type sentPacket struct {
	packetNumber uint64
	timeSent     time.Time
	size         uint64
	ackEliciting bool
	inFlight     bool
	frames       []frame
}

// lossRecovery is a per-connection loss detection and RTT estimator,
// shared by all three packet-number spaces but keyed per-space for sent
// packet tracking (RFC 9002).
type lossRecovery struct {
	meta        packetMetaPool
	sent        [packetSpaceCount][]pktMetaIdx
	lost        [packetSpaceCount][]frame
	ackedFrames [packetSpaceCount][]frame

	largestAcked [packetSpaceCount]uint64
	hasLargestAcked [packetSpaceCount]bool

	lossTime [packetSpaceCount]time.Time

	latestRTT   time.Duration
	minRTT      time.Duration
	smoothedRTT time.Duration
	rttVar      time.Duration
	maxAckDelay time.Duration

	ptoCount int
	probes   int

	lossDetectionTimer time.Time

	cc    congestionState
	pacer pacer
}

func (r *lossRecovery) init(now time.Time) {
	*r = lossRecovery{}
	r.smoothedRTT = kInitialRTT
	r.rttVar = kInitialRTT / 2
	r.maxAckDelay = 25 * time.Millisecond
	r.cc.init(MinInitialPacketSize)
	r.pacer = *newPacer()
}

// onPacketSent records a just-sent packet for later ack/loss bookkeeping
// and congestion/pacing accounting.
func (r *lossRecovery) onPacketSent(op *outgoingPacket, space packetSpace) {
	idx := r.meta.alloc(sentPacket{
		packetNumber: op.packetNumber,
		timeSent:     op.timeSent,
		size:         op.size,
		ackEliciting: op.ackEliciting,
		inFlight:     op.inFlight,
		frames:       op.frames,
	})
	r.sent[space] = append(r.sent[space], idx)
	if op.inFlight {
		r.cc.onPacketSentCC(op.size)
		r.pacer.update(r.cc.congestionWindow, r.smoothedRTT)
	}
	if op.ackEliciting {
		r.setLossDetectionTimer(op.timeSent)
	}
}

// onAckReceived updates the RTT estimate (from the largest newly-acked
// packet) and drains acked/lost packets for space.
func (r *lossRecovery) onAckReceived(acked *numberSet, ackDelay time.Duration, space packetSpace, now time.Time) {
	if acked == nil || acked.empty() {
		return
	}
	largest, _ := acked.max()
	if !r.hasLargestAcked[space] || largest > r.largestAcked[space] {
		r.largestAcked[space] = largest
		r.hasLargestAcked[space] = true
	}
	var newlyAcked []sentPacket
	kept := r.sent[space][:0]
	for _, idx := range r.sent[space] {
		sp := r.meta.get(idx)
		if acked.contains(sp.packetNumber) {
			newlyAcked = append(newlyAcked, *sp)
			r.meta.release(idx)
		} else {
			kept = append(kept, idx)
		}
	}
	r.sent[space] = kept
	if len(newlyAcked) == 0 {
		return
	}
	// Update RTT from the largest acknowledged packet, if it was itself
	// newly acked and ack-eliciting (RFC 9002 section 5.1).
	latest := newlyAcked[0]
	for _, sp := range newlyAcked {
		if sp.packetNumber > latest.packetNumber {
			latest = sp
		}
	}
	if latest.packetNumber == largest && latest.ackEliciting {
		r.updateRTT(now.Sub(latest.timeSent), ackDelay, space)
	}
	for _, sp := range newlyAcked {
		r.cc.onPacketAcked(sp.size, sp.timeSent, now)
		r.pacer.update(r.cc.congestionWindow, r.smoothedRTT)
		r.ackedFrames[space] = append(r.ackedFrames[space], sp.frames...)
	}
	r.ptoCount = 0
	r.detectLostPackets(space, now)
	r.setLossDetectionTimer(now)
}

func (r *lossRecovery) updateRTT(sample, ackDelay time.Duration, space packetSpace) {
	if r.minRTT == 0 || sample < r.minRTT {
		r.minRTT = sample
	}
	adjusted := sample
	if space == packetSpaceApplication && ackDelay > 0 {
		if d := ackDelay; d < r.maxAckDelay {
			if adjusted-r.minRTT >= d {
				adjusted -= d
			}
		} else if adjusted-r.minRTT >= r.maxAckDelay {
			adjusted -= r.maxAckDelay
		}
	}
	r.latestRTT = sample
	if r.smoothedRTT == 0 {
		r.smoothedRTT = sample
		r.rttVar = sample / 2
		return
	}
	var diff time.Duration
	if r.smoothedRTT > adjusted {
		diff = r.smoothedRTT - adjusted
	} else {
		diff = adjusted - r.smoothedRTT
	}
	r.rttVar = (3*r.rttVar + diff) / 4
	r.smoothedRTT = (7*r.smoothedRTT + adjusted) / 8
}

// drainAcked invokes fn for every frame of every packet handed to
// onAckReceived since the last drain call in this space, then forgets them.
func (r *lossRecovery) drainAcked(space packetSpace, fn func(frame)) {
	// Newly-acked frames were already folded out of r.sent in onAckReceived;
	// drainAcked is invoked right after, so replay from a side buffer.
	for _, f := range r.ackedFrames[space] {
		fn(f)
	}
	r.ackedFrames[space] = r.ackedFrames[space][:0]
}

// drainLost invokes fn for every frame carried by a packet newly declared
// lost in space, then forgets them.
func (r *lossRecovery) drainLost(space packetSpace, fn func(frame)) {
	for _, f := range r.lost[space] {
		fn(f)
	}
	r.lost[space] = r.lost[space][:0]
}

// detectLostPackets applies the packet- and time-threshold loss rules (RFC
// 9002 section 6.1) to every still-unacked packet below the newly
// established largest-acked watermark.
func (r *lossRecovery) detectLostPackets(space packetSpace, now time.Time) {
	if !r.hasLargestAcked[space] {
		return
	}
	lossDelay := time.Duration(float64(maxDuration(r.latestRTT, r.smoothedRTT)) * kTimeThresholdNum / kTimeThresholdDen)
	if lossDelay < kGranularity {
		lossDelay = kGranularity
	}
	lossTime := now.Add(-lossDelay)
	largest := r.largestAcked[space]
	r.lossTime[space] = time.Time{}
	kept := r.sent[space][:0]
	var earliestUnacked time.Time
	var lostFirst, lostLast time.Time
	for _, idx := range r.sent[space] {
		sp := r.meta.get(idx)
		if sp.packetNumber > largest {
			kept = append(kept, idx)
			continue
		}
		lost := largest-sp.packetNumber >= kPacketThreshold || sp.timeSent.Before(lossTime) || sp.timeSent.Equal(lossTime)
		if lost {
			r.lost[space] = append(r.lost[space], sp.frames...)
			if sp.inFlight {
				r.cc.onCongestionEvent(sp.timeSent, now)
				r.cc.onPacketDiscarded(sp.size)
			}
			if lostFirst.IsZero() || sp.timeSent.Before(lostFirst) {
				lostFirst = sp.timeSent
			}
			if sp.timeSent.After(lostLast) {
				lostLast = sp.timeSent
			}
			r.meta.release(idx)
			continue
		}
		kept = append(kept, idx)
		deadline := sp.timeSent.Add(lossDelay)
		if earliestUnacked.IsZero() || deadline.Before(earliestUnacked) {
			earliestUnacked = deadline
		}
	}
	r.sent[space] = kept
	r.lossTime[space] = earliestUnacked
	r.maybePersistentCongestion(lostFirst, lostLast)
}

// maybePersistentCongestion resets the congestion window to the minimum if
// the packets just declared lost in one pass span at least the persistent
// congestion duration (RFC 9002 section 7.6), implying nothing sent across
// that whole window was acknowledged.
func (r *lossRecovery) maybePersistentCongestion(lostFirst, lostLast time.Time) {
	if lostFirst.IsZero() || lostLast.IsZero() {
		return
	}
	threshold := (r.smoothedRTT + maxDuration(4*r.rttVar, kGranularity) + r.maxAckDelay) * kPersistentCongestionMultiplier
	if lostLast.Sub(lostFirst) >= threshold {
		r.cc.onPersistentCongestion()
	}
}

// dropUnackedData discards all tracked packets/frames for space, typically
// when the space itself is dropped (RFC 9001 section 4.9): their bytes stop
// counting against the congestion window and their frames are not retried.
func (r *lossRecovery) dropUnackedData(space packetSpace) {
	for _, idx := range r.sent[space] {
		sp := r.meta.get(idx)
		if sp.inFlight {
			r.cc.onPacketDiscarded(sp.size)
		}
		r.meta.release(idx)
	}
	r.sent[space] = nil
	r.lost[space] = nil
	r.ackedFrames[space] = nil
	r.lossTime[space] = time.Time{}
	r.hasLargestAcked[space] = false
}

// setLossDetectionTimer arms the combined loss-detection/PTO timer to the
// earlier of the per-space loss timer and the probe timeout.
func (r *lossRecovery) setLossDetectionTimer(now time.Time) {
	earliest := time.Time{}
	for _, t := range r.lossTime {
		if t.IsZero() {
			continue
		}
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
		}
	}
	if !earliest.IsZero() {
		r.lossDetectionTimer = earliest
		return
	}
	if r.hasAckElicitingInFlight() {
		r.lossDetectionTimer = now.Add(r.probeTimeout())
		return
	}
	r.lossDetectionTimer = time.Time{}
}

func (r *lossRecovery) hasAckElicitingInFlight() bool {
	for _, sent := range r.sent {
		for _, idx := range sent {
			if r.meta.get(idx).ackEliciting {
				return true
			}
		}
	}
	return false
}

// probeTimeout computes the current PTO duration (RFC 9002 section 6.2.1),
// backed off exponentially by consecutive expirations.
func (r *lossRecovery) probeTimeout() time.Duration {
	pto := r.smoothedRTT + maxDuration(4*r.rttVar, kGranularity) + r.maxAckDelay
	return pto << uint(r.ptoCount)
}

// onLossDetectionTimeout fires either a loss-detection pass (if a
// per-space loss timer expired) or schedules probe packets (PTO expiry).
func (r *lossRecovery) onLossDetectionTimeout(now time.Time) {
	for space := packetSpaceInitial; space < packetSpaceCount; space++ {
		if !r.lossTime[space].IsZero() && !now.Before(r.lossTime[space]) {
			r.detectLostPackets(space, now)
			r.setLossDetectionTimer(now)
			return
		}
	}
	r.ptoCount++
	r.probes += 2
	r.setLossDetectionTimer(now)
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
