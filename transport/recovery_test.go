package transport

import (
	"testing"
	"time"
)

func sendTestPacket(r *lossRecovery, space packetSpace, pn uint64, now time.Time, frames ...frame) {
	op := newOutgoingPacket(pn, now)
	for _, f := range frames {
		op.addFrame(f)
	}
	if len(frames) == 0 {
		op.addFrame(&pingFrame{})
	}
	op.size = 1200
	r.onPacketSent(op, space)
}

func ackSet(pns ...uint64) *numberSet {
	var s numberSet
	for _, pn := range pns {
		s.insert(pn)
	}
	return &s
}

func TestLossDetectionPacketThreshold(t *testing.T) {
	var r lossRecovery
	now := time.Now()
	r.init(now)
	for pn := uint64(1); pn <= 10; pn++ {
		sendTestPacket(&r, packetSpaceApplication, pn, now.Add(time.Duration(pn)*time.Millisecond),
			newStreamFrame(0, []byte("x"), pn, false))
	}
	// Peer acknowledges {1, 6..10}: packets 2..5 trail the largest acked by
	// at least kPacketThreshold and must be declared lost.
	r.onAckReceived(ackSet(1, 6, 7, 8, 9, 10), 0, packetSpaceApplication, now.Add(20*time.Millisecond))

	var lostOffsets []uint64
	r.drainLost(packetSpaceApplication, func(f frame) {
		if sf, ok := f.(*streamFrame); ok {
			lostOffsets = append(lostOffsets, sf.offset)
		}
	})
	if len(lostOffsets) != 4 {
		t.Fatalf("lost %d frames, want 4 (packets 2..5): %v", len(lostOffsets), lostOffsets)
	}
	for i, off := range lostOffsets {
		if off != uint64(i+2) {
			t.Fatalf("lost offsets = %v, want [2 3 4 5]", lostOffsets)
		}
	}
	// Nothing should remain tracked for the acked or lost packets.
	if len(r.sent[packetSpaceApplication]) != 0 {
		t.Fatalf("still tracking %d packets", len(r.sent[packetSpaceApplication]))
	}
}

func TestAckDrainsAckedFrames(t *testing.T) {
	var r lossRecovery
	now := time.Now()
	r.init(now)
	sendTestPacket(&r, packetSpaceApplication, 0, now, newStreamFrame(4, []byte("data"), 0, true))
	r.onAckReceived(ackSet(0), 0, packetSpaceApplication, now.Add(30*time.Millisecond))
	var acked int
	r.drainAcked(packetSpaceApplication, func(f frame) {
		if _, ok := f.(*streamFrame); ok {
			acked++
		}
	})
	if acked != 1 {
		t.Fatalf("drained %d acked stream frames, want 1", acked)
	}
	// Draining again must be a no-op.
	r.drainAcked(packetSpaceApplication, func(frame) { t.Fatal("drained twice") })
}

func TestRTTEstimatorEWMA(t *testing.T) {
	var r lossRecovery
	now := time.Now()
	r.init(now)
	r.smoothedRTT = 0 // first sample initializes
	r.updateRTT(100*time.Millisecond, 0, packetSpaceApplication)
	if r.smoothedRTT != 100*time.Millisecond {
		t.Fatalf("smoothed = %v, want 100ms", r.smoothedRTT)
	}
	if r.rttVar != 50*time.Millisecond {
		t.Fatalf("var = %v, want 50ms", r.rttVar)
	}
	r.updateRTT(200*time.Millisecond, 0, packetSpaceApplication)
	// smoothed = 7/8*100 + 1/8*200 = 112.5ms
	if r.smoothedRTT != 112500*time.Microsecond {
		t.Fatalf("smoothed = %v, want 112.5ms", r.smoothedRTT)
	}
	// var = 3/4*50 + 1/4*|100-200| = 62.5ms
	if r.rttVar != 62500*time.Microsecond {
		t.Fatalf("var = %v, want 62.5ms", r.rttVar)
	}
	if r.minRTT != 100*time.Millisecond {
		t.Fatalf("min = %v, want 100ms", r.minRTT)
	}
}

func TestProbeTimeoutBackoff(t *testing.T) {
	var r lossRecovery
	now := time.Now()
	r.init(now)
	base := r.probeTimeout()
	if base <= 0 {
		t.Fatal("probe timeout must be positive")
	}
	sendTestPacket(&r, packetSpaceApplication, 0, now)
	r.onLossDetectionTimeout(now.Add(base))
	if r.probeTimeout() != base*2 {
		t.Fatalf("pto after 1 expiry = %v, want %v", r.probeTimeout(), base*2)
	}
	if r.probes != 2 {
		t.Fatalf("probes = %d, want 2", r.probes)
	}
	// An ack of an ack-eliciting packet resets the backoff.
	r.onAckReceived(ackSet(0), 0, packetSpaceApplication, now.Add(base))
	if r.probeTimeout() != r.smoothedRTT+maxDuration(4*r.rttVar, kGranularity)+r.maxAckDelay {
		t.Fatalf("pto did not reset after ack: %v", r.probeTimeout())
	}
}

func TestDropUnackedDataClearsSpace(t *testing.T) {
	var r lossRecovery
	now := time.Now()
	r.init(now)
	sendTestPacket(&r, packetSpaceInitial, 0, now, newCryptoFrame([]byte("hello"), 0))
	sendTestPacket(&r, packetSpaceInitial, 1, now, newCryptoFrame([]byte("world"), 5))
	if r.cc.bytesInFlight == 0 {
		t.Fatal("expected bytes in flight")
	}
	r.dropUnackedData(packetSpaceInitial)
	if len(r.sent[packetSpaceInitial]) != 0 {
		t.Fatal("sent packets not dropped")
	}
	if r.cc.bytesInFlight != 0 {
		t.Fatalf("bytes in flight = %d after drop", r.cc.bytesInFlight)
	}
}

func TestPacketMetaPoolReuse(t *testing.T) {
	var p packetMetaPool
	a := p.alloc(sentPacket{packetNumber: 1})
	b := p.alloc(sentPacket{packetNumber: 2})
	if a == b {
		t.Fatal("distinct allocations share an index")
	}
	p.release(a)
	c := p.alloc(sentPacket{packetNumber: 3})
	if c != a {
		t.Fatalf("freed slot not reused: got %d, want %d", c, a)
	}
	if p.get(c).packetNumber != 3 {
		t.Fatalf("slot content = %d, want 3", p.get(c).packetNumber)
	}
	if p.get(b).packetNumber != 2 {
		t.Fatal("unrelated slot clobbered")
	}
}
