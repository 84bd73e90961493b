package transport

import (
	"testing"
	"time"
)

func TestInitialWindow(t *testing.T) {
	if got := initialWindow(1200); got != 12000 {
		t.Fatalf("initialWindow(1200) = %d, want 12000", got)
	}
	// Large datagrams: capped at max(2*size, 14720).
	if got := initialWindow(1500); got != 14720 {
		t.Fatalf("initialWindow(1500) = %d, want 14720", got)
	}
	// Tiny datagrams: 10*size is below the cap.
	if got := initialWindow(100); got != 1000 {
		t.Fatalf("initialWindow(100) = %d, want 1000", got)
	}
}

func TestCongestionSlowStartGrowth(t *testing.T) {
	var c congestionState
	c.init(1200)
	start := c.congestionWindow
	now := time.Now()
	c.onPacketSentCC(1200)
	c.onPacketAcked(1200, now, now)
	if c.congestionWindow != start+1200 {
		t.Fatalf("cwnd = %d, want %d", c.congestionWindow, start+1200)
	}
	if !c.inSlowStart() {
		t.Fatal("expected to still be in slow start")
	}
}

func TestCongestionEventHalvesWindow(t *testing.T) {
	var c congestionState
	c.init(1200)
	start := c.congestionWindow
	now := time.Now()
	c.onCongestionEvent(now.Add(-time.Second), now)
	if c.congestionWindow != start/2 {
		t.Fatalf("cwnd = %d, want %d", c.congestionWindow, start/2)
	}
	if c.ssthresh != c.congestionWindow {
		t.Fatalf("ssthresh = %d, want %d", c.ssthresh, c.congestionWindow)
	}
	if c.inSlowStart() {
		t.Fatal("expected to have left slow start")
	}
	// A second loss within the same recovery period must not halve again.
	c.onCongestionEvent(now.Add(-time.Second), now.Add(time.Millisecond))
	if c.congestionWindow != start/2 {
		t.Fatalf("cwnd halved twice in one recovery period: %d", c.congestionWindow)
	}
}

func TestCongestionAvoidanceAdditiveGrowth(t *testing.T) {
	var c congestionState
	c.init(1200)
	now := time.Now()
	c.onCongestionEvent(now.Add(-time.Second), now) // leave slow start
	window := c.congestionWindow
	// One full window of acked bytes grows the window by one datagram.
	acked := uint64(0)
	for acked < window {
		c.onPacketSentCC(1200)
		c.onPacketAcked(1200, now, now)
		acked += 1200
	}
	if c.congestionWindow != window+1200 {
		t.Fatalf("cwnd = %d, want %d", c.congestionWindow, window+1200)
	}
}

func TestPersistentCongestionCollapsesWindow(t *testing.T) {
	var c congestionState
	c.init(1200)
	c.onPersistentCongestion()
	if c.congestionWindow != c.minimumWindow() {
		t.Fatalf("cwnd = %d, want %d", c.congestionWindow, c.minimumWindow())
	}
}

func TestCongestionAvailable(t *testing.T) {
	var c congestionState
	c.init(1200)
	window := c.congestionWindow
	c.onPacketSentCC(window - 100)
	if got := c.available(); got != 100 {
		t.Fatalf("available = %d, want 100", got)
	}
	c.onPacketSentCC(200)
	if got := c.available(); got != 0 {
		t.Fatalf("available = %d, want 0", got)
	}
	c.onPacketDiscarded(200)
	if got := c.available(); got != 100 {
		t.Fatalf("available = %d after discard, want 100", got)
	}
}
