package transport

import "testing"

func TestFlowControlRecvWindow(t *testing.T) {
	var f flowControl
	f.init(100, 0)
	if f.canRecv() != 100 {
		t.Fatalf("canRecv = %d, want 100", f.canRecv())
	}
	f.addRecv(40)
	if f.canRecv() != 60 {
		t.Fatalf("canRecv = %d, want 60", f.canRecv())
	}
	f.addRecv(60)
	if f.canRecv() != 0 {
		t.Fatalf("canRecv = %d, want 0", f.canRecv())
	}
}

func TestFlowControlSendWindow(t *testing.T) {
	var f flowControl
	f.init(0, 50)
	if f.shouldSendBlocked() {
		t.Fatal("should not be blocked with a fresh window")
	}
	if f.canSend() != 50 {
		t.Fatalf("canSend = %d, want 50", f.canSend())
	}
	f.addSend(50)
	if !f.shouldSendBlocked() {
		t.Fatal("expected send side to be blocked once window is exhausted")
	}
	f.markBlockedSent()
	if f.shouldSendBlocked() {
		t.Fatal("blocked signal should only be queued once per limit")
	}
	f.setMaxSend(80)
	if f.shouldSendBlocked() {
		t.Fatal("expected raising the peer's limit to unblock sending")
	}
	if f.canSend() != 30 {
		t.Fatalf("canSend = %d, want 30", f.canSend())
	}
	f.addSend(30)
	if !f.shouldSendBlocked() {
		t.Fatal("expected a fresh blocked signal at the raised limit")
	}
}

func TestFlowControlSetMaxSendIgnoresLowerValue(t *testing.T) {
	var f flowControl
	f.init(0, 100)
	f.setMaxSend(50)
	if f.maxSend != 100 {
		t.Fatalf("setMaxSend should never shrink the window, got %d", f.maxSend)
	}
}

func TestFlowControlShouldUpdateMaxRecv(t *testing.T) {
	var f flowControl
	f.init(100, 0)
	if f.shouldUpdateMaxRecv() {
		t.Fatal("should not need an update with a fresh window")
	}
	f.addRecv(60)
	if !f.shouldUpdateMaxRecv() {
		t.Fatal("expected an update once more than half the window is consumed")
	}
	f.commitMaxRecv()
	if f.maxRecv != f.maxRecvNext {
		t.Fatal("expected commitMaxRecv to advance maxRecv to maxRecvNext")
	}
	if f.shouldUpdateMaxRecv() {
		t.Fatal("should not need another update immediately after committing")
	}
}
