package transport

import (
	"bytes"
	"testing"
)

func TestStreamIDProperties(t *testing.T) {
	// Low two bits encode initiator and directionality.
	if !isStreamLocal(0, true) || isStreamLocal(0, false) {
		t.Fatal("stream 0 is client-initiated")
	}
	if !isStreamLocal(1, false) || isStreamLocal(1, true) {
		t.Fatal("stream 1 is server-initiated")
	}
	if !isStreamBidi(0) || !isStreamBidi(1) {
		t.Fatal("streams 0 and 1 are bidirectional")
	}
	if isStreamBidi(2) || isStreamBidi(3) {
		t.Fatal("streams 2 and 3 are unidirectional")
	}
}

func TestStreamMapLocalIDAllocation(t *testing.T) {
	var m streamMap
	m.init(10, 10, true)
	m.setPeerMaxStreamsBidi(10)
	m.setPeerMaxStreamsUni(10)
	wantBidi := []uint64{0, 4, 8}
	for _, want := range wantBidi {
		id := m.peekLocalID(true)
		if id != want {
			t.Fatalf("next bidi id = %d, want %d", id, want)
		}
		if _, err := m.create(id, true, true); err != nil {
			t.Fatal(err)
		}
		m.advanceLocalID(true)
	}
	wantUni := []uint64{2, 6}
	for _, want := range wantUni {
		id := m.peekLocalID(false)
		if id != want {
			t.Fatalf("next uni id = %d, want %d", id, want)
		}
		if _, err := m.create(id, true, false); err != nil {
			t.Fatal(err)
		}
		m.advanceLocalID(false)
	}
}

func TestStreamMapServerParity(t *testing.T) {
	var m streamMap
	m.init(10, 10, false)
	if id := m.peekLocalID(true); id != 1 {
		t.Fatalf("server's first bidi id = %d, want 1", id)
	}
	if id := m.peekLocalID(false); id != 3 {
		t.Fatalf("server's first uni id = %d, want 3", id)
	}
}

func TestStreamMapLimits(t *testing.T) {
	var m streamMap
	m.init(1, 0, true)
	m.setPeerMaxStreamsBidi(1)
	if _, err := m.create(0, true, true); err != nil {
		t.Fatal(err)
	}
	_, err := m.create(4, true, true)
	if err == nil {
		t.Fatal("expected bidi stream limit to be enforced")
	}
	if !m.limits.blockedBidi {
		t.Fatal("expected a STREAMS_BLOCKED to be owed after hitting the limit")
	}
	m.setPeerMaxStreamsBidi(2)
	if m.limits.blockedBidi {
		t.Fatal("raising the limit should clear the blocked signal")
	}
	if _, err := m.create(4, true, true); err != nil {
		t.Fatal(err)
	}
}

func TestStreamMapOrderedIDs(t *testing.T) {
	var m streamMap
	m.init(10, 10, true)
	m.setPeerMaxStreamsBidi(10)
	a, _ := m.create(0, true, true)
	b, _ := m.create(4, true, true)
	c, _ := m.create(8, true, true)
	a.send.write([]byte("xx"))
	b.send.write([]byte("xxxxxx"))
	c.send.write([]byte("xx"))
	ids := m.orderedIDs()
	// Most outstanding bytes first, ties broken by lowest id.
	want := []uint64{4, 0, 8}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("orderedIDs = %v, want %v", ids, want)
		}
	}
}

func TestStreamWriteAfterResetFails(t *testing.T) {
	st := newStream(0, true)
	if _, err := st.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	st.Reset(42)
	if !st.resetPend {
		t.Fatal("expected a pending RESET_STREAM")
	}
	if st.resetSize != 5 {
		t.Fatalf("final size = %d, want 5", st.resetSize)
	}
	if st.send.hasPending() {
		t.Fatal("reset should discard buffered send data")
	}
	if _, err := st.Write([]byte("more")); err == nil {
		t.Fatal("expected write after reset to fail")
	}
}

func TestStreamStopSendingQueuedOnce(t *testing.T) {
	st := newStream(0, true)
	st.StopSending(7)
	if !st.stopPend || st.stopCode != 7 {
		t.Fatalf("stopPend=%v stopCode=%d", st.stopPend, st.stopCode)
	}
	st.StopSending(9)
	if st.stopCode != 7 {
		t.Fatal("second StopSending should not overwrite the first")
	}
}

func TestStreamReadTriggersWindowUpdate(t *testing.T) {
	st := newStream(0, true)
	st.flow.init(100, 100)
	data := bytes.Repeat([]byte{0xaa}, 80)
	if !st.flow.recvHighWater(80) {
		t.Fatal("80 bytes fit in a 100-byte window")
	}
	if err := st.pushRecv(data, 0, false); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 80)
	n, err := st.Read(buf)
	if err != nil || n != 80 {
		t.Fatalf("read %d, %v", n, err)
	}
	if !st.updateMaxData {
		t.Fatal("expected a MAX_STREAM_DATA update after consuming most of the window")
	}
}

func TestStreamPeerClosed(t *testing.T) {
	st := newStream(0, true)
	st.flow.init(100, 100)
	if st.PeerClosed() {
		t.Fatal("fresh stream is not peer-closed")
	}
	if err := st.pushRecv([]byte("hi"), 0, true); err != nil {
		t.Fatal(err)
	}
	if st.PeerClosed() {
		t.Fatal("FIN received but not yet delivered")
	}
	buf := make([]byte, 8)
	if _, err := st.Read(buf); err != nil {
		t.Fatal(err)
	}
	if !st.PeerClosed() {
		t.Fatal("expected peer-closed once FIN offset is consumed")
	}
	reset := newStream(4, true)
	reset.peerReset = true
	if !reset.PeerClosed() {
		t.Fatal("peer reset implies peer-closed")
	}
}
