package transport

import (
	"bytes"
	"testing"
)

func TestPaddingFrameRoundTrip(t *testing.T) {
	f := newPaddingFrame(5)
	b := make([]byte, f.encodedLen())
	n, err := f.encode(b)
	if err != nil || n != 5 {
		t.Fatalf("encode: n=%d err=%v", n, err)
	}
	var got paddingFrame
	n, err = got.decode(b)
	if err != nil || n != 5 {
		t.Fatalf("decode: n=%d err=%v", n, err)
	}
}

func TestResetStreamFrameRoundTrip(t *testing.T) {
	f := newResetStreamFrame(4, 0x10, 1200)
	b := make([]byte, f.encodedLen())
	if _, err := f.encode(b); err != nil {
		t.Fatal(err)
	}
	var got resetStreamFrame
	n, err := got.decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(b) {
		t.Fatalf("consumed %d, want %d", n, len(b))
	}
	if got.streamID != 4 || got.errorCode != 0x10 || got.finalSize != 1200 {
		t.Fatalf("got %+v", got)
	}
}

func TestStopSendingFrameRoundTrip(t *testing.T) {
	f := newStopSendingFrame(8, 0x42)
	b := make([]byte, f.encodedLen())
	f.encode(b)
	var got stopSendingFrame
	if _, err := got.decode(b); err != nil {
		t.Fatal(err)
	}
	if got.streamID != 8 || got.errorCode != 0x42 {
		t.Fatalf("got %+v", got)
	}
}

func TestCryptoFrameRoundTrip(t *testing.T) {
	data := []byte("client hello bytes")
	f := newCryptoFrame(data, 16)
	b := make([]byte, f.encodedLen())
	if _, err := f.encode(b); err != nil {
		t.Fatal(err)
	}
	var got cryptoFrame
	n, err := got.decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(b) {
		t.Fatalf("consumed %d, want %d", n, len(b))
	}
	if !bytes.Equal(got.data, data) || got.offset != 16 {
		t.Fatalf("got %+v", got)
	}
}

func TestStreamFrameRoundTrip(t *testing.T) {
	data := []byte("hello world")
	for _, fin := range []bool{false, true} {
		f := newStreamFrame(11, data, 100, fin)
		b := make([]byte, f.encodedLen())
		if _, err := f.encode(b); err != nil {
			t.Fatal(err)
		}
		var got streamFrame
		n, err := got.decode(b)
		if err != nil {
			t.Fatal(err)
		}
		if n != len(b) {
			t.Fatalf("consumed %d, want %d", n, len(b))
		}
		if got.streamID != 11 || got.offset != 100 || got.fin != fin || !bytes.Equal(got.data, data) {
			t.Fatalf("got %+v", got)
		}
	}
}

func TestMaxDataFrameRoundTrip(t *testing.T) {
	f := newMaxDataFrame(1 << 20)
	b := make([]byte, f.encodedLen())
	f.encode(b)
	var got maxDataFrame
	if _, err := got.decode(b); err != nil {
		t.Fatal(err)
	}
	if got.maximumData != 1<<20 {
		t.Fatalf("got %+v", got)
	}
}

func TestMaxStreamDataFrameRoundTrip(t *testing.T) {
	f := newMaxStreamDataFrame(3, 4096)
	b := make([]byte, f.encodedLen())
	f.encode(b)
	var got maxStreamDataFrame
	if _, err := got.decode(b); err != nil {
		t.Fatal(err)
	}
	if got.streamID != 3 || got.maximumData != 4096 {
		t.Fatalf("got %+v", got)
	}
}

func TestNewConnectionIDFrameRoundTrip(t *testing.T) {
	var token [resetTokenLength]byte
	for i := range token {
		token[i] = byte(i)
	}
	cid := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	f := newNewConnectionIDFrame(2, 1, cid, token)
	b := make([]byte, f.encodedLen())
	if _, err := f.encode(b); err != nil {
		t.Fatal(err)
	}
	var got newConnectionIDFrame
	n, err := got.decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(b) {
		t.Fatalf("consumed %d, want %d", n, len(b))
	}
	if got.seqNum != 2 || got.retirePriorTo != 1 || !bytes.Equal(got.cid, cid) || got.resetToken != token {
		t.Fatalf("got %+v", got)
	}
}

func TestNewConnectionIDFrameRejectsOversizeCID(t *testing.T) {
	var token [resetTokenLength]byte
	b := []byte{byte(frameTypeNewConnectionID), 0, 0, 21}
	b = append(b, make([]byte, 21+resetTokenLength)...)
	var got newConnectionIDFrame
	if _, err := got.decode(b); err == nil {
		t.Fatal("expected error decoding an oversize connection id")
	}
	_ = token
}

func TestRetireConnectionIDFrameRoundTrip(t *testing.T) {
	f := newRetireConnectionIDFrame(7)
	b := make([]byte, f.encodedLen())
	f.encode(b)
	var got retireConnectionIDFrame
	if _, err := got.decode(b); err != nil {
		t.Fatal(err)
	}
	if got.seqNum != 7 {
		t.Fatalf("got %+v", got)
	}
}

func TestPathChallengeResponseRoundTrip(t *testing.T) {
	var data [8]byte
	for i := range data {
		data[i] = byte(0xA0 + i)
	}
	cf := newPathChallengeFrame(data)
	b := make([]byte, cf.encodedLen())
	cf.encode(b)
	var gotC pathChallengeFrame
	if _, err := gotC.decode(b); err != nil {
		t.Fatal(err)
	}
	if gotC.data != data {
		t.Fatalf("got %+v", gotC)
	}

	rf := newPathResponseFrame(data)
	b2 := make([]byte, rf.encodedLen())
	rf.encode(b2)
	var gotR pathResponseFrame
	if _, err := gotR.decode(b2); err != nil {
		t.Fatal(err)
	}
	if gotR.data != data {
		t.Fatalf("got %+v", gotR)
	}
}

func TestConnectionCloseFrameRoundTrip(t *testing.T) {
	f := newConnectionCloseFrame(0x0a, 0x1c, []byte("bye"), false)
	b := make([]byte, f.encodedLen())
	if _, err := f.encode(b); err != nil {
		t.Fatal(err)
	}
	var got connectionCloseFrame
	n, err := got.decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(b) {
		t.Fatalf("consumed %d, want %d", n, len(b))
	}
	if got.errorCode != 0x0a || got.frameType != 0x1c || string(got.reasonPhrase) != "bye" || got.application {
		t.Fatalf("got %+v", got)
	}
}

func TestConnectionCloseFrameApplicationVariant(t *testing.T) {
	f := newConnectionCloseFrame(0x01, 0, nil, true)
	b := make([]byte, f.encodedLen())
	f.encode(b)
	var got connectionCloseFrame
	if _, err := got.decode(b); err != nil {
		t.Fatal(err)
	}
	if !got.application || got.errorCode != 0x01 {
		t.Fatalf("got %+v", got)
	}
}

func TestHandshakeDoneFrameRoundTrip(t *testing.T) {
	f := &handshakeDoneFrame{}
	b := make([]byte, f.encodedLen())
	if _, err := f.encode(b); err != nil {
		t.Fatal(err)
	}
	var got handshakeDoneFrame
	if _, err := got.decode(b); err != nil {
		t.Fatal(err)
	}
}

func TestAckFrameFromNumberSet(t *testing.T) {
	var recv numberSet
	recv.insertRange(0, 3)
	recv.insertRange(5, 8)
	f := newAckFrame(25, recv)
	if f.largestAck != 7 {
		t.Fatalf("largestAck = %d, want 7", f.largestAck)
	}
	b := make([]byte, f.encodedLen())
	if _, err := f.encode(b); err != nil {
		t.Fatal(err)
	}
	var got ackFrame
	if _, err := got.decode(b); err != nil {
		t.Fatal(err)
	}
	if got.largestAck != f.largestAck || got.ackDelay != f.ackDelay {
		t.Fatalf("got %+v, want %+v", got, f)
	}
	rs := got.toRangeSet()
	if !rs.contains(0) || !rs.contains(2) || rs.contains(4) || !rs.contains(7) {
		t.Fatalf("unexpected decoded ranges: %+v", rs.ranges)
	}
}
