package transport

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"
)

func newTestClientConn(t *testing.T) *Conn {
	t.Helper()
	config := &Config{
		Version: ProtocolVersion1,
		Params:  DefaultParameters(),
	}
	c, err := Connect([]byte{0xc1, 0xc2, 0xc3, 0xc4}, config)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestConnectGeneratesDestinationCID(t *testing.T) {
	c := newTestClientConn(t)
	if len(c.dcid) != MaxCIDLength {
		t.Fatalf("dcid length = %d, want %d", len(c.dcid), MaxCIDLength)
	}
	if !c.derivedInitialSecrets {
		t.Fatal("initial secrets not derived from the random DCID")
	}
	if !c.packetNumberSpaces[packetSpaceInitial].canEncrypt() {
		t.Fatal("initial sealer missing")
	}
}

func TestAcceptRecordsOriginalDestinationCID(t *testing.T) {
	config := &Config{Version: ProtocolVersion1, Params: DefaultParameters()}
	odcid := []byte{9, 8, 7, 6}
	c, err := Accept([]byte{1, 2, 3, 4}, odcid, config)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(c.localParams.OriginalDestinationCID, odcid) {
		t.Fatal("original destination CID not carried in transport parameters")
	}
	if !bytes.Equal(c.localParams.RetrySourceCID, c.scid) {
		t.Fatal("retry source CID must be the post-retry SCID")
	}
}

func TestConnRejectsOversizeCID(t *testing.T) {
	config := &Config{Version: ProtocolVersion1, Params: DefaultParameters()}
	if _, err := Connect(bytes.Repeat([]byte{1}, MaxCIDLength+1), config); err == nil {
		t.Fatal("expected oversize SCID to be rejected")
	}
}

func TestCloseEmitsConnectionCloseAndDrains(t *testing.T) {
	c := newTestClientConn(t)
	c.Close(false, uint64(NoError), "bye")
	buf := make([]byte, 2048)
	n, err := c.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Fatal("expected a datagram carrying CONNECTION_CLOSE")
	}
	// Client Initial datagrams are padded to the minimum size.
	if n < MinInitialPacketSize {
		t.Fatalf("initial datagram = %d bytes, want >= %d", n, MinInitialPacketSize)
	}
	if c.drainingTimer.IsZero() {
		t.Fatal("draining timer not armed after sending close")
	}
	// Further Reads produce nothing.
	if n, _ := c.Read(buf); n != 0 {
		t.Fatal("sent packets while draining")
	}
	c.OnTimeout(c.drainingTimer.Add(time.Millisecond))
	if !c.IsClosed() {
		t.Fatal("expected connection to close when the drain timer fires")
	}
}

func TestVersionNegotiationRestartsInitial(t *testing.T) {
	c := newTestClientConn(t)
	// A VN packet: long header with version 0, CIDs swapped, listing a
	// greased version the client must skip before the supported one.
	var b []byte
	b = append(b, longHeaderForm|fixedBit)
	b = append(b, 0, 0, 0, 0)
	b = append(b, byte(len(c.scid)))
	b = append(b, c.scid...)
	b = append(b, byte(len(c.dcid)))
	b = append(b, c.dcid...)
	var vb [4]byte
	binary.BigEndian.PutUint32(vb[:], 0x1a2a3a4a) // grease, ignored
	b = append(b, vb[:]...)
	binary.BigEndian.PutUint32(vb[:], ProtocolVersion1)
	b = append(b, vb[:]...)

	if _, err := c.Write(b); err != nil {
		t.Fatal(err)
	}
	if c.version != ProtocolVersion1 {
		t.Fatalf("negotiated version = %x, want %x", c.version, ProtocolVersion1)
	}
	if !c.didVersionNegotiation {
		t.Fatal("version negotiation not recorded")
	}
	// A second VN packet must be ignored.
	if _, err := c.Write(b); err != nil {
		t.Fatal(err)
	}
}

func TestVersionNegotiationNoCommonVersion(t *testing.T) {
	c := newTestClientConn(t)
	var b []byte
	b = append(b, longHeaderForm|fixedBit)
	b = append(b, 0, 0, 0, 0)
	b = append(b, byte(len(c.scid)))
	b = append(b, c.scid...)
	b = append(b, byte(len(c.dcid)))
	b = append(b, c.dcid...)
	var vb [4]byte
	binary.BigEndian.PutUint32(vb[:], 0x0f0f0f0f)
	b = append(b, vb[:]...)
	if _, err := c.Write(b); err == nil {
		t.Fatal("expected an error when no offered version is supported")
	}
}

func TestStatelessResetEntersDraining(t *testing.T) {
	c := newTestClientConn(t)
	token := bytes.Repeat([]byte{0x5a}, resetTokenLength)
	c.peerParams.StatelessResetToken = token
	// Install application read keys so the short header is processed far
	// enough to attempt (and fail) decryption.
	keys, err := deriveDirectionalKeysLen(SuiteAES128GCM, bytes.Repeat([]byte{1}, 32), 16)
	if err != nil {
		t.Fatal(err)
	}
	c.packetNumberSpaces[packetSpaceApplication].opener = keys

	var b []byte
	b = append(b, fixedBit) // short header
	b = append(b, c.scid...)
	b = append(b, bytes.Repeat([]byte{0xcc}, 48)...)
	copy(b[len(b)-resetTokenLength:], token)

	if _, err := c.Write(b); err != nil {
		t.Fatal(err)
	}
	if c.state != stateDraining {
		t.Fatalf("state = %d, want draining", c.state)
	}
	if c.drainingTimer.IsZero() {
		t.Fatal("draining timer not armed")
	}
	// No packets leave the connection after a stateless reset.
	buf := make([]byte, 2048)
	if n, _ := c.Read(buf); n != 0 {
		t.Fatal("sent a packet after a stateless reset")
	}
}

// establishTestConn puts a client connection into the established state with
// the peer's transport parameters applied, without running a TLS handshake.
func establishTestConn(t *testing.T, peer Parameters) *Conn {
	t.Helper()
	c := newTestClientConn(t)
	c.state = stateActive
	c.peerParams = peer
	c.flow.setMaxSend(peer.InitialMaxData)
	c.streams.setPeerMaxStreamsBidi(peer.InitialMaxStreamsBidi)
	c.streams.setPeerMaxStreamsUni(peer.InitialMaxStreamsUni)
	return c
}

func testPeerParameters() Parameters {
	p := DefaultParameters()
	p.InitialSourceCID = nil
	return p
}

func TestSendFramesStreamData(t *testing.T) {
	c := establishTestConn(t, testPeerParameters())
	st, err := c.NewStream(true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.Write([]byte("hello stream")); err != nil {
		t.Fatal(err)
	}
	st.Close()
	now := c.time()
	op := newOutgoingPacket(0, now)
	c.sendFrames(op, packetSpaceApplication, 1200, now)
	var sf *streamFrame
	for _, f := range op.frames {
		if v, ok := f.(*streamFrame); ok {
			sf = v
		}
	}
	if sf == nil {
		t.Fatal("no STREAM frame scheduled")
	}
	if sf.streamID != 0 || sf.offset != 0 || !sf.fin {
		t.Fatalf("frame = id %d offset %d fin %v", sf.streamID, sf.offset, sf.fin)
	}
	if !bytes.Equal(sf.data, []byte("hello stream")) {
		t.Fatalf("data = %q", sf.data)
	}
	if c.flow.sent != uint64(len(sf.data)) {
		t.Fatalf("connection flow sent = %d", c.flow.sent)
	}
}

func TestSendFramesStreamDataBlocked(t *testing.T) {
	peer := testPeerParameters()
	peer.InitialMaxStreamDataBidiRemote = 4
	c := establishTestConn(t, peer)
	st, err := c.NewStream(true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.Write([]byte("0123456789")); err != nil {
		t.Fatal(err)
	}
	now := c.time()
	op := newOutgoingPacket(0, now)
	c.sendFrames(op, packetSpaceApplication, 1200, now)
	var gotStream, gotBlocked bool
	for _, f := range op.frames {
		switch f := f.(type) {
		case *streamFrame:
			gotStream = true
			if len(f.data) != 4 {
				t.Fatalf("stream frame carries %d bytes, want the 4-byte window", len(f.data))
			}
		case *streamDataBlockedFrame:
			gotBlocked = true
			if f.streamID != 0 || f.dataLimit != 4 {
				t.Fatalf("blocked frame = id %d limit %d", f.streamID, f.dataLimit)
			}
		}
	}
	if !gotStream || !gotBlocked {
		t.Fatalf("stream=%v blocked=%v, want both", gotStream, gotBlocked)
	}
	// Raising the window resumes the flow and retires the blocked signal.
	c.recvFrameMaxStreamData(mustEncodeFrame(t, newMaxStreamDataFrame(0, 10)), now)
	op = newOutgoingPacket(1, now)
	c.sendFrames(op, packetSpaceApplication, 1200, now)
	var resumed *streamFrame
	for _, f := range op.frames {
		if v, ok := f.(*streamFrame); ok {
			resumed = v
		}
	}
	if resumed == nil || resumed.offset != 4 || len(resumed.data) != 6 {
		t.Fatalf("resumed frame = %+v", resumed)
	}
}

func TestSendFramesResetStream(t *testing.T) {
	c := establishTestConn(t, testPeerParameters())
	st, err := c.NewStream(true)
	if err != nil {
		t.Fatal(err)
	}
	st.Write([]byte("abc"))
	st.Reset(17)
	now := c.time()
	op := newOutgoingPacket(0, now)
	c.sendFrames(op, packetSpaceApplication, 1200, now)
	var rf *resetStreamFrame
	for _, f := range op.frames {
		if v, ok := f.(*resetStreamFrame); ok {
			rf = v
		}
	}
	if rf == nil {
		t.Fatal("no RESET_STREAM scheduled")
	}
	if rf.streamID != 0 || rf.errorCode != 17 || rf.finalSize != 3 {
		t.Fatalf("reset = %+v", rf)
	}
	if st.resetPend || !st.resetSent {
		t.Fatal("reset pending state not consumed")
	}
}

func TestSendFramesStopSending(t *testing.T) {
	c := establishTestConn(t, testPeerParameters())
	st, err := c.NewStream(true)
	if err != nil {
		t.Fatal(err)
	}
	st.StopSending(5)
	now := c.time()
	op := newOutgoingPacket(0, now)
	c.sendFrames(op, packetSpaceApplication, 1200, now)
	var found *stopSendingFrame
	for _, f := range op.frames {
		if v, ok := f.(*stopSendingFrame); ok {
			found = v
		}
	}
	if found == nil || found.streamID != 0 || found.errorCode != 5 {
		t.Fatalf("stop sending = %+v", found)
	}
}

func TestSendFramesNewToken(t *testing.T) {
	config := &Config{Version: ProtocolVersion1, Params: DefaultParameters()}
	c, err := Accept([]byte{1, 2, 3, 4}, nil, config)
	if err != nil {
		t.Fatal(err)
	}
	c.state = stateActive
	c.handshakeConfirmed = true
	c.QueueNewToken([]byte{0xaa, 0xbb})
	now := c.time()
	op := newOutgoingPacket(0, now)
	c.sendFrames(op, packetSpaceApplication, 1200, now)
	var tf *newTokenFrame
	for _, f := range op.frames {
		if v, ok := f.(*newTokenFrame); ok {
			tf = v
		}
	}
	if tf == nil || !bytes.Equal(tf.token, []byte{0xaa, 0xbb}) {
		t.Fatalf("new token frame = %+v", tf)
	}
	if c.newTokenPend != nil {
		t.Fatal("pending token not consumed")
	}
}

func TestRecvFrameNewTokenStoredOnClient(t *testing.T) {
	c := establishTestConn(t, testPeerParameters())
	now := c.time()
	b := mustEncodeFrame(t, newNewTokenFrame([]byte{1, 2, 3}))
	if _, err := c.recvFrameNewToken(b, now); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(c.Token(), []byte{1, 2, 3}) {
		t.Fatalf("stored token = %x", c.Token())
	}
}

func TestRecvFrameStreamFlowControl(t *testing.T) {
	c := establishTestConn(t, testPeerParameters())
	c.localParams.InitialMaxStreamDataBidiRemote = 4
	now := c.time()
	// Peer-initiated bidi stream 1 carrying more than its window.
	b := mustEncodeFrame(t, newStreamFrame(1, []byte("too much data"), 0, false))
	if _, err := c.recvFrameStream(b, now); err == nil {
		t.Fatal("expected a stream-level flow control violation")
	}
}

func TestRecvFrameStopSendingResetsOurSend(t *testing.T) {
	c := establishTestConn(t, testPeerParameters())
	st, err := c.NewStream(true)
	if err != nil {
		t.Fatal(err)
	}
	st.Write([]byte("pending"))
	now := c.time()
	b := mustEncodeFrame(t, newStopSendingFrame(0, 33))
	if _, err := c.recvFrameStopSending(b, now); err != nil {
		t.Fatal(err)
	}
	if !st.peerStopped {
		t.Fatal("peer stop not recorded")
	}
	if !st.resetPend || st.resetCode != 33 {
		t.Fatal("expected STOP_SENDING to queue a RESET_STREAM echoing the code")
	}
}

func TestNewStreamAssignsParityAndOrder(t *testing.T) {
	c := establishTestConn(t, testPeerParameters())
	a, err := c.NewStream(true)
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.NewStream(true)
	if err != nil {
		t.Fatal(err)
	}
	u, err := c.NewStream(false)
	if err != nil {
		t.Fatal(err)
	}
	if a.id != 0 || b.id != 4 || u.id != 2 {
		t.Fatalf("stream ids = %d %d %d, want 0 4 2", a.id, b.id, u.id)
	}
}

func TestSpinBitFollowsPeer(t *testing.T) {
	c := newTestClientConn(t)
	c.spinEnabled = true
	space := &c.packetNumberSpaces[packetSpaceApplication]
	p := &packet{typ: packetTypeShort, packetNumber: 1, spin: true}
	c.updateSpin(p, space)
	if !c.spin {
		t.Fatal("client must copy the peer's spin bit")
	}
	space.received.insert(5)
	// An older packet must not change the spin value.
	old := &packet{typ: packetTypeShort, packetNumber: 2, spin: false}
	c.updateSpin(old, space)
	if !c.spin {
		t.Fatal("reordered packet flipped the spin bit")
	}
}

func mustEncodeFrame(t *testing.T, f frame) []byte {
	t.Helper()
	b := make([]byte, f.encodedLen())
	if _, err := f.encode(b); err != nil {
		t.Fatal(err)
	}
	return b
}
