package transport

import "fmt"

// Frame type codes (RFC 9000 section 19).
const (
	frameTypePadding            uint64 = 0x00
	frameTypePing               uint64 = 0x01
	frameTypeAck                uint64 = 0x02
	frameTypeAckECN             uint64 = 0x03
	frameTypeResetStream        uint64 = 0x04
	frameTypeStopSending        uint64 = 0x05
	frameTypeCrypto             uint64 = 0x06
	frameTypeNewToken           uint64 = 0x07
	frameTypeStream             uint64 = 0x08
	frameTypeStreamEnd          uint64 = 0x0f
	frameTypeMaxData            uint64 = 0x10
	frameTypeMaxStreamData      uint64 = 0x11
	frameTypeMaxStreamsBidi     uint64 = 0x12
	frameTypeMaxStreamsUni      uint64 = 0x13
	frameTypeDataBlocked        uint64 = 0x14
	frameTypeStreamDataBlocked  uint64 = 0x15
	frameTypeStreamsBlockedBidi uint64 = 0x16
	frameTypeStreamsBlockedUni  uint64 = 0x17
	frameTypeNewConnectionID    uint64 = 0x18
	frameTypeRetireConnectionID uint64 = 0x19
	frameTypePathChallenge      uint64 = 0x1a
	frameTypePathResponse       uint64 = 0x1b
	frameTypeConnectionClose    uint64 = 0x1c
	frameTypeApplicationClose   uint64 = 0x1d
	frameTypeHanshakeDone       uint64 = 0x1e
)

// frame is the common interface satisfied by every decoded/to-be-encoded
// frame type.
type frame interface {
	encodedLen() int
	encode(b []byte) (int, error)
}

// isFrameAckEliciting reports whether receipt of a frame of this type
// requires the receiver to eventually send an ACK (every frame except
// PADDING, ACK and CONNECTION_CLOSE, per RFC 9000 section 13.2).
func isFrameAckEliciting(typ uint64) bool {
	switch typ {
	case frameTypePadding, frameTypeAck, frameTypeAckECN, frameTypeConnectionClose, frameTypeApplicationClose:
		return false
	default:
		return true
	}
}

// --- PADDING ---

type paddingFrame struct {
	length int
}

func newPaddingFrame(length int) *paddingFrame {
	return &paddingFrame{length: length}
}

func (f *paddingFrame) encodedLen() int { return f.length }

func (f *paddingFrame) encode(b []byte) (int, error) {
	if len(b) < f.length {
		return 0, errShortBuffer
	}
	for i := 0; i < f.length; i++ {
		b[i] = 0
	}
	return f.length, nil
}

func (f *paddingFrame) decode(b []byte) (int, error) {
	n := 0
	for n < len(b) {
		var typ uint64
		m := getVarint(b[n:], &typ)
		if m == 0 || typ != frameTypePadding {
			break
		}
		n += m
	}
	f.length = n
	return n, nil
}

// --- PING ---

type pingFrame struct{}

func (f *pingFrame) encodedLen() int { return 1 }
func (f *pingFrame) encode(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, errShortBuffer
	}
	b[0] = byte(frameTypePing)
	return 1, nil
}

// --- ACK ---

type ackFrame struct {
	largestAck    uint64
	ackDelay      uint64
	firstAckRange uint64
	ranges        []ackRange // additional ranges, descending, excluding the first
	ecn           bool
}

func newAckFrame(ackDelay uint64, recv numberSet) *ackFrame {
	ranges := recv.toAckRanges()
	if len(ranges) == 0 {
		return &ackFrame{ackDelay: ackDelay}
	}
	f := &ackFrame{
		largestAck: ranges[0].end,
		ackDelay:   ackDelay,
	}
	f.firstAckRange = ranges[0].end - ranges[0].start
	f.ranges = ranges[1:]
	return f
}

func (f *ackFrame) toRangeSet() *numberSet {
	var s numberSet
	if f.firstAckRange > f.largestAck {
		return nil
	}
	s.insertRange(f.largestAck-f.firstAckRange, f.largestAck+1)
	largest := f.largestAck - f.firstAckRange
	for _, r := range f.ranges {
		if r.start > r.end || r.end >= largest {
			return nil
		}
		s.insertRange(r.start, r.end+1)
		largest = r.start
	}
	return &s
}

func (f *ackFrame) encodedLen() int {
	n := varintLen(frameTypeAck) + varintLen(f.largestAck) + varintLen(f.ackDelay) +
		varintLen(uint64(len(f.ranges))) + varintLen(f.firstAckRange)
	for i, r := range f.ranges {
		hi := f.largestAck - f.firstAckRange
		if i > 0 {
			hi = f.ranges[i-1].start
		}
		gap := hi - r.end - 2
		rangeLen := r.end - r.start
		n += varintLen(gap) + varintLen(rangeLen)
	}
	return n
}

func (f *ackFrame) encode(b []byte) (int, error) {
	n := f.encodedLen()
	if len(b) < n {
		return 0, errShortBuffer
	}
	off := 0
	off += putVarint(b[off:], frameTypeAck)
	off += putVarint(b[off:], f.largestAck)
	off += putVarint(b[off:], f.ackDelay)
	off += putVarint(b[off:], uint64(len(f.ranges)))
	off += putVarint(b[off:], f.firstAckRange)
	prevLow := f.largestAck - f.firstAckRange
	for _, r := range f.ranges {
		gap := prevLow - r.end - 2
		rangeLen := r.end - r.start
		off += putVarint(b[off:], gap)
		off += putVarint(b[off:], rangeLen)
		prevLow = r.start
	}
	return off, nil
}

func (f *ackFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 {
		return 0, newError(FrameEncodingError, "ack type")
	}
	off += n
	var largest, delay, count, first uint64
	for _, v := range []*uint64{&largest, &delay, &count, &first} {
		n = getVarint(b[off:], v)
		if n == 0 {
			return 0, newError(FrameEncodingError, "ack")
		}
		off += n
	}
	f.largestAck, f.ackDelay, f.firstAckRange = largest, delay, first
	f.ranges = f.ranges[:0]
	prevLow := largest - first
	for i := uint64(0); i < count; i++ {
		var gap, rangeLen uint64
		n = getVarint(b[off:], &gap)
		if n == 0 {
			return 0, newError(FrameEncodingError, "ack gap")
		}
		off += n
		n = getVarint(b[off:], &rangeLen)
		if n == 0 {
			return 0, newError(FrameEncodingError, "ack range")
		}
		off += n
		high := prevLow - gap - 2
		f.ranges = append(f.ranges, ackRange{start: high - rangeLen, end: high})
		prevLow = high - rangeLen
	}
	return off, nil
}

func (f *ackFrame) String() string {
	return fmt.Sprintf("largest=%d delay=%d first_range=%d ranges=%v", f.largestAck, f.ackDelay, f.firstAckRange, f.ranges)
}

// --- RESET_STREAM ---

type resetStreamFrame struct {
	streamID  uint64
	errorCode uint64
	finalSize uint64
}

func newResetStreamFrame(streamID, errorCode, finalSize uint64) *resetStreamFrame {
	return &resetStreamFrame{streamID: streamID, errorCode: errorCode, finalSize: finalSize}
}

func (f *resetStreamFrame) encodedLen() int {
	return varintLen(frameTypeResetStream) + varintLen(f.streamID) + varintLen(f.errorCode) + varintLen(f.finalSize)
}

func (f *resetStreamFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	off := putVarint(b, frameTypeResetStream)
	off += putVarint(b[off:], f.streamID)
	off += putVarint(b[off:], f.errorCode)
	off += putVarint(b[off:], f.finalSize)
	return off, nil
}

func (f *resetStreamFrame) decode(b []byte) (int, error) {
	return decode3Varint(b, &f.streamID, &f.errorCode, &f.finalSize)
}

// --- STOP_SENDING ---

type stopSendingFrame struct {
	streamID  uint64
	errorCode uint64
}

func newStopSendingFrame(streamID, errorCode uint64) *stopSendingFrame {
	return &stopSendingFrame{streamID: streamID, errorCode: errorCode}
}

func (f *stopSendingFrame) encodedLen() int {
	return varintLen(frameTypeStopSending) + varintLen(f.streamID) + varintLen(f.errorCode)
}

func (f *stopSendingFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	off := putVarint(b, frameTypeStopSending)
	off += putVarint(b[off:], f.streamID)
	off += putVarint(b[off:], f.errorCode)
	return off, nil
}

func (f *stopSendingFrame) decode(b []byte) (int, error) {
	return decode2Varint(b, &f.streamID, &f.errorCode)
}

// --- CRYPTO ---

const maxCryptoFrameOverhead = 1 + 8 + 8 // type + offset + length varints (worst case)

type cryptoFrame struct {
	offset uint64
	data   []byte
}

func newCryptoFrame(data []byte, offset uint64) *cryptoFrame {
	return &cryptoFrame{data: data, offset: offset}
}

func (f *cryptoFrame) encodedLen() int {
	return varintLen(frameTypeCrypto) + varintLen(f.offset) + varintLen(uint64(len(f.data))) + len(f.data)
}

func (f *cryptoFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	off := putVarint(b, frameTypeCrypto)
	off += putVarint(b[off:], f.offset)
	off += putVarint(b[off:], uint64(len(f.data)))
	off += copy(b[off:], f.data)
	return off, nil
}

func (f *cryptoFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 {
		return 0, newError(FrameEncodingError, "crypto")
	}
	off += n
	n = getVarint(b[off:], &f.offset)
	if n == 0 {
		return 0, newError(FrameEncodingError, "crypto offset")
	}
	off += n
	var length uint64
	n = getVarint(b[off:], &length)
	if n == 0 {
		return 0, newError(FrameEncodingError, "crypto length")
	}
	off += n
	if uint64(len(b)-off) < length {
		return 0, newError(FrameEncodingError, "crypto data")
	}
	f.data = append(f.data[:0], b[off:off+int(length)]...)
	off += int(length)
	return off, nil
}

func (f *cryptoFrame) String() string {
	return fmt.Sprintf("offset=%d length=%d", f.offset, len(f.data))
}

// --- NEW_TOKEN ---

type newTokenFrame struct {
	token []byte
}

func newNewTokenFrame(token []byte) *newTokenFrame {
	return &newTokenFrame{token: token}
}

func (f *newTokenFrame) encodedLen() int {
	return varintLen(frameTypeNewToken) + varintLen(uint64(len(f.token))) + len(f.token)
}

func (f *newTokenFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	off := putVarint(b, frameTypeNewToken)
	off += putVarint(b[off:], uint64(len(f.token)))
	off += copy(b[off:], f.token)
	return off, nil
}

func (f *newTokenFrame) decode(b []byte) (int, error) {
	off := 0
	var typ, length uint64
	n := getVarint(b, &typ)
	if n == 0 {
		return 0, newError(FrameEncodingError, "new_token")
	}
	off += n
	n = getVarint(b[off:], &length)
	if n == 0 {
		return 0, newError(FrameEncodingError, "new_token length")
	}
	off += n
	if uint64(len(b)-off) < length {
		return 0, newError(FrameEncodingError, "new_token data")
	}
	f.token = append(f.token[:0], b[off:off+int(length)]...)
	off += int(length)
	return off, nil
}

// --- STREAM ---

const maxStreamFrameOverhead = 1 + 8 + 8 + 8 // type + id + offset + length varints (worst case)

type streamFrame struct {
	streamID uint64
	offset   uint64
	data     []byte
	fin      bool
}

func newStreamFrame(streamID uint64, data []byte, offset uint64, fin bool) *streamFrame {
	return &streamFrame{streamID: streamID, data: data, offset: offset, fin: fin}
}

func (f *streamFrame) typ() uint64 {
	typ := frameTypeStream
	if f.offset > 0 {
		typ |= 0x04
	}
	typ |= 0x02 // always send an explicit length
	if f.fin {
		typ |= 0x01
	}
	return typ
}

func (f *streamFrame) encodedLen() int {
	n := varintLen(f.typ()) + varintLen(f.streamID)
	if f.offset > 0 {
		n += varintLen(f.offset)
	}
	n += varintLen(uint64(len(f.data))) + len(f.data)
	return n
}

func (f *streamFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	off := putVarint(b, f.typ())
	off += putVarint(b[off:], f.streamID)
	if f.offset > 0 {
		off += putVarint(b[off:], f.offset)
	}
	off += putVarint(b[off:], uint64(len(f.data)))
	off += copy(b[off:], f.data)
	return off, nil
}

func (f *streamFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 {
		return 0, newError(FrameEncodingError, "stream")
	}
	off += n
	n = getVarint(b[off:], &f.streamID)
	if n == 0 {
		return 0, newError(FrameEncodingError, "stream id")
	}
	off += n
	f.offset = 0
	if typ&0x04 != 0 {
		n = getVarint(b[off:], &f.offset)
		if n == 0 {
			return 0, newError(FrameEncodingError, "stream offset")
		}
		off += n
	}
	var length uint64
	if typ&0x02 != 0 {
		n = getVarint(b[off:], &length)
		if n == 0 {
			return 0, newError(FrameEncodingError, "stream length")
		}
		off += n
	} else {
		length = uint64(len(b) - off)
	}
	if uint64(len(b)-off) < length {
		return 0, newError(FrameEncodingError, "stream data")
	}
	f.data = append(f.data[:0], b[off:off+int(length)]...)
	off += int(length)
	f.fin = typ&0x01 != 0
	return off, nil
}

// --- MAX_DATA ---

type maxDataFrame struct {
	maximumData uint64
}

func newMaxDataFrame(max uint64) *maxDataFrame { return &maxDataFrame{maximumData: max} }

func (f *maxDataFrame) encodedLen() int {
	return varintLen(frameTypeMaxData) + varintLen(f.maximumData)
}

func (f *maxDataFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	off := putVarint(b, frameTypeMaxData)
	off += putVarint(b[off:], f.maximumData)
	return off, nil
}

func (f *maxDataFrame) decode(b []byte) (int, error) {
	return decode1Varint(b, &f.maximumData)
}

// --- MAX_STREAM_DATA ---

type maxStreamDataFrame struct {
	streamID    uint64
	maximumData uint64
}

func newMaxStreamDataFrame(streamID, max uint64) *maxStreamDataFrame {
	return &maxStreamDataFrame{streamID: streamID, maximumData: max}
}

func (f *maxStreamDataFrame) encodedLen() int {
	return varintLen(frameTypeMaxStreamData) + varintLen(f.streamID) + varintLen(f.maximumData)
}

func (f *maxStreamDataFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	off := putVarint(b, frameTypeMaxStreamData)
	off += putVarint(b[off:], f.streamID)
	off += putVarint(b[off:], f.maximumData)
	return off, nil
}

func (f *maxStreamDataFrame) decode(b []byte) (int, error) {
	return decode2Varint(b, &f.streamID, &f.maximumData)
}

// --- MAX_STREAMS ---

type maxStreamsFrame struct {
	maximumStreams uint64
	bidi           bool
}

func newMaxStreamsFrame(max uint64, bidi bool) *maxStreamsFrame {
	return &maxStreamsFrame{maximumStreams: max, bidi: bidi}
}

func (f *maxStreamsFrame) typ() uint64 {
	if f.bidi {
		return frameTypeMaxStreamsBidi
	}
	return frameTypeMaxStreamsUni
}

func (f *maxStreamsFrame) encodedLen() int {
	return varintLen(f.typ()) + varintLen(f.maximumStreams)
}

func (f *maxStreamsFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	off := putVarint(b, f.typ())
	off += putVarint(b[off:], f.maximumStreams)
	return off, nil
}

func (f *maxStreamsFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 {
		return 0, newError(FrameEncodingError, "max_streams")
	}
	off += n
	f.bidi = typ == frameTypeMaxStreamsBidi
	n = getVarint(b[off:], &f.maximumStreams)
	if n == 0 {
		return 0, newError(FrameEncodingError, "max_streams value")
	}
	off += n
	return off, nil
}

// --- DATA_BLOCKED ---

type dataBlockedFrame struct {
	dataLimit uint64
}

func newDataBlockedFrame(limit uint64) *dataBlockedFrame { return &dataBlockedFrame{dataLimit: limit} }

func (f *dataBlockedFrame) encodedLen() int {
	return varintLen(frameTypeDataBlocked) + varintLen(f.dataLimit)
}

func (f *dataBlockedFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	off := putVarint(b, frameTypeDataBlocked)
	off += putVarint(b[off:], f.dataLimit)
	return off, nil
}

func (f *dataBlockedFrame) decode(b []byte) (int, error) {
	return decode1Varint(b, &f.dataLimit)
}

// --- STREAM_DATA_BLOCKED ---

type streamDataBlockedFrame struct {
	streamID  uint64
	dataLimit uint64
}

func newStreamDataBlockedFrame(streamID, limit uint64) *streamDataBlockedFrame {
	return &streamDataBlockedFrame{streamID: streamID, dataLimit: limit}
}

func (f *streamDataBlockedFrame) encodedLen() int {
	return varintLen(frameTypeStreamDataBlocked) + varintLen(f.streamID) + varintLen(f.dataLimit)
}

func (f *streamDataBlockedFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	off := putVarint(b, frameTypeStreamDataBlocked)
	off += putVarint(b[off:], f.streamID)
	off += putVarint(b[off:], f.dataLimit)
	return off, nil
}

func (f *streamDataBlockedFrame) decode(b []byte) (int, error) {
	return decode2Varint(b, &f.streamID, &f.dataLimit)
}

// --- STREAMS_BLOCKED ---

type streamsBlockedFrame struct {
	streamLimit uint64
	bidi        bool
}

func newStreamsBlockedFrame(limit uint64, bidi bool) *streamsBlockedFrame {
	return &streamsBlockedFrame{streamLimit: limit, bidi: bidi}
}

func (f *streamsBlockedFrame) typ() uint64 {
	if f.bidi {
		return frameTypeStreamsBlockedBidi
	}
	return frameTypeStreamsBlockedUni
}

func (f *streamsBlockedFrame) encodedLen() int {
	return varintLen(f.typ()) + varintLen(f.streamLimit)
}

func (f *streamsBlockedFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	off := putVarint(b, f.typ())
	off += putVarint(b[off:], f.streamLimit)
	return off, nil
}

func (f *streamsBlockedFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 {
		return 0, newError(FrameEncodingError, "streams_blocked")
	}
	off += n
	f.bidi = typ == frameTypeStreamsBlockedBidi
	n = getVarint(b[off:], &f.streamLimit)
	if n == 0 {
		return 0, newError(FrameEncodingError, "streams_blocked value")
	}
	off += n
	return off, nil
}

// --- NEW_CONNECTION_ID ---

type newConnectionIDFrame struct {
	seqNum        uint64
	retirePriorTo uint64
	cid           []byte
	resetToken    [resetTokenLength]byte
}

func newNewConnectionIDFrame(seq, retirePriorTo uint64, cid []byte, token [resetTokenLength]byte) *newConnectionIDFrame {
	return &newConnectionIDFrame{seqNum: seq, retirePriorTo: retirePriorTo, cid: cid, resetToken: token}
}

func (f *newConnectionIDFrame) encodedLen() int {
	return varintLen(frameTypeNewConnectionID) + varintLen(f.seqNum) + varintLen(f.retirePriorTo) + 1 + len(f.cid) + resetTokenLength
}

func (f *newConnectionIDFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	off := putVarint(b, frameTypeNewConnectionID)
	off += putVarint(b[off:], f.seqNum)
	off += putVarint(b[off:], f.retirePriorTo)
	b[off] = byte(len(f.cid))
	off++
	off += copy(b[off:], f.cid)
	off += copy(b[off:], f.resetToken[:])
	return off, nil
}

func (f *newConnectionIDFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 {
		return 0, newError(FrameEncodingError, "new_connection_id")
	}
	off += n
	for _, v := range []*uint64{&f.seqNum, &f.retirePriorTo} {
		n = getVarint(b[off:], v)
		if n == 0 {
			return 0, newError(FrameEncodingError, "new_connection_id")
		}
		off += n
	}
	if len(b) < off+1 {
		return 0, newError(FrameEncodingError, "new_connection_id cid length")
	}
	cidLen := int(b[off])
	off++
	if cidLen > MaxCIDLength || len(b) < off+cidLen+resetTokenLength {
		return 0, newError(FrameEncodingError, "new_connection_id cid")
	}
	f.cid = append(f.cid[:0], b[off:off+cidLen]...)
	off += cidLen
	copy(f.resetToken[:], b[off:off+resetTokenLength])
	off += resetTokenLength
	return off, nil
}

// --- RETIRE_CONNECTION_ID ---

type retireConnectionIDFrame struct {
	seqNum uint64
}

func newRetireConnectionIDFrame(seq uint64) *retireConnectionIDFrame {
	return &retireConnectionIDFrame{seqNum: seq}
}

func (f *retireConnectionIDFrame) encodedLen() int {
	return varintLen(frameTypeRetireConnectionID) + varintLen(f.seqNum)
}

func (f *retireConnectionIDFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	off := putVarint(b, frameTypeRetireConnectionID)
	off += putVarint(b[off:], f.seqNum)
	return off, nil
}

func (f *retireConnectionIDFrame) decode(b []byte) (int, error) {
	return decode1Varint(b, &f.seqNum)
}

// --- PATH_CHALLENGE / PATH_RESPONSE ---

type pathChallengeFrame struct {
	data [8]byte
}

func newPathChallengeFrame(data [8]byte) *pathChallengeFrame { return &pathChallengeFrame{data: data} }

func (f *pathChallengeFrame) encodedLen() int { return varintLen(frameTypePathChallenge) + 8 }

func (f *pathChallengeFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	off := putVarint(b, frameTypePathChallenge)
	off += copy(b[off:], f.data[:])
	return off, nil
}

func (f *pathChallengeFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 || len(b) < n+8 {
		return 0, newError(FrameEncodingError, "path_challenge")
	}
	off += n
	copy(f.data[:], b[off:off+8])
	off += 8
	return off, nil
}

type pathResponseFrame struct {
	data [8]byte
}

func newPathResponseFrame(data [8]byte) *pathResponseFrame { return &pathResponseFrame{data: data} }

func (f *pathResponseFrame) encodedLen() int { return varintLen(frameTypePathResponse) + 8 }

func (f *pathResponseFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	off := putVarint(b, frameTypePathResponse)
	off += copy(b[off:], f.data[:])
	return off, nil
}

func (f *pathResponseFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 || len(b) < n+8 {
		return 0, newError(FrameEncodingError, "path_response")
	}
	off += n
	copy(f.data[:], b[off:off+8])
	off += 8
	return off, nil
}

// --- CONNECTION_CLOSE ---

type connectionCloseFrame struct {
	application  bool
	errorCode    uint64
	frameType    uint64
	reasonPhrase []byte
}

func newConnectionCloseFrame(errorCode, frameType uint64, reason []byte, application bool) *connectionCloseFrame {
	return &connectionCloseFrame{application: application, errorCode: errorCode, frameType: frameType, reasonPhrase: reason}
}

func (f *connectionCloseFrame) typ() uint64 {
	if f.application {
		return frameTypeApplicationClose
	}
	return frameTypeConnectionClose
}

func (f *connectionCloseFrame) encodedLen() int {
	n := varintLen(f.typ()) + varintLen(f.errorCode)
	if !f.application {
		n += varintLen(f.frameType)
	}
	n += varintLen(uint64(len(f.reasonPhrase))) + len(f.reasonPhrase)
	return n
}

func (f *connectionCloseFrame) encode(b []byte) (int, error) {
	if len(b) < f.encodedLen() {
		return 0, errShortBuffer
	}
	off := putVarint(b, f.typ())
	off += putVarint(b[off:], f.errorCode)
	if !f.application {
		off += putVarint(b[off:], f.frameType)
	}
	off += putVarint(b[off:], uint64(len(f.reasonPhrase)))
	off += copy(b[off:], f.reasonPhrase)
	return off, nil
}

func (f *connectionCloseFrame) decode(b []byte) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 {
		return 0, newError(FrameEncodingError, "connection_close")
	}
	off += n
	f.application = typ == frameTypeApplicationClose
	n = getVarint(b[off:], &f.errorCode)
	if n == 0 {
		return 0, newError(FrameEncodingError, "connection_close code")
	}
	off += n
	if !f.application {
		n = getVarint(b[off:], &f.frameType)
		if n == 0 {
			return 0, newError(FrameEncodingError, "connection_close frame type")
		}
		off += n
	}
	var length uint64
	n = getVarint(b[off:], &length)
	if n == 0 {
		return 0, newError(FrameEncodingError, "connection_close reason length")
	}
	off += n
	if uint64(len(b)-off) < length {
		return 0, newError(FrameEncodingError, "connection_close reason")
	}
	f.reasonPhrase = append(f.reasonPhrase[:0], b[off:off+int(length)]...)
	off += int(length)
	return off, nil
}

func (f *connectionCloseFrame) String() string {
	return fmt.Sprintf("code=0x%x reason=%q", f.errorCode, f.reasonPhrase)
}

// --- HANDSHAKE_DONE ---

type handshakeDoneFrame struct{}

func (f *handshakeDoneFrame) encodedLen() int { return 1 }
func (f *handshakeDoneFrame) encode(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, errShortBuffer
	}
	b[0] = byte(frameTypeHanshakeDone)
	return 1, nil
}
func (f *handshakeDoneFrame) decode(b []byte) (int, error) {
	return decode0Varint(b)
}

// --- shared decode helpers ---

func decode0Varint(b []byte) (int, error) {
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 {
		return 0, newError(FrameEncodingError, "frame type")
	}
	return n, nil
}

func decode1Varint(b []byte, v1 *uint64) (int, error) {
	off := 0
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 {
		return 0, newError(FrameEncodingError, "frame type")
	}
	off += n
	n = getVarint(b[off:], v1)
	if n == 0 {
		return 0, newError(FrameEncodingError, "frame value")
	}
	off += n
	return off, nil
}

func decode2Varint(b []byte, v1, v2 *uint64) (int, error) {
	off, err := decode1Varint(b, v1)
	if err != nil {
		return 0, err
	}
	n := getVarint(b[off:], v2)
	if n == 0 {
		return 0, newError(FrameEncodingError, "frame value")
	}
	off += n
	return off, nil
}

func decode3Varint(b []byte, v1, v2, v3 *uint64) (int, error) {
	off, err := decode2Varint(b, v1, v2)
	if err != nil {
		return 0, err
	}
	n := getVarint(b[off:], v3)
	if n == 0 {
		return 0, newError(FrameEncodingError, "frame value")
	}
	off += n
	return off, nil
}

// encodeFrames serializes frames in order into b, returning the total bytes
// written.
func encodeFrames(b []byte, frames []frame) (int, error) {
	off := 0
	for _, f := range frames {
		n, err := f.encode(b[off:])
		if err != nil {
			return 0, err
		}
		off += n
	}
	return off, nil
}
