package transport

import (
	"encoding/binary"
	"fmt"
)

// packetType identifies the QUIC long-header packet type, plus two
// implementation-internal pseudo-types for the short header and version
// negotiation (which has no type field of its own).
type packetType uint8

const (
	packetTypeInitial packetType = iota
	packetTypeZeroRTT
	packetTypeHandshake
	packetTypeRetry
	packetTypeVersionNegotiation
	packetTypeShort
)

func (t packetType) String() string {
	switch t {
	case packetTypeInitial:
		return "initial"
	case packetTypeZeroRTT:
		return "0RTT"
	case packetTypeHandshake:
		return "handshake"
	case packetTypeRetry:
		return "retry"
	case packetTypeVersionNegotiation:
		return "version_negotiation"
	case packetTypeShort:
		return "1RTT"
	default:
		return "unknown"
	}
}

// packetSpace is a packet-number space (spec section 3). 0-RTT shares the
// Application space's packet numbering but keeps distinct keys, so it is not
// a separate entry here; it addresses packetSpaceApplication for numbering
// purposes and carries its own entry only in the key/epoch sense (handled in
// the epoch type below).
type packetSpace uint8

const (
	packetSpaceInitial packetSpace = iota
	packetSpaceHandshake
	packetSpaceApplication
	packetSpaceCount
)

func (s packetSpace) String() string {
	switch s {
	case packetSpaceInitial:
		return "initial"
	case packetSpaceHandshake:
		return "handshake"
	case packetSpaceApplication:
		return "application"
	default:
		return "unknown"
	}
}

func packetTypeFromSpace(s packetSpace) packetType {
	switch s {
	case packetSpaceInitial:
		return packetTypeInitial
	case packetSpaceHandshake:
		return packetTypeHandshake
	default:
		return packetTypeShort
	}
}

// epoch identifies a set of keys. There are four: Initial, 0-RTT, Handshake
// and 1-RTT (Application), one more than the three packet-number spaces
// because 0-RTT and 1-RTT share the Application packet-number space.
type epoch uint8

const (
	epochInitial epoch = iota
	epochZeroRTT
	epochHandshake
	epochApplication
	epochCount
)

func epochToSpace(e epoch) packetSpace {
	switch e {
	case epochInitial:
		return packetSpaceInitial
	case epochHandshake:
		return packetSpaceHandshake
	default:
		return packetSpaceApplication
	}
}

const (
	longHeaderForm  = 0x80
	fixedBit        = 0x40
	longTypeMask    = 0x30
	longTypeShift   = 4
	shortKeyPhase   = 0x04
	shortSpinBit    = 0x20
	longPnLenMask   = 0x03
	shortPnLenMask  = 0x03
	shortReservedFn = 0x18
)

// packetHeader holds the parsed fields common to both header forms, plus the
// long-header-only and retry-only extras.
type packetHeader struct {
	version uint32
	dcid    []byte
	scid    []byte
	dcil    uint8 // pre-negotiated DCID length, required to parse a short header
	length  uint64
}

// packet is a single decoded (or about-to-be-encoded) QUIC packet's
// metadata, mirroring spec section 3's "Packet Metadata Record" for the
// subset the codec itself needs; the rest (ack/loss bookkeeping flags) lives
// in sentPacket (recovery.go).
type packet struct {
	typ               packetType
	header            packetHeader
	token             []byte   // Initial token, or Retry token
	odcid             []byte   // Retry: original destination CID
	retryTag          [16]byte // Retry integrity tag
	supportedVersions []uint32 // Version Negotiation
	packetNumber      uint64
	packetNumberLen   int
	payloadLen        int // length of packet-number field + encrypted payload
	headerLen         int // bytes before the packet-number field
	keyPhase          bool
	spin              bool
}

func (p *packet) String() string {
	return fmt.Sprintf("type=%s pn=%d dcid=%x scid=%x", p.typ, p.packetNumber, p.header.dcid, p.header.scid)
}

// decodeHeader parses the unprotected portion of a packet header from b: the
// first byte, version/CIDs/token/length for long headers, or just the DCID
// for short headers (whose length must already be set in p.header.dcil). It
// returns the number of bytes consumed, leaving the packet-number field (of
// unknown length until header protection is removed) untouched.
func (p *packet) decodeHeader(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, newError(ProtocolViolation, "short packet")
	}
	first := b[0]
	if first&longHeaderForm == 0 {
		return p.decodeShortHeader(b)
	}
	return p.decodeLongHeader(b)
}

func (p *packet) decodeShortHeader(b []byte) (int, error) {
	n := 1 + int(p.header.dcil)
	if len(b) < n {
		return 0, newError(ProtocolViolation, "short header truncated")
	}
	p.typ = packetTypeShort
	p.header.dcid = append(p.header.dcid[:0], b[1:n]...)
	p.headerLen = n
	return n, nil
}

func (p *packet) decodeLongHeader(b []byte) (int, error) {
	if len(b) < 6 {
		return 0, newError(ProtocolViolation, "long header truncated")
	}
	first := b[0]
	version := binary.BigEndian.Uint32(b[1:5])
	off := 5
	dcil := int(b[off])
	off++
	if len(b) < off+dcil {
		return 0, newError(ProtocolViolation, "dcid truncated")
	}
	p.header.version = version
	p.header.dcid = append(p.header.dcid[:0], b[off:off+dcil]...)
	off += dcil
	if len(b) < off+1 {
		return 0, newError(ProtocolViolation, "scid truncated")
	}
	scil := int(b[off])
	off++
	if len(b) < off+scil {
		return 0, newError(ProtocolViolation, "scid truncated")
	}
	p.header.scid = append(p.header.scid[:0], b[off:off+scil]...)
	off += scil

	if version == versionNegotiation {
		p.typ = packetTypeVersionNegotiation
		p.headerLen = off
		return off, nil
	}
	typeBits := (first & longTypeMask) >> longTypeShift
	switch typeBits {
	case 0:
		p.typ = packetTypeInitial
		n, err := getVarintAt(b, &off)
		if err != 0 {
			return 0, newError(ProtocolViolation, "token length")
		}
		tokenLen := int(n)
		if len(b) < off+tokenLen {
			return 0, newError(ProtocolViolation, "token truncated")
		}
		p.token = append(p.token[:0], b[off:off+tokenLen]...)
		off += tokenLen
	case 1:
		p.typ = packetTypeZeroRTT
	case 2:
		p.typ = packetTypeHandshake
	case 3:
		p.typ = packetTypeRetry
		// Retry carries ODCID + opaque token (no length field) + 16-byte tag.
		if len(b) < off+1 {
			return 0, newError(ProtocolViolation, "retry truncated")
		}
		odcil := int(b[off])
		off++
		if len(b) < off+odcil {
			return 0, newError(ProtocolViolation, "odcid truncated")
		}
		p.odcid = append(p.odcid[:0], b[off:off+odcil]...)
		off += odcil
		p.headerLen = off
		return off, nil
	}
	if p.typ != packetTypeRetry {
		l, err := getVarintAt(b, &off)
		if err != 0 {
			return 0, newError(ProtocolViolation, "length")
		}
		p.header.length = l
	}
	p.headerLen = off
	return off, nil
}

// getVarintAt decodes a varint starting at b[*off], advancing *off. It
// returns (value, 0) on success or (0, -1) on failure.
func getVarintAt(b []byte, off *int) (uint64, int) {
	var v uint64
	n := getVarint(b[*off:], &v)
	if n == 0 {
		return 0, -1
	}
	*off += n
	return v, 0
}

// decodeBody parses the unprotected remainder of a Version Negotiation or
// Retry packet (these carry no encrypted payload / packet number).
func (p *packet) decodeBody(b []byte) (int, error) {
	switch p.typ {
	case packetTypeVersionNegotiation:
		rest := b[p.headerLen:]
		if len(rest)%4 != 0 {
			return 0, newError(ProtocolViolation, "malformed version list")
		}
		p.supportedVersions = p.supportedVersions[:0]
		for i := 0; i+4 <= len(rest); i += 4 {
			p.supportedVersions = append(p.supportedVersions, binary.BigEndian.Uint32(rest[i:i+4]))
		}
		return len(rest), nil
	case packetTypeRetry:
		if len(b) < p.headerLen+16 {
			return 0, newError(ProtocolViolation, "retry truncated")
		}
		p.token = append(p.token[:0], b[p.headerLen:len(b)-16]...)
		copy(p.retryTag[:], b[len(b)-16:])
		return len(b) - p.headerLen, nil
	default:
		return 0, nil
	}
}

// pnEncodeLen returns the number of bytes needed to encode pn given the
// largest acknowledged packet number in its space (spec section 4.1).
func pnEncodeLen(pn, largestAcked uint64) int {
	var unacked uint64
	if pn > largestAcked {
		unacked = pn - largestAcked
	} else {
		unacked = 1
	}
	numBytes := 1
	for n := unacked * 2; n > 0xff; n >>= 8 {
		numBytes++
	}
	if numBytes > 4 {
		numBytes = 4
	}
	return numBytes
}

// encodePacketNumber writes the low numBytes bytes of pn into b.
func encodePacketNumber(b []byte, pn uint64, numBytes int) {
	for i := 0; i < numBytes; i++ {
		b[numBytes-1-i] = byte(pn >> (8 * i))
	}
}

// decodePacketNumber reconstructs the full packet number from its truncated
// wire representation, given the expected next number (largest received + 1)
// using the half-window rule from spec section 4.1.
func decodePacketNumber(truncated uint64, numBytes int, expected uint64) uint64 {
	pnWin := uint64(1) << (8 * uint(numBytes))
	pnHalfWin := pnWin / 2
	pnMask := pnWin - 1
	candidate := (expected &^ pnMask) | truncated
	switch {
	case candidate+pnHalfWin <= expected && candidate < (uint64(1)<<62)-pnWin:
		return candidate + pnWin
	case candidate > expected+pnHalfWin && candidate >= pnWin:
		return candidate - pnWin
	default:
		return candidate
	}
}

// encodedLen returns the on-wire length of the header up to and including
// the packet-number field. The payload itself is not counted; payloadLen
// only sizes the long header's Length varint.
func (p *packet) encodedLen() int {
	switch p.typ {
	case packetTypeShort:
		return 1 + len(p.header.dcid) + p.packetNumberLen
	default:
		n := 1 + 4 + 1 + len(p.header.dcid) + 1 + len(p.header.scid)
		if p.typ == packetTypeInitial {
			n += varintLen(uint64(len(p.token))) + len(p.token)
		}
		n += varintLen(uint64(p.payloadLen)) + p.packetNumberLen
		return n
	}
}

// encode writes the packet header (unprotected form; header protection is
// applied afterward by the caller once the AEAD seal is complete) into b and
// returns the offset of the first payload byte (after the packet-number
// field).
func (p *packet) encode(b []byte) (int, error) {
	if p.packetNumberLen == 0 {
		p.packetNumberLen = pnEncodeLen(p.packetNumber, 0)
	}
	switch p.typ {
	case packetTypeShort:
		return p.encodeShortHeader(b)
	default:
		return p.encodeLongHeader(b)
	}
}

func (p *packet) encodeShortHeader(b []byte) (int, error) {
	n := 1 + len(p.header.dcid) + p.packetNumberLen
	if len(b) < n {
		return 0, errShortBuffer
	}
	first := byte(fixedBit)
	if p.spin {
		first |= shortSpinBit
	}
	if p.keyPhase {
		first |= shortKeyPhase
	}
	first |= byte(p.packetNumberLen - 1)
	b[0] = first
	off := 1
	off += copy(b[off:], p.header.dcid)
	encodePacketNumber(b[off:off+p.packetNumberLen], p.packetNumber, p.packetNumberLen)
	off += p.packetNumberLen
	p.headerLen = off - p.packetNumberLen
	return off, nil
}

func (p *packet) encodeLongHeader(b []byte) (int, error) {
	var typeBits byte
	switch p.typ {
	case packetTypeInitial:
		typeBits = 0
	case packetTypeZeroRTT:
		typeBits = 1
	case packetTypeHandshake:
		typeBits = 2
	case packetTypeRetry:
		typeBits = 3
	}
	first := longHeaderForm | fixedBit | (typeBits << longTypeShift) | byte(p.packetNumberLen-1)
	need := 1 + 4 + 1 + len(p.header.dcid) + 1 + len(p.header.scid)
	if p.typ == packetTypeInitial {
		need += varintLen(uint64(len(p.token))) + len(p.token)
	}
	need += varintLen(uint64(p.payloadLen)) + p.packetNumberLen
	if len(b) < need {
		return 0, errShortBuffer
	}
	b[0] = first
	off := 1
	binary.BigEndian.PutUint32(b[off:], p.header.version)
	off += 4
	b[off] = byte(len(p.header.dcid))
	off++
	off += copy(b[off:], p.header.dcid)
	b[off] = byte(len(p.header.scid))
	off++
	off += copy(b[off:], p.header.scid)
	if p.typ == packetTypeInitial {
		off += putVarint(b[off:], uint64(len(p.token)))
		off += copy(b[off:], p.token)
	}
	off += putVarint(b[off:], uint64(p.payloadLen))
	encodePacketNumber(b[off:off+p.packetNumberLen], p.packetNumber, p.packetNumberLen)
	off += p.packetNumberLen
	p.headerLen = off - p.packetNumberLen
	return off, nil
}

const (
	// MinInitialPacketSize is the minimum size of a UDP datagram carrying a
	// client Initial packet (spec section 8, "Boundary behaviors").
	MinInitialPacketSize = 1200
	// MaxPacketSize is the largest datagram this implementation will ever
	// construct or accept.
	MaxPacketSize    = 65527
	minPayloadLength = 4 // smallest sealed payload worth sending (room for pn + sample)
)

// PeekLongHeader parses just enough of a long-header packet (version,
// connection IDs, type, and the Initial token if present) to let a server
// choose between Version Negotiation, Retry and a normal accept, all
// without needing any keys. It reports ok=false for anything that is not a
// well-formed long header.
func PeekLongHeader(b []byte) (version uint32, dcid, scid, token []byte, isInitial bool, ok bool) {
	if len(b) < 1 || b[0]&longHeaderForm == 0 {
		return 0, nil, nil, nil, false, false
	}
	var p packet
	if _, err := p.decodeLongHeader(b); err != nil {
		return 0, nil, nil, nil, false, false
	}
	return p.header.version, p.header.dcid, p.header.scid, p.token, p.typ == packetTypeInitial, true
}

// EncodeVersionNegotiation builds a Version Negotiation packet in response
// to a client Initial whose version this endpoint does not support (RFC
// 9000 section 17.2.1). The destination/source CIDs are the client's
// source/destination CIDs, swapped.
func EncodeVersionNegotiation(dcid, scid []byte) []byte {
	b := make([]byte, 0, 7+len(dcid)+len(scid)+4*len(supportedVersions))
	b = append(b, longHeaderForm|fixedBit)
	b = append(b, 0, 0, 0, 0) // version = 0
	b = append(b, byte(len(scid)))
	b = append(b, scid...)
	b = append(b, byte(len(dcid)))
	b = append(b, dcid...)
	for _, v := range supportedVersions {
		var vb [4]byte
		binary.BigEndian.PutUint32(vb[:], v)
		b = append(b, vb[:]...)
	}
	return b
}

// EncodeRetry builds a Retry packet: dcid is the client's source CID
// (echoed back as our destination), scid is the newly issued server CID the
// client must address its retried Initial to, odcid is the client's
// original destination CID (echoed on the wire and covered by the integrity
// tag), and token is the address-validation token the retried Initial must
// carry.
func EncodeRetry(version uint32, dcid, scid, odcid, token []byte) ([]byte, error) {
	b := make([]byte, 0, 8+len(dcid)+len(scid)+len(odcid)+len(token)+16)
	b = append(b, longHeaderForm|fixedBit|(3<<longTypeShift))
	var vb [4]byte
	binary.BigEndian.PutUint32(vb[:], version)
	b = append(b, vb[:]...)
	b = append(b, byte(len(dcid)))
	b = append(b, dcid...)
	b = append(b, byte(len(scid)))
	b = append(b, scid...)
	b = append(b, byte(len(odcid)))
	b = append(b, odcid...)
	b = append(b, token...)
	tag, err := computeRetryIntegrityTag(odcid, b)
	if err != nil {
		return nil, err
	}
	return append(b, tag[:]...), nil
}
