package transport

import "time"

// cryptoStreamState is the CRYPTO-frame equivalent of a Stream: CRYPTO data
// carries no stream id, offset disambiguation only, and never completes
// (it is simply dropped with its packet-number space).
type cryptoStreamState struct {
	send sendBuffer
	recv recvBuffer
}

func (c *cryptoStreamState) pushRecv(data []byte, offset uint64, fin bool) error {
	return c.recv.push(data, offset, fin)
}

func (c *cryptoStreamState) popSend(max int) (data []byte, offset uint64, fin bool) {
	return c.send.pop(max)
}

// packetNumberSpace holds everything scoped to one of Initial, Handshake or
// Application: the epoch keys, the next packet number to send, which packet
// numbers have been received (for ACK generation and duplicate rejection),
// and the CRYPTO stream carrying the handshake data for this level (spec
// section 3, "Packet Number Space").
type packetNumberSpace struct {
	opener *directionalKeys
	sealer *directionalKeys

	nextPacketNumber uint64
	largestAckedSent uint64 // for packet-number encoding length

	received              numberSet // every packet number successfully processed
	recvPacketNeedAck     numberSet
	largestRecvPacketTime time.Time

	ackElicited      bool
	firstPacketAcked bool

	cryptoStream cryptoStreamState

	dropped bool

	// Key-phase flip state (Application space only, RFC 9001 section 6).
	keyUpdateSuite AEADSuite
	readSecret     []byte // raw secret behind the installed opener
	writeSecret    []byte // raw secret behind the installed sealer

	localKeyPhase bool // phase bit this endpoint currently sends with
	peerKeyPhase  bool // phase bit of the opener currently installed

	pendingOpener     *directionalKeys // tentatively ratcheted next-phase opener
	pendingReadSecret []byte

	// prevOpener decrypts packets reordered from before the last committed
	// key update. It is replaced wholesale by the next commit rather than
	// discarded on a timer.
	prevOpener          *directionalKeys
	currentPhaseStartPN uint64 // lowest packet number received in peerKeyPhase

	localPhaseFirstPN     uint64 // first packet number sent since the local flip
	localKeyUpdatePending bool   // true from a local flip until a packet sent under it is acked
}

func (p *packetNumberSpace) init() {
	*p = packetNumberSpace{}
}

func (p *packetNumberSpace) reset() {
	opener, sealer := p.opener, p.sealer
	*p = packetNumberSpace{opener: opener, sealer: sealer}
}

// drop discards all per-space state, including keys: once a space is
// dropped, neither encryption nor decryption is possible again (RFC 9001
// section 4.9 key discard).
func (p *packetNumberSpace) drop() {
	p.opener = nil
	p.sealer = nil
	p.dropped = true
}

func (p *packetNumberSpace) canDecrypt() bool {
	return !p.dropped && p.opener != nil
}

func (p *packetNumberSpace) canEncrypt() bool {
	return !p.dropped && p.sealer != nil
}

// ready reports whether this space currently has something worth sending:
// an ACK is owed, or the CRYPTO stream has data/FIN pending.
func (p *packetNumberSpace) ready() bool {
	if p.dropped {
		return false
	}
	return p.ackElicited || p.cryptoStream.send.hasPending()
}

func (p *packetNumberSpace) isPacketReceived(pn uint64) bool {
	return p.received.contains(pn)
}

func (p *packetNumberSpace) onPacketReceived(pn uint64, now time.Time) {
	p.received.insert(pn)
	p.recvPacketNeedAck.insert(pn)
	if max, ok := p.received.max(); ok && max == pn {
		p.largestRecvPacketTime = now
	}
}

// decryptPacket removes header protection then authenticates and decrypts
// the packet payload, filling in p's packetNumber/packetNumberLen (spec
// section 4.1, "Header protection is removed ... before the packet number
// can be known").
func (p *packetNumberSpace) decryptPacket(b []byte, pkt *packet) ([]byte, int, error) {
	if p.opener == nil {
		return nil, 0, newError(InternalError, "no read keys for space")
	}
	long := pkt.typ != packetTypeShort
	sampleOffset := pkt.headerLen + 4
	if sampleOffset+16 > len(b) {
		return nil, 0, newError(ProtocolViolation, "packet too short for header protection sample")
	}
	mask := p.opener.hp.mask(b[sampleOffset : sampleOffset+16])
	if long {
		b[0] ^= mask[0] & 0x0f
	} else {
		b[0] ^= mask[0] & 0x1f
	}
	pnLen := packetNumberLenFromFirstByte(b[0], long)
	pnOffset := pkt.headerLen
	if pnOffset+pnLen > len(b) {
		return nil, 0, newError(ProtocolViolation, "packet number truncated")
	}
	var truncated uint64
	for i := 0; i < pnLen; i++ {
		b[pnOffset+i] ^= mask[1+i]
		truncated = (truncated << 8) | uint64(b[pnOffset+i])
	}
	expected := p.expectedPacketNumber()
	pkt.packetNumber = decodePacketNumber(truncated, pnLen, expected)
	pkt.packetNumberLen = pnLen
	pkt.keyPhase = b[0]&shortKeyPhase != 0 && !long
	pkt.spin = b[0]&shortSpinBit != 0 && !long

	headerEnd := pnOffset + pnLen
	var payloadEnd int
	if long {
		// header.length covers the packet-number field plus the ciphertext.
		payloadEnd = headerEnd + int(pkt.header.length) - pnLen
	} else {
		payloadEnd = len(b)
	}
	if payloadEnd > len(b) || payloadEnd < headerEnd {
		return nil, 0, newError(ProtocolViolation, "packet length out of range")
	}
	ad := b[:headerEnd]
	ciphertext := b[headerEnd:payloadEnd]

	opener := p.opener
	usingNext := false
	if !long && pkt.keyPhase != p.peerKeyPhase {
		// The phase bit does not match what we have installed: either a
		// reordered packet from before our last committed update, or the
		// peer flipping to a new phase (spec section 4.3). A packet number
		// lower than the one that started the current phase can only be the
		// former; anything else is tentatively opened against the ratcheted
		// next-generation keys and only committed on success.
		if p.prevOpener != nil && pkt.packetNumber < p.currentPhaseStartPN {
			opener = p.prevOpener
		} else if next, err := p.nextReadKeys(); err == nil {
			opener = next
			usingNext = true
		}
	}
	plaintext, err := opener.open(ciphertext[:0], ad, pkt.packetNumber, ciphertext)
	if err != nil {
		// payloadEnd is still meaningful: the caller needs it to skip past
		// this packet within a coalesced datagram even though it could not
		// be authenticated (spec section 4.1: an AEAD failure must not be
		// treated as a connection error, only as a dropped packet).
		return nil, payloadEnd, newError(ProtocolViolation, "packet protection failed")
	}
	if usingNext {
		p.commitKeyUpdate(pkt.packetNumber)
	}
	return plaintext, payloadEnd, nil
}

// installAppReadSecret and installAppWriteSecret stash the raw traffic
// secret behind a newly installed Application-space opener or sealer, so a
// later key update can ratchet it via the "quic ku" HKDF label (RFC 9001
// section 6.1). Called only for the Application packet-number space; other
// spaces never flip keys.
func (p *packetNumberSpace) installAppReadSecret(suite AEADSuite, secret []byte) {
	p.keyUpdateSuite = suite
	p.readSecret = append([]byte(nil), secret...)
}

func (p *packetNumberSpace) installAppWriteSecret(suite AEADSuite, secret []byte) {
	p.keyUpdateSuite = suite
	p.writeSecret = append([]byte(nil), secret...)
}

// ratchetSecret advances a 1-RTT traffic secret to its next key-phase
// generation (RFC 9001 section 6.1, HKDF-Expand-Label with label "quic ku").
func ratchetSecret(secret []byte) []byte {
	return hkdfExpandLabel(secret, "quic ku", len(secret))
}

// nextReadKeys lazily derives and caches the opener for the next key-phase
// generation, so repeated reordered packets in the new phase do not each
// redo the HKDF ratchet.
func (p *packetNumberSpace) nextReadKeys() (*directionalKeys, error) {
	if p.pendingOpener != nil {
		return p.pendingOpener, nil
	}
	secret := ratchetSecret(p.readSecret)
	keys, err := deriveDirectionalKeysLen(p.keyUpdateSuite, secret, keyLenForSuite(p.keyUpdateSuite))
	if err != nil {
		return nil, err
	}
	p.pendingOpener = keys
	p.pendingReadSecret = secret
	return keys, nil
}

// commitKeyUpdate promotes the tentatively-derived next-phase opener to
// current, once a packet under it has been successfully authenticated. The
// superseded opener is kept as prevOpener to decrypt any packets reordered
// from before the flip.
func (p *packetNumberSpace) commitKeyUpdate(triggeringPN uint64) {
	p.prevOpener = p.opener
	p.opener = p.pendingOpener
	p.readSecret = p.pendingReadSecret
	p.pendingOpener = nil
	p.pendingReadSecret = nil
	p.peerKeyPhase = !p.peerKeyPhase
	p.currentPhaseStartPN = triggeringPN
}

// updateKeys flips this endpoint's send key phase, ratcheting the write
// secret forward. The caller must already have confirmed a packet sent in
// the current phase was acknowledged (spec section 4.3: "the sender must not
// flip again until at least one packet in the new phase is acknowledged").
func (p *packetNumberSpace) updateKeys() error {
	secret := ratchetSecret(p.writeSecret)
	keys, err := deriveDirectionalKeysLen(p.keyUpdateSuite, secret, keyLenForSuite(p.keyUpdateSuite))
	if err != nil {
		return err
	}
	p.sealer = keys
	p.writeSecret = secret
	p.localKeyPhase = !p.localKeyPhase
	p.localPhaseFirstPN = p.nextPacketNumber
	p.localKeyUpdatePending = true
	return nil
}

// canUpdateKeys reports whether this endpoint is allowed to flip its send
// key phase again: only once 1-RTT keys exist, and only once a packet sent
// under any previous flip has been acknowledged (spec section 4.3).
func (p *packetNumberSpace) canUpdateKeys() bool {
	return p.writeSecret != nil && !p.localKeyUpdatePending
}

// encryptPacket applies AEAD protection then header protection in place,
// per RFC 9001 section 5.4 ("Header Protection applied after packet
// protection is applied").
func (p *packetNumberSpace) encryptPacket(b []byte, pkt *packet) error {
	if p.sealer == nil {
		return newError(InternalError, "no write keys for space")
	}
	headerEnd := pkt.headerLen + pkt.packetNumberLen
	ad := b[:headerEnd]
	plaintext := b[headerEnd : len(b)-p.sealer.aead.Overhead()]
	p.sealer.seal(plaintext[:0], ad, pkt.packetNumber, plaintext)
	sampleOffset := pkt.headerLen + 4
	if sampleOffset+16 > len(b) {
		return newError(InternalError, "packet too short to sample for header protection")
	}
	mask := p.sealer.hp.mask(b[sampleOffset : sampleOffset+16])
	long := pkt.typ != packetTypeShort
	if long {
		b[0] ^= mask[0] & 0x0f
	} else {
		b[0] ^= mask[0] & 0x1f
	}
	for i := 0; i < pkt.packetNumberLen; i++ {
		b[pkt.headerLen+i] ^= mask[1+i]
	}
	return nil
}

func (p *packetNumberSpace) expectedPacketNumber() uint64 {
	if max, ok := p.received.max(); ok {
		return max + 1
	}
	return 0
}
