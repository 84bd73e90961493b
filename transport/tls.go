package transport

import (
	"context"
	"crypto/tls"
)

// quicTransportParametersExtension is the TLS extension number carrying
// QUIC transport parameters (RFC 9001 section 8.2).
const quicTransportParametersExtension = 0x39

// tlsHandshake drives the TLS 1.3 handshake for a Conn via the standard
// library's tls.QUICConn, translating its event stream into epoch key
// material and CRYPTO-stream bytes (RFC 9001). The QUIC record layer
// (framing CRYPTO data per packet-number space) is this package's
// responsibility; tls.QUICConn only ever sees and emits handshake bytes
// plus key-installation events.
type tlsHandshake struct {
	conn      *Conn
	tlsConfig *tls.Config
	qconn     *tls.QUICConn

	complete      bool
	started       bool
	peerParams    *Parameters
	writeLevel    epoch
	localParamSet bool
}

func (h *tlsHandshake) init(conn *Conn, tlsConfig *tls.Config) {
	h.conn = conn
	h.tlsConfig = tlsConfig
	if tlsConfig == nil {
		return
	}
	if conn.isClient {
		h.qconn = tls.QUICClient(&tls.QUICConfig{TLSConfig: tlsConfig})
	} else {
		h.qconn = tls.QUICServer(&tls.QUICConfig{TLSConfig: tlsConfig})
	}
}

// setTransportParams supplies our local transport parameters to be carried
// in the TLS ClientHello/EncryptedExtensions. Must be called before the
// handshake is started, and again after a Retry resets the handshake.
func (h *tlsHandshake) setTransportParams(p *Parameters) {
	if h.qconn == nil {
		return
	}
	h.qconn.SetTransportParameters(p.encode())
	h.localParamSet = true
}

// reset discards in-progress handshake state after a Retry or Version
// Negotiation forces the client to restart with a fresh Initial.
func (h *tlsHandshake) reset() {
	if h.tlsConfig == nil {
		return
	}
	h.complete = false
	h.started = false
	h.peerParams = nil
	h.writeLevel = epochInitial
	if h.conn.isClient {
		h.qconn = tls.QUICClient(&tls.QUICConfig{TLSConfig: h.tlsConfig})
	} else {
		h.qconn = tls.QUICServer(&tls.QUICConfig{TLSConfig: h.tlsConfig})
	}
}

// doHandshake pumps the TLS state machine: feeds it any CRYPTO bytes
// received since the last call (via conn.recvFrameCrypto -> pushRecv on the
// relevant packet-number space, which this reads back out) and drains any
// newly produced CRYPTO bytes and key installations.
func (h *tlsHandshake) doHandshake() error {
	if h.qconn == nil {
		return newError(InternalError, "no tls config")
	}
	if !h.localParamSet {
		h.qconn.SetTransportParameters(h.conn.localParams.encode())
		h.localParamSet = true
	}
	if !h.started {
		if err := h.qconn.Start(context.Background()); err != nil {
			return newCryptoError(0, err.Error())
		}
		h.started = true
	}
	for lvl := epochInitial; lvl < epochCount; lvl++ {
		space := epochToSpace(lvl)
		pnSpace := &h.conn.packetNumberSpaces[space]
		buf := make([]byte, 4096)
		for pnSpace.cryptoStream.recv.readable() {
			n, _ := pnSpace.cryptoStream.recv.read(buf)
			if n == 0 {
				break
			}
			if err := h.qconn.HandleData(tlsLevelFromEpoch(lvl), buf[:n]); err != nil {
				return newCryptoError(0, err.Error())
			}
		}
	}
	for {
		ev := h.qconn.NextEvent()
		if ev.Kind == tls.QUICNoEvent {
			break
		}
		if err := h.handleEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

func (h *tlsHandshake) handleEvent(ev tls.QUICEvent) error {
	switch ev.Kind {
	case tls.QUICSetReadSecret:
		suite := suiteFromCipherSuite(ev.Suite)
		keys, err := deriveDirectionalKeysLen(suite, ev.Data, keyLenForSuite(suite))
		if err != nil {
			return newCryptoError(0, err.Error())
		}
		space := &h.conn.packetNumberSpaces[epochToSpace(tlsLevelToEpoch(ev.Level))]
		space.opener = keys
		if ev.Level == tls.QUICEncryptionLevelApplication {
			space.installAppReadSecret(suite, ev.Data)
		}
	case tls.QUICSetWriteSecret:
		suite := suiteFromCipherSuite(ev.Suite)
		keys, err := deriveDirectionalKeysLen(suite, ev.Data, keyLenForSuite(suite))
		if err != nil {
			return newCryptoError(0, err.Error())
		}
		space := &h.conn.packetNumberSpaces[epochToSpace(tlsLevelToEpoch(ev.Level))]
		space.sealer = keys
		if ev.Level == tls.QUICEncryptionLevelApplication {
			space.installAppWriteSecret(suite, ev.Data)
		}
	case tls.QUICWriteData:
		space := &h.conn.packetNumberSpaces[epochToSpace(tlsLevelToEpoch(ev.Level))]
		space.cryptoStream.send.write(ev.Data)
	case tls.QUICTransportParameters:
		var p Parameters
		if err := p.decode(ev.Data); err != nil {
			return err
		}
		h.peerParams = &p
	case tls.QUICHandshakeDone:
		h.complete = true
	}
	return nil
}

func (h *tlsHandshake) HandshakeComplete() bool {
	return h.complete
}

func (h *tlsHandshake) peerTransportParams() *Parameters {
	return h.peerParams
}

// writeSpace reports the highest encryption level the handshake has keys
// to write at, used when priority-ordering a probe/close packet.
func (h *tlsHandshake) writeSpace() packetSpace {
	for lvl := epochApplication; ; lvl-- {
		space := epochToSpace(lvl)
		if h.conn.packetNumberSpaces[space].canEncrypt() {
			return space
		}
		if lvl == epochInitial {
			break
		}
	}
	return packetSpaceInitial
}

func tlsLevelFromEpoch(e epoch) tls.QUICEncryptionLevel {
	switch e {
	case epochInitial:
		return tls.QUICEncryptionLevelInitial
	case epochHandshake:
		return tls.QUICEncryptionLevelHandshake
	case epochZeroRTT:
		return tls.QUICEncryptionLevelEarly
	default:
		return tls.QUICEncryptionLevelApplication
	}
}

func tlsLevelToEpoch(level tls.QUICEncryptionLevel) epoch {
	switch level {
	case tls.QUICEncryptionLevelInitial:
		return epochInitial
	case tls.QUICEncryptionLevelHandshake:
		return epochHandshake
	case tls.QUICEncryptionLevelEarly:
		return epochZeroRTT
	default:
		return epochApplication
	}
}

func suiteFromCipherSuite(id uint16) AEADSuite {
	switch id {
	case tls.TLS_CHACHA20_POLY1305_SHA256:
		return SuiteChaCha20Poly1305
	case tls.TLS_AES_256_GCM_SHA384:
		return SuiteAES256GCM
	default:
		return SuiteAES128GCM
	}
}

func keyLenForSuite(suite AEADSuite) int {
	switch suite {
	case SuiteAES256GCM, SuiteChaCha20Poly1305:
		return 32
	default:
		return 16
	}
}
