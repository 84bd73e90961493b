package transport

import (
	"crypto/tls"
	"time"
)

// Config bundles everything a Conn needs to start a handshake: the QUIC
// version to speak, the transport parameters to advertise, and the TLS
// configuration driving the handshake collaborator (spec section 6,
// "External Interfaces"). TLS reuses the standard library's tls.Config
// (including its Rand/Time override hooks, which the Conn itself consults
// for determinism in tests) via tls.QUICConn (Go 1.21+).
type Config struct {
	Version uint32
	Params  Parameters
	TLS     *tls.Config

	// EnableSpinBit turns on the latency spin bit (spec section 4.3, RFC 9000
	// section 17.4) on short-header packets this Conn sends. Off by default,
	// matching the RFC's guidance that it only ever be enabled for a sampled
	// subset of connections.
	EnableSpinBit bool
}

// Parameters is the set of QUIC transport parameters exchanged during the
// handshake (RFC 9000 section 18.2). Both localParams and peerParams on a
// Conn are instances of this type.
type Parameters struct {
	OriginalDestinationCID []byte
	MaxIdleTimeout         time.Duration
	StatelessResetToken    []byte
	MaxUDPPayloadSize      uint64
	InitialMaxData         uint64

	InitialMaxStreamDataBidiLocal  uint64
	InitialMaxStreamDataBidiRemote uint64
	InitialMaxStreamDataUni        uint64

	InitialMaxStreamsBidi uint64
	InitialMaxStreamsUni  uint64

	AckDelayExponent uint64
	MaxAckDelay      uint64 // microseconds; carried on the wire in milliseconds

	DisableActiveMigration bool
	ActiveConnectionIDLimit uint64

	InitialSourceCID []byte
	RetrySourceCID   []byte
}

// DefaultParameters returns the transport parameter values this
// implementation advertises absent any application override.
func DefaultParameters() Parameters {
	return Parameters{
		MaxIdleTimeout:                 10 * time.Second,
		MaxUDPPayloadSize:              1452,
		InitialMaxData:                 1 << 20,
		InitialMaxStreamDataBidiLocal:  1 << 18,
		InitialMaxStreamDataBidiRemote: 1 << 18,
		InitialMaxStreamDataUni:        1 << 18,
		InitialMaxStreamsBidi:          100,
		InitialMaxStreamsUni:           100,
		AckDelayExponent:               3,
		MaxAckDelay:                    25000,
		ActiveConnectionIDLimit:        4,
	}
}

// encode marshals the transport parameters using the TLS extension's
// varint-prefixed (id, length, value) encoding (RFC 9000 section 18.1).
func (p *Parameters) encode() []byte {
	var b []byte
	putParam := func(id uint64, v uint64) {
		b = appendVarint(b, id)
		tmp := appendVarint(nil, v)
		b = appendVarint(b, uint64(len(tmp)))
		b = append(b, tmp...)
	}
	putBytes := func(id uint64, v []byte) {
		b = appendVarint(b, id)
		b = appendVarint(b, uint64(len(v)))
		b = append(b, v...)
	}
	putFlag := func(id uint64) {
		b = appendVarint(b, id)
		b = appendVarint(b, 0)
	}
	if p.OriginalDestinationCID != nil {
		putBytes(0x00, p.OriginalDestinationCID)
	}
	if p.MaxIdleTimeout > 0 {
		putParam(0x01, uint64(p.MaxIdleTimeout/time.Millisecond))
	}
	if p.StatelessResetToken != nil {
		putBytes(0x02, p.StatelessResetToken)
	}
	if p.MaxUDPPayloadSize > 0 {
		putParam(0x03, p.MaxUDPPayloadSize)
	}
	putParam(0x04, p.InitialMaxData)
	putParam(0x05, p.InitialMaxStreamDataBidiLocal)
	putParam(0x06, p.InitialMaxStreamDataBidiRemote)
	putParam(0x07, p.InitialMaxStreamDataUni)
	putParam(0x08, p.InitialMaxStreamsBidi)
	putParam(0x09, p.InitialMaxStreamsUni)
	if p.AckDelayExponent != 3 {
		putParam(0x0a, p.AckDelayExponent)
	}
	if p.MaxAckDelay != 25000 {
		putParam(0x0b, p.MaxAckDelay/1000)
	}
	if p.DisableActiveMigration {
		putFlag(0x0c)
	}
	if p.ActiveConnectionIDLimit > 0 {
		putParam(0x0e, p.ActiveConnectionIDLimit)
	}
	if p.InitialSourceCID != nil {
		putBytes(0x0f, p.InitialSourceCID)
	}
	if p.RetrySourceCID != nil {
		putBytes(0x10, p.RetrySourceCID)
	}
	return b
}

// decode unmarshals transport parameters received from the peer, ignoring
// unknown parameter ids per RFC 9000 section 18.1.
func (p *Parameters) decode(b []byte) error {
	for len(b) > 0 {
		var id, length uint64
		n := getVarint(b, &id)
		if n == 0 {
			return newError(TransportParameterError, "malformed parameter id")
		}
		b = b[n:]
		n = getVarint(b, &length)
		if n == 0 {
			return newError(TransportParameterError, "malformed parameter length")
		}
		b = b[n:]
		if uint64(len(b)) < length {
			return newError(TransportParameterError, "truncated parameter value")
		}
		v := b[:length]
		b = b[length:]
		switch id {
		case 0x00:
			p.OriginalDestinationCID = append([]byte(nil), v...)
		case 0x01:
			var ms uint64
			getVarint(v, &ms)
			p.MaxIdleTimeout = time.Duration(ms) * time.Millisecond
		case 0x02:
			p.StatelessResetToken = append([]byte(nil), v...)
		case 0x03:
			getVarint(v, &p.MaxUDPPayloadSize)
		case 0x04:
			getVarint(v, &p.InitialMaxData)
		case 0x05:
			getVarint(v, &p.InitialMaxStreamDataBidiLocal)
		case 0x06:
			getVarint(v, &p.InitialMaxStreamDataBidiRemote)
		case 0x07:
			getVarint(v, &p.InitialMaxStreamDataUni)
		case 0x08:
			getVarint(v, &p.InitialMaxStreamsBidi)
		case 0x09:
			getVarint(v, &p.InitialMaxStreamsUni)
		case 0x0a:
			getVarint(v, &p.AckDelayExponent)
		case 0x0b:
			var ms uint64
			getVarint(v, &ms)
			p.MaxAckDelay = ms * 1000
		case 0x0c:
			p.DisableActiveMigration = true
		case 0x0e:
			getVarint(v, &p.ActiveConnectionIDLimit)
		case 0x0f:
			p.InitialSourceCID = append([]byte(nil), v...)
		case 0x10:
			p.RetrySourceCID = append([]byte(nil), v...)
		}
	}
	if p.AckDelayExponent == 0 {
		p.AckDelayExponent = 3
	}
	return nil
}
