package main

import (
	"crypto/tls"
	"time"

	"github.com/goburrow/quince/transport"
)

// quicVersion1 is the QUIC v1 wire version (RFC 9000).
const quicVersion1 = 0x00000001

// newConfig returns the transport.Config shared by the client and server
// subcommands, with sensible request-for-comment defaults overridable via
// flags before the handshake starts.
func newConfig() *transport.Config {
	params := transport.DefaultParameters()
	params.MaxIdleTimeout = 30 * time.Second
	return &transport.Config{
		Version: quicVersion1,
		Params:  params,
		TLS: &tls.Config{
			MinVersion: tls.VersionTLS13,
			NextProtos: []string{"quince"},
		},
	}
}
