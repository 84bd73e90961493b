package quic

import (
	"io"
	"net"

	"github.com/goburrow/quince/transport"
)

// Server is a QUIC server engine: it accepts connections on a single UDP
// socket, handing each to the configured Handler as it is established.
type Server struct {
	engine *engine
}

// NewServer creates a server using config for every accepted connection.
// config.TLS must carry a server certificate (TLS.Certificates).
func NewServer(config *transport.Config) *Server {
	return &Server{engine: newEngine(config, false)}
}

// SetHandler installs the callback invoked for connection and stream
// events. It must be set before ListenAndServe.
func (s *Server) SetHandler(h Handler) {
	s.engine.setHandler(h)
}

// SetLogger enables qlog-style transaction logging at the given verbosity
// (0=off 1=error 2=info 3=debug 4=trace) to w.
func (s *Server) SetLogger(level int, w io.Writer) {
	s.engine.setLogger(level, w)
}

// SetRequireRetry enables address validation via the Retry mechanism (RFC
// 9000 section 8.1.2): every new connection attempt is first redirected with
// a Retry packet carrying a token, and only an Initial that echoes back a
// valid token is accepted. Off by default. Must be set before ListenAndServe.
func (s *Server) SetRequireRetry(v bool) {
	s.engine.requireRetry = v
}

// ListenAndServe binds addr and starts accepting connections.
func (s *Server) ListenAndServe(addr string) error {
	return s.engine.listenAndServe(addr)
}

// Close shuts down the server's socket and event loop, without waiting for
// in-flight connections to drain.
func (s *Server) Close() error {
	return s.engine.close()
}

// LocalAddr returns the server's bound UDP address.
func (s *Server) LocalAddr() net.Addr {
	return s.engine.localAddr()
}
