package quic

import (
	"io"
	"net"

	"github.com/goburrow/quince/transport"
)

// Client is a QUIC client engine: it owns one UDP socket and zero or more
// outbound connections created via Connect.
type Client struct {
	engine *engine
}

// NewClient creates a client using config for every connection it
// originates. config.TLS should be customized with ServerName and/or
// InsecureSkipVerify before the first Connect call.
func NewClient(config *transport.Config) *Client {
	return &Client{engine: newEngine(config, true)}
}

// SetHandler installs the callback invoked for connection and stream
// events. It must be set before ListenAndServe.
func (c *Client) SetHandler(h Handler) {
	c.engine.setHandler(h)
}

// SetLogger enables qlog-style transaction logging at the given verbosity
// (0=off 1=error 2=info 3=debug 4=trace) to w.
func (c *Client) SetLogger(level int, w io.Writer) {
	c.engine.setLogger(level, w)
}

// ListenAndServe binds the client's local UDP socket and starts its event
// loop. addr may be "0.0.0.0:0" to let the kernel choose a port.
func (c *Client) ListenAndServe(addr string) error {
	return c.engine.listenAndServe(addr)
}

// Connect originates a new connection to addr, returning once the initial
// handshake flight has been sent.
func (c *Client) Connect(addr string) error {
	_, err := c.engine.connect(addr)
	return err
}

// Close shuts down the client's socket and event loop.
func (c *Client) Close() error {
	return c.engine.close()
}

// LocalAddr returns the client's bound UDP address.
func (c *Client) LocalAddr() net.Addr {
	return c.engine.localAddr()
}
