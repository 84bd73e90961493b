package quic

import "github.com/goburrow/quince/transport"

// EventConnAccept and EventConnClose are connection-lifecycle occurrences
// reported through the same transport.Event stream as stream-level events
// (transport.EventStream, transport.EventStreamComplete), so a Handler can
// switch on e.Type without caring which layer produced it.
const (
	EventConnAccept = transport.EventConnAccept
	EventConnClose  = transport.EventConnClose
)
