package transport

// UpdateKeys flips this endpoint's 1-RTT send key phase, ratcheting the
// write secret forward (spec section 4.3, RFC 9001 section 6). It reports an
// error if 1-RTT keys are not yet installed or a previously initiated update
// has not yet been acknowledged by the peer; either case leaves the
// connection's keys unchanged.
func (s *Conn) UpdateKeys() error {
	space := &s.packetNumberSpaces[packetSpaceApplication]
	if !space.canUpdateKeys() {
		return newError(InternalError, "key update not yet permitted")
	}
	return space.updateKeys()
}
