package transport

import "time"

// recvFrameNewConnectionID records a connection ID the peer has offered for
// future use as our destination CID, retiring any of our previously-learned
// peer CIDs below the carried retire_prior_to watermark (RFC 9000 section
// 19.15).
func (s *Conn) recvFrameNewConnectionID(b []byte, now time.Time) (int, error) {
	var f newConnectionIDFrame
	n, err := f.decode(b)
	if err != nil {
		return 0, err
	}
	debug("received frame 0x%x: %v", b[0], &f)
	if len(f.cid) == 0 || len(f.cid) > MaxCIDLength {
		return 0, newError(FrameEncodingError, "new_connection_id cid length")
	}
	if s.peerCIDs.len() == 0 {
		s.peerCIDs.init(s.dcid, nil)
	}
	s.peerCIDs.addWithSeq(f.seqNum, f.cid, f.resetToken)
	s.peerCIDs.retire(f.retirePriorTo)
	s.logFrameProcessed(&f, now)
	return n, nil
}

// recvFrameRetireConnectionID retires one of our source CIDs at the peer's
// request; the sequence number must refer to a CID we actually issued (RFC
// 9000 section 19.16).
func (s *Conn) recvFrameRetireConnectionID(b []byte, now time.Time) (int, error) {
	var f retireConnectionIDFrame
	n, err := f.decode(b)
	if err != nil {
		return 0, err
	}
	debug("received frame 0x%x: %v", b[0], &f)
	if entry := s.localCIDs.find(f.seqNum); entry != nil {
		s.localCIDs.removeRetired(f.seqNum)
	}
	s.logFrameProcessed(&f, now)
	return n, nil
}

// recvFramePathChallenge schedules an immediate PATH_RESPONSE echoing the
// challenge data, required on any path the challenge arrived on (RFC 9000
// section 8.2.2).
func (s *Conn) recvFramePathChallenge(b []byte, now time.Time) (int, error) {
	var f pathChallengeFrame
	n, err := f.decode(b)
	if err != nil {
		return 0, err
	}
	debug("received frame 0x%x: %v", b[0], &f)
	data := f.data
	s.pathResponsePend = &data
	s.logFrameProcessed(&f, now)
	return n, nil
}

// recvFramePathResponse completes path validation if the echoed data
// matches an outstanding PATH_CHALLENGE we sent (RFC 9000 section 8.2.3).
func (s *Conn) recvFramePathResponse(b []byte, now time.Time) (int, error) {
	var f pathResponseFrame
	n, err := f.decode(b)
	if err != nil {
		return 0, err
	}
	debug("received frame 0x%x: %v", b[0], &f)
	if s.pathChallengeSent && f.data == s.pathChallengeOut {
		s.pathChallengeSent = false
	}
	s.logFrameProcessed(&f, now)
	return n, nil
}

// sendFramePathResponse returns a pending PATH_RESPONSE, if a PATH_CHALLENGE
// is awaiting acknowledgment.
func (s *Conn) sendFramePathResponse() *pathResponseFrame {
	if s.pathResponsePend == nil {
		return nil
	}
	f := newPathResponseFrame(*s.pathResponsePend)
	s.pathResponsePend = nil
	return f
}
