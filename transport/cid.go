package transport

import (
	"bytes"
	"crypto/rand"
	"io"
)

// MaxCIDLength is the maximum length in bytes of a QUIC connection ID.
const MaxCIDLength = 20

// resetTokenLength is the fixed length of a stateless reset token.
const resetTokenLength = 16

// connID is one connection identifier entry, either one we issued to the
// peer (source CID) or one the peer issued to us (destination CID).
type connID struct {
	seq        uint64
	cid        []byte
	resetToken [resetTokenLength]byte
	hasToken   bool
	retired    bool
}

// cidSet tracks an ordered collection of connection IDs for one direction
// (the set of source CIDs we advertise, or the set of destination CIDs we
// may address the peer with). Sequence numbers are strictly increasing;
// exactly one non-retired entry is "active" at a time.
type cidSet struct {
	items       []connID
	nextSeq     uint64
	active      uint64 // sequence number of the active entry
	retirePrior uint64 // highest retire-prior-to threshold seen
}

func (s *cidSet) init(first []byte, token *[resetTokenLength]byte) {
	s.items = s.items[:0]
	e := connID{seq: 0, cid: append([]byte(nil), first...)}
	if token != nil {
		e.resetToken = *token
		e.hasToken = true
	}
	s.items = append(s.items, e)
	s.nextSeq = 1
	s.active = 0
}

// add inserts a new CID with the next sequence number (used when we issue a
// NEW_CONNECTION_ID, or a matching method for peer-issued ones below).
func (s *cidSet) add(cid []byte, token [resetTokenLength]byte) uint64 {
	seq := s.nextSeq
	s.nextSeq++
	s.items = append(s.items, connID{seq: seq, cid: append([]byte(nil), cid...), resetToken: token, hasToken: true})
	return seq
}

// addWithSeq inserts a peer-supplied CID carrying an explicit sequence
// number, as received in a NEW_CONNECTION_ID frame.
func (s *cidSet) addWithSeq(seq uint64, cid []byte, token [resetTokenLength]byte) {
	if seq >= s.nextSeq {
		s.nextSeq = seq + 1
	}
	s.items = append(s.items, connID{seq: seq, cid: append([]byte(nil), cid...), resetToken: token, hasToken: true})
}

func (s *cidSet) find(seq uint64) *connID {
	for i := range s.items {
		if s.items[i].seq == seq {
			return &s.items[i]
		}
	}
	return nil
}

func (s *cidSet) findByValue(cid []byte) *connID {
	for i := range s.items {
		if bytes.Equal(s.items[i].cid, cid) {
			return &s.items[i]
		}
	}
	return nil
}

func (s *cidSet) activeEntry() *connID {
	return s.find(s.active)
}

// retire marks the entries below threshold as retired, returning their
// sequence numbers so RETIRE_CONNECTION_ID frames can be queued for them.
// An entry is only dropped from the set once the peer has acknowledged the
// corresponding RETIRE_CONNECTION_ID (removeRetired).
func (s *cidSet) retire(threshold uint64) []uint64 {
	if threshold <= s.retirePrior {
		return nil
	}
	s.retirePrior = threshold
	var retired []uint64
	for i := range s.items {
		if s.items[i].seq < threshold && !s.items[i].retired {
			s.items[i].retired = true
			retired = append(retired, s.items[i].seq)
		}
	}
	return retired
}

// removeRetired drops a retired entry once its retirement has been
// acknowledged by the peer (or, for locally-retired entries, once we've
// sent the retirement frame and no longer need it).
func (s *cidSet) removeRetired(seq uint64) {
	for i := range s.items {
		if s.items[i].seq == seq {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

// activate switches the active destination CID to seq, e.g. after retiring
// the one currently in use.
func (s *cidSet) activate(seq uint64) bool {
	if s.find(seq) == nil {
		return false
	}
	s.active = seq
	return true
}

func (s *cidSet) len() int {
	return len(s.items)
}

func randomCID(rnd io.Reader, length int) ([]byte, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(rnd, b); err != nil {
		return nil, err
	}
	return b, nil
}

func randomResetToken(rnd io.Reader) ([resetTokenLength]byte, error) {
	var tok [resetTokenLength]byte
	if rnd == nil {
		rnd = rand.Reader
	}
	if _, err := io.ReadFull(rnd, tok[:]); err != nil {
		return tok, err
	}
	return tok, nil
}
