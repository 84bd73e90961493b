package transport

import (
	"bytes"
	"testing"
)

func TestCIDSetSequencesIncrease(t *testing.T) {
	var s cidSet
	s.init([]byte{1, 2, 3, 4}, nil)
	seqA := s.add([]byte{5, 6}, [resetTokenLength]byte{1})
	seqB := s.add([]byte{7, 8}, [resetTokenLength]byte{2})
	if seqA != 1 || seqB != 2 {
		t.Fatalf("sequence numbers = %d, %d, want 1, 2", seqA, seqB)
	}
	if e := s.activeEntry(); e == nil || !bytes.Equal(e.cid, []byte{1, 2, 3, 4}) {
		t.Fatal("active entry should be the initial CID")
	}
}

func TestCIDSetRetireAndRemove(t *testing.T) {
	var s cidSet
	s.init([]byte{1}, nil)
	s.add([]byte{2}, [resetTokenLength]byte{})
	s.add([]byte{3}, [resetTokenLength]byte{})

	retired := s.retire(2)
	if len(retired) != 2 || retired[0] != 0 || retired[1] != 1 {
		t.Fatalf("retired = %v, want [0 1]", retired)
	}
	// A retired entry stays until its retirement is acknowledged.
	if s.find(0) == nil || !s.find(0).retired {
		t.Fatal("retired entry dropped too early")
	}
	// A lower or equal threshold is a no-op.
	if again := s.retire(2); again != nil {
		t.Fatalf("re-retire returned %v", again)
	}
	s.removeRetired(0)
	if s.find(0) != nil {
		t.Fatal("acknowledged retirement should remove the entry")
	}
	if s.len() != 2 {
		t.Fatalf("len = %d, want 2", s.len())
	}
}

func TestCIDSetAddWithSeqAdvancesNext(t *testing.T) {
	var s cidSet
	s.init([]byte{1}, nil)
	s.addWithSeq(5, []byte{9}, [resetTokenLength]byte{})
	if s.nextSeq != 6 {
		t.Fatalf("nextSeq = %d, want 6", s.nextSeq)
	}
	if e := s.find(5); e == nil || !e.hasToken {
		t.Fatal("peer-issued entry missing or without token")
	}
}

func TestCIDSetActivate(t *testing.T) {
	var s cidSet
	s.init([]byte{1}, nil)
	s.add([]byte{2}, [resetTokenLength]byte{})
	if !s.activate(1) {
		t.Fatal("expected activation of a known sequence to succeed")
	}
	if e := s.activeEntry(); e == nil || !bytes.Equal(e.cid, []byte{2}) {
		t.Fatal("active entry not switched")
	}
	if s.activate(9) {
		t.Fatal("activation of an unknown sequence must fail")
	}
}

func TestCIDSetFindByValue(t *testing.T) {
	var s cidSet
	s.init([]byte{0xaa, 0xbb}, nil)
	if s.findByValue([]byte{0xaa, 0xbb}) == nil {
		t.Fatal("initial CID not found by value")
	}
	if s.findByValue([]byte{0xcc}) != nil {
		t.Fatal("unknown CID found by value")
	}
}

func TestRandomCIDLength(t *testing.T) {
	cid, err := randomCID(nil, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(cid) != 8 {
		t.Fatalf("len = %d, want 8", len(cid))
	}
}
