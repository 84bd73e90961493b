package transport

import "testing"

func TestNumberSetInsertMerge(t *testing.T) {
	var s numberSet
	s.insert(5)
	s.insert(6)
	s.insert(7)
	s.insert(1)
	s.insert(3)
	if !s.contains(6) || s.contains(4) || s.contains(2) {
		t.Fatalf("unexpected contents: %+v", s.ranges)
	}
	max, ok := s.max()
	if !ok || max != 7 {
		t.Fatalf("max = %d, %v", max, ok)
	}
}

func TestNumberSetRangeMergeAdjacent(t *testing.T) {
	var s numberSet
	s.insertRange(0, 3)
	s.insertRange(3, 6)
	if len(s.ranges) != 1 {
		t.Fatalf("expected adjacent ranges to merge, got %+v", s.ranges)
	}
	for pn := uint64(0); pn < 6; pn++ {
		if !s.contains(pn) {
			t.Fatalf("expected %d to be contained", pn)
		}
	}
}

func TestNumberSetDuplicateRejection(t *testing.T) {
	var s numberSet
	s.insert(10)
	if !s.contains(10) {
		t.Fatal("expected duplicate detection for 10")
	}
	if s.contains(11) {
		t.Fatal("11 should not be contained")
	}
}

func TestNumberSetRemoveUntil(t *testing.T) {
	var s numberSet
	s.insertRange(0, 10)
	s.removeUntil(4)
	if s.contains(4) || !s.contains(5) {
		t.Fatalf("unexpected ranges after removeUntil: %+v", s.ranges)
	}
}

func TestNumberSetToAckRanges(t *testing.T) {
	var s numberSet
	s.insertRange(1, 6)  // [1,5]
	s.insertRange(8, 11) // [8,10]
	ranges := s.toAckRanges()
	if len(ranges) != 2 {
		t.Fatalf("expected 2 ranges, got %d: %+v", len(ranges), ranges)
	}
	if ranges[0] != (ackRange{8, 10}) || ranges[1] != (ackRange{1, 5}) {
		t.Fatalf("unexpected ranges: %+v", ranges)
	}
}
