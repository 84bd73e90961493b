package quic

import (
	"net"
	"testing"
)

func TestRegistryLookup(t *testing.T) {
	r := newRegistry()
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1234}
	cid := []byte{1, 2, 3, 4}
	c := &remoteConn{scid: cid, addr: addr}
	r.addByCID(cid, c)
	r.addByAddr(addr, c)

	if got := r.findByCID(cid); got != c {
		t.Fatal("lookup by CID failed")
	}
	if got := r.findByAddr(addr); got != c {
		t.Fatal("lookup by address failed")
	}
	if r.findByCID([]byte{9}) != nil {
		t.Fatal("unknown CID resolved")
	}

	r.remove(c)
	if r.findByCID(cid) != nil || r.findByAddr(addr) != nil {
		t.Fatal("entries survive removal")
	}
}

func TestPeekDestinationCID(t *testing.T) {
	// Long header: form bit, version, dcil, dcid.
	long := []byte{0xc0, 0, 0, 0, 1, 3, 0xaa, 0xbb, 0xcc, 0x00}
	dcid, ok := peekDestinationCID(long, localCIDLength)
	if !ok || len(dcid) != 3 || dcid[0] != 0xaa {
		t.Fatalf("long header peek = %x, %v", dcid, ok)
	}
	// Short header: fixed bit plus a DCID of the engine's issued length.
	short := append([]byte{0x40}, make([]byte, localCIDLength+8)...)
	for i := 0; i < localCIDLength; i++ {
		short[1+i] = byte(i)
	}
	dcid, ok = peekDestinationCID(short, localCIDLength)
	if !ok || len(dcid) != localCIDLength || dcid[1] != 1 {
		t.Fatalf("short header peek = %x, %v", dcid, ok)
	}
	// Truncated datagrams never peek.
	if _, ok := peekDestinationCID([]byte{0x40, 1}, localCIDLength); ok {
		t.Fatal("truncated short header peeked")
	}
	if _, ok := peekDestinationCID(nil, localCIDLength); ok {
		t.Fatal("empty datagram peeked")
	}
}
