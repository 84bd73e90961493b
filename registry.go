package quic

import (
	"encoding/hex"
	"net"
	"sync"
)

// registry indexes live connections by both their current source CID and
// their remote 4-tuple, since a packet's destination CID is authoritative
// once known but the very first Initial from a fresh client must be routed
// by address alone.
type registry struct {
	mu     sync.Mutex
	byCID  map[string]*remoteConn
	byAddr map[string]*remoteConn
}

func newRegistry() *registry {
	return &registry{
		byCID:  make(map[string]*remoteConn),
		byAddr: make(map[string]*remoteConn),
	}
}

func cidKey(cid []byte) string {
	return hex.EncodeToString(cid)
}

func addrKey(addr net.Addr) string {
	return addr.String()
}

func (r *registry) addByCID(cid []byte, c *remoteConn) {
	r.mu.Lock()
	r.byCID[cidKey(cid)] = c
	r.mu.Unlock()
}

func (r *registry) addByAddr(addr net.Addr, c *remoteConn) {
	r.mu.Lock()
	r.byAddr[addrKey(addr)] = c
	r.mu.Unlock()
}

func (r *registry) findByCID(cid []byte) *remoteConn {
	r.mu.Lock()
	c := r.byCID[cidKey(cid)]
	r.mu.Unlock()
	return c
}

func (r *registry) findByAddr(addr net.Addr) *remoteConn {
	r.mu.Lock()
	c := r.byAddr[addrKey(addr)]
	r.mu.Unlock()
	return c
}

func (r *registry) remove(c *remoteConn) {
	r.mu.Lock()
	delete(r.byCID, cidKey(c.scid))
	delete(r.byAddr, addrKey(c.addr))
	r.mu.Unlock()
}
