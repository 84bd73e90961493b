package quic

import "sync"

// defaultNumBufs bounds how many datagram buffers datagramPool lets be
// checked out at once (spec section 2/9, "buffer pool ... num_bufs =
// 100,000"): get blocks while that many are outstanding. The pool itself
// grows lazily via sync.Pool rather than preallocating numBufs buffers up
// front, following the same xmitBuf-style reuse as the rest of this corpus's
// UDP session loops; idle buffers in the pool may be reclaimed by the
// garbage collector at any time.
const defaultNumBufs = 100000

// datagramPool hands out maxDatagramSize-capacity buffers for the engine's
// flush loop, avoiding a fresh heap allocation on every outgoing datagram.
type datagramPool struct {
	pool sync.Pool
	sem  chan struct{}
}

func newDatagramPool() *datagramPool {
	return &datagramPool{
		pool: sync.Pool{
			New: func() interface{} {
				b := make([]byte, maxDatagramSize)
				return &b
			},
		},
		sem: make(chan struct{}, defaultNumBufs),
	}
}

// get returns a buffer sized to maxDatagramSize, blocking only in the
// pathological case where defaultNumBufs buffers are already checked out.
func (p *datagramPool) get() []byte {
	p.sem <- struct{}{}
	b := p.pool.Get().(*[]byte)
	return (*b)[:maxDatagramSize]
}

// put returns a buffer obtained from get back to the pool.
func (p *datagramPool) put(b []byte) {
	b = b[:maxDatagramSize]
	p.pool.Put(&b)
	<-p.sem
}
