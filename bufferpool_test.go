package quic

import "testing"

func TestDatagramPoolReuse(t *testing.T) {
	p := newDatagramPool()
	b := p.get()
	if len(b) != maxDatagramSize {
		t.Fatalf("buffer length = %d, want %d", len(b), maxDatagramSize)
	}
	b[0] = 0xff
	p.put(b[:100]) // shrunk slices are restored to full capacity
	c := p.get()
	if len(c) != maxDatagramSize {
		t.Fatalf("recycled buffer length = %d, want %d", len(c), maxDatagramSize)
	}
	p.put(c)
}
