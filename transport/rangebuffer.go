package transport

// sendChunk is one contiguous run of not-yet-sent (or requeued-after-loss)
// bytes, positioned at an absolute stream/crypto-stream offset.
type sendChunk struct {
	data   []byte
	offset uint64
}

// sendBuffer is the outbound half of a stream's or the crypto stream's data:
// an ordered queue of pending byte ranges (spec section 3, "buffered send
// queue ... ordered sequence of IO vectors carrying offsets"), plus enough
// bookkeeping to know when every byte up to and including FIN has been
// acknowledged. Bytes that have been popped for transmission are owned by
// the outbound frame/packet record until acked (removed from here for good)
// or lost (pushed back in via push).
type sendBuffer struct {
	chunks    []sendChunk
	length    uint64 // next offset a Write appends at
	finPend   bool
	finSent   bool
	finOffset uint64
	acked     numberSet
	ackedFin  bool
}

// write appends newly application-supplied bytes at the current tail
// offset and returns that offset.
func (s *sendBuffer) write(data []byte) uint64 {
	offset := s.length
	if len(data) > 0 {
		s.chunks = append(s.chunks, sendChunk{data: append([]byte(nil), data...), offset: offset})
		s.length += uint64(len(data))
	}
	return offset
}

// closeSend marks the stream as having a FIN to send at the current tail
// offset.
func (s *sendBuffer) closeSend() {
	if s.finPend {
		return
	}
	s.finPend = true
	s.finOffset = s.length
	s.finSent = false
}

// push re-queues data (and/or a FIN) after packet loss, or supplies fresh
// application data at an explicit offset. It keeps chunks sorted by offset.
func (s *sendBuffer) push(data []byte, offset uint64, fin bool) error {
	if len(data) > 0 {
		c := sendChunk{data: append([]byte(nil), data...), offset: offset}
		i := 0
		for i < len(s.chunks) && s.chunks[i].offset < offset {
			i++
		}
		s.chunks = append(s.chunks, sendChunk{})
		copy(s.chunks[i+1:], s.chunks[i:])
		s.chunks[i] = c
		if end := offset + uint64(len(data)); end > s.length {
			s.length = end
		}
	}
	if fin {
		end := offset + uint64(len(data))
		s.finPend = true
		s.finSent = false
		if end > s.finOffset {
			s.finOffset = end
		}
		if end > s.length {
			s.length = end
		}
	}
	return nil
}

// pop removes up to max bytes of the lowest-offset pending data (splitting
// a chunk if necessary) for inclusion in an outbound frame. If no data
// remains but a FIN is pending and unsent, it returns a FIN-only result.
func (s *sendBuffer) pop(max int) (data []byte, offset uint64, fin bool) {
	if max <= 0 {
		return nil, 0, false
	}
	if len(s.chunks) > 0 {
		c := &s.chunks[0]
		if len(c.data) <= max {
			data, offset = c.data, c.offset
			s.chunks = s.chunks[1:]
		} else {
			data = c.data[:max]
			offset = c.offset
			c.data = c.data[max:]
			c.offset += uint64(max)
		}
		fin = s.finPend && !s.finSent && len(s.chunks) == 0 && offset+uint64(len(data)) == s.finOffset
		if fin {
			s.finSent = true
		}
		return data, offset, fin
	}
	if s.finPend && !s.finSent {
		s.finSent = true
		return nil, s.finOffset, true
	}
	return nil, 0, false
}

// hasPending reports whether there is data or an unsent FIN queued.
func (s *sendBuffer) hasPending() bool {
	return len(s.chunks) > 0 || (s.finPend && !s.finSent)
}

// nextOffset returns the absolute offset of the next chunk pop would
// return, if any data is queued.
func (s *sendBuffer) nextOffset() (uint64, bool) {
	if len(s.chunks) == 0 {
		return 0, false
	}
	return s.chunks[0].offset, true
}

// pending returns the number of bytes still queued to send, used to order
// streams by how much work they have outstanding (spec section 4.4).
func (s *sendBuffer) pending() uint64 {
	var n uint64
	for _, c := range s.chunks {
		n += uint64(len(c.data))
	}
	return n
}

// ack records that [offset,offset+length) (and, if fin, the FIN itself) has
// been acknowledged by the peer.
func (s *sendBuffer) ack(offset, length uint64, fin bool) {
	if length > 0 {
		s.acked.insertRange(offset, offset+length)
	}
	if fin {
		s.ackedFin = true
	}
}

// complete reports whether every byte up to and including FIN has been
// acknowledged.
func (s *sendBuffer) complete() bool {
	if !s.finPend || !s.ackedFin {
		return false
	}
	if s.finOffset == 0 {
		return true
	}
	return !s.acked.empty() && s.acked.ranges[0].start == 0 && s.acked.ranges[0].end >= s.finOffset
}

// recvChunk is one out-of-order received byte range awaiting reassembly.
type recvChunk struct {
	data   []byte
	offset uint64
}

// recvBuffer reassembles a byte stream from out-of-order STREAM/CRYPTO
// frames (spec section 3, "reassembly buffer"/"reassembly set").
type recvBuffer struct {
	chunks     []recvChunk
	readOffset uint64
	finOffset  uint64
	hasFin     bool
}

// push inserts a received chunk, rejecting inconsistent overlaps and
// discarding pure duplicates.
func (r *recvBuffer) push(data []byte, offset uint64, fin bool) error {
	end := offset + uint64(len(data))
	if fin {
		if r.hasFin && r.finOffset != end {
			return newError(FinalSizeError, "inconsistent final size")
		}
		r.hasFin = true
		r.finOffset = end
	} else if r.hasFin && end > r.finOffset {
		return newError(FinalSizeError, "data beyond final size")
	}
	if end <= r.readOffset || len(data) == 0 {
		return nil // pure duplicate
	}
	if offset < r.readOffset {
		data = data[r.readOffset-offset:]
		offset = r.readOffset
	}
	// Check overlap consistency against already-buffered chunks and insert
	// in offset order.
	i := 0
	for i < len(r.chunks) && r.chunks[i].offset < offset {
		i++
	}
	for _, c := range r.chunks {
		if err := checkOverlap(c, recvChunk{data, offset}); err != nil {
			return err
		}
	}
	r.chunks = append(r.chunks, recvChunk{})
	copy(r.chunks[i+1:], r.chunks[i:])
	r.chunks[i] = recvChunk{data: data, offset: offset}
	return nil
}

func checkOverlap(a, b recvChunk) error {
	aEnd := a.offset + uint64(len(a.data))
	bEnd := b.offset + uint64(len(b.data))
	lo, hi := a.offset, aEnd
	if b.offset > lo {
		lo = b.offset
	}
	if bEnd < hi {
		hi = bEnd
	}
	if lo >= hi {
		return nil
	}
	for o := lo; o < hi; o++ {
		if a.data[o-a.offset] != b.data[o-b.offset] {
			return newError(ProtocolViolation, "overlapping stream data mismatch")
		}
	}
	return nil
}

// read copies the contiguous prefix available at the current read offset
// into buf, returning the number of bytes copied and whether the stream is
// now fully consumed (FIN delivered).
func (r *recvBuffer) read(buf []byte) (int, bool) {
	n := 0
	for n < len(buf) && len(r.chunks) > 0 && r.chunks[0].offset <= r.readOffset {
		c := &r.chunks[0]
		skip := r.readOffset - c.offset
		if skip >= uint64(len(c.data)) {
			r.chunks = r.chunks[1:]
			continue
		}
		avail := c.data[skip:]
		m := copy(buf[n:], avail)
		n += m
		r.readOffset += uint64(m)
		if uint64(m) == uint64(len(avail)) {
			r.chunks = r.chunks[1:]
		} else {
			c.data = c.data[int(skip)+m:]
			c.offset = r.readOffset
		}
		if n == len(buf) {
			break
		}
	}
	fin := r.hasFin && r.readOffset == r.finOffset
	return n, fin
}

// readable reports whether a contiguous prefix is ready to be read, or FIN
// has been reached with nothing left.
func (r *recvBuffer) readable() bool {
	if len(r.chunks) > 0 && r.chunks[0].offset <= r.readOffset {
		return true
	}
	return r.hasFin && r.readOffset == r.finOffset
}

// reset discards all buffered data on a RESET_STREAM, returning how many
// bytes lie between the current read offset and the final size, the amount
// credited to flow control (spec's "mayRecv"). Bytes buffered but not yet
// read are included in that count.
func (r *recvBuffer) reset(finalSize uint64) (int, error) {
	if r.hasFin && r.finOffset != finalSize {
		return 0, newError(FinalSizeError, "inconsistent final size on reset")
	}
	if finalSize < r.readOffset {
		return 0, newError(FinalSizeError, "final size below delivered offset")
	}
	credit := finalSize - r.readOffset
	r.chunks = nil
	r.hasFin = true
	r.finOffset = finalSize
	r.readOffset = finalSize
	return int(credit), nil
}
