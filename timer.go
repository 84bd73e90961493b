package quic

import (
	"container/heap"
	"time"
)

// timerEntry schedules one connection's next OnTimeout call.
type timerEntry struct {
	conn     *remoteConn
	deadline time.Time
	index    int
}

// timerWheel is a min-heap of connection deadlines, letting the engine's
// single event loop block until exactly the next connection needs a
// Timeout-driven check instead of polling every connection on a fixed tick.
type timerWheel struct {
	entries []*timerEntry
	byConn  map[*remoteConn]*timerEntry
}

func newTimerWheel() *timerWheel {
	return &timerWheel{byConn: make(map[*remoteConn]*timerEntry)}
}

func (w *timerWheel) Len() int { return len(w.entries) }

func (w *timerWheel) Less(i, j int) bool {
	return w.entries[i].deadline.Before(w.entries[j].deadline)
}

func (w *timerWheel) Swap(i, j int) {
	w.entries[i], w.entries[j] = w.entries[j], w.entries[i]
	w.entries[i].index = i
	w.entries[j].index = j
}

func (w *timerWheel) Push(x interface{}) {
	e := x.(*timerEntry)
	e.index = len(w.entries)
	w.entries = append(w.entries, e)
}

func (w *timerWheel) Pop() interface{} {
	old := w.entries
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	w.entries = old[:n-1]
	return e
}

// schedule sets (or reschedules) when conn should next be checked. A zero
// deadline removes the connection from the wheel.
func (w *timerWheel) schedule(conn *remoteConn, deadline time.Time) {
	if e, ok := w.byConn[conn]; ok {
		if deadline.IsZero() {
			heap.Remove(w, e.index)
			delete(w.byConn, conn)
			return
		}
		e.deadline = deadline
		heap.Fix(w, e.index)
		return
	}
	if deadline.IsZero() {
		return
	}
	e := &timerEntry{conn: conn, deadline: deadline}
	heap.Push(w, e)
	w.byConn[conn] = e
}

func (w *timerWheel) remove(conn *remoteConn) {
	w.schedule(conn, time.Time{})
}

// next returns the earliest deadline in the wheel, and whether one exists.
func (w *timerWheel) next() (time.Time, bool) {
	if len(w.entries) == 0 {
		return time.Time{}, false
	}
	return w.entries[0].deadline, true
}

// expired pops and returns every entry whose deadline is at or before now.
func (w *timerWheel) expired(now time.Time) []*remoteConn {
	var due []*remoteConn
	for len(w.entries) > 0 && !w.entries[0].deadline.After(now) {
		e := heap.Pop(w).(*timerEntry)
		delete(w.byConn, e.conn)
		due = append(due, e.conn)
	}
	return due
}
