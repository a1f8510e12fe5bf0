package transport

import (
	"time"

	"github.com/Workiva/go-datastructures/queue"
)

// scheduledPacket is a packet held until releaseAt. seq breaks ties so
// packets released at the same instant keep scheduling order.
type scheduledPacket struct {
	packet    Packet
	releaseAt time.Time
	seq       uint64
}

// Compare orders scheduled packets by release time, then by seq.
func (s *scheduledPacket) Compare(other queue.Item) int {
	o := other.(*scheduledPacket)
	switch {
	case s.releaseAt.Before(o.releaseAt):
		return -1
	case s.releaseAt.After(o.releaseAt):
		return 1
	case s.seq < o.seq:
		return -1
	case s.seq > o.seq:
		return 1
	}
	return 0
}

// delayQueue holds packets in release order. It is not safe for concurrent
// use; callers serialize access.
type delayQueue struct {
	pq  *queue.PriorityQueue
	seq uint64
}

func newDelayQueue() *delayQueue {
	return &delayQueue{pq: queue.NewPriorityQueue(16, true)}
}

func (q *delayQueue) push(p Packet, releaseAt time.Time) {
	q.seq++
	_ = q.pq.Put(&scheduledPacket{packet: p, releaseAt: releaseAt, seq: q.seq})
}

// popDue removes and returns the earliest packet whose release time is not
// after now.
func (q *delayQueue) popDue(now time.Time) (Packet, bool) {
	head, ok := q.pq.Peek().(*scheduledPacket)
	if !ok || head.releaseAt.After(now) {
		return Packet{}, false
	}
	items, err := q.pq.Get(1)
	if err != nil || len(items) == 0 {
		return Packet{}, false
	}
	return items[0].(*scheduledPacket).packet, true
}

// nextRelease returns the earliest pending release time.
func (q *delayQueue) nextRelease() (time.Time, bool) {
	head, ok := q.pq.Peek().(*scheduledPacket)
	if !ok {
		return time.Time{}, false
	}
	return head.releaseAt, true
}

func (q *delayQueue) Len() int {
	return q.pq.Len()
}

// clear discards every pending packet.
func (q *delayQueue) clear() {
	q.pq.Dispose()
	q.pq = queue.NewPriorityQueue(16, true)
}
