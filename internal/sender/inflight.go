package sender

import (
	"container/heap"
	"time"
)

// inflightRecord is one unacknowledged segment: sequence number paired
// with its resend deadline. tie is purely a heap tie-break for records
// sharing a deadline.
type inflightRecord struct {
	sequence uint32
	deadline time.Time
	tie      uint64
	index    int // maintained by heap.Interface, required for heap.Remove
}

// inflightHeap is a min-heap ordered by resend deadline, queryable by
// earliest deadline with O(log n) removal on ACK.
type inflightHeap []*inflightRecord

func (h inflightHeap) Len() int { return len(h) }

func (h inflightHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].tie < h[j].tie
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h inflightHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *inflightHeap) Push(x any) {
	rec := x.(*inflightRecord)
	rec.index = len(*h)
	*h = append(*h, rec)
}

func (h *inflightHeap) Pop() any {
	old := *h
	n := len(old)
	rec := old[n-1]
	old[n-1] = nil
	rec.index = -1
	*h = old[:n-1]
	return rec
}

// inflightSet is the sender's collection of unacknowledged segments: an
// ordered set keyed by sequence number, also queryable by earliest
// deadline. The heap gives earliest-deadline access; the index map gives
// O(log n) removal by sequence when an ACK arrives.
type inflightSet struct {
	h     inflightHeap
	index map[uint32]*inflightRecord
	tie   uint64
}

func newInflightSet() *inflightSet {
	s := &inflightSet{index: make(map[uint32]*inflightRecord)}
	heap.Init(&s.h)
	return s
}

// add records sequence as freshly sent, due at deadline. If sequence is
// already inflight its deadline is refreshed in place instead of
// duplicating the entry, so the set holds exactly one record per
// transmitted-and-unacked sequence even when a caller adds it twice.
func (s *inflightSet) add(sequence uint32, deadline time.Time) {
	if rec, ok := s.index[sequence]; ok {
		rec.deadline = deadline
		s.tie++
		rec.tie = s.tie
		heap.Fix(&s.h, rec.index)
		return
	}
	s.tie++
	rec := &inflightRecord{sequence: sequence, deadline: deadline, tie: s.tie}
	heap.Push(&s.h, rec)
	s.index[sequence] = rec
}

// ack removes sequence from the inflight set, reporting whether it was
// present.
func (s *inflightSet) ack(sequence uint32) bool {
	rec, ok := s.index[sequence]
	if !ok {
		return false
	}
	heap.Remove(&s.h, rec.index)
	delete(s.index, sequence)
	return true
}

// earliest returns the record with the nearest resend_deadline, without
// removing it.
func (s *inflightSet) earliest() (*inflightRecord, bool) {
	if len(s.h) == 0 {
		return nil, false
	}
	return s.h[0], true
}

// dropEarliest removes the earliest-deadline record (used for the
// abandoned-sequence guard, where the record is discarded rather than
// retransmitted).
func (s *inflightSet) dropEarliest() {
	if len(s.h) == 0 {
		return
	}
	rec := heap.Pop(&s.h).(*inflightRecord)
	delete(s.index, rec.sequence)
}

func (s *inflightSet) len() int { return len(s.h) }
