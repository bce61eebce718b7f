package reactor

import (
	"container/heap"
	"time"
)

type timerEntry struct {
	when   time.Time
	seq    uint64
	handle Handle
	index  int
}

// timerHeap is a min-heap of timers, ordered by deadline then arm order.
type timerHeap []*timerEntry

// Implement heap.Interface for timerHeap
func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timerEntry)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	x.index = -1
	*h = old[:n-1]
	return x
}

type timerQueue struct {
	heap timerHeap
	seq  uint64
}

func (q *timerQueue) Len() int { return len(q.heap) }

func (q *timerQueue) arm(h Handle, when time.Time) *timerEntry {
	q.seq++
	t := &timerEntry{when: when, seq: q.seq, handle: h}
	heap.Push(&q.heap, t)
	return t
}

func (q *timerQueue) cancel(t *timerEntry) {
	if t.index >= 0 && t.index < len(q.heap) && q.heap[t.index] == t {
		heap.Remove(&q.heap, t.index)
	}
}

func (q *timerQueue) peek() *timerEntry {
	if len(q.heap) == 0 {
		return nil
	}
	return q.heap[0]
}

func (q *timerQueue) pop() *timerEntry {
	return heap.Pop(&q.heap).(*timerEntry)
}
