package reactor

import (
	"github.com/eapache/queue"
)

// deferredQueue is the FIFO behind [Loop.NextTick].
type deferredQueue struct {
	q *queue.Queue
}

func newDeferredQueue() deferredQueue {
	return deferredQueue{q: queue.New()}
}

func (d deferredQueue) push(fn func()) { d.q.Add(fn) }

func (d deferredQueue) Len() int { return d.q.Length() }

// drain runs callbacks until the queue is empty, including any enqueued
// while draining.
func (d deferredQueue) drain(run func(fn func())) {
	for d.q.Length() > 0 {
		run(d.q.Remove().(func()))
	}
}
