package stream

import (
	"sync/atomic"

	"quantgate/pkg/types"
)

// queue is a bounded frame buffer with drop-oldest backpressure. push never
// blocks: on a full buffer the head is evicted so the newest frame is always
// admitted. Market feeds carry monotonic state, so a stale frame is worth
// less than the one replacing it.
//
// push must only be called from a single goroutine (the adapter feed). The
// consumer side is the subscription cursor.
type queue struct {
	ch      chan types.TickFrame
	dropped atomic.Uint64
}

func newQueue(depth int) *queue {
	return &queue{ch: make(chan types.TickFrame, depth)}
}

// push enqueues f, evicting the oldest frame first when the buffer is full.
// Returns true when an eviction happened.
func (q *queue) push(f types.TickFrame) bool {
	select {
	case q.ch <- f:
		return false
	default:
	}

	// Full: drain one, then send. Safe because push has a single producer
	// and the consumer only ever removes items.
	evicted := false
	select {
	case <-q.ch:
		q.dropped.Add(1)
		evicted = true
	default:
	}
	q.ch <- f
	return evicted
}

func (q *queue) len() int { return len(q.ch) }

func (q *queue) dropCount() uint64 { return q.dropped.Load() }
