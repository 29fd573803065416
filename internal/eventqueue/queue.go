// Package eventqueue provides the bounded FIFO that decouples the
// real-time device reader (producer) from the consumer loop. It is the
// only synchronization barrier between those two threads: Put never
// blocks the producer, and on overflow it drops the newest event rather
// than stalling it.
package eventqueue

import (
	"context"
	"sync/atomic"
)

// DefaultCapacity is the queue size specified for the ingestion pipeline.
const DefaultCapacity = 1000

// dropLogInterval is how often an overflow is actually logged, to avoid
// flooding the log when the consumer falls far behind.
const dropLogInterval = 100

// Event is the minimal payload carried through the queue: a single key
// press, never a release or an auto-repeat (those are discarded at the
// device source).
type Event struct {
	Keycode     uint16
	KeyName     string
	TimestampMs int64
}

// DropLogger is called every dropLogInterval-th drop with the total drop
// count so far. Implementations should not block.
type DropLogger func(totalDrops uint64)

// Queue is a bounded, non-blocking-to-producers FIFO of Events.
type Queue struct {
	ch       chan Event
	produced atomic.Uint64
	drops    atomic.Uint64
	onDrop   DropLogger
	cap      int
}

// New creates a Queue with the given capacity (DefaultCapacity if cap<=0)
// and an optional drop logger.
func New(capacity int, onDrop DropLogger) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		ch:     make(chan Event, capacity),
		onDrop: onDrop,
		cap:    capacity,
	}
}

// Put enqueues ev without blocking. If the queue is full the event is
// dropped, the drop counter incremented, and the logger invoked on every
// dropLogInterval-th drop.
func (q *Queue) Put(ev Event) {
	q.produced.Add(1)
	select {
	case q.ch <- ev:
	default:
		total := q.drops.Add(1)
		if q.onDrop != nil && total%dropLogInterval == 1 {
			q.onDrop(total)
		}
	}
}

// Get blocks until an event is available or ctx is done.
func (q *Queue) Get(ctx context.Context) (Event, bool) {
	select {
	case ev := <-q.ch:
		return ev, true
	case <-ctx.Done():
		return Event{}, false
	}
}

// TryGet returns an event without blocking, or false if the queue is
// currently empty. Used by the consumer's drain-up-to-budget tick.
func (q *Queue) TryGet() (Event, bool) {
	select {
	case ev := <-q.ch:
		return ev, true
	default:
		return Event{}, false
	}
}

// Produced returns the total number of events offered to Put.
func (q *Queue) Produced() uint64 { return q.produced.Load() }

// Drops returns the total number of events dropped due to a full queue.
func (q *Queue) Drops() uint64 { return q.drops.Load() }

// Delivered returns the number of events successfully enqueued so far.
// Produced == Drops + Delivered holds at any point in time.
func (q *Queue) Delivered() uint64 {
	produced := q.Produced()
	drops := q.Drops()
	if drops > produced {
		return 0
	}
	return produced - drops
}

// Len returns the number of events currently buffered.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the queue's configured capacity.
func (q *Queue) Cap() int { return q.cap }
