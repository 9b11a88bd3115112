package concurrent

import "sync/atomic"

// mpmcNode is a sequence-numbered slot. step acts as a stamp: a
// producer may claim the slot pointed to by tail only when
// step == tail (meaning the previous occupant has been polled); a
// consumer may claim the slot pointed to by head only when
// step == head+1 (meaning a producer has published into it). This is
// the standard bounded-MPMC design (1024cores), grounded on the
// node-based lock-free ring in the retrieval pack.
type mpmcNode[T any] struct {
	step  atomic.Uint64
	value T
}

// MPMCQueue is a lock-free bounded queue supporting many producers and
// many consumers. Forward progress is lock-free overall: an individual
// TryPush/TryPop call may lose a CAS race and report failure, but some
// other goroutine is always making progress.
type MPMCQueue[T any] struct {
	mask uint64
	buf  []*mpmcNode[T]

	head atomic.Uint64
	_    [56]byte
	tail atomic.Uint64
	_    [56]byte
}

// NewMPMCQueue returns a queue whose capacity is the next power of two
// >= n (minimum 2).
func NewMPMCQueue[T any](n int) *MPMCQueue[T] {
	capacity := nextPowerOfTwo(n)
	buf := make([]*mpmcNode[T], capacity)
	for i := range buf {
		node := &mpmcNode[T]{}
		node.step.Store(uint64(i))
		buf[i] = node
	}
	return &MPMCQueue[T]{
		mask: uint64(capacity - 1),
		buf:  buf,
	}
}

// Capacity returns the number of usable slots.
func (q *MPMCQueue[T]) Capacity() int {
	return int(q.mask + 1)
}

// Len returns an instantaneous estimate of the number of queued
// elements; under concurrent access it may be stale the instant it is
// read.
func (q *MPMCQueue[T]) Len() int {
	tail := q.tail.Load()
	head := q.head.Load()
	if tail < head {
		return 0
	}
	return int(tail - head)
}

// TryPush appends v, returning ErrFull if the queue is at capacity (or
// momentarily appears so under contention — callers that must succeed
// should retry).
func (q *MPMCQueue[T]) TryPush(v T) error {
	for {
		tail := q.tail.Load()
		node := q.buf[tail&q.mask]
		step := node.step.Load()

		switch {
		case step == tail:
			if q.tail.CompareAndSwap(tail, tail+1) {
				node.value = v
				node.step.Store(tail + 1)
				return nil
			}
			// lost the race for this slot; retry
		case step < tail:
			// producer has lapped the consumer: queue is full
			return ErrFull{}
		default:
			// another producer already claimed and published; retry
		}
	}
}

// TryPop removes and returns the oldest element, returning ErrEmpty if
// none is available (or momentarily appears so under contention).
func (q *MPMCQueue[T]) TryPop() (T, error) {
	var zero T
	for {
		head := q.head.Load()
		node := q.buf[head&q.mask]
		step := node.step.Load()

		switch {
		case step == head+1:
			if q.head.CompareAndSwap(head, head+1) {
				v := node.value
				node.value = zero
				node.step.Store(head + q.mask + 1)
				return v, nil
			}
			// lost the race for this slot; retry
		case step < head+1:
			// consumer has caught up with the producer: queue is empty
			return zero, ErrEmpty{}
		default:
			// another consumer already claimed this slot; retry
		}
	}
}
