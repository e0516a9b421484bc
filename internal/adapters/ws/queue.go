package ws

import (
	"sync"

	"github.com/beamchat/relay/internal/core"
)

type queueItem struct {
	frame core.Frame
	class core.EventClass
}

// outQueue is the bounded per-connection outbound buffer. Fixed capacity:
// one slow client must never cause unbounded growth in the broadcaster.
//
// Overflow policy, per event class: when the queue is full, the oldest
// queued ephemeral frame is evicted to make room. If everything queued is a
// message frame, an ephemeral push is silently dropped and a message push
// fails with ErrBackpressure (the caller disconnects the receiver).
type outQueue struct {
	mu     sync.Mutex
	buf    []queueItem
	head   int
	count  int
	closed bool
	wake   chan struct{}
}

func newOutQueue(capacity int) *outQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &outQueue{
		buf:  make([]queueItem, capacity),
		wake: make(chan struct{}, 1),
	}
}

func (q *outQueue) Push(f core.Frame, class core.EventClass) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return core.ErrClosed
	}
	if q.count == len(q.buf) {
		if !q.evictOldestEphemeral() {
			if class == core.ClassEphemeral {
				// Receiver is saturated with message frames; stale typing
				// churn loses.
				return nil
			}
			return core.ErrBackpressure
		}
	}
	q.buf[(q.head+q.count)%len(q.buf)] = queueItem{frame: f, class: class}
	q.count++
	q.notify()
	return nil
}

// evictOldestEphemeral removes the oldest ephemeral entry, preserving the
// relative order of everything else. Caller holds q.mu.
func (q *outQueue) evictOldestEphemeral() bool {
	for i := 0; i < q.count; i++ {
		if q.buf[(q.head+i)%len(q.buf)].class != core.ClassEphemeral {
			continue
		}
		for j := i; j < q.count-1; j++ {
			q.buf[(q.head+j)%len(q.buf)] = q.buf[(q.head+j+1)%len(q.buf)]
		}
		q.count--
		q.buf[(q.head+q.count)%len(q.buf)] = queueItem{}
		return true
	}
	return false
}

// Pop removes the oldest frame without blocking.
func (q *outQueue) Pop() (core.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return nil, false
	}
	f := q.buf[q.head].frame
	q.buf[q.head] = queueItem{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return f, true
}

// Wake is signalled whenever frames arrive or the queue closes.
func (q *outQueue) Wake() <-chan struct{} { return q.wake }

func (q *outQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notify()
}

func (q *outQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *outQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

func (q *outQueue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
