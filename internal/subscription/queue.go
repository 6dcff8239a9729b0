package subscription

import "sync"

// Queue is a fixed-capacity FIFO ring buffer. Send blocks while the queue is
// full; Receive blocks while it is empty.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	buf      []T
	head     int // read position
	count    int
	closed   bool

	// Stats
	totalReceived int64
	totalSent     int64
	totalDropped  int64
}

// NewQueue creates a queue holding at most capacity items.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue[T]{buf: make([]T, capacity)}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Send appends item, waiting for space if the queue is full.
// Returns false if the queue is closed.
func (q *Queue[T]) Send(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == len(q.buf) && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return false
	}

	q.buf[(q.head+q.count)%len(q.buf)] = item
	q.count++
	q.totalReceived++
	q.notEmpty.Signal()
	return true
}

// Receive removes and returns the oldest item.
// Blocks until an item is available or the queue is closed.
// Returns the zero value and false once the queue is closed and empty.
func (q *Queue[T]) Receive() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.pop(), true
}

// TryReceive attempts to receive without blocking.
func (q *Queue[T]) TryReceive() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.pop(), true
}

// Close stops further sends. Receivers still get the queued items.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Discard closes the queue and drops everything still queued.
// Returns the number of dropped items.
func (q *Queue[T]) Discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := q.count
	var zero T
	for q.count > 0 {
		q.buf[q.head] = zero
		q.head = (q.head + 1) % len(q.buf)
		q.count--
	}
	q.totalDropped += int64(dropped)
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	return dropped
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return len(q.buf)
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Count:         q.count,
		Capacity:      len(q.buf),
		TotalReceived: q.totalReceived,
		TotalSent:     q.totalSent,
		TotalDropped:  q.totalDropped,
	}
}

// QueueStats contains queue statistics.
type QueueStats struct {
	Count         int
	Capacity      int
	TotalReceived int64
	TotalSent     int64
	TotalDropped  int64
}

// pop removes the head item. Must be called with lock held and count > 0.
func (q *Queue[T]) pop() T {
	item := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero // Clear reference for GC
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.totalSent++
	q.notFull.Signal()
	return item
}
