package index

import "sync"

// queueItem is either an action or a barrier. A barrier is closed by the
// indexer once every item queued before it has been applied.
type queueItem struct {
	action  Action
	barrier chan struct{}
}

// writeQueue is the FIFO between producers and the indexer.
// notify holds at most one pending wake-up for the worker.
type writeQueue struct {
	mu         sync.Mutex
	items      []queueItem
	pending    int
	maxPending int
	closed     bool
	notify     chan struct{}
}

func newWriteQueue(maxPending int) *writeQueue {
	return &writeQueue{
		maxPending: maxPending,
		notify:     make(chan struct{}, 1),
	}
}

// push appends all actions or none of them
func (q *writeQueue) push(actions []Action) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrShuttingDown
	}
	if q.maxPending > 0 && q.pending+len(actions) > q.maxPending {
		q.mu.Unlock()
		return ErrQueueFull
	}
	for _, a := range actions {
		q.items = append(q.items, queueItem{action: a})
	}
	q.pending += len(actions)
	q.mu.Unlock()

	q.signal()
	return nil
}

func (q *writeQueue) pushBarrier() (<-chan struct{}, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrShuttingDown
	}
	barrier := make(chan struct{})
	q.items = append(q.items, queueItem{barrier: barrier})
	q.mu.Unlock()

	q.signal()
	return barrier, nil
}

func (q *writeQueue) pop() (queueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return queueItem{}, false
	}
	item := q.items[0]
	q.items[0] = queueItem{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	if item.barrier == nil {
		q.pending--
	}
	return item, true
}

// close rejects further pushes and wakes the worker so it can finish.
// It reports whether this call closed the queue.
func (q *writeQueue) close() bool {
	q.mu.Lock()
	already := q.closed
	q.closed = true
	q.mu.Unlock()

	q.signal()
	return !already
}

// finished reports whether the queue is closed and empty
func (q *writeQueue) finished() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

func (q *writeQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *writeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

func (q *writeQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
