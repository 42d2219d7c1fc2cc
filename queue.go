package quicpipe

import "sync"

func newMessageQueue() *messageQueue {
	return &messageQueue{
		notify: make(chan struct{}, 1),
	}
}

// messageQueue is the unbounded FIFO connecting one half of a stream
// pair to the other. push never blocks, so engine callbacks can always
// enqueue; receivers wait on the notify channel when the queue is
// empty.
type messageQueue struct {
	mu     sync.Mutex
	queue  []message
	notify chan struct{}
	closed bool
	err    error
}

// push enqueues m. After close it fails with ErrClosed, or with the
// error carried by fail.
func (q *messageQueue) push(m message) error {
	q.mu.Lock()
	if q.closed {
		err := q.err
		q.mu.Unlock()
		if err == nil {
			err = ErrClosed
		}
		return err
	}
	q.queue = append(q.queue, m)
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *messageQueue) pop() (message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) == 0 {
		return message{}, false
	}
	m := q.queue[0]
	q.queue = q.queue[1:]
	return m, true
}

// close rejects further pushes. Messages already queued stay
// receivable.
func (q *messageQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// shutdown closes the queue and discards anything still queued.
func (q *messageQueue) shutdown() {
	q.mu.Lock()
	q.closed = true
	q.queue = nil
	q.mu.Unlock()
	q.signal()
}

// fail shuts the queue down and attaches err, which subsequent pushes
// and the receiver's state check observe.
func (q *messageQueue) fail(err error) {
	q.mu.Lock()
	q.closed = true
	q.err = err
	q.queue = nil
	q.mu.Unlock()
	q.signal()
}

func (q *messageQueue) state() (closed bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed, q.err
}

// wait returns the readiness channel. The channel has capacity one, so
// a signal arriving between an empty pop and the wait is not lost.
func (q *messageQueue) wait() <-chan struct{} {
	return q.notify
}

func (q *messageQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
