package mission

import (
	"context"
	"sync"
)

// queue is an unbounded FIFO of messages shared by all vehicles.
type queue struct {
	mu     sync.Mutex
	items  []*Message
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{}, 1)}
}

func (q *queue) push(m *Message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	q.notify()
}

func (q *queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *queue) tryPop() *Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	m := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) > 0 {
		// Another waiter may have consumed the only signal.
		q.notify()
	}
	return m
}

// pop blocks until a message is available, ctx is done or stopped is
// closed. After stop, queued messages are still returned.
func (q *queue) pop(ctx context.Context, stopped <-chan struct{}) (*Message, error) {
	for {
		if m := q.tryPop(); m != nil {
			return m, nil
		}
		select {
		case <-q.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-stopped:
			if m := q.tryPop(); m != nil {
				return m, nil
			}
			return nil, ErrStopped
		}
	}
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
