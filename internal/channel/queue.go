package channel

import "context"

const DefaultQueueSize = 10000

// Queue is a bounded FIFO of messages.
//
// Enqueue never blocks; Dequeue blocks until a message arrives or ctx is done.
// Any number of producers may enqueue; one consumer is expected.
type Queue struct {
	ch chan Message
}

// NewQueue creates a queue holding at most maxSize messages.
// maxSize <= 0 selects DefaultQueueSize.
func NewQueue(maxSize int) *Queue {
	if maxSize <= 0 {
		maxSize = DefaultQueueSize
	}
	return &Queue{ch: make(chan Message, maxSize)}
}

func (q *Queue) Enqueue(m Message) error {
	select {
	case q.ch <- m:
		return nil
	default:
		return &QueueFullError{MaxSize: cap(q.ch)}
	}
}

func (q *Queue) Dequeue(ctx context.Context) (Message, error) {
	// Prefer cancellation when both are ready.
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	select {
	case m := <-q.ch:
		return m, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (q *Queue) Len() int { return len(q.ch) }
func (q *Queue) Cap() int { return cap(q.ch) }
