// Implements the IntakeQueue, the bounded hand-off buffer between external
// producers and the triage pool. Patients are enqueued on arrival.

package sim

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// IntakeQueue is a fixed-capacity FIFO ring buffer guarded by a mutex and two
// condition variables. 0 <= Len() <= Cap() holds at all times.
type IntakeQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond // consumers wait here
	notFull  *sync.Cond // blocking producers wait here

	buf    []Patient
	head   int
	count  int
	closed bool
}

// NewIntakeQueue creates a queue holding at most capacity patients.
// Panics if capacity is not positive.
func NewIntakeQueue(capacity int) *IntakeQueue {
	if capacity <= 0 {
		panic(fmt.Sprintf("NewIntakeQueue: capacity must be positive, got %d", capacity))
	}
	q := &IntakeQueue{buf: make([]Patient, capacity)}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// TryEnqueue appends p without blocking. It returns ErrRejectedFull when the
// queue is at capacity; the caller keeps p and must not retry it.
func (q *IntakeQueue) TryEnqueue(p Patient) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if q.count == len(q.buf) {
		return ErrRejectedFull
	}
	q.push(p)
	return nil
}

// Enqueue appends p, waiting for a free slot while the queue is full.
// It returns ctx.Err() if ctx is done first and ErrQueueClosed after Close.
func (q *IntakeQueue) Enqueue(ctx context.Context, p Patient) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notFull.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.count == len(q.buf) && !q.closed {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.notFull.Wait()
	}
	if q.closed {
		return ErrQueueClosed
	}
	q.push(p)
	return nil
}

// push stores p at the tail and wakes one consumer. Caller holds q.mu.
func (q *IntakeQueue) push(p Patient) {
	tail := (q.head + q.count) % len(q.buf)
	q.buf[tail] = p
	q.count++
	q.notEmpty.Signal()
}

// Dequeue removes the patient at the head, blocking while the queue is empty.
//
// stop is evaluated under the queue lock before every attempt, including after
// each wake-up; when it returns true Dequeue gives up with ErrInterrupted
// without taking an item. Once the queue is closed Dequeue returns
// ErrQueueClosed, even if patients are still buffered.
func (q *IntakeQueue) Dequeue(stop func() bool) (Patient, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.closed {
			return Patient{}, ErrQueueClosed
		}
		if stop != nil && stop() {
			return Patient{}, ErrInterrupted
		}
		if q.count > 0 {
			break
		}
		q.notEmpty.Wait()
	}
	p := q.buf[q.head]
	q.buf[q.head] = Patient{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.notFull.Signal()
	return p, nil
}

// Wake wakes every blocked consumer so it re-evaluates its stop condition.
func (q *IntakeQueue) Wake() {
	q.mu.Lock()
	q.notEmpty.Broadcast()
	q.mu.Unlock()
}

// Close stops the queue: producers get ErrQueueClosed and every blocked
// consumer returns. Close is idempotent.
func (q *IntakeQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	q.mu.Unlock()
}

// Drain removes and returns every buffered patient in FIFO order.
func (q *IntakeQueue) Drain() []Patient {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Patient, 0, q.count)
	for q.count > 0 {
		out = append(out, q.buf[q.head])
		q.buf[q.head] = Patient{}
		q.head = (q.head + 1) % len(q.buf)
		q.count--
	}
	q.notFull.Broadcast()
	return out
}

// Len returns the number of buffered patients.
func (q *IntakeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the fixed capacity.
func (q *IntakeQueue) Cap() int {
	return len(q.buf)
}

// Closed reports whether Close has been called.
func (q *IntakeQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *IntakeQueue) String() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < q.count; i++ {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(fmt.Sprint(q.buf[(q.head+i)%len(q.buf)].ID))
	}
	sb.WriteString("]")
	return sb.String()
}
