package sim

import (
	"fmt"
	"sync"
)

// DispatchQueue is the bounded, priority-laned hand-off between triage and
// service. Each of the five lanes is a strict FIFO; the sum of all lanes never
// exceeds the capacity fixed at construction.
type DispatchQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond

	lanes    [NumPriorities][]Patient
	size     int
	capacity int
	closed   bool

	observer func(depth int)
}

// NewDispatchQueue creates a dispatch queue holding at most capacity patients.
// Panics if capacity is not positive.
func NewDispatchQueue(capacity int) *DispatchQueue {
	if capacity <= 0 {
		panic(fmt.Sprintf("NewDispatchQueue: capacity must be positive, got %d", capacity))
	}
	q := &DispatchQueue{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// SetObserver registers fn to be called with the queue depth after every
// accepted enqueue. fn runs outside the queue lock. Must be called before the
// queue is shared between goroutines.
func (q *DispatchQueue) SetObserver(fn func(depth int)) {
	q.observer = fn
}

// TryEnqueue appends p to the lane matching its priority without blocking.
// It returns ErrRejectedFull when the queue holds capacity patients.
//
// A closed queue still accepts patients so that work finished during shutdown
// is accounted for by Drain rather than silently lost.
func (q *DispatchQueue) TryEnqueue(p Patient) error {
	if !p.Priority.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPriority, int(p.Priority))
	}
	q.mu.Lock()
	if q.size == q.capacity {
		q.mu.Unlock()
		return ErrRejectedFull
	}
	i := p.Priority.lane()
	q.lanes[i] = append(q.lanes[i], p)
	q.size++
	depth := q.size
	q.notEmpty.Signal()
	q.mu.Unlock()

	if q.observer != nil {
		q.observer(depth)
	}
	return nil
}

// TryDequeue removes the next patient selected by f, or reports false when
// no matching lane has work.
func (q *DispatchQueue) TryDequeue(f Filter) (Patient, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.take(f)
}

// Dequeue removes the next patient selected by f, blocking while no matching
// lane has work.
//
// stop receives the current total depth and is evaluated under the queue lock
// before every attempt, including after each wake-up. When it returns true
// Dequeue gives up with ErrInterrupted without taking a patient. A closed
// queue returns ErrQueueClosed.
func (q *DispatchQueue) Dequeue(f Filter, stop func(depth int) bool) (Patient, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.closed {
			return Patient{}, ErrQueueClosed
		}
		if stop != nil && stop(q.size) {
			return Patient{}, ErrInterrupted
		}
		if p, ok := q.take(f); ok {
			return p, nil
		}
		q.notEmpty.Wait()
	}
}

// take pops the head of the first lane selected by f. Caller holds q.mu.
func (q *DispatchQueue) take(f Filter) (Patient, bool) {
	if !f.IsBestAvailable() {
		if !f.exact.Valid() {
			return Patient{}, false
		}
		return q.popLane(f.exact.lane())
	}
	for i := range q.lanes {
		if p, ok := q.popLane(i); ok {
			return p, true
		}
	}
	return Patient{}, false
}

func (q *DispatchQueue) popLane(i int) (Patient, bool) {
	lane := q.lanes[i]
	if len(lane) == 0 {
		return Patient{}, false
	}
	p := lane[0]
	lane[0] = Patient{}
	q.lanes[i] = lane[1:]
	q.size--
	return p, true
}

// Size returns the total number of queued patients across all lanes.
func (q *DispatchQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// LaneSizes returns the number of queued patients per priority, index 0 being
// priority 1.
func (q *DispatchQueue) LaneSizes() [NumPriorities]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out [NumPriorities]int
	for i, lane := range q.lanes {
		out[i] = len(lane)
	}
	return out
}

// Cap returns the fixed capacity.
func (q *DispatchQueue) Cap() int {
	return q.capacity
}

// Wake wakes every blocked consumer so it re-evaluates its stop condition.
func (q *DispatchQueue) Wake() {
	q.mu.Lock()
	q.notEmpty.Broadcast()
	q.mu.Unlock()
}

// Close makes every current and future Dequeue return ErrQueueClosed.
func (q *DispatchQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.notEmpty.Broadcast()
	q.mu.Unlock()
}

// Drain removes and returns every queued patient, most urgent lane first.
func (q *DispatchQueue) Drain() []Patient {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Patient, 0, q.size)
	for i := range q.lanes {
		out = append(out, q.lanes[i]...)
		q.lanes[i] = nil
	}
	q.size = 0
	return out
}
