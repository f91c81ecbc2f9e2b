package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntakeQueue_TryEnqueue_FullRejectsWithoutBlocking(t *testing.T) {
	// GIVEN a queue of capacity 3 filled to the brim
	q := NewIntakeQueue(3)
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, q.TryEnqueue(testPatient(i, 1)))
	}

	// WHEN a fourth patient is offered
	start := time.Now()
	err := q.TryEnqueue(testPatient(4, 1))

	// THEN it is rejected immediately and the queue is unchanged
	assert.ErrorIs(t, err, ErrRejectedFull)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 3, q.Len())
}

func TestIntakeQueue_FIFOAcrossWrapAround(t *testing.T) {
	// GIVEN a queue of capacity 2 that wraps around several times
	q := NewIntakeQueue(2)
	var got []int64
	for i := int64(1); i <= 6; i += 2 {
		require.NoError(t, q.TryEnqueue(testPatient(i, 1)))
		require.NoError(t, q.TryEnqueue(testPatient(i+1, 1)))
		for j := 0; j < 2; j++ {
			p, err := q.Dequeue(nil)
			require.NoError(t, err)
			got = append(got, p.ID)
		}
	}

	// THEN patients leave in arrival order
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, got)
}

func TestIntakeQueue_CapacityInvariant_UnderConcurrency(t *testing.T) {
	// GIVEN a queue of capacity 4 with concurrent producers and consumers
	const capacity = 4
	q := NewIntakeQueue(capacity)
	var wg sync.WaitGroup
	stop := make(chan struct{})
	violations := make(chan int, 1)

	for c := 0; c < 3; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, err := q.Dequeue(nil); err != nil {
					return
				}
			}
		}()
	}
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(base int64) {
			defer wg.Done()
			for i := int64(0); ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				err := q.TryEnqueue(testPatient(base+i, 1))
				if err != nil && err != ErrRejectedFull && err != ErrQueueClosed {
					t.Errorf("unexpected error: %v", err)
				}
				if n := q.Len(); n < 0 || n > capacity {
					select {
					case violations <- n:
					default:
					}
				}
			}
		}(int64(p) * 1_000_000)
	}

	// WHEN they run for a while
	time.Sleep(50 * time.Millisecond)
	close(stop)
	q.Close()
	wg.Wait()

	// THEN Len never left [0, capacity]
	select {
	case n := <-violations:
		t.Fatalf("observed Len() = %d outside [0, %d]", n, capacity)
	default:
	}
}

func TestIntakeQueue_Dequeue_BlocksUntilEnqueue(t *testing.T) {
	// GIVEN a consumer blocked on an empty queue
	q := NewIntakeQueue(2)
	got := make(chan Patient, 1)
	go func() {
		p, err := q.Dequeue(nil)
		if err == nil {
			got <- p
		}
	}()

	select {
	case <-got:
		t.Fatal("Dequeue returned before any enqueue")
	case <-time.After(20 * time.Millisecond):
	}

	// WHEN a patient arrives
	require.NoError(t, q.TryEnqueue(testPatient(7, 2)))

	// THEN the consumer receives it
	select {
	case p := <-got:
		assert.Equal(t, int64(7), p.ID)
	case <-time.After(waitFor):
		t.Fatal("consumer was not woken")
	}
}

func TestIntakeQueue_Close_ReleasesBlockedConsumers(t *testing.T) {
	// GIVEN three consumers blocked on an empty queue
	q := NewIntakeQueue(1)
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := q.Dequeue(nil)
			errs <- err
		}()
	}
	time.Sleep(10 * time.Millisecond)

	// WHEN the queue is closed
	q.Close()

	// THEN every consumer returns ErrQueueClosed and producers are refused
	for i := 0; i < 3; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrQueueClosed)
		case <-time.After(waitFor):
			t.Fatal("consumer still blocked after Close")
		}
	}
	assert.ErrorIs(t, q.TryEnqueue(testPatient(1, 1)), ErrQueueClosed)
	assert.True(t, q.Closed())
}

func TestIntakeQueue_Wake_InterruptsOnlyStoppedConsumers(t *testing.T) {
	// GIVEN two blocked consumers, one of which is told to stop
	q := NewIntakeQueue(1)
	var stopFirst sync.Mutex
	stopped := false
	first := make(chan error, 1)
	second := make(chan Patient, 1)
	go func() {
		_, err := q.Dequeue(func() bool {
			stopFirst.Lock()
			defer stopFirst.Unlock()
			return stopped
		})
		first <- err
	}()
	go func() {
		p, err := q.Dequeue(func() bool { return false })
		if err == nil {
			second <- p
		}
	}()
	time.Sleep(10 * time.Millisecond)

	// WHEN the stop condition flips and consumers are woken
	stopFirst.Lock()
	stopped = true
	stopFirst.Unlock()
	q.Wake()

	// THEN only the first gives up; the second still receives the next patient
	select {
	case err := <-first:
		assert.ErrorIs(t, err, ErrInterrupted)
	case <-time.After(waitFor):
		t.Fatal("stopped consumer not interrupted")
	}
	require.NoError(t, q.TryEnqueue(testPatient(9, 1)))
	select {
	case p := <-second:
		assert.Equal(t, int64(9), p.ID)
	case <-time.After(waitFor):
		t.Fatal("remaining consumer did not receive patient")
	}
}

func TestIntakeQueue_Enqueue_WaitsForRoom(t *testing.T) {
	// GIVEN a full queue
	q := NewIntakeQueue(1)
	require.NoError(t, q.TryEnqueue(testPatient(1, 1)))
	done := make(chan error, 1)

	// WHEN a blocking producer offers another patient
	go func() { done <- q.Enqueue(context.Background(), testPatient(2, 1)) }()
	select {
	case <-done:
		t.Fatal("Enqueue returned while queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	// THEN it completes once a slot is freed
	p, err := q.Dequeue(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("producer not woken after dequeue")
	}
	assert.Equal(t, 1, q.Len())
}

func TestIntakeQueue_Enqueue_HonoursContext(t *testing.T) {
	q := NewIntakeQueue(1)
	require.NoError(t, q.TryEnqueue(testPatient(1, 1)))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Enqueue(ctx, testPatient(2, 1))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, q.Len())
}

func TestIntakeQueue_Drain_ReturnsResidualInOrder(t *testing.T) {
	q := NewIntakeQueue(3)
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, q.TryEnqueue(testPatient(i, 1)))
	}
	q.Close()

	residual := q.Drain()

	require.Len(t, residual, 3)
	assert.Equal(t, int64(1), residual[0].ID)
	assert.Equal(t, int64(3), residual[2].ID)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, "[]", q.String())
}

func TestIntakeQueue_EndToEndCapacityScenario(t *testing.T) {
	// GIVEN a queue of capacity 5
	q := NewIntakeQueue(5)

	// WHEN five patients are offered THEN all are accepted
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, q.TryEnqueue(testPatient(i, 3)))
	}
	// AND a sixth is rejected
	assert.ErrorIs(t, q.TryEnqueue(testPatient(6, 3)), ErrRejectedFull)

	// WHEN one is dequeued THEN a seventh is accepted
	_, err := q.Dequeue(nil)
	require.NoError(t, err)
	assert.NoError(t, q.TryEnqueue(testPatient(7, 3)))
	assert.Equal(t, 5, q.Len())
}

func TestNewIntakeQueue_NonPositiveCapacityPanics(t *testing.T) {
	assert.Panics(t, func() { NewIntakeQueue(0) })
	assert.Equal(t, 4, NewIntakeQueue(4).Cap())
}
