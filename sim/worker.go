package sim

import (
	"fmt"
	"sync/atomic"
	"time"
)

// WorkerKind distinguishes shift-bound workers from load-bound ones.
type WorkerKind string

const (
	KindPermanent WorkerKind = "permanent"
	KindTemporary WorkerKind = "temporary"
)

// WorkerState is the lifecycle state of a worker descriptor.
type WorkerState int32

const (
	StateActive WorkerState = iota
	StateTerminating
	StateTerminated
)

func (s WorkerState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Stage identifies a pipeline stage for work simulation and loss accounting.
type Stage string

const (
	StageIntake   Stage = "intake"
	StageTriage   Stage = "triage"
	StageDispatch Stage = "dispatch"
	StageService  Stage = "service"
)

// Worker is the descriptor a pool keeps for each of its goroutines.
//
// Only the owning pool moves a worker from Active to Terminating, under the
// pool's control lock. The worker goroutine records Terminated as the last
// thing it does and then closes done.
type Worker struct {
	ID      int
	Kind    WorkerKind
	Started time.Time

	state atomic.Int32
	done  chan struct{}
}

func newWorker(id int, kind WorkerKind, now time.Time) *Worker {
	return &Worker{
		ID:      id,
		Kind:    kind,
		Started: now,
		done:    make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// active reports whether the worker should keep taking work.
func (w *Worker) active() bool {
	return w.State() == StateActive
}

// terminate asks the worker to stop at its next check point.
func (w *Worker) terminate() {
	w.state.CompareAndSwap(int32(StateActive), int32(StateTerminating))
}

// finish records that the worker loop has exited.
func (w *Worker) finish() {
	w.state.Store(int32(StateTerminated))
	close(w.done)
}

// Done is closed once the worker has reached StateTerminated.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Name returns the label used in log lines, e.g. "3" or "T-2".
func (w *Worker) Name() string {
	if w.Kind == KindTemporary {
		return fmt.Sprintf("T-%d", w.ID)
	}
	return fmt.Sprint(w.ID)
}

// WorkerInfo is a point-in-time copy of a worker descriptor.
type WorkerInfo struct {
	ID    int
	Kind  WorkerKind
	State WorkerState
}

func (w *Worker) info() WorkerInfo {
	return WorkerInfo{ID: w.ID, Kind: w.Kind, State: w.State()}
}

// Launcher starts run on a new execution unit. The default launcher starts a
// goroutine and never fails; tests and embedders may substitute one that can.
type Launcher func(run func()) error

func goLauncher(run func()) error {
	go run()
	return nil
}

// WorkFunc performs the processing for one patient at one stage. It must not
// retain p. The default sleeps for the patient's stage duration.
type WorkFunc func(stage Stage, p Patient)

// SleepWork returns a WorkFunc that sleeps for the stage duration divided by
// timeScale. timeScale values <= 0 are treated as 1.
func SleepWork(timeScale float64) WorkFunc {
	if timeScale <= 0 {
		timeScale = 1
	}
	return func(stage Stage, p Patient) {
		ms := p.ServiceMs
		if stage == StageTriage {
			ms = p.TriageMs
		}
		if ms <= 0 {
			return
		}
		time.Sleep(time.Duration(float64(ms) * float64(time.Millisecond) / timeScale))
	}
}
