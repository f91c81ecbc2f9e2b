package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// TriagePool is a resizable pool of workers draining the intake queue into
// the dispatch queue.
//
// Resize and Stop are serialized by ctrl, a lock distinct from the queue
// locks, so a resize in progress never races another resize but does not
// block workers that are dequeuing or triaging.
type TriagePool struct {
	ctrl    sync.Mutex
	workers []*Worker // workers[i].ID == i+1
	desired int
	stopped bool

	intake   *IntakeQueue
	dispatch *DispatchQueue
	opts     PoolOptions
	log      *logrus.Entry
}

// NewTriagePool creates an empty pool. Call Start to launch the workers.
func NewTriagePool(intake *IntakeQueue, dispatch *DispatchQueue, opts PoolOptions) *TriagePool {
	opts.fillDefaults()
	return &TriagePool{
		intake:   intake,
		dispatch: dispatch,
		opts:     opts,
		log:      opts.Logger.WithField("component", "triage"),
	}
}

// Start launches n workers with ids 1..n.
func (tp *TriagePool) Start(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidTarget, n)
	}
	tp.ctrl.Lock()
	defer tp.ctrl.Unlock()
	if tp.stopped {
		return ErrPoolStopped
	}
	return tp.grow(n)
}

// Resize changes the number of workers to target, which must lie in
// [1, intake capacity]; otherwise ErrInvalidTarget is returned and nothing
// changes.
//
// Growing starts workers current+1..target. Shrinking marks every worker with
// an id above target as terminating, wakes all blocked consumers so they see
// it, and waits for each of them to finish the patient in hand and exit
// before compacting the worker list.
func (tp *TriagePool) Resize(target int) error {
	if target < 1 || target > tp.intake.Cap() {
		tp.log.WithFields(logrus.Fields{"event": "resize_invalid", "target": target}).
			Warnf("rejected triage resize: target must be in [1, %d]", tp.intake.Cap())
		return fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidTarget, target, tp.intake.Cap())
	}

	tp.ctrl.Lock()
	defer tp.ctrl.Unlock()
	if tp.stopped {
		return ErrPoolStopped
	}

	current := len(tp.workers)
	log := tp.log.WithFields(logrus.Fields{"event": "resize", "from": current, "to": target})
	switch {
	case target == current:
		log.Info("triage pool already at requested size")
		return nil
	case target > current:
		if err := tp.grow(target); err != nil {
			return err
		}
	default:
		tp.shrink(target)
	}
	log.Info("triage pool resized")
	return nil
}

// grow starts workers until the pool has target of them. Caller holds ctrl.
func (tp *TriagePool) grow(target int) error {
	for id := len(tp.workers) + 1; id <= target; id++ {
		w := newWorker(id, KindPermanent, tp.opts.Now())
		if err := tp.opts.Launcher(func() { tp.run(w) }); err != nil {
			tp.desired = len(tp.workers)
			tp.log.WithFields(logrus.Fields{"event": "spawn_failure", "worker": id}).WithError(err).
				Error("failed to start triage worker")
			return fmt.Errorf("%w: triage worker %d: %v", ErrSpawnFailure, id, err)
		}
		tp.workers = append(tp.workers, w)
	}
	tp.desired = target
	return nil
}

// shrink terminates and joins every worker above target. Caller holds ctrl.
func (tp *TriagePool) shrink(target int) {
	victims := tp.workers[target:]
	for _, w := range victims {
		w.terminate()
	}
	tp.intake.Wake()
	for _, w := range victims {
		<-w.Done()
		tp.log.WithField("worker", w.Name()).Debug("triage worker joined")
	}
	for i := target; i < len(tp.workers); i++ {
		tp.workers[i] = nil
	}
	tp.workers = tp.workers[:target]
	tp.desired = target
}

// Stop terminates and joins every worker. Later Start and Resize calls return
// ErrPoolStopped. Stop is idempotent.
func (tp *TriagePool) Stop() {
	tp.ctrl.Lock()
	defer tp.ctrl.Unlock()
	if tp.stopped {
		return
	}
	tp.stopped = true
	tp.shrink(0)
}

// Size returns the number of workers currently owned by the pool.
func (tp *TriagePool) Size() int {
	tp.ctrl.Lock()
	defer tp.ctrl.Unlock()
	return len(tp.workers)
}

// Desired returns the size most recently requested and applied.
func (tp *TriagePool) Desired() int {
	tp.ctrl.Lock()
	defer tp.ctrl.Unlock()
	return tp.desired
}

// Workers returns a snapshot of the worker descriptors in id order.
func (tp *TriagePool) Workers() []WorkerInfo {
	tp.ctrl.Lock()
	defer tp.ctrl.Unlock()
	out := make([]WorkerInfo, len(tp.workers))
	for i, w := range tp.workers {
		out[i] = w.info()
	}
	return out
}

// run is the worker loop. Termination is only observed at the top of the
// loop or while blocked on an empty queue, never while a patient is in hand.
func (tp *TriagePool) run(w *Worker) {
	defer w.finish()
	log := tp.log.WithField("worker", w.Name())
	log.Debug("triage worker started")

	for w.active() {
		p, err := tp.intake.Dequeue(func() bool { return !w.active() })
		if errors.Is(err, ErrQueueClosed) {
			break
		}
		if err != nil {
			continue
		}
		tp.triage(p, log)
	}
	log.Debug("triage worker stopped")
}

// triage processes one patient and hands it to the dispatch queue. A panic
// inside the iteration is logged as a synchronization failure and the worker
// carries on with its next iteration.
func (tp *TriagePool) triage(p Patient, log *logrus.Entry) {
	log = log.WithField("patient", p.ID)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("event", "sync_failure").
				WithError(fmt.Errorf("%w: %v", ErrSynchronization, r)).
				Error("triage iteration aborted")
			tp.opts.Stats.ReportLost(StageTriage)
		}
	}()

	p.markTriageStart(tp.opts.Now())
	log.WithField("name", p.Name).Debug("triage started")
	tp.opts.Work(StageTriage, p)
	p.markTriageEnd(tp.opts.Now())
	tp.opts.Stats.ReportTriaged(p.TriageWait().Seconds())

	if err := tp.dispatch.TryEnqueue(p); err != nil {
		log.WithFields(logrus.Fields{"event": "dispatch_full", "priority": int(p.Priority)}).WithError(err).
			Warn("dispatch queue rejected patient, dropping it")
		tp.opts.Stats.ReportLost(StageDispatch)
		return
	}
	log.WithField("priority", int(p.Priority)).Debug("triage finished, patient dispatched")
}
