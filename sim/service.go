package sim

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ServiceConfig sizes a ServicePool.
type ServiceConfig struct {
	Permanent    int           // permanent workers, ids 1..Permanent
	Shift        time.Duration // permanent worker shift length
	LowWaterMark int           // temporary workers retire below this dispatch depth
	MaxTemporary int           // 0 = unbounded
	RetryBackoff time.Duration // first delay before retrying a failed replacement
}

const (
	defaultRetryBackoff = 100 * time.Millisecond
	maxRetryBackoff     = 5 * time.Second
)

// ServicePool runs the workers consuming the dispatch queue.
//
// Permanent workers serve until their shift ends and are then replaced under
// the same id. Temporary workers are added by SpawnTemporary and retire on
// their own once the dispatch depth drops below the low-water mark. A failed
// replacement keeps its slot and is retried with a doubling backoff. Every
// worker goroutine, replacements included, is tracked by one WaitGroup; a
// replacement is added to it before the worker it replaces is marked done.
type ServicePool struct {
	ctrl      sync.Mutex
	permanent map[int]*Worker
	temporary map[int]*Worker
	retries   map[int]*time.Timer
	nextTemp  int
	started   bool
	stopping  bool
	wg        sync.WaitGroup

	dispatch *DispatchQueue
	cfg      ServiceConfig
	opts     PoolOptions
	log      *logrus.Entry
}

// NewServicePool creates a pool with no running workers.
func NewServicePool(dispatch *DispatchQueue, cfg ServiceConfig, opts PoolOptions) *ServicePool {
	opts.fillDefaults()
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	return &ServicePool{
		permanent: make(map[int]*Worker),
		temporary: make(map[int]*Worker),
		retries:   make(map[int]*time.Timer),
		dispatch:  dispatch,
		cfg:       cfg,
		opts:      opts,
		log:       opts.Logger.WithField("component", "service"),
	}
}

// Start launches the permanent workers. A launch failure is returned wrapped
// in ErrSpawnFailure; workers started before it keep running until Stop.
func (sp *ServicePool) Start() error {
	sp.ctrl.Lock()
	defer sp.ctrl.Unlock()
	if sp.stopping {
		return ErrPoolStopped
	}
	if sp.started {
		return nil
	}
	sp.started = true
	for id := 1; id <= sp.cfg.Permanent; id++ {
		if err := sp.spawnPermanent(id); err != nil {
			return err
		}
	}
	sp.log.WithField("permanent", sp.cfg.Permanent).Info("service pool started")
	return nil
}

// spawnPermanent starts a permanent worker under id. Caller holds ctrl.
func (sp *ServicePool) spawnPermanent(id int) error {
	w := newWorker(id, KindPermanent, sp.opts.Now())
	sp.wg.Add(1)
	if err := sp.opts.Launcher(func() { sp.runPermanent(w) }); err != nil {
		sp.wg.Done()
		sp.log.WithFields(logrus.Fields{"event": "spawn_failure", "worker": w.Name()}).WithError(err).
			Error("failed to start permanent service worker")
		return fmt.Errorf("%w: service worker %d: %v", ErrSpawnFailure, id, err)
	}
	sp.permanent[id] = w
	return nil
}

// SpawnTemporary starts one temporary worker and returns its id. Failures
// leave the pool unchanged and are only logged by the pool; the autoscaler
// retries on its next observation.
func (sp *ServicePool) SpawnTemporary() (int, error) {
	sp.ctrl.Lock()
	defer sp.ctrl.Unlock()
	if sp.stopping {
		return 0, ErrPoolStopped
	}
	if sp.cfg.MaxTemporary > 0 && len(sp.temporary) >= sp.cfg.MaxTemporary {
		sp.log.WithFields(logrus.Fields{"event": "spawn_failure", "limit": sp.cfg.MaxTemporary}).
			Warn("temporary worker limit reached")
		return 0, fmt.Errorf("%w: temporary worker limit %d reached", ErrSpawnFailure, sp.cfg.MaxTemporary)
	}

	sp.nextTemp++
	w := newWorker(sp.nextTemp, KindTemporary, sp.opts.Now())
	sp.wg.Add(1)
	if err := sp.opts.Launcher(func() { sp.runTemporary(w) }); err != nil {
		sp.wg.Done()
		sp.log.WithFields(logrus.Fields{"event": "spawn_failure", "worker": w.Name()}).WithError(err).
			Error("failed to start temporary service worker")
		return 0, fmt.Errorf("%w: temporary worker %s: %v", ErrSpawnFailure, w.Name(), err)
	}
	sp.temporary[w.ID] = w
	sp.log.WithFields(logrus.Fields{"event": "temporary_spawned", "worker": w.Name(), "temporary": len(sp.temporary)}).
		Info("temporary service worker started")
	return w.ID, nil
}

// Stop marks every worker terminating, wakes the blocked ones and waits until
// all of them, including replacements started concurrently, have exited.
func (sp *ServicePool) Stop() {
	sp.ctrl.Lock()
	if sp.stopping {
		sp.ctrl.Unlock()
		sp.wg.Wait()
		return
	}
	sp.stopping = true
	for id, t := range sp.retries {
		t.Stop()
		delete(sp.retries, id)
	}
	for _, w := range sp.permanent {
		w.terminate()
	}
	for _, w := range sp.temporary {
		w.terminate()
	}
	sp.ctrl.Unlock()

	sp.dispatch.Wake()
	sp.wg.Wait()
	sp.log.Debug("service pool stopped")
}

// PermanentCount returns the number of permanent workers, live or being replaced.
func (sp *ServicePool) PermanentCount() int {
	sp.ctrl.Lock()
	defer sp.ctrl.Unlock()
	return len(sp.permanent)
}

// TemporaryCount returns the number of temporary workers that have not retired.
func (sp *ServicePool) TemporaryCount() int {
	sp.ctrl.Lock()
	defer sp.ctrl.Unlock()
	return len(sp.temporary)
}

// Workers returns permanent workers by id followed by temporary workers by id.
func (sp *ServicePool) Workers() []WorkerInfo {
	sp.ctrl.Lock()
	defer sp.ctrl.Unlock()
	out := make([]WorkerInfo, 0, len(sp.permanent)+len(sp.temporary))
	for _, m := range []map[int]*Worker{sp.permanent, sp.temporary} {
		ids := make([]int, 0, len(m))
		for id := range m {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			out = append(out, m[id].info())
		}
	}
	return out
}

func (sp *ServicePool) runPermanent(w *Worker) {
	defer sp.wg.Done()
	shiftEnded := sp.servePermanent(w)
	w.finish()
	if shiftEnded {
		sp.replace(w, sp.cfg.RetryBackoff)
	}
}

// replace starts a new permanent worker under the id of w unless the pool is
// stopping. On failure the slot stays assigned to w and the replacement is
// retried after backoff, doubling up to maxRetryBackoff.
func (sp *ServicePool) replace(w *Worker, backoff time.Duration) {
	sp.ctrl.Lock()
	defer sp.ctrl.Unlock()
	delete(sp.retries, w.ID)
	if sp.stopping || sp.permanent[w.ID] != w {
		return
	}
	if err := sp.spawnPermanent(w.ID); err != nil {
		next := min(2*backoff, maxRetryBackoff)
		sp.log.WithFields(logrus.Fields{"worker": w.Name(), "retry_in": backoff}).
			Warn("permanent service worker replacement deferred")
		sp.retries[w.ID] = time.AfterFunc(backoff, func() { sp.replace(w, next) })
		return
	}
	sp.log.WithField("worker", w.Name()).Info("permanent service worker replaced")
}

// servePermanent runs the permanent loop and reports whether it ended because
// the shift expired. The deadline is only honoured once at least one patient
// has been served and never interrupts a service in progress.
//
// The deadline is read from PoolOptions.Now while the wake-up that ends an
// idle shift is armed in real time from the remaining duration, so an
// injected clock must advance at the rate of the wall clock.
func (sp *ServicePool) servePermanent(w *Worker) bool {
	log := sp.log.WithFields(logrus.Fields{"worker": w.Name(), "kind": w.Kind})
	deadline := w.Started.Add(sp.cfg.Shift)
	served := 0
	expired := func() bool {
		return served > 0 && !sp.opts.Now().Before(deadline)
	}
	timer := time.AfterFunc(deadline.Sub(sp.opts.Now()), sp.dispatch.Wake)
	defer timer.Stop()

	log.Debug("service worker started")
	for {
		if !w.active() {
			return false
		}
		if expired() {
			log.WithFields(logrus.Fields{"event": "shift_end", "served": served}).Info("shift ended")
			return true
		}
		p, err := sp.dispatch.Dequeue(BestAvailable(), func(int) bool {
			return !w.active() || expired()
		})
		if errors.Is(err, ErrQueueClosed) {
			return false
		}
		if err != nil {
			continue
		}
		sp.serve(p, log)
		served++
		timer.Reset(deadline.Sub(sp.opts.Now()))
	}
}

func (sp *ServicePool) runTemporary(w *Worker) {
	defer sp.wg.Done()
	sp.serveTemporary(w)

	sp.ctrl.Lock()
	if sp.temporary[w.ID] == w {
		delete(sp.temporary, w.ID)
	}
	sp.ctrl.Unlock()
	w.finish()
}

// serveTemporary runs the temporary loop until the worker is stopped or the
// dispatch depth falls below the low-water mark between two patients.
func (sp *ServicePool) serveTemporary(w *Worker) {
	log := sp.log.WithFields(logrus.Fields{"worker": w.Name(), "kind": w.Kind})
	retire := func(depth int) bool { return depth < sp.cfg.LowWaterMark }

	log.Debug("service worker started")
	served := 0
	for {
		if !w.active() {
			return
		}
		if depth := sp.dispatch.Size(); retire(depth) {
			log.WithFields(logrus.Fields{"event": "temporary_retired", "depth": depth, "served": served}).
				Info("temporary service worker retired")
			return
		}
		p, err := sp.dispatch.Dequeue(BestAvailable(), func(depth int) bool {
			return !w.active() || retire(depth)
		})
		if errors.Is(err, ErrQueueClosed) {
			return
		}
		if err != nil {
			continue
		}
		sp.serve(p, log)
		served++
	}
}

// serve processes one patient. A panic is logged as a synchronization failure
// and only aborts this iteration.
func (sp *ServicePool) serve(p Patient, log *logrus.Entry) {
	log = log.WithField("patient", p.ID)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("event", "sync_failure").
				WithError(fmt.Errorf("%w: %v", ErrSynchronization, r)).
				Error("service iteration aborted")
			sp.opts.Stats.ReportLost(StageService)
		}
	}()

	p.markServiceStart(sp.opts.Now())
	log.WithFields(logrus.Fields{"name": p.Name, "priority": int(p.Priority)}).Debug("service started")
	sp.opts.Work(StageService, p)
	p.markServiceEnd(sp.opts.Now())
	sp.opts.Stats.ReportAttended(p.ServiceWait().Seconds(), p.TimeInSystem().Seconds())
	log.Debug("patient attended")
}
