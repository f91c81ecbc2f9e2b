package sim

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// TemporarySpawner adds one temporary worker to a pool.
type TemporarySpawner interface {
	SpawnTemporary() (int, error)
}

// Autoscaler adds temporary service workers when the dispatch queue backs up.
//
// It holds no timer: Observe is driven by an external ticker, Watch by the
// dispatch queue's enqueue observer. Scale-in is left to the temporary workers
// themselves.
type Autoscaler struct {
	mu     sync.Mutex
	armed  bool
	spawns int

	high     int
	low      int
	dispatch *DispatchQueue
	pool     TemporarySpawner
	log      *logrus.Entry
}

// NewAutoscaler creates a controller spawning into pool whenever the depth of
// dispatch reaches high.
func NewAutoscaler(dispatch *DispatchQueue, pool TemporarySpawner, high int, logger *logrus.Entry) *Autoscaler {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Autoscaler{
		armed:    true,
		high:     high,
		low:      LowWaterMark(high),
		dispatch: dispatch,
		pool:     pool,
		log:      logger.WithField("component", "autoscale"),
	}
}

// Observe samples the dispatch depth once and spawns exactly one temporary
// worker if it is at or above the high-water mark. Concurrent observations
// are serialized.
func (a *Autoscaler) Observe() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	depth := a.dispatch.Size()
	if depth < a.high {
		a.armed = true
		return false, nil
	}
	return a.spawn(depth)
}

// Watch is the event-driven variant, meant to be installed with
// DispatchQueue.SetObserver. It spawns once per upward crossing of the
// high-water mark and re-arms when it next sees the depth below it. A failed
// spawn leaves it armed so the next enqueue retries.
func (a *Autoscaler) Watch(depth int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if depth < a.high {
		a.armed = true
		return
	}
	if !a.armed {
		return
	}
	if ok, _ := a.spawn(depth); ok {
		a.armed = false
	}
}

// spawn asks the pool for one temporary worker. Caller holds mu.
func (a *Autoscaler) spawn(depth int) (bool, error) {
	log := a.log.WithFields(logrus.Fields{"depth": depth, "high": a.high})
	if _, err := a.pool.SpawnTemporary(); err != nil {
		log.WithError(err).Warn("scale-out failed, will retry on next observation")
		return false, err
	}
	a.spawns++
	log.Info("dispatch backlog above high-water mark, added temporary worker")
	return true, nil
}

// Spawns returns how many temporary workers this controller has started.
func (a *Autoscaler) Spawns() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.spawns
}

// Thresholds returns the high- and low-water marks.
func (a *Autoscaler) Thresholds() (high, low int) {
	return a.high, a.low
}
