package sim

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Options are the collaborators of an Engine. Zero values select defaults.
type Options struct {
	Logger   *logrus.Entry    // base logger; the engine adds a run field
	Stats    *Statistics      // aggregated counters; NewStatistics() if nil
	Sinks    []StatsSink      // extra sinks receiving every update, e.g. Prometheus
	Work     WorkFunc         // per-stage processing; SleepWork(cfg.TimeScale) if nil
	Launcher Launcher         // worker start hook; goroutines if nil
	Now      func() time.Time // clock; time.Now if nil
	RunID    string           // run identifier; a random UUID if empty
}

// Engine wires the intake queue, the triage pool, the dispatch queue, the
// service pool, the autoscaler and the shutdown coordinator together, and
// exposes the operations used by producers and the control channel.
type Engine struct {
	cfg   Config
	runID string
	log   *logrus.Entry
	now   func() time.Time

	stats    *Statistics
	sink     fanoutSink
	intake   *IntakeQueue
	dispatch *DispatchQueue
	triage   *TriagePool
	service  *ServicePool
	scaler   *Autoscaler
	shutdown *ShutdownCoordinator

	nextID   atomic.Int64
	accepted atomic.Int64 // patients admitted to the intake queue
	finished atomic.Int64 // patients attended or lost after intake
}

// NewEngine validates cfg and builds an engine. No worker runs until Start.
func NewEngine(cfg Config, opts Options) (*Engine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Stats == nil {
		opts.Stats = NewStatistics()
	}
	if opts.Work == nil {
		opts.Work = SleepWork(cfg.TimeScale)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	e := &Engine{
		cfg:   cfg,
		runID: opts.RunID,
		log:   opts.Logger.WithField("run", opts.RunID),
		now:   opts.Now,
		stats: opts.Stats,
	}
	sinks := make(fanoutSink, 0, len(opts.Sinks)+2)
	sinks = append(sinks, opts.Stats)
	sinks = append(sinks, opts.Sinks...)
	sinks = append(sinks, completionSink{e})
	e.sink = sinks

	poolOpts := PoolOptions{
		Logger:   e.log,
		Stats:    sinks,
		Work:     opts.Work,
		Launcher: opts.Launcher,
		Now:      opts.Now,
	}
	e.intake = NewIntakeQueue(cfg.IntakeQueueCapacity)
	e.dispatch = NewDispatchQueue(cfg.DispatchHighWaterMark)
	e.triage = NewTriagePool(e.intake, e.dispatch, poolOpts)
	e.service = NewServicePool(e.dispatch, ServiceConfig{
		Permanent:    cfg.PermanentServiceWorkers,
		Shift:        cfg.ShiftLength(),
		LowWaterMark: cfg.LowWaterMark(),
		MaxTemporary: cfg.MaxTemporaryWorkers,
	}, poolOpts)
	e.scaler = NewAutoscaler(e.dispatch, e.service, cfg.DispatchHighWaterMark, e.log)
	e.shutdown = NewShutdownCoordinator(e.intake, e.dispatch, e.triage, e.service, e.log)

	if cfg.AutoscaleMode == "watch" {
		e.dispatch.SetObserver(e.scaler.Watch)
	}
	return e, nil
}

// Start launches the triage and permanent service workers. Any failure is a
// bring-up failure: the engine is shut down and the error returned.
func (e *Engine) Start() error {
	if err := e.triage.Start(e.cfg.InitialTriageWorkers); err != nil {
		e.shutdown.Shutdown()
		return fmt.Errorf("starting triage pool: %w", err)
	}
	if err := e.service.Start(); err != nil {
		e.shutdown.Shutdown()
		return fmt.Errorf("starting service pool: %w", err)
	}
	e.log.WithFields(logrus.Fields{
		"intake_capacity":   e.cfg.IntakeQueueCapacity,
		"triage_workers":    e.cfg.InitialTriageWorkers,
		"permanent_workers": e.cfg.PermanentServiceWorkers,
		"shift":             e.cfg.ShiftLength(),
		"high_water":        e.cfg.DispatchHighWaterMark,
		"low_water":         e.cfg.LowWaterMark(),
		"autoscale_mode":    e.cfg.AutoscaleMode,
	}).Info("engine started")
	return nil
}

// Submit admits p to the intake queue without blocking. It assigns an id when
// p.ID is zero and stamps the arrival time. A full queue returns
// ErrRejectedFull; the rejection is logged and counted as an intake loss and
// the patient is not retried.
func (e *Engine) Submit(p Patient) (Patient, error) {
	p, err := e.admit(p)
	if err != nil {
		return p, err
	}
	if err := e.intake.TryEnqueue(p); err != nil {
		e.rejected(p, err)
		return p, err
	}
	return p, nil
}

// SubmitWait is Submit for producers that prefer to wait for capacity
// instead of losing the patient. It blocks until there is room, the queue is
// closed or ctx is done.
func (e *Engine) SubmitWait(ctx context.Context, p Patient) (Patient, error) {
	p, err := e.admit(p)
	if err != nil {
		return p, err
	}
	if err := e.intake.Enqueue(ctx, p); err != nil {
		e.rejected(p, err)
		return p, err
	}
	return p, nil
}

func (e *Engine) admit(p Patient) (Patient, error) {
	if !p.Priority.Valid() {
		return p, fmt.Errorf("%w: %d", ErrInvalidPriority, int(p.Priority))
	}
	if p.ID == 0 {
		p.ID = e.nextID.Add(1)
	}
	p.markArrival(e.now())
	e.accepted.Add(1)
	return p, nil
}

func (e *Engine) rejected(p Patient, err error) {
	e.accepted.Add(-1)
	if !errors.Is(err, ErrRejectedFull) {
		return
	}
	e.log.WithFields(logrus.Fields{"event": "intake_rejected", "patient": p.ID, "name": p.Name}).
		Warn("intake queue full, patient rejected")
	e.sink.ReportLost(StageIntake)
}

// ResizeTriagePool applies the triage resize protocol. Targets outside
// [1, intake capacity] return ErrInvalidTarget and change nothing.
func (e *Engine) ResizeTriagePool(n int) error {
	return e.triage.Resize(n)
}

// RequestStatsSnapshot returns a consistent read of the statistics.
func (e *Engine) RequestStatsSnapshot() StatsSnapshot {
	return e.stats.Snapshot()
}

// Shutdown stops the engine and joins every worker. It is idempotent.
func (e *Engine) Shutdown() ShutdownReport {
	return e.shutdown.Shutdown()
}

// ObserveAutoscale runs one autoscaler observation.
func (e *Engine) ObserveAutoscale() (bool, error) {
	return e.scaler.Observe()
}

// RunAutoscaler observes the dispatch depth every interval until ctx is done
// or the engine leaves the running phase.
func (e *Engine) RunAutoscaler(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultAutoscaleInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if e.shutdown.Phase() != PhaseRunning {
				return nil
			}
			_, _ = e.scaler.Observe()
		}
	}
}

// Depths returns the current intake and dispatch queue depths.
func (e *Engine) Depths() (intake, dispatch int) {
	return e.intake.Len(), e.dispatch.Size()
}

// LaneDepths returns the dispatch depth per priority.
func (e *Engine) LaneDepths() [NumPriorities]int {
	return e.dispatch.LaneSizes()
}

// Idle reports whether every admitted patient has been attended or lost.
func (e *Engine) Idle() bool {
	return e.finished.Load() >= e.accepted.Load()
}

// WaitIdle polls Idle every poll interval until it holds or ctx is done.
func (e *Engine) WaitIdle(ctx context.Context, poll time.Duration) error {
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for !e.Idle() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// TriageSize returns the number of triage workers.
func (e *Engine) TriageSize() int {
	return e.triage.Size()
}

// ServiceCounts returns the number of permanent and temporary service workers.
func (e *Engine) ServiceCounts() (permanent, temporary int) {
	return e.service.PermanentCount(), e.service.TemporaryCount()
}

// Workers returns the triage and service worker descriptors.
func (e *Engine) Workers() (triage, service []WorkerInfo) {
	return e.triage.Workers(), e.service.Workers()
}

// AutoscaleSpawns returns how many temporary workers the autoscaler started.
func (e *Engine) AutoscaleSpawns() int {
	return e.scaler.Spawns()
}

// Phase returns the shutdown phase.
func (e *Engine) Phase() Phase {
	return e.shutdown.Phase()
}

// RunID returns the identifier attached to every log line of this engine.
func (e *Engine) RunID() string {
	return e.runID
}

// Config returns the validated configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// fanoutSink forwards every update to each sink in order.
type fanoutSink []StatsSink

func (f fanoutSink) ReportTriaged(wait float64) {
	for _, s := range f {
		s.ReportTriaged(wait)
	}
}

func (f fanoutSink) ReportAttended(wait, total float64) {
	for _, s := range f {
		s.ReportAttended(wait, total)
	}
}

func (f fanoutSink) ReportLost(stage Stage) {
	for _, s := range f {
		s.ReportLost(stage)
	}
}

// completionSink counts patients that have left the pipeline, for Idle.
type completionSink struct{ e *Engine }

func (c completionSink) ReportTriaged(float64) {}

func (c completionSink) ReportAttended(float64, float64) { c.e.finished.Add(1) }

func (c completionSink) ReportLost(stage Stage) {
	if stage != StageIntake {
		c.e.finished.Add(1)
	}
}
