package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/emergency-sim/edsim/sim"
	"github.com/emergency-sim/edsim/sim/command"
	"github.com/emergency-sim/edsim/sim/logsink"
	"github.com/emergency-sim/edsim/sim/metrics"
	"github.com/emergency-sim/edsim/sim/workload"
)

const (
	backpressureReject = "reject"
	backpressureBlock  = "block"
)

var (
	configPath   string // Engine configuration file
	inputPath    string // Command stream: "-" for stdin, a file or a named pipe
	workloadPath string // Synthetic workload spec injected at start
	pace         bool   // Inject workload arrivals in real time
	backpressure string // Workload injection on a full intake: reject or block
	noDrain      bool   // Shut down as soon as input ends
	drainTimeout time.Duration
	watchConfig  bool // Reload the config file and apply triage resizes

	// Overrides for config file values
	intakeCapacity    int
	triageWorkers     int
	serviceWorkers    int
	shiftSeconds      int
	highWaterMark     int
	maxTemporary      int
	autoscaleMode     string
	autoscaleInterval time.Duration
	timeScale         float64
	logFile           string
	metricsAddr       string
)

// runCmd starts the engine and feeds it from the input stream and/or a
// synthetic workload until input ends or a termination signal arrives.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the triage and service engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := sim.LoadConfig(configPath)
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		if backpressure != backpressureReject && backpressure != backpressureBlock {
			return fmt.Errorf("--backpressure must be %q or %q, got %q", backpressureReject, backpressureBlock, backpressure)
		}
		return runEngine(cmd, cfg)
	},
}

// applyFlagOverrides copies explicitly set flags over the file values. Only
// flags the user changed are applied, so flag defaults never mask the file.
func applyFlagOverrides(cmd *cobra.Command, cfg *sim.Config) {
	flags := cmd.Flags()
	if flags.Changed("intake-capacity") {
		cfg.IntakeQueueCapacity = intakeCapacity
	}
	if flags.Changed("triage-workers") {
		cfg.InitialTriageWorkers = triageWorkers
	}
	if flags.Changed("service-workers") {
		cfg.PermanentServiceWorkers = serviceWorkers
	}
	if flags.Changed("shift") {
		cfg.ShiftLengthSeconds = shiftSeconds
	}
	if flags.Changed("high-water") {
		cfg.DispatchHighWaterMark = highWaterMark
	}
	if flags.Changed("max-temporary") {
		cfg.MaxTemporaryWorkers = maxTemporary
	}
	if flags.Changed("autoscale-mode") {
		cfg.AutoscaleMode = autoscaleMode
	}
	if flags.Changed("autoscale-interval") {
		cfg.AutoscaleInterval = autoscaleInterval
	}
	if flags.Changed("time-scale") {
		cfg.TimeScale = timeScale
	}
	if flags.Changed("log-file") {
		cfg.LogFile = logFile
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddr
	}
}

func runEngine(cmd *cobra.Command, cfg *sim.Config) (err error) {
	sink, err := logsink.Open(cfg.LogFile, cmd.ErrOrStderr(), logrus.GetLevel())
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, sink.Close()) }()
	log := logrus.NewEntry(sink.Logger)

	reg := prometheus.NewRegistry()
	var sinks []sim.StatsSink
	if cfg.MetricsAddr != "" {
		promSink, err := metrics.NewSink(reg)
		if err != nil {
			return err
		}
		sinks = append(sinks, promSink)
	}

	engine, err := sim.NewEngine(*cfg, sim.Options{Logger: log, Sinks: sinks})
	if err != nil {
		return err
	}
	if cfg.MetricsAddr != "" {
		if err := metrics.RegisterEngineGauges(reg, engine); err != nil {
			return err
		}
	}
	log = log.WithField("run", engine.RunID())
	if err := engine.Start(); err != nil {
		return err
	}

	ctx, stop := context.WithCancel(cmd.Context())
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return handleSignals(gctx, engine, log, stop) })
	if cfg.AutoscaleMode == "poll" {
		g.Go(func() error { return engine.RunAutoscaler(gctx, cfg.AutoscaleInterval) })
	}
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return metrics.Serve(gctx, cfg.MetricsAddr, reg) })
	}
	if watchConfig {
		g.Go(func() error { return watchConfigFile(gctx, configPath, cfg, engine, log) })
	}
	g.Go(func() error {
		defer stop()
		if err := produce(gctx, cmd, engine, log); err != nil {
			return err
		}
		if noDrain {
			return nil
		}
		drainCtx := gctx
		if drainTimeout > 0 {
			var cancel context.CancelFunc
			drainCtx, cancel = context.WithTimeout(gctx, drainTimeout)
			defer cancel()
		}
		if err := engine.WaitIdle(drainCtx, 50*time.Millisecond); err != nil {
			log.WithError(err).Warn("stopped waiting for in-flight patients")
		}
		return nil
	})

	groupErr := g.Wait()
	report := engine.Shutdown()
	snap := engine.RequestStatsSnapshot()
	snap.Print(cmd.OutOrStdout())
	fmt.Fprintf(cmd.OutOrStdout(), "Residual at shutdown  : intake %d, dispatch %d\n",
		report.IntakeResidual, report.DispatchResidual)
	return groupErr
}

// produce feeds the engine from the synthetic workload and the input stream
// concurrently and returns once both are exhausted. A cancelled ctx is not an
// error.
func produce(ctx context.Context, cmd *cobra.Command, engine *sim.Engine, log *logrus.Entry) error {
	g, gctx := errgroup.WithContext(ctx)
	if workloadPath != "" {
		g.Go(func() error { return injectWorkload(gctx, engine, log) })
	}
	if workloadPath == "" || cmd.Flags().Changed("input") {
		g.Go(func() error { return readInput(gctx, cmd.InOrStdin(), engine, log) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, sim.ErrQueueClosed) {
		return nil
	}
	return err
}

func injectWorkload(ctx context.Context, engine *sim.Engine, log *logrus.Entry) error {
	spec, err := workload.LoadSpec(workloadPath)
	if err != nil {
		return err
	}
	arrivals, err := workload.Generate(spec)
	if err != nil {
		return err
	}
	submit := func(_ context.Context, p sim.Patient) error {
		_, err := engine.Submit(p)
		return err
	}
	if backpressure == backpressureBlock {
		submit = func(ctx context.Context, p sim.Patient) error {
			_, err := engine.SubmitWait(ctx, p)
			return err
		}
	}
	res, err := workload.Replay(ctx, arrivals, pace, submit)
	log.WithFields(logrus.Fields{"submitted": res.Submitted, "rejected": res.Rejected}).Info("workload injected")
	return err
}

// readInput applies the command stream. The read runs in its own goroutine
// so that a cancelled ctx returns promptly even while stdin or a pipe blocks.
func readInput(ctx context.Context, stdin io.Reader, engine *sim.Engine, log *logrus.Entry) error {
	in, closeInput, err := openInput(inputPath, stdin)
	if err != nil {
		return err
	}
	reader := command.NewReader(engine, log)
	done := make(chan error, 1)
	go func() {
		res, err := reader.Run(ctx, in)
		log.WithFields(logrus.Fields{
			"lines": res.Lines, "submitted": res.Submitted, "rejected": res.Rejected, "invalid": res.Invalid,
		}).Info("input finished")
		done <- err
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	return multierr.Append(err, closeInput())
}

// openInput opens path for reading; "-" means stdin, which is never closed.
func openInput(path string, stdin io.Reader) (io.Reader, func() error, error) {
	if path == "" || path == "-" {
		return stdin, func() error { return nil }, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening input: %w", err)
	}
	return f, f.Close, nil
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Engine configuration YAML (required)")
	_ = runCmd.MarkFlagRequired("config")
	runCmd.Flags().StringVar(&inputPath, "input", "-", "Command stream: '-' for stdin, a file, or a named pipe")
	runCmd.Flags().StringVar(&workloadPath, "workload", "", "Synthetic workload YAML injected at start")
	runCmd.Flags().BoolVar(&pace, "pace", false, "Inject workload arrivals at their arrival times")
	runCmd.Flags().StringVar(&backpressure, "backpressure", backpressureReject, "Workload injection on a full intake queue: reject or block")
	runCmd.Flags().BoolVar(&noDrain, "no-drain", false, "Shut down as soon as input ends instead of waiting for in-flight patients")
	runCmd.Flags().DurationVar(&drainTimeout, "drain-timeout", 0, "Upper bound on the wait for in-flight patients (0 = none)")
	runCmd.Flags().BoolVar(&watchConfig, "watch-config", false, "Apply initial_triage_workers changes from the config file while running")

	runCmd.Flags().IntVar(&intakeCapacity, "intake-capacity", 0, "Override intake_queue_capacity")
	runCmd.Flags().IntVar(&triageWorkers, "triage-workers", 0, "Override initial_triage_workers")
	runCmd.Flags().IntVar(&serviceWorkers, "service-workers", 0, "Override permanent_service_workers")
	runCmd.Flags().IntVar(&shiftSeconds, "shift", 0, "Override shift_length_seconds")
	runCmd.Flags().IntVar(&highWaterMark, "high-water", 0, "Override dispatch_high_water_mark")
	runCmd.Flags().IntVar(&maxTemporary, "max-temporary", 0, "Override max_temporary_workers (0 = unbounded)")
	runCmd.Flags().StringVar(&autoscaleMode, "autoscale-mode", sim.DefaultAutoscaleMode, "Override autoscale_mode: poll or watch")
	runCmd.Flags().DurationVar(&autoscaleInterval, "autoscale-interval", sim.DefaultAutoscaleInterval, "Override autoscale_interval")
	runCmd.Flags().Float64Var(&timeScale, "time-scale", 1, "Override time_scale: processing times are divided by this")
	runCmd.Flags().StringVar(&logFile, "log-file", sim.DefaultLogFile, "Override log_file")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Override metrics_addr, e.g. :9090")
}
