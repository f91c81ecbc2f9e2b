package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/emergency-sim/edsim/sim"
)

// handleSignals calls stop on SIGINT or SIGTERM and logs a statistics
// snapshot on SIGUSR1. It returns when ctx is done.
func handleSignals(ctx context.Context, engine *sim.Engine, log *logrus.Entry, stop context.CancelFunc) error {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, append([]os.Signal{syscall.SIGINT, syscall.SIGTERM}, statsSignals...)...)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigCh:
			if sig == syscall.SIGINT || sig == syscall.SIGTERM {
				log.WithField("signal", sig.String()).Info("received termination signal, shutting down")
				stop()
				return nil
			}
			logSnapshot(engine, log)
		}
	}
}

func logSnapshot(engine *sim.Engine, log *logrus.Entry) {
	snap := engine.RequestStatsSnapshot()
	intake, dispatch := engine.Depths()
	permanent, temporary := engine.ServiceCounts()
	log.WithFields(logrus.Fields{
		"triaged":           snap.Triaged,
		"attended":          snap.Attended,
		"avg_triage_wait":   snap.AvgTriageWait,
		"avg_service_wait":  snap.AvgServiceWait,
		"avg_total_time":    snap.AvgTotalTime,
		"rejected_intake":   snap.RejectedIntake,
		"dropped_dispatch":  snap.DroppedDispatch,
		"intake_depth":      intake,
		"dispatch_depth":    dispatch,
		"triage_workers":    engine.TriageSize(),
		"permanent_workers": permanent,
		"temporary_workers": temporary,
	}).Info("statistics snapshot")
}
