// Package metrics exports engine statistics and queue state to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/emergency-sim/edsim/sim"
)

const namespace = "edsim"

// waitBuckets span sub-second triage up to long service backlogs.
var waitBuckets = prometheus.ExponentialBuckets(0.01, 2, 14)

// Sink is a sim.StatsSink recording every update as Prometheus metrics.
type Sink struct {
	triaged     prometheus.Counter
	attended    prometheus.Counter
	lost        *prometheus.CounterVec
	triageWait  prometheus.Histogram
	serviceWait prometheus.Histogram
	totalTime   prometheus.Histogram
}

var _ sim.StatsSink = (*Sink)(nil)

// NewSink creates the pipeline metrics and registers them with reg.
func NewSink(reg prometheus.Registerer) (*Sink, error) {
	s := &Sink{
		triaged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patients_triaged_total",
			Help:      "Patients that completed triage.",
		}),
		attended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patients_attended_total",
			Help:      "Patients that completed service.",
		}),
		lost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patients_lost_total",
			Help:      "Patients discarded, by the stage that discarded them.",
		}, []string{"stage"}),
		triageWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "triage_wait_seconds",
			Help:      "Time from arrival to triage start.",
			Buckets:   waitBuckets,
		}),
		serviceWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "service_wait_seconds",
			Help:      "Time from triage end to service start.",
			Buckets:   waitBuckets,
		}),
		totalTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "time_in_system_seconds",
			Help:      "Time from arrival to service end.",
			Buckets:   waitBuckets,
		}),
	}
	var err error
	for _, c := range []prometheus.Collector{s.triaged, s.attended, s.lost, s.triageWait, s.serviceWait, s.totalTime} {
		err = multierr.Append(err, reg.Register(c))
	}
	if err != nil {
		return nil, fmt.Errorf("registering pipeline metrics: %w", err)
	}
	return s, nil
}

func (s *Sink) ReportTriaged(waitSeconds float64) {
	s.triaged.Inc()
	s.triageWait.Observe(waitSeconds)
}

func (s *Sink) ReportAttended(waitSeconds, totalSeconds float64) {
	s.attended.Inc()
	s.serviceWait.Observe(waitSeconds)
	s.totalTime.Observe(totalSeconds)
}

func (s *Sink) ReportLost(stage sim.Stage) {
	s.lost.WithLabelValues(string(stage)).Inc()
}

// EngineState is the read side of an engine sampled at scrape time.
// *sim.Engine implements it.
type EngineState interface {
	Depths() (intake, dispatch int)
	TriageSize() int
	ServiceCounts() (permanent, temporary int)
}

// RegisterEngineGauges registers gauges reading queue depths and worker
// counts from src on every scrape.
func RegisterEngineGauges(reg prometheus.Registerer, src EngineState) error {
	gauge := func(name, help string, labels prometheus.Labels, fn func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, fn)
	}
	collectors := []prometheus.Collector{
		gauge("queue_depth", "Patients waiting in a queue.", prometheus.Labels{"queue": "intake"}, func() float64 {
			n, _ := src.Depths()
			return float64(n)
		}),
		gauge("queue_depth", "Patients waiting in a queue.", prometheus.Labels{"queue": "dispatch"}, func() float64 {
			_, n := src.Depths()
			return float64(n)
		}),
		gauge("triage_workers", "Triage workers in the pool.", nil, func() float64 {
			return float64(src.TriageSize())
		}),
		gauge("service_workers", "Service workers by kind.", prometheus.Labels{"kind": string(sim.KindPermanent)}, func() float64 {
			n, _ := src.ServiceCounts()
			return float64(n)
		}),
		gauge("service_workers", "Service workers by kind.", prometheus.Labels{"kind": string(sim.KindTemporary)}, func() float64 {
			_, n := src.ServiceCounts()
			return float64(n)
		}),
	}
	var err error
	for _, c := range collectors {
		err = multierr.Append(err, reg.Register(c))
	}
	if err != nil {
		return fmt.Errorf("registering engine gauges: %w", err)
	}
	return nil
}

// Handler returns the HTTP handler exposing g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}

// Serve exposes g on addr under /metrics until ctx is done, then shuts the
// server down gracefully.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(g),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("serving metrics on http://%s/metrics", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
