// Tracks pipeline-wide statistics: how many patients were triaged and attended,
// the accumulated waits used for averages, and losses per stage.

package sim

import (
	"fmt"
	"io"
	"sync"
)

// StatsSink receives timing and loss updates from the worker pools.
// Implementations must be safe for concurrent use.
type StatsSink interface {
	// ReportTriaged records one triaged patient and its wait before triage.
	ReportTriaged(waitSeconds float64)
	// ReportAttended records one attended patient, its wait between triage
	// and service, and its total time in the system.
	ReportAttended(waitSeconds, totalSeconds float64)
	// ReportLost records a patient discarded because stage was full.
	ReportLost(stage Stage)
}

// StatsSnapshot is a consistent read of the counters.
type StatsSnapshot struct {
	Triaged         int
	Attended        int
	AvgTriageWait   float64 // seconds
	AvgServiceWait  float64 // seconds
	AvgTotalTime    float64 // seconds
	RejectedIntake  int
	DroppedDispatch int
}

// Statistics is the in-memory StatsSink. Every update and every snapshot
// happens under one mutex shared by all reporting workers.
type Statistics struct {
	mu sync.Mutex

	triaged  int
	attended int

	triageWaitSum  float64
	serviceWaitSum float64
	totalTimeSum   float64

	lost map[Stage]int
}

// NewStatistics returns an empty Statistics.
func NewStatistics() *Statistics {
	return &Statistics{lost: make(map[Stage]int)}
}

func (s *Statistics) ReportTriaged(waitSeconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triaged++
	s.triageWaitSum += waitSeconds
}

func (s *Statistics) ReportAttended(waitSeconds, totalSeconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attended++
	s.serviceWaitSum += waitSeconds
	s.totalTimeSum += totalSeconds
}

func (s *Statistics) ReportLost(stage Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lost[stage]++
}

// Snapshot returns the current counters and averages.
func (s *Statistics) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := StatsSnapshot{
		Triaged:         s.triaged,
		Attended:        s.attended,
		RejectedIntake:  s.lost[StageIntake],
		DroppedDispatch: s.lost[StageDispatch],
	}
	if s.triaged > 0 {
		snap.AvgTriageWait = s.triageWaitSum / float64(s.triaged)
	}
	if s.attended > 0 {
		snap.AvgServiceWait = s.serviceWaitSum / float64(s.attended)
		snap.AvgTotalTime = s.totalTimeSum / float64(s.attended)
	}
	return snap
}

// Print writes a human-readable report of snap to w.
func (snap StatsSnapshot) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Emergency Statistics ===")
	fmt.Fprintf(w, "Triaged patients      : %d\n", snap.Triaged)
	fmt.Fprintf(w, "Attended patients     : %d\n", snap.Attended)
	fmt.Fprintf(w, "Rejected at intake    : %d\n", snap.RejectedIntake)
	fmt.Fprintf(w, "Dropped at dispatch   : %d\n", snap.DroppedDispatch)
	if snap.Triaged > 0 {
		fmt.Fprintf(w, "Average triage wait   : %.3f s\n", snap.AvgTriageWait)
	}
	if snap.Attended > 0 {
		fmt.Fprintf(w, "Average service wait  : %.3f s\n", snap.AvgServiceWait)
		fmt.Fprintf(w, "Average time in system: %.3f s\n", snap.AvgTotalTime)
	}
}

// NopStats discards every update.
type NopStats struct{}

func (NopStats) ReportTriaged(float64)           {}
func (NopStats) ReportAttended(float64, float64) {}
func (NopStats) ReportLost(Stage)                {}
