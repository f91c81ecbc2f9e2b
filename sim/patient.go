// Defines the Patient struct that models a single work item flowing through
// intake, triage and service. Tracks the five pipeline timestamps used for
// wait-time statistics.

package sim

import (
	"fmt"
	"time"
)

// Patient is the unit of work handed from stage to stage.
//
// Patient is passed by value: the intake queue, the triage worker, the
// dispatch queue and the service worker each hold their own copy, and a stage
// keeps nothing once the copy has been handed on. Priority is fixed when the
// patient is created. Each timestamp is stamped once, in pipeline order, and is
// never earlier than the one before it.
type Patient struct {
	ID        int64    // Arrival number, assigned by Engine.Submit when zero
	Name      string   // Free-form label
	TriageMs  int      // Triage processing time in milliseconds
	ServiceMs int      // Service processing time in milliseconds
	Priority  Priority // 1 (most urgent) .. 5

	Arrival      time.Time
	TriageStart  time.Time
	TriageEnd    time.Time
	ServiceStart time.Time
	ServiceEnd   time.Time
}

// NewPatient validates the fields supplied by an external producer.
func NewPatient(name string, triageMs, serviceMs int, priority int) (Patient, error) {
	prio, err := ParsePriority(priority)
	if err != nil {
		return Patient{}, err
	}
	if triageMs < 0 {
		return Patient{}, fmt.Errorf("triage time must be non-negative, got %d", triageMs)
	}
	if serviceMs < 0 {
		return Patient{}, fmt.Errorf("service time must be non-negative, got %d", serviceMs)
	}
	return Patient{
		Name:      name,
		TriageMs:  triageMs,
		ServiceMs: serviceMs,
		Priority:  prio,
	}, nil
}

func (p Patient) String() string {
	return fmt.Sprintf("Patient: (ID: %d, Name: %s, Priority: %d, Triage: %dms, Service: %dms)",
		p.ID, p.Name, int(p.Priority), p.TriageMs, p.ServiceMs)
}

// stamp records now into *dst unless it is already set, clamping it so it is
// never earlier than prev.
func stamp(dst *time.Time, prev, now time.Time) {
	if !dst.IsZero() {
		return
	}
	if now.Before(prev) {
		now = prev
	}
	*dst = now
}

func (p *Patient) markArrival(now time.Time) { stamp(&p.Arrival, time.Time{}, now) }

func (p *Patient) markTriageStart(now time.Time) { stamp(&p.TriageStart, p.Arrival, now) }

func (p *Patient) markTriageEnd(now time.Time) { stamp(&p.TriageEnd, p.TriageStart, now) }

func (p *Patient) markServiceStart(now time.Time) { stamp(&p.ServiceStart, p.TriageEnd, now) }

func (p *Patient) markServiceEnd(now time.Time) { stamp(&p.ServiceEnd, p.ServiceStart, now) }

// TriageWait is the time spent in the intake queue before triage started.
func (p Patient) TriageWait() time.Duration {
	return p.TriageStart.Sub(p.Arrival)
}

// ServiceWait is the time between the end of triage and the start of service.
func (p Patient) ServiceWait() time.Duration {
	return p.ServiceStart.Sub(p.TriageEnd)
}

// TimeInSystem is the time from arrival until service finished.
func (p Patient) TimeInSystem() time.Duration {
	return p.ServiceEnd.Sub(p.Arrival)
}
