package sim

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

const (
	waitFor = 2 * time.Second
	tick    = time.Millisecond
)

// testLogger returns a logger that discards output and records entries.
func testLogger() (*logrus.Entry, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(logger), hook
}

// countEvents counts recorded entries carrying event=name.
func countEvents(hook *test.Hook, name string) int {
	n := 0
	for _, e := range hook.AllEntries() {
		if e.Data["event"] == name {
			n++
		}
	}
	return n
}

func testPatient(id int64, prio Priority) Patient {
	return Patient{ID: id, Name: fmt.Sprintf("p%d", id), Priority: prio}
}

func testConfig() Config {
	return Config{
		IntakeQueueCapacity:     5,
		InitialTriageWorkers:    1,
		PermanentServiceWorkers: 1,
		ShiftLengthSeconds:      3600,
		DispatchHighWaterMark:   10,
	}
}

// workRecorder is a WorkFunc that records every patient it processes per
// stage. While gated, calls block until release is called.
type workRecorder struct {
	mu     sync.Mutex
	seen   map[Stage][]int64
	gate   chan struct{}
	active map[Stage]int
}

func newWorkRecorder(gated bool) *workRecorder {
	r := &workRecorder{seen: make(map[Stage][]int64), active: make(map[Stage]int)}
	if gated {
		r.gate = make(chan struct{})
	}
	return r
}

func (r *workRecorder) Work(stage Stage, p Patient) {
	r.mu.Lock()
	r.active[stage]++
	gate := r.gate
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}
	r.mu.Lock()
	r.active[stage]--
	r.seen[stage] = append(r.seen[stage], p.ID)
	r.mu.Unlock()
}

// release unblocks every current and future call.
func (r *workRecorder) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gate != nil {
		close(r.gate)
		r.gate = nil
	}
}

func (r *workRecorder) inFlight(stage Stage) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[stage]
}

func (r *workRecorder) processed(stage Stage) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.seen[stage]...)
}

// assertOnce fails unless ids contains every id in 1..n exactly once.
func assertOnce(t *testing.T, ids []int64, n int) {
	t.Helper()
	counts := make(map[int64]int, len(ids))
	for _, id := range ids {
		counts[id]++
	}
	for id := int64(1); id <= int64(n); id++ {
		if counts[id] != 1 {
			t.Errorf("patient %d processed %d times, want exactly once", id, counts[id])
		}
	}
	if len(ids) != n {
		t.Errorf("processed %d patients, want %d", len(ids), n)
	}
}
