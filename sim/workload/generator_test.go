package workload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergency-sim/edsim/sim"
)

func TestGenerate_IsDeterministicForSeed(t *testing.T) {
	// GIVEN the same spec twice
	a, err := Generate(validSpec())
	require.NoError(t, err)
	b, err := Generate(validSpec())
	require.NoError(t, err)

	// THEN both runs produce identical arrivals
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("Generate not deterministic (-first +second):\n%s", diff)
	}
}

func TestGenerate_FieldsWithinBounds(t *testing.T) {
	spec := validSpec()
	arrivals, err := Generate(spec)
	require.NoError(t, err)
	require.Len(t, arrivals, spec.Count)

	assert.Equal(t, time.Duration(0), arrivals[0].Offset)
	assert.Equal(t, "patient-001", arrivals[0].Patient.Name)
	for i, a := range arrivals {
		if i > 0 {
			assert.Greater(t, a.Offset, arrivals[i-1].Offset, "offsets must increase")
		}
		assert.True(t, a.Patient.Priority.Valid())
		assert.GreaterOrEqual(t, a.Patient.TriageMs, spec.TriageMs.Min)
		assert.LessOrEqual(t, a.Patient.TriageMs, spec.TriageMs.Max)
		assert.GreaterOrEqual(t, a.Patient.ServiceMs, spec.ServiceMs.Min)
		assert.LessOrEqual(t, a.Patient.ServiceMs, spec.ServiceMs.Max)
	}
}

func TestGenerate_InvalidSpec(t *testing.T) {
	spec := validSpec()
	spec.Count = -1
	_, err := Generate(spec)
	assert.Error(t, err)
}

func TestReplay_CountsRejectionsAndStopsOnClose(t *testing.T) {
	// GIVEN five arrivals and a consumer that rejects the second and closes at the fourth
	arrivals, err := Generate(&Spec{
		Seed: 1, Count: 5, RatePerSecond: 100,
		Arrival: ArrivalSpec{Process: "constant"},
	})
	require.NoError(t, err)
	calls := 0
	submit := func(_ context.Context, _ sim.Patient) error {
		calls++
		switch calls {
		case 2:
			return sim.ErrRejectedFull
		case 4:
			return sim.ErrQueueClosed
		}
		return nil
	}

	// WHEN replaying without pacing
	res, err := Replay(context.Background(), arrivals, false, submit)

	// THEN the replay ends cleanly at the closed intake
	require.NoError(t, err)
	assert.Equal(t, ReplayResult{Submitted: 2, Rejected: 1}, res)
	assert.Equal(t, 4, calls)
}

func TestReplay_PropagatesSubmitError(t *testing.T) {
	arrivals := []Arrival{{}, {}}
	boom := errors.New("boom")
	_, err := Replay(context.Background(), arrivals, false, func(context.Context, sim.Patient) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestReplay_PacedHonoursContext(t *testing.T) {
	// GIVEN an arrival one hour in the future
	arrivals := []Arrival{{Offset: 0}, {Offset: time.Hour}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// WHEN replaying with pacing
	res, err := Replay(ctx, arrivals, true, func(context.Context, sim.Patient) error { return nil })

	// THEN the first arrival is submitted and the wait is cut short by ctx
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, res.Submitted)
}
