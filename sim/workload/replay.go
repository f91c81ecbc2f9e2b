package workload

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emergency-sim/edsim/sim"
)

// SubmitFunc hands one patient to its consumer.
type SubmitFunc func(ctx context.Context, p sim.Patient) error

// ReplayResult counts what happened to the replayed arrivals.
type ReplayResult struct {
	Submitted int
	Rejected  int
}

// Replay feeds arrivals to submit in order. With pace set it waits until each
// arrival's offset has elapsed since the call started; otherwise it submits
// back to back.
//
// Rejections (sim.ErrRejectedFull) are counted and skipped. A closed intake
// ends the replay without error. Any other submit error, or ctx being done,
// stops the replay and is returned.
func Replay(ctx context.Context, arrivals []Arrival, pace bool, submit SubmitFunc) (ReplayResult, error) {
	var res ReplayResult
	start := time.Now()
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for _, a := range arrivals {
		if pace {
			if wait := time.Until(start.Add(a.Offset)); wait > 0 {
				timer.Reset(wait)
				select {
				case <-ctx.Done():
					return res, ctx.Err()
				case <-timer.C:
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		err := submit(ctx, a.Patient)
		switch {
		case err == nil:
			res.Submitted++
		case errors.Is(err, sim.ErrRejectedFull):
			res.Rejected++
		case errors.Is(err, sim.ErrQueueClosed):
			logrus.Debugf("replay stopped after %d arrivals: intake closed", res.Submitted+res.Rejected)
			return res, nil
		default:
			return res, err
		}
	}
	return res, nil
}
