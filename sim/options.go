package sim

import (
	"time"

	"github.com/sirupsen/logrus"
)

// PoolOptions carries the collaborators shared by the triage and service pools.
//
// All zero values are replaced with defaults in fillDefaults.
type PoolOptions struct {
	Logger   *logrus.Entry    // defaults to the standard logrus logger
	Stats    StatsSink        // defaults to NopStats
	Work     WorkFunc         // defaults to SleepWork(1)
	Launcher Launcher         // defaults to starting a goroutine
	Now      func() time.Time // defaults to time.Now
}

func (o *PoolOptions) fillDefaults() {
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if o.Stats == nil {
		o.Stats = NopStats{}
	}
	if o.Work == nil {
		o.Work = SleepWork(1)
	}
	if o.Launcher == nil {
		o.Launcher = goLauncher
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}
