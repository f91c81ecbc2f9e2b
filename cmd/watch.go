package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/emergency-sim/edsim/sim"
)

// triageResizer is the part of the engine a config reload may touch.
type triageResizer interface {
	ResizeTriagePool(n int) error
}

// watchConfigFile reloads path whenever it is written and applies changes
// to initial_triage_workers as a triage resize. The directory is watched
// rather than the file so that editors replacing the file are seen too.
func watchConfigFile(ctx context.Context, path string, current *sim.Config, engine triageResizer, log *logrus.Entry) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	log = log.WithField("config", target)
	log.Info("watching config for triage pool changes")

	applied := *current
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			log.WithField("op", event.Op.String()).Debug("config changed")
			next, err := sim.LoadConfig(target)
			if err != nil {
				log.WithError(err).Warn("ignoring invalid config reload")
				continue
			}
			applied = applyConfigReload(applied, *next, engine, log)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Error("fsnotify error")
		}
	}
}

// applyConfigReload resizes the triage pool when initial_triage_workers
// changed and returns the configuration now in effect. Every other change is
// only logged, since it needs a restart.
func applyConfigReload(applied, next sim.Config, engine triageResizer, log *logrus.Entry) sim.Config {
	if next.InitialTriageWorkers != applied.InitialTriageWorkers {
		if err := engine.ResizeTriagePool(next.InitialTriageWorkers); err != nil {
			log.WithError(err).Warn("config reload: triage resize rejected")
		} else {
			applied.InitialTriageWorkers = next.InitialTriageWorkers
		}
	}
	rest := next
	rest.InitialTriageWorkers = applied.InitialTriageWorkers
	if rest != applied {
		log.Warn("config reload: changes other than initial_triage_workers take effect after restart")
	}
	return applied
}
