package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrRejectedFull is returned by TryEnqueue when a queue is at capacity.
	// The caller owns the rejected patient and must report it as a loss.
	ErrRejectedFull = errors.New("queue is full")

	// ErrQueueClosed is returned once a queue has been closed for shutdown.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrInterrupted is returned by a blocking Dequeue when the caller's stop
	// condition became true while it was waiting.
	ErrInterrupted = errors.New("dequeue interrupted")

	// ErrInvalidTarget is returned by a resize request outside [1, intake capacity].
	ErrInvalidTarget = errors.New("invalid resize target")

	// ErrInvalidPriority is returned for priorities outside [1, 5].
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrSpawnFailure reports that a worker could not be started.
	ErrSpawnFailure = errors.New("worker spawn failed")

	// ErrSynchronization reports a failure inside a worker iteration. The
	// iteration is aborted and the worker keeps running.
	ErrSynchronization = errors.New("synchronization failure")

	// ErrConfiguration is the root of every configuration validation error.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrPoolStopped is returned by control operations after shutdown.
	ErrPoolStopped = errors.New("pool is stopped")
)

// ConfigError describes a single invalid configuration field.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Unwrap lets errors.Is(err, ErrConfiguration) match every ConfigError.
func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}
