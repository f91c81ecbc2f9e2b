// Package sim implements the emergency-department scheduling engine: a
// bounded intake queue feeding a resizable triage pool, which hands patients
// to a five-lane priority dispatch queue consumed by a service pool of
// permanent and temporary workers.
//
// # Reading Guide
//
// Start with these files:
//   - patient.go: the Patient value and its five pipeline timestamps
//   - queue.go, dispatch.go: the two bounded hand-off queues
//   - triage.go, service.go: the worker pools and their loops
//   - engine.go: how everything is wired and the operations callers use
//
// # Concurrency
//
// Each queue owns a mutex and condition variables; each pool owns a separate
// control mutex serializing resize, spawn and stop. Patients move between
// stages by value, so no two stages ever share one. Termination is
// cooperative: a worker finishes the patient in hand and checks its state
// only between patients or while blocked on an empty queue.
//
// # Sub-packages
//   - sim/command: the line protocol read from stdin, files or named pipes
//   - sim/workload: synthetic arrival streams
//   - sim/metrics: Prometheus export
//   - sim/logsink: the mirrored append-only log file
package sim
