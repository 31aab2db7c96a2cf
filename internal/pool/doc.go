// Package pool provides admission-controlled leasing of engine processes.
// It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, Configure.
//   - config.go: ManagerConfig and package defaults.
//   - types.go: Instance and the Engine/Launcher seams.
//   - errors.go: Rejection and its reasons (IsCapacityExhausted, ...).
//   - lease.go: Lease, the capacity check and slot reservation.
//   - release.go: Release and StopAll.
//   - status_report.go: Snapshot for /status.
//   - sanity.go: executable checks for configured engines.
//   - events.go, eventpub_memory.go: lifecycle events.
//   - metrics.go: Prometheus collectors.
//
// A Manager never queues: a lease either succeeds immediately or returns a
// *Rejection, and the caller decides whether to retry or give up.
//
// Known limitation: there is no lease timeout. A session that never calls
// Release keeps its slot until the worker exits.
package pool
