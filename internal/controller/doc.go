// Package controller owns the native engine handles and is the only caller of
// the engine binding. It is structured into small files by concern:
//
//   - controller.go: Controller type, New, Load, Unload, Shutdown/Close, Snapshot.
//   - config.go: Config and package defaults; New applies defaults.
//   - types.go: State, Snapshot, Request.
//   - errors.go: error types and helpers (IsModelNotFound, IsInvalidState, ...).
//   - executor.go: the serialized execution context (FIFO queue, one worker).
//   - handles.go: exclusive ownership of the model/context pair.
//   - generate.go: Generate entry point and the token loop.
//   - stream.go: Stream and Completion returned to callers.
//   - events.go, metrics.go: lifecycle events and Prometheus collectors.
//
// Every public method validates and updates state under c.mu and, in the same
// critical section, enqueues the native work on the executor. Submission order
// therefore equals state-transition order, and no two native calls ever run
// concurrently.
package controller
