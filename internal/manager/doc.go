// Package manager supervises the local inference backend for the lifetime of
// the process. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, getters.
//   - config.go: Config and package defaults; New applies defaults.
//   - types.go: BackendState and the StateSource/Backend interfaces.
//   - errors.go: error types and helpers (IsBackendUnavailable, IsModelProvisionFailed, IsCrashBudgetExhausted).
//   - process.go: Launcher/Process and the os/exec implementation with a bounded stderr tail.
//   - ready.go: WaitUntilReady readiness polling with early-exit detection.
//   - ensure.go: EnsureModel fallback-chain provisioning.
//   - supervisor.go: Run loop (health monitoring, crash accounting, restarts).
//   - status_report.go: Status reporting for /status.
//   - events.go, eventpub_log.go: lifecycle events and the structured-log sink.
//   - metrics.go: Prometheus collectors.
//
// Only the Manager mutates BackendState. Other components observe it through
// StateSource.
package manager
