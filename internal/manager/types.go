package manager

import (
	"context"

	"inferd/internal/ollama"
)

// BackendState is the process-wide lifecycle state of the inference backend.
type BackendState string

const (
	StateStarting     BackendState = "starting"
	StatePullingModel BackendState = "pulling_model"
	StateReady        BackendState = "ready"
	StateDegraded     BackendState = "degraded"
	StateCrashed      BackendState = "crashed"
)

var allStates = []BackendState{StateStarting, StatePullingModel, StateReady, StateDegraded, StateCrashed}

// StateSource exposes the current backend state to readers outside the manager.
type StateSource interface {
	State() BackendState
}

// Backend is the subset of the backend HTTP API the manager needs.
// *ollama.Client satisfies it.
type Backend interface {
	Ping(ctx context.Context) error
	ListModels(ctx context.Context) ([]string, error)
	PullModel(ctx context.Context, name string, onProgress func(ollama.PullProgress)) error
}
