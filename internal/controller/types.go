package controller

import "time"

// State is the lifecycle state of a Controller.
type State string

const (
	StateUnloaded   State = "unloaded"
	StateLoading    State = "loading"
	StateReady      State = "ready"
	StateGenerating State = "generating"
	StateUnloading  State = "unloading"
)

// Request describes one generation.
type Request struct {
	Prompt string
	// MaxTokens caps this session's output. Zero or anything above the
	// controller cap means the controller cap.
	MaxTokens int
}

// Snapshot is a read-only projection of the controller state.
type Snapshot struct {
	State         State
	ModelPath     string
	LoadedAt      time.Time
	SessionID     string
	PendingUnload bool
	Closed        bool
	QueueLen      int

	LoadsTotal       uint64
	LoadFailures     uint64
	GenerationsTotal uint64
	TokensTotal      uint64
}
