package controller

import (
	"runtime"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"

	"llamad/internal/engine"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultContextSize     = 4096
	DefaultMaxPromptTokens = 1024
	DefaultMaxTokens       = 512
	DefaultStreamBuffer    = 16
	DefaultName            = "default"
)

// Config encapsulates all tunables for Controller construction.
type Config struct {
	// Binding is the native engine. Required.
	Binding engine.Binding
	// Name labels this controller's metrics and logs.
	Name string
	// ContextSize is the context window handed to create_context.
	ContextSize int
	// Threads is the compute thread count; zero derives it from the hardware.
	Threads int
	// MaxPromptTokens is the hard prompt ceiling. Longer prompts fail with
	// InferenceFailed; they are never truncated.
	MaxPromptTokens int
	// MaxTokens caps the tokens sampled per generation.
	MaxTokens int
	// StreamBuffer is the capacity of each Stream's token channel.
	StreamBuffer int
	// UnloadOnFatalEval unloads the model after a generation ends on a
	// negative (fatal) evaluation code.
	UnloadOnFatalEval bool

	Logger    *zerolog.Logger
	Publisher EventPublisher
}

func (cfg Config) withDefaults() Config {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.ContextSize <= 0 {
		cfg.ContextSize = DefaultContextSize
	}
	if cfg.MaxPromptTokens <= 0 {
		cfg.MaxPromptTokens = DefaultMaxPromptTokens
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = DefaultStreamBuffer
	}
	if cfg.Threads <= 0 {
		cfg.Threads = hardwareThreads()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	return cfg
}

// hardwareThreads returns the logical CPU count, at least 1.
func hardwareThreads() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return max(1, runtime.NumCPU())
}
