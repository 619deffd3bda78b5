//go:build !llama

package engine

// This file provides a no-CGO stub for the llama binding. It is compiled when
// the 'llama' build tag is NOT set, keeping default builds and CI CGO-free.
// Every model load fails, so controllers built on it never reach Ready.

import (
	"github.com/rs/zerolog/log"
)

// Built reports whether this binary links the native engine.
const Built = false

type stubBinding struct{}

// NewLlama returns the stub binding.
func NewLlama() Binding { return stubBinding{} }

func (stubBinding) BackendInit() {}
func (stubBinding) BackendFree() {}

func (stubBinding) LoadModel(path string) ModelHandle {
	log.Error().Str("path", path).Msg("llama support not built (missing 'llama' build tag)")
	return 0
}

func (stubBinding) FreeModel(ModelHandle) {}

func (stubBinding) NewContext(ModelHandle, int, int) ContextHandle { return 0 }

func (stubBinding) FreeContext(ContextHandle)  {}
func (stubBinding) ClearKVCache(ContextHandle) {}

func (stubBinding) Tokenize(ModelHandle, string, []TokenID, bool) int { return 0 }

func (stubBinding) Eval(ContextHandle, []TokenID, int) int { return -1 }

func (stubBinding) Sample(ContextHandle) TokenID { return -1 }

func (stubBinding) TokenToText(ModelHandle, TokenID) (string, bool) { return "", false }

func (stubBinding) EOS(ModelHandle) TokenID { return -1 }
