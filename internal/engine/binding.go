// Package engine declares the narrow operation set the controller consumes
// from the native inference engine.
//
// Build tags and runtimes:
//
//   - `-tags=llama`: cgo binding over llama_bridge.h, linked against
//     libllama_bridge and libllama found next to the binary ($ORIGIN rpath).
//     Files: llama_cgo.go, llama_bridge.h.
//   - default: a no-CGO stub that refuses to load models (llama_stub.go).
//
// Nothing in this package is safe for concurrent use. Callers must funnel every
// call through a single serialized execution context.
package engine

// ModelHandle is an opaque reference to a loaded model. Zero is null.
type ModelHandle uintptr

// ContextHandle is an opaque reference to an inference context (weights view,
// compute graph and KV cache). Zero is null. A context is only valid while the
// model it was created from is loaded.
type ContextHandle uintptr

// TokenID identifies a token in the vocabulary of the currently loaded model.
// Negative ids are invalid.
type TokenID int32

// Binding is the native engine operation set.
type Binding interface {
	// BackendInit initializes backend global state. Must precede LoadModel.
	BackendInit()
	// BackendFree releases backend global state.
	BackendFree()

	// LoadModel returns 0 on failure.
	LoadModel(path string) ModelHandle
	FreeModel(m ModelHandle)

	// NewContext returns 0 on failure.
	NewContext(m ModelHandle, windowSize, threads int) ContextHandle
	FreeContext(c ContextHandle)

	// ClearKVCache empties the key/value cache of c.
	ClearKVCache(c ContextHandle)

	// Tokenize writes the tokens of text into buf and returns their count.
	// A negative result is the number of tokens required when buf is too
	// small; zero means tokenization failed.
	Tokenize(m ModelHandle, text string, buf []TokenID, addSpecial bool) int

	// Eval runs tokens through the model starting at position pos.
	// 0 is success, negative is fatal, positive is a soft failure.
	Eval(c ContextHandle, tokens []TokenID, pos int) int

	// Sample picks the next token from the last evaluation. Negative is invalid.
	Sample(c ContextHandle) TokenID

	// TokenToText returns false when the engine has no text for tok.
	TokenToText(m ModelHandle, tok TokenID) (string, bool)

	EOS(m ModelHandle) TokenID
}
