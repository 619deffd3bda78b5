//go:build llama

package engine

// The C bridge wraps llama.cpp behind plain C symbols. We set an rpath of
// $ORIGIN so the runtime loader finds libllama_bridge.so, libllama.so and
// libggml*.so next to the built binary (./bin), and add -L${SRCDIR}/../../bin
// for link time.

/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama_bridge -lllama
#include <stdlib.h>
#include "llama_bridge.h"
*/
import "C"

import (
	"sync"
	"unsafe"
)

// Built reports whether this binary links the native engine.
const Built = true

// backend global state is process wide; refcount it across bindings.
var (
	backendMu   sync.Mutex
	backendRefs int
)

type llamaBinding struct{}

// NewLlama returns the cgo binding to the llama bridge.
func NewLlama() Binding { return llamaBinding{} }

// Handles are C heap pointers; the Go GC never moves them, so round-tripping
// through uintptr is safe.
func ptr(h uintptr) unsafe.Pointer { return unsafe.Pointer(h) }

func (llamaBinding) BackendInit() {
	backendMu.Lock()
	defer backendMu.Unlock()
	if backendRefs == 0 {
		C.llama_bridge_backend_init()
	}
	backendRefs++
}

func (llamaBinding) BackendFree() {
	backendMu.Lock()
	defer backendMu.Unlock()
	if backendRefs == 0 {
		return
	}
	backendRefs--
	if backendRefs == 0 {
		C.llama_bridge_backend_free()
	}
}

func (llamaBinding) LoadModel(path string) ModelHandle {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	return ModelHandle(uintptr(C.llama_bridge_load_model(cpath)))
}

func (llamaBinding) FreeModel(m ModelHandle) {
	if m == 0 {
		return
	}
	C.llama_bridge_free_model(ptr(uintptr(m)))
}

func (llamaBinding) NewContext(m ModelHandle, windowSize, threads int) ContextHandle {
	c := C.llama_bridge_create_context(ptr(uintptr(m)), C.int32_t(windowSize), C.int32_t(threads))
	return ContextHandle(uintptr(c))
}

func (llamaBinding) FreeContext(c ContextHandle) {
	if c == 0 {
		return
	}
	C.llama_bridge_free_context(ptr(uintptr(c)))
}

func (llamaBinding) ClearKVCache(c ContextHandle) {
	C.llama_bridge_clear_kv_cache(ptr(uintptr(c)))
}

func (llamaBinding) Tokenize(m ModelHandle, text string, buf []TokenID, addSpecial bool) int {
	if len(buf) == 0 {
		return 0
	}
	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	n := C.llama_bridge_tokenize(ptr(uintptr(m)), ctext,
		(*C.int32_t)(unsafe.Pointer(&buf[0])), C.int32_t(len(buf)), C.bool(addSpecial))
	return int(n)
}

func (llamaBinding) Eval(c ContextHandle, tokens []TokenID, pos int) int {
	if len(tokens) == 0 {
		return 0
	}
	rc := C.llama_bridge_eval(ptr(uintptr(c)),
		(*C.int32_t)(unsafe.Pointer(&tokens[0])), C.int32_t(len(tokens)), C.int32_t(pos))
	return int(rc)
}

func (llamaBinding) Sample(c ContextHandle) TokenID {
	return TokenID(C.llama_bridge_sample_token(ptr(uintptr(c))))
}

func (llamaBinding) TokenToText(m ModelHandle, tok TokenID) (string, bool) {
	s := C.llama_bridge_token_to_str(ptr(uintptr(m)), C.int32_t(tok))
	if s == nil {
		return "", false
	}
	return C.GoString(s), true
}

func (llamaBinding) EOS(m ModelHandle) TokenID {
	return TokenID(C.llama_bridge_token_eos(ptr(uintptr(m))))
}
