// Package enginetest provides a recording engine.Binding for tests.
//
// The fake has an identity vocabulary: text is split after every space and
// each piece becomes one token whose text is the piece itself, so
// detokenizing the tokens of a string reproduces it exactly.
package enginetest

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"llamad/internal/engine"
)

// Special token ids. Word ids start at firstWordID.
const (
	BOS         engine.TokenID = 1
	EOS         engine.TokenID = 2
	firstWordID engine.TokenID = 3
)

// Native operation names as recorded in Call.Op.
const (
	OpBackendInit  = "backend_init"
	OpBackendFree  = "backend_free"
	OpLoadModel    = "load_model"
	OpFreeModel    = "free_model"
	OpNewContext   = "create_context"
	OpFreeContext  = "free_context"
	OpClearKVCache = "clear_kv_cache"
	OpTokenize     = "tokenize"
	OpEval         = "eval"
	OpSample       = "sample_token"
	OpTokenToText  = "token_to_text"
	OpEOS          = "eos_token"
)

// Call is one recorded native call.
type Call struct {
	Op      string
	Model   engine.ModelHandle
	Context engine.ContextHandle
	Tokens  []engine.TokenID
	Pos     int
	Threads int
	Result  int
}

// Fake is a scripted, recording engine.Binding. Configure the exported fields
// before handing it to a controller.
type Fake struct {
	FailLoad     bool
	FailContext  bool
	FailTokenize bool

	// TokenizeResult, when non-zero, is returned by Tokenize as is.
	TokenizeResult int

	// Replies are sampled in order in every session, followed by EOS.
	Replies []string
	// Echo samples the prompt pieces back instead of Replies.
	Echo bool
	// EvalFailAt is the 1-based index, counted from the last KV cache clear,
	// of the Eval call that returns EvalFailCode.
	EvalFailAt   int
	EvalFailCode int
	// InvalidTokenAt is the 1-based Sample call, counted from the last KV cache
	// clear, that returns a negative id.
	InvalidTokenAt int
	// Delay is slept inside Eval and Sample.
	Delay time.Duration

	inflight atomic.Int32

	mu         sync.Mutex
	calls      []Call
	violations []string
	backend    int
	next       uintptr
	models     map[engine.ModelHandle]bool
	contexts   map[engine.ContextHandle]engine.ModelHandle
	ids        map[string]engine.TokenID
	words      []string
	prompt     []engine.TokenID
	past       int
	evals      int
	samples    int
}

// New returns a Fake that replies with the given fragments.
func New(replies ...string) *Fake {
	return &Fake{Replies: replies}
}

// Pieces splits text the way the fake tokenizer does.
func Pieces(text string) []string {
	parts := strings.SplitAfter(text, " ")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (f *Fake) enter(op string) func() {
	if f.inflight.Add(1) > 1 {
		f.mu.Lock()
		f.violations = append(f.violations, "overlapping native call: "+op)
		f.mu.Unlock()
	}
	return func() { f.inflight.Add(-1) }
}

func (f *Fake) record(c Call) {
	f.calls = append(f.calls, c)
}

func (f *Fake) violate(format string, args ...any) {
	f.violations = append(f.violations, fmt.Sprintf(format, args...))
}

func (f *Fake) id(word string) engine.TokenID {
	if f.ids == nil {
		f.ids = make(map[string]engine.TokenID)
	}
	if id, ok := f.ids[word]; ok {
		return id
	}
	id := firstWordID + engine.TokenID(len(f.words))
	f.ids[word] = id
	f.words = append(f.words, word)
	return id
}

func (f *Fake) checkModel(op string, m engine.ModelHandle) {
	if !f.models[m] {
		f.violate("%s on stale model handle %d", op, m)
	}
}

func (f *Fake) checkContext(op string, c engine.ContextHandle) {
	m, ok := f.contexts[c]
	if !ok {
		f.violate("%s on stale context handle %d", op, c)
		return
	}
	if !f.models[m] {
		f.violate("%s on context %d whose model %d was freed", op, c, m)
	}
}

func (f *Fake) BackendInit() {
	defer f.enter(OpBackendInit)()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backend++
	f.record(Call{Op: OpBackendInit})
}

func (f *Fake) BackendFree() {
	defer f.enter(OpBackendFree)()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.backend == 0 {
		f.violate("backend_free without backend_init")
	}
	if len(f.models) > 0 || len(f.contexts) > 0 {
		f.violate("backend_free with %d models and %d contexts live", len(f.models), len(f.contexts))
	}
	f.backend--
	f.record(Call{Op: OpBackendFree})
}

func (f *Fake) LoadModel(path string) engine.ModelHandle {
	defer f.enter(OpLoadModel)()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.backend == 0 {
		f.violate("load_model before backend_init")
	}
	if f.FailLoad {
		f.record(Call{Op: OpLoadModel})
		return 0
	}
	f.next++
	h := engine.ModelHandle(f.next)
	if f.models == nil {
		f.models = make(map[engine.ModelHandle]bool)
	}
	f.models[h] = true
	f.record(Call{Op: OpLoadModel, Model: h, Result: int(h)})
	return h
}

func (f *Fake) FreeModel(m engine.ModelHandle) {
	defer f.enter(OpFreeModel)()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkModel(OpFreeModel, m)
	for c, owner := range f.contexts {
		if owner == m {
			f.violate("free_model %d while context %d is live", m, c)
		}
	}
	delete(f.models, m)
	f.record(Call{Op: OpFreeModel, Model: m})
}

func (f *Fake) NewContext(m engine.ModelHandle, windowSize, threads int) engine.ContextHandle {
	defer f.enter(OpNewContext)()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkModel(OpNewContext, m)
	if threads < 1 {
		f.violate("create_context with %d threads", threads)
	}
	if f.FailContext {
		f.record(Call{Op: OpNewContext, Model: m, Threads: threads, Pos: windowSize})
		return 0
	}
	f.next++
	h := engine.ContextHandle(f.next)
	if f.contexts == nil {
		f.contexts = make(map[engine.ContextHandle]engine.ModelHandle)
	}
	f.contexts[h] = m
	f.record(Call{Op: OpNewContext, Model: m, Context: h, Threads: threads, Pos: windowSize, Result: int(h)})
	return h
}

func (f *Fake) FreeContext(c engine.ContextHandle) {
	defer f.enter(OpFreeContext)()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkContext(OpFreeContext, c)
	delete(f.contexts, c)
	f.record(Call{Op: OpFreeContext, Context: c})
}

func (f *Fake) ClearKVCache(c engine.ContextHandle) {
	defer f.enter(OpClearKVCache)()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkContext(OpClearKVCache, c)
	f.past, f.evals, f.samples = 0, 0, 0
	f.record(Call{Op: OpClearKVCache, Context: c})
}

func (f *Fake) Tokenize(m engine.ModelHandle, text string, buf []engine.TokenID, addSpecial bool) int {
	defer f.enter(OpTokenize)()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkModel(OpTokenize, m)
	if f.FailTokenize {
		f.record(Call{Op: OpTokenize, Model: m})
		return 0
	}
	if f.TokenizeResult != 0 {
		f.record(Call{Op: OpTokenize, Model: m, Result: f.TokenizeResult})
		return f.TokenizeResult
	}
	var toks []engine.TokenID
	if addSpecial {
		toks = append(toks, BOS)
	}
	f.prompt = f.prompt[:0]
	for _, p := range Pieces(text) {
		id := f.id(p)
		toks = append(toks, id)
		f.prompt = append(f.prompt, id)
	}
	if len(toks) > len(buf) {
		f.record(Call{Op: OpTokenize, Model: m, Result: -len(toks)})
		return -len(toks)
	}
	n := copy(buf, toks)
	f.record(Call{Op: OpTokenize, Model: m, Tokens: append([]engine.TokenID(nil), toks...), Result: n})
	return n
}

func (f *Fake) Eval(c engine.ContextHandle, tokens []engine.TokenID, pos int) int {
	defer f.enter(OpEval)()
	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkContext(OpEval, c)
	f.evals++
	rc := 0
	if f.EvalFailAt > 0 && f.evals == f.EvalFailAt {
		rc = f.EvalFailCode
	}
	if pos != f.past {
		f.violate("eval at position %d, expected %d", pos, f.past)
	}
	if rc == 0 {
		f.past += len(tokens)
	}
	f.record(Call{Op: OpEval, Context: c, Tokens: append([]engine.TokenID(nil), tokens...), Pos: pos, Result: rc})
	return rc
}

func (f *Fake) Sample(c engine.ContextHandle) engine.TokenID {
	defer f.enter(OpSample)()
	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkContext(OpSample, c)
	f.samples++
	i := f.samples - 1
	tok := EOS
	switch {
	case f.InvalidTokenAt > 0 && f.samples == f.InvalidTokenAt:
		tok = -1
	case f.Echo:
		if i < len(f.prompt) {
			tok = f.prompt[i]
		}
	case i < len(f.Replies):
		tok = f.id(f.Replies[i])
	}
	f.record(Call{Op: OpSample, Context: c, Result: int(tok)})
	return tok
}

func (f *Fake) TokenToText(m engine.ModelHandle, tok engine.TokenID) (string, bool) {
	defer f.enter(OpTokenToText)()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkModel(OpTokenToText, m)
	f.record(Call{Op: OpTokenToText, Model: m, Tokens: []engine.TokenID{tok}})
	i := int(tok - firstWordID)
	if i < 0 || i >= len(f.words) {
		return "", tok == BOS || tok == EOS
	}
	return f.words[i], true
}

func (f *Fake) EOS(m engine.ModelHandle) engine.TokenID {
	defer f.enter(OpEOS)()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkModel(OpEOS, m)
	f.record(Call{Op: OpEOS, Model: m})
	return EOS
}

// Calls returns a copy of every recorded call in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Ops returns the recorded operation names in order.
func (f *Fake) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Op
	}
	return out
}

// Count returns how many times op was called.
func (f *Fake) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Violations lists every misuse observed: overlapping calls, stale handles,
// out-of-order teardown and position mismatches.
func (f *Fake) Violations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.violations...)
}

// Live reports how many model and context handles are currently allocated.
func (f *Fake) Live() (models, contexts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.models), len(f.contexts)
}

// BackendRefs reports outstanding BackendInit calls.
func (f *Fake) BackendRefs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.backend
}
