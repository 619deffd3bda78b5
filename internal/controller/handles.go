package controller

import "llamad/internal/engine"

// handles is the single model/context slot. Only the executor goroutine
// touches it. A non-zero ctx implies a non-zero model.
type handles struct {
	model engine.ModelHandle
	ctx   engine.ContextHandle
}

func (h handles) loaded() bool { return h.model != 0 && h.ctx != 0 }

// release frees the context, then the model, and zeroes both so a second call
// is a no-op.
func (h *handles) release(b engine.Binding) {
	if h.ctx != 0 {
		b.FreeContext(h.ctx)
		h.ctx = 0
	}
	if h.model != 0 {
		b.FreeModel(h.model)
		h.model = 0
	}
}
