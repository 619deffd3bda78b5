package controller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"llamad/internal/common/fsutil"
	"llamad/internal/engine"
)

// Controller serializes every native engine call for one model/context pair.
type Controller struct {
	cfg  Config
	b    engine.Binding
	log  zerolog.Logger
	pub  EventPublisher
	exec *executor

	// aborting is set once a Shutdown deadline passes; queued work bails out.
	aborting atomic.Bool

	mu            sync.Mutex
	state         State
	pendingUnload bool
	closed        bool
	modelPath     string
	loadedAt      time.Time
	active        *Stream
	loads         uint64
	loadFailures  uint64
	generations   uint64
	tokens        uint64

	// Owned by the executor goroutine.
	h         handles
	backendUp bool
}

// New constructs a Controller and starts its executor. Close it to release
// the engine.
func New(cfg Config) *Controller {
	if cfg.Binding == nil {
		panic("controller: Config.Binding is required")
	}
	cfg = cfg.withDefaults()
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	log = log.With().Str("component", "controller").Str("controller", cfg.Name).Logger()
	c := &Controller{
		cfg:   cfg,
		b:     cfg.Binding,
		log:   log,
		pub:   cfg.Publisher,
		exec:  newExecutor(log),
		state: StateUnloaded,
	}
	observeState(cfg.Name, StateUnloaded)
	return c
}

// setState must be called with c.mu held.
func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.log.Debug().Str("from", string(c.state)).Str("to", string(s)).Msg("state change")
	c.state = s
	observeState(c.cfg.Name, s)
}

// Load loads the model at path and allocates its context. It blocks until the
// executor has finished the load or ctx is done; in the latter case a load
// that already started still runs to completion.
func (c *Controller) Load(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return ErrModelNotFound(path)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errClosed
	}
	if c.state != StateUnloaded {
		st := c.state
		c.mu.Unlock()
		return ErrInvalidState(fmt.Sprintf("cannot load while %s", st))
	}
	if ok, _ := fsutil.IsRegularFile(p); !ok {
		c.mu.Unlock()
		c.log.Error().Str("path", p).Msg("model file not found")
		c.pub.Publish(Event{Name: "load_failed", Model: p, Fields: map[string]any{"error": "not found"}})
		return ErrModelNotFound(p)
	}
	c.setState(StateLoading)
	reply := make(chan error, 1)
	c.exec.submit("load", func() {
		err := errTaskPanicked
		defer func() { reply <- err }()
		err = c.load(ctx, p)
	})
	c.mu.Unlock()

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// load runs on the executor.
func (c *Controller) load(ctx context.Context, path string) (err error) {
	start := time.Now()
	var h handles
	ok := false
	defer func() {
		if !ok {
			h.release(c.b)
		}
		c.finishLoad(path, ok, time.Since(start), err)
	}()

	if c.aborting.Load() {
		return errClosed
	}
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	c.log.Info().Str("path", path).Msg("loading model")
	c.pub.Publish(Event{Name: "load_start", Model: path, Fields: map[string]any{}})

	if !c.backendUp {
		c.b.BackendInit()
		c.backendUp = true
	}
	h.model = c.b.LoadModel(path)
	if h.model == 0 {
		return modelLoadFailedError{path: path, msg: "load_model returned null"}
	}
	h.ctx = c.b.NewContext(h.model, c.cfg.ContextSize, c.cfg.Threads)
	if h.ctx == 0 {
		return contextCreationFailedError{path: path, msg: fmt.Sprintf("create_context(n_ctx=%d, threads=%d) returned null", c.cfg.ContextSize, c.cfg.Threads)}
	}
	c.h = h
	ok = true
	return nil
}

func (c *Controller) finishLoad(path string, ok bool, dur time.Duration, err error) {
	c.mu.Lock()
	switch {
	case c.pendingUnload:
		c.setState(StateUnloading)
	case ok:
		c.setState(StateReady)
	default:
		c.setState(StateUnloaded)
	}
	if ok {
		c.loads++
		c.modelPath = path
		c.loadedAt = time.Now()
	} else {
		c.loadFailures++
	}
	c.mu.Unlock()

	if ok {
		loadsTotal.WithLabelValues("ok").Inc()
		loadDuration.Observe(dur.Seconds())
		c.log.Info().Str("path", path).Int("ctx_size", c.cfg.ContextSize).Int("threads", c.cfg.Threads).
			Dur("dur", dur).Msg("model loaded")
		c.pub.Publish(Event{Name: "load_done", Model: path, Fields: map[string]any{"dur_ms": int(dur / time.Millisecond)}})
		return
	}
	if err == nil {
		err = fmt.Errorf("load of %s aborted", path)
	}
	loadsTotal.WithLabelValues("error").Inc()
	c.log.Error().Str("path", path).Err(err).Msg("model load failed")
	c.pub.Publish(Event{Name: "load_failed", Model: path, Fields: map[string]any{"error": err.Error()}})
}

// Unload releases the context and then the model. It is a no-op when nothing
// is loaded and never fails except when ctx is done first. Work queued before
// it, including a running generation, completes first.
func (c *Controller) Unload(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	switch c.state {
	case StateUnloaded:
		c.mu.Unlock()
		return nil
	case StateReady:
		c.setState(StateUnloading)
	case StateLoading, StateGenerating:
		c.pendingUnload = true
	case StateUnloading:
		// Already scheduled; the task below only waits for it.
	}
	done := make(chan struct{})
	c.exec.submit("unload", func() {
		defer close(done)
		c.unload()
	})
	c.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// unload runs on the executor. Only the task that finds the controller in
// StateUnloading does any work.
func (c *Controller) unload() {
	c.mu.Lock()
	if c.state != StateUnloading {
		c.mu.Unlock()
		return
	}
	path := c.modelPath
	c.mu.Unlock()

	c.pub.Publish(Event{Name: "unload_start", Model: path, Fields: map[string]any{}})
	c.h.release(c.b)

	c.mu.Lock()
	c.pendingUnload = false
	c.modelPath = ""
	c.loadedAt = time.Time{}
	c.setState(StateUnloaded)
	c.mu.Unlock()
	c.log.Info().Str("path", path).Msg("model unloaded")
	c.pub.Publish(Event{Name: "unload_done", Model: path, Fields: map[string]any{}})
}

// Shutdown refuses new work, waits for queued work to drain, then unloads and
// frees the backend. If ctx is done first, the running generation and any
// queued work are abandoned at their next checkpoint; Shutdown still waits for
// the executor to exit and returns ctx.Err(). Subsequent calls wait for the
// same teardown.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		c.exec.submit("teardown", c.teardown)
		c.exec.close()
	}
	c.mu.Unlock()

	select {
	case <-c.exec.exited:
		return nil
	case <-ctx.Done():
	}
	c.aborting.Store(true)
	c.mu.Lock()
	if c.active != nil {
		c.active.Cancel()
	}
	c.mu.Unlock()
	<-c.exec.exited
	return ctx.Err()
}

// Close is Shutdown without a deadline.
func (c *Controller) Close() error {
	return c.Shutdown(context.Background())
}

func (c *Controller) teardown() {
	c.h.release(c.b)
	if c.backendUp {
		c.b.BackendFree()
		c.backendUp = false
	}
	c.mu.Lock()
	c.pendingUnload = false
	c.modelPath = ""
	c.setState(StateUnloaded)
	c.mu.Unlock()
	c.log.Info().Msg("controller closed")
	c.pub.Publish(Event{Name: "closed", Fields: map[string]any{}})
}

// Snapshot returns a consistent read-only view of the controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		State:            c.state,
		ModelPath:        c.modelPath,
		LoadedAt:         c.loadedAt,
		PendingUnload:    c.pendingUnload,
		Closed:           c.closed,
		QueueLen:         c.exec.len(),
		LoadsTotal:       c.loads,
		LoadFailures:     c.loadFailures,
		GenerationsTotal: c.generations,
		TokensTotal:      c.tokens,
	}
	if c.active != nil {
		s.SessionID = c.active.ID
	}
	return s
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
