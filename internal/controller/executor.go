package controller

import (
	"fmt"
	"sync"

	"github.com/gammazero/deque"
	"github.com/rs/zerolog"
)

type task struct {
	name string
	run  func()
}

// executor is the serialized execution context: a FIFO task queue drained by
// exactly one goroutine. submit never blocks, so callers may enqueue while
// holding their own locks.
type executor struct {
	log zerolog.Logger

	mu     sync.Mutex
	q      deque.Deque[task]
	closed bool

	wake   chan struct{}
	exited chan struct{}
}

func newExecutor(log zerolog.Logger) *executor {
	e := &executor{
		log:    log,
		wake:   make(chan struct{}, 1),
		exited: make(chan struct{}),
	}
	go e.loop()
	return e
}

// submit enqueues fn. It reports false once the executor is closed.
func (e *executor) submit(name string, fn func()) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.q.PushBack(task{name: name, run: fn})
	e.mu.Unlock()
	e.signal()
	return true
}

func (e *executor) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// close stops accepting tasks. Queued tasks still run; the worker exits once
// the queue is empty.
func (e *executor) close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.signal()
}

func (e *executor) len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.q.Len()
}

func (e *executor) loop() {
	defer close(e.exited)
	for {
		e.mu.Lock()
		if e.q.Len() == 0 {
			closed := e.closed
			e.mu.Unlock()
			if closed {
				return
			}
			<-e.wake
			continue
		}
		t := e.q.PopFront()
		e.mu.Unlock()
		e.run(t)
	}
}

func (e *executor) run(t task) {
	defer func() {
		if r := recover(); r != nil {
			taskPanics.WithLabelValues(t.name).Inc()
			e.log.Error().Str("task", t.name).Err(fmt.Errorf("%v", r)).Msg("task panicked")
		}
	}()
	t.run()
}
