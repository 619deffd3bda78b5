package controller

import (
	"context"
	"strings"
	"sync"
)

// FinishReason tells why a stream ended without an error.
type FinishReason string

const (
	// FinishStop: the model sampled its end-of-sequence token.
	FinishStop FinishReason = "stop"
	// FinishLength: the session token budget was exhausted.
	FinishLength FinishReason = "length"
	// FinishEvalError: evaluating a sampled token failed after output was
	// produced. Completion.EvalCode holds the native code.
	FinishEvalError FinishReason = "eval_error"
	// FinishInvalidToken: the sampler returned a negative token id.
	FinishInvalidToken FinishReason = "invalid_token"
	// FinishCanceled: the consumer canceled or the controller shut down.
	FinishCanceled FinishReason = "canceled"
)

// Completion summarizes a finished stream.
type Completion struct {
	Reason           FinishReason
	PromptTokens     int
	CompletionTokens int
	// Fragments counts the non-empty text pieces delivered to the consumer.
	Fragments int
	EvalCode  int
}

// Stream delivers the text fragments of one generation as they are produced.
// It is single-use: range over Tokens until it is closed, then call Wait.
type Stream struct {
	ID string

	tokens chan string
	done   chan struct{}
	cancel context.CancelFunc

	once sync.Once
	comp Completion
	err  error
}

func newStream(id string, buffer int, cancel context.CancelFunc) *Stream {
	return &Stream{
		ID:     id,
		tokens: make(chan string, buffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// Tokens yields fragments in generation order and is closed when the
// generation ends.
func (s *Stream) Tokens() <-chan string { return s.tokens }

// Cancel asks the producer to stop at its next checkpoint. Fragments not yet
// received are dropped.
func (s *Stream) Cancel() { s.cancel() }

// Done is closed once the stream has ended.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Wait blocks until the stream ends. The error is non-nil only when the
// generation failed before producing output. A consumer that stops reading
// Tokens must Cancel before calling Wait.
func (s *Stream) Wait() (Completion, error) {
	<-s.done
	return s.comp, s.err
}

// Collect drains the stream and returns the concatenated text.
func (s *Stream) Collect() (string, Completion, error) {
	var b strings.Builder
	for t := range s.tokens {
		b.WriteString(t)
	}
	comp, err := s.Wait()
	return b.String(), comp, err
}

// send blocks until the consumer takes text or ctx is done. Nothing is sent
// once ctx is done, even if the buffer has room.
func (s *Stream) send(ctx context.Context, text string) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case s.tokens <- text:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Stream) finish(comp Completion, err error) {
	s.once.Do(func() {
		s.comp, s.err = comp, err
		close(s.tokens)
		close(s.done)
	})
}
