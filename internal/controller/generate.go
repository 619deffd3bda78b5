package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"llamad/internal/engine"
)

// session is the state of one Generate call. It lives on the executor only.
type session struct {
	id     string
	prompt string
	budget int
	ctx    context.Context
	stream *Stream

	tokens []engine.TokenID
	past   int
}

// Generate starts a generation and returns its Stream immediately. State
// violations are rejected here and never reach the executor. Tokenization and
// prompt evaluation failures are reported by Stream.Wait.
func (c *Controller) Generate(ctx context.Context, req Request) (*Stream, error) {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return nil, errClosed
	case c.state == StateGenerating:
		c.mu.Unlock()
		return nil, errGenerating
	case c.state == StateUnloading:
		c.mu.Unlock()
		return nil, errUnloading
	case c.state != StateReady:
		c.mu.Unlock()
		return nil, errNotLoaded
	case strings.TrimSpace(req.Prompt) == "":
		c.mu.Unlock()
		return nil, errEmptyPrompt
	}

	budget := c.cfg.MaxTokens
	if req.MaxTokens > 0 && req.MaxTokens < budget {
		budget = req.MaxTokens
	}
	sctx, cancel := context.WithCancel(ctx)
	s := &session{
		id:     uuid.NewString(),
		prompt: req.Prompt,
		budget: budget,
		ctx:    sctx,
		stream: newStream("", c.cfg.StreamBuffer, cancel),
	}
	s.stream.ID = s.id
	c.setState(StateGenerating)
	c.active = s.stream
	c.exec.submit("generate", func() { c.runSession(s) })
	c.mu.Unlock()

	c.log.Info().Str("session", s.id).Int("prompt_len", len(req.Prompt)).Int("budget", budget).Msg("generation queued")
	return s.stream, nil
}

// runSession runs on the executor and holds it for the whole generation.
func (c *Controller) runSession(s *session) {
	start := time.Now()
	c.mu.Lock()
	path := c.modelPath
	c.mu.Unlock()
	c.pub.Publish(Event{Name: "generate_start", Model: path, Fields: map[string]any{"session": s.id}})
	var (
		comp Completion
		err  error
		done bool
	)
	defer func() {
		if !done {
			err = inferenceFailedError{msg: "generation aborted"}
		}
		c.endSession(s, comp, err, time.Since(start))
	}()
	comp, err = c.generate(s)
	done = true
}

// generate is the token loop: tokenize, clear the KV cache, evaluate the
// prompt from position 0, then sample/emit/evaluate one token at a time.
// Cancellation is only observed between native calls.
func (c *Controller) generate(s *session) (Completion, error) {
	var comp Completion
	if c.aborting.Load() || s.ctx.Err() != nil {
		comp.Reason = FinishCanceled
		return comp, nil
	}
	if !c.h.loaded() {
		return comp, errNoHandles
	}
	m, cx := c.h.model, c.h.ctx

	buf := make([]engine.TokenID, c.cfg.MaxPromptTokens)
	n := c.b.Tokenize(m, s.prompt, buf, true)
	switch {
	case n < 0 && -n > len(buf):
		return comp, inferenceFailedError{msg: fmt.Sprintf("prompt needs %d tokens, limit is %d", -n, len(buf))}
	case n < 0:
		return comp, inferenceFailedError{msg: fmt.Sprintf("tokenize returned %d (buffer %d)", n, len(buf))}
	case n == 0:
		return comp, errTokenizeFail
	case n > len(buf):
		return comp, inferenceFailedError{msg: fmt.Sprintf("tokenizer reported %d tokens for a %d-token buffer", n, len(buf))}
	}
	s.tokens = buf[:n]
	comp.PromptTokens = n

	c.b.ClearKVCache(cx)
	if rc := c.b.Eval(cx, s.tokens, 0); rc != 0 {
		return comp, inferenceFailedError{msg: fmt.Sprintf("failed to evaluate prompt: code %d", rc)}
	}
	s.past = n
	eos := c.b.EOS(m)

	comp.Reason = FinishLength
	for i := 0; i < s.budget; i++ {
		if s.ctx.Err() != nil || c.aborting.Load() {
			comp.Reason = FinishCanceled
			break
		}
		tok := c.b.Sample(cx)
		if tok < 0 {
			c.log.Error().Str("session", s.id).Int32("token", int32(tok)).Msg("invalid token sampled")
			comp.Reason = FinishInvalidToken
			break
		}
		if tok == eos {
			comp.Reason = FinishStop
			break
		}
		comp.CompletionTokens++
		if text, ok := c.b.TokenToText(m, tok); ok && text != "" {
			if !s.stream.send(s.ctx, text) {
				comp.Reason = FinishCanceled
				break
			}
			comp.Fragments++
		}
		rc := c.b.Eval(cx, []engine.TokenID{tok}, s.past)
		if rc != 0 {
			comp.EvalCode = rc
			if comp.Fragments == 0 {
				return comp, inferenceFailedError{msg: fmt.Sprintf("failed to evaluate token at position %d: code %d", s.past, rc)}
			}
			ev := c.log.Warn()
			if rc < 0 {
				ev = c.log.Error()
			}
			ev.Str("session", s.id).Int("code", rc).Int("pos", s.past).Msg("evaluation failed mid-stream")
			comp.Reason = FinishEvalError
			break
		}
		s.past++
	}
	return comp, nil
}

// endSession returns the controller to Ready (or Unloading) before the stream
// is closed, so a consumer that observes the end may immediately generate
// again.
func (c *Controller) endSession(s *session, comp Completion, err error, dur time.Duration) {
	fatal := err == nil && comp.Reason == FinishEvalError && comp.EvalCode < 0

	c.mu.Lock()
	c.active = nil
	c.generations++
	c.tokens += uint64(comp.CompletionTokens)
	switch {
	case c.pendingUnload:
		c.setState(StateUnloading)
	case fatal && c.cfg.UnloadOnFatalEval && !c.closed:
		c.setState(StateUnloading)
		c.exec.submit("unload", c.unload)
	default:
		c.setState(StateReady)
	}
	path := c.modelPath
	c.mu.Unlock()

	s.stream.finish(comp, err)
	s.stream.cancel()

	reason := string(comp.Reason)
	if err != nil {
		reason = "error"
	}
	generationsTotal.WithLabelValues(reason).Inc()
	tokensGenerated.Add(float64(comp.CompletionTokens))
	ev := c.log.Info()
	if err != nil {
		ev = c.log.Error().Err(err)
	}
	ev.Str("session", s.id).Str("reason", reason).Int("prompt_tokens", comp.PromptTokens).
		Int("completion_tokens", comp.CompletionTokens).Dur("dur", dur).Msg("generation finished")
	c.pub.Publish(Event{Name: "generate_done", Model: path, Fields: map[string]any{
		"session":           s.id,
		"reason":            reason,
		"completion_tokens": comp.CompletionTokens,
	}})
}
