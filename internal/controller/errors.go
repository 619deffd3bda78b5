package controller

import (
	"errors"
	"fmt"
)

// modelNotFoundError signals that the model path does not resolve to a file.
type modelNotFoundError struct{ path string }

func (e modelNotFoundError) Error() string { return "model file not found at: " + e.path }

// ErrModelNotFound constructs a modelNotFoundError.
func ErrModelNotFound(path string) error { return modelNotFoundError{path: path} }

// IsModelNotFound reports whether err indicates a missing model file.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

// modelLoadFailedError signals that the engine refused to load the model.
type modelLoadFailedError struct{ path, msg string }

func (e modelLoadFailedError) Error() string {
	return fmt.Sprintf("failed to load model %s: %s", e.path, e.msg)
}

// IsModelLoadFailed reports whether err comes from a failed native model load.
func IsModelLoadFailed(err error) bool {
	var e modelLoadFailedError
	return errors.As(err, &e)
}

// contextCreationFailedError signals that the model loaded but no context
// could be allocated for it. The model handle is already released.
type contextCreationFailedError struct{ path, msg string }

func (e contextCreationFailedError) Error() string {
	return fmt.Sprintf("failed to create context for %s: %s", e.path, e.msg)
}

// IsContextCreationFailed reports whether err comes from context allocation.
func IsContextCreationFailed(err error) bool {
	var e contextCreationFailedError
	return errors.As(err, &e)
}

// invalidStateError signals an operation the state machine forbids.
type invalidStateError struct{ msg string }

func (e invalidStateError) Error() string { return "invalid state: " + e.msg }

// ErrInvalidState constructs an invalidStateError.
func ErrInvalidState(msg string) error { return invalidStateError{msg: msg} }

// IsInvalidState reports whether err was rejected by the state machine.
func IsInvalidState(err error) bool {
	var e invalidStateError
	return errors.As(err, &e)
}

// inferenceFailedError signals a failure before any output was produced.
type inferenceFailedError struct{ msg string }

func (e inferenceFailedError) Error() string { return "inference failed: " + e.msg }

// IsInferenceFailed reports whether err is a tokenization or evaluation failure.
func IsInferenceFailed(err error) bool {
	var e inferenceFailedError
	return errors.As(err, &e)
}

var (
	errClosed       = invalidStateError{msg: "controller closed"}
	errGenerating   = invalidStateError{msg: "generation already in progress"}
	errNotLoaded    = invalidStateError{msg: "model not loaded"}
	errUnloading    = invalidStateError{msg: "model is unloading"}
	errNoHandles    = invalidStateError{msg: "model or context not initialized"}
	errEmptyPrompt  = inferenceFailedError{msg: "prompt is empty"}
	errTokenizeFail = inferenceFailedError{msg: "failed to tokenize prompt"}

	errTaskPanicked = errors.New("engine task panicked")
)
