package types

// LoadRequest is the body of POST /load. Exactly one of Model or Path is used;
// Model wins when both are set.
type LoadRequest struct {
	// Registry identifier (file name under the models directory).
	// example: tinyllama.Q4_K_M.gguf
	Model string `json:"model,omitempty" example:"tinyllama.Q4_K_M.gguf"`
	// Explicit path to a model file. "~" is expanded.
	// example: ~/models/llm/tinyllama.Q4_K_M.gguf
	Path string `json:"path,omitempty" example:"~/models/llm/tinyllama.Q4_K_M.gguf"`
}

// GenerateRequest is the body of POST /generate.
type GenerateRequest struct {
	// Prompt text. Must not be empty.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Maximum number of new tokens; clamped to the server limit. 0 uses the limit.
	// example: 128
	MaxTokens int `json:"max_tokens,omitempty" example:"128"`
}

// TokenChunk is one NDJSON line of a /generate stream.
type TokenChunk struct {
	Token string `json:"token"`
}

// Usage reports token counts for a finished generation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens" example:"12"`
	CompletionTokens int `json:"completion_tokens" example:"64"`
}

// DoneChunk is the final NDJSON line of a /generate stream.
type DoneChunk struct {
	Done bool `json:"done" example:"true"`
	// One of stop, length, eval_error, invalid_token, canceled; or error.
	// example: stop
	FinishReason string `json:"finish_reason" example:"stop"`
	Session      string `json:"session" example:"5b0c8e0e-2f4a-4a55-9a3f-0c6f7f1c2d11"`
	Usage        Usage  `json:"usage"`
	// Native evaluation code when FinishReason is eval_error.
	EvalCode int `json:"eval_code,omitempty"`
	// Set when the stream ended with an error after output had started.
	Error string `json:"error,omitempty"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of available models.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StateResponse is returned by POST /load and POST /unload.
type StateResponse struct {
	// example: ready
	State string `json:"state" example:"ready"`
	// example: /home/user/models/tinyllama.Q4_K_M.gguf
	ModelPath string `json:"model_path,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Lifecycle state: unloaded, loading, ready, generating, unloading.
	// example: ready
	State string `json:"state" example:"ready"`
	// Path of the loaded model, empty when unloaded.
	ModelPath string `json:"model_path,omitempty"`
	// When the current model finished loading (unix seconds).
	LoadedAtUnix int64 `json:"loaded_at_unix,omitempty"`
	// Active generation session, if any.
	Session string `json:"session,omitempty"`
	// An unload is queued behind the running task.
	PendingUnload bool `json:"pending_unload"`
	// Tasks waiting on the engine executor.
	QueueLen int `json:"queue_len"`
	// Whether the binary links the native engine.
	EngineBuilt bool `json:"engine_built"`
	// Successful and failed loads since start.
	LoadsTotal   uint64 `json:"loads_total"`
	LoadFailures uint64 `json:"load_failures"`
	// Finished generations and generated tokens since start.
	GenerationsTotal uint64 `json:"generations_total"`
	TokensTotal      uint64 `json:"tokens_total"`
	// Uptime of the server in seconds.
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
