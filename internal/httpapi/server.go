package httpapi

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llamad/internal/controller"
	"llamad/internal/engine"
	"llamad/internal/registry"
	"llamad/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() ([]types.Model, error)
	Load(ctx context.Context, path string) error
	Unload(ctx context.Context) error
	Generate(ctx context.Context, req controller.Request) (*controller.Stream, error)
	Snapshot() controller.Snapshot
}

// ControllerService serves a Controller and lists models from a directory.
type ControllerService struct {
	*controller.Controller
	ModelsDir string
}

// ListModels rescans ModelsDir. A missing directory yields an empty list.
func (s ControllerService) ListModels() ([]types.Model, error) {
	if s.ModelsDir == "" {
		return nil, nil
	}
	models, err := registry.LoadDir(s.ModelsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return models, err
}

var started = time.Now()

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}
	// Compression for JSON endpoints; NDJSON is not in the compressible set.
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	h := &handlers{svc: svc}
	r.Get("/models", h.models)
	r.Get("/status", h.status)
	r.Post("/load", h.load)
	r.Post("/unload", h.unload)
	r.Post("/generate", h.generate)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", h.readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)
	return r
}

type handlers struct {
	svc Service
}

// models lists loadable models.
//
// @Summary  List models
// @Produce  json
// @Success  200 {object} types.ModelsResponse
// @Router   /models [get]
func (h *handlers) models(w http.ResponseWriter, r *http.Request) {
	models, err := h.svc.ListModels()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if models == nil {
		models = []types.Model{}
	}
	writeJSON(w, types.ModelsResponse{Models: models})
}

// status reports the engine state.
//
// @Summary  Engine status
// @Produce  json
// @Success  200 {object} types.StatusResponse
// @Router   /status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, statusResponse(h.svc.Snapshot()))
}

func statusResponse(s controller.Snapshot) types.StatusResponse {
	now := time.Now()
	resp := types.StatusResponse{
		State:            string(s.State),
		ModelPath:        s.ModelPath,
		Session:          s.SessionID,
		PendingUnload:    s.PendingUnload,
		QueueLen:         s.QueueLen,
		EngineBuilt:      engine.Built,
		LoadsTotal:       s.LoadsTotal,
		LoadFailures:     s.LoadFailures,
		GenerationsTotal: s.GenerationsTotal,
		TokensTotal:      s.TokensTotal,
		UptimeSeconds:    int64(now.Sub(started) / time.Second),
		ServerTimeUnix:   now.Unix(),
	}
	if !s.LoadedAt.IsZero() {
		resp.LoadedAtUnix = s.LoadedAt.Unix()
	}
	return resp
}

func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	switch st := h.svc.Snapshot().State; st {
	case controller.StateReady, controller.StateGenerating:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(st))
	}
}

// decodeJSON enforces the content type and body limit and decodes into v.
// It writes the error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// load loads a model by registry id or path.
//
// @Summary  Load a model
// @Accept   json
// @Produce  json
// @Param    body body types.LoadRequest true "Model to load"
// @Success  200 {object} types.StateResponse
// @Failure  404 {object} types.ErrorResponse
// @Failure  409 {object} types.ErrorResponse
// @Failure  500 {object} types.ErrorResponse
// @Router   /load [post]
func (h *handlers) load(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	lvl := requestLogLevel(r)
	var req types.LoadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	path := req.Path
	if req.Model != "" {
		models, err := h.svc.ListModels()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		m, ok := registry.Find(models, req.Model)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "unknown model id: "+req.Model)
			return
		}
		path = m.Path
	}
	if strings.TrimSpace(path) == "" {
		writeJSONError(w, http.StatusBadRequest, "model or path is required")
		return
	}
	if err := h.svc.Load(r.Context(), path); err != nil {
		if r.Context().Err() != nil {
			// Client is gone; the load itself carries on.
			logEnd(r, lvl, "load", statusClientClosed, start, err)
			return
		}
		status := statusFor(err)
		writeJSONError(w, status, err.Error())
		logEnd(r, lvl, "load", status, start, err)
		return
	}
	s := h.svc.Snapshot()
	writeJSON(w, types.StateResponse{State: string(s.State), ModelPath: s.ModelPath})
	logEnd(r, lvl, "load", http.StatusOK, start, nil)
}

// unload releases the loaded model. It succeeds when nothing is loaded.
//
// @Summary  Unload the model
// @Produce  json
// @Success  200 {object} types.StateResponse
// @Router   /unload [post]
func (h *handlers) unload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	lvl := requestLogLevel(r)
	if err := h.svc.Unload(r.Context()); err != nil {
		status := statusClientClosed
		if r.Context().Err() == nil {
			status = statusFor(err)
			writeJSONError(w, status, err.Error())
		}
		logEnd(r, lvl, "unload", status, start, err)
		return
	}
	s := h.svc.Snapshot()
	writeJSON(w, types.StateResponse{State: string(s.State), ModelPath: s.ModelPath})
	logEnd(r, lvl, "unload", http.StatusOK, start, nil)
}

// generate streams a completion as NDJSON.
//
// @Summary  Generate text
// @Accept   json
// @Produce  application/x-ndjson
// @Param    body body types.GenerateRequest true "Prompt"
// @Success  200 {object} types.DoneChunk "token lines followed by a done line"
// @Failure  409 {object} types.ErrorResponse
// @Failure  422 {object} types.ErrorResponse
// @Router   /generate [post]
func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	lvl := requestLogLevel(r)
	var req types.GenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	// Shutdown of the server cancels the generation as well.
	ctx, cancel := joinContexts(r.Context(), serverBaseCtx)
	defer cancel()
	if generateTimeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, generateTimeout)
		defer tcancel()
	}

	stream, err := h.svc.Generate(ctx, controller.Request{Prompt: req.Prompt, MaxTokens: req.MaxTokens})
	if err != nil {
		status := statusFor(err)
		writeJSONError(w, status, err.Error())
		logEnd(r, lvl, "generate", status, start, err)
		return
	}
	defer stream.Cancel()
	if lvl >= LevelInfo {
		ev := logger().Info().Str("session", stream.ID)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			ev = ev.Str("request_id", rid)
		}
		ev.Msg("generate start")
	}

	// Headers are held back until the first fragment so that failures before
	// any output still map to a proper status code.
	first, ok := <-stream.Tokens()
	if !ok {
		comp, err := stream.Wait()
		if err != nil {
			status := statusFor(err)
			writeJSONError(w, status, err.Error())
			logEnd(r, lvl, "generate", status, start, err)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		writeDone(json.NewEncoder(w), stream.ID, comp, nil)
		logEnd(r, lvl, "generate", http.StatusOK, start, nil)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	var out io.Writer = w
	if lvl >= LevelDebug {
		out = io.MultiWriter(w, &ndjsonLogWriter{rid: middleware.GetReqID(r.Context())})
	}
	enc := json.NewEncoder(out)
	flush := func() {}
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}

	if err := enc.Encode(types.TokenChunk{Token: first}); err != nil {
		countStreamAbort("write")
		stream.Cancel()
	}
	flush()
	for tok := range stream.Tokens() {
		if err := enc.Encode(types.TokenChunk{Token: tok}); err != nil {
			countStreamAbort("write")
			stream.Cancel()
			continue
		}
		flush()
	}
	comp, err := stream.Wait()
	if ctx.Err() != nil && r.Context().Err() != nil {
		countStreamAbort("client_gone")
		logEnd(r, lvl, "generate", statusClientClosed, start, r.Context().Err())
		return
	}
	writeDone(enc, stream.ID, comp, err)
	flush()
	logEnd(r, lvl, "generate", http.StatusOK, start, err)
}

func writeDone(enc *json.Encoder, session string, comp controller.Completion, err error) {
	done := types.DoneChunk{
		Done:         true,
		FinishReason: string(comp.Reason),
		Session:      session,
		Usage:        types.Usage{PromptTokens: comp.PromptTokens, CompletionTokens: comp.CompletionTokens},
		EvalCode:     comp.EvalCode,
	}
	if err != nil {
		done.FinishReason = "error"
		done.Error = err.Error()
	}
	_ = enc.Encode(done)
}
