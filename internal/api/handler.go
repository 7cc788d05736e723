package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/nuka-mind/internal/cognitive"
	"github.com/nidhogg/nuka-mind/internal/memory"
	"github.com/nidhogg/nuka-mind/internal/mind"
	"github.com/nidhogg/nuka-mind/internal/orchestrator"
	"github.com/nidhogg/nuka-mind/internal/provider"
	"go.uber.org/zap"
)

// EventSource reads a mind's recent events.
type EventSource interface {
	Events(ctx context.Context, mindID string, limit int) ([]mind.Event, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	registry  *mind.Registry
	scheduler *orchestrator.Scheduler
	sweeper   *orchestrator.Sweeper
	providers *provider.Router
	events    EventSource
	logger    *zap.Logger
}

// Option configures optional Handler dependencies.
type Option func(*Handler)

// WithProviders exposes the provider router on /api/providers.
func WithProviders(r *provider.Router) Option {
	return func(h *Handler) { h.providers = r }
}

// WithEvents exposes event history on /api/minds/{id}/events.
func WithEvents(src EventSource) Option {
	return func(h *Handler) { h.events = src }
}

// WithSweeper exposes a manual sweep on /api/sweep.
func WithSweeper(s *orchestrator.Sweeper) Option {
	return func(h *Handler) { h.sweeper = s }
}

// NewHandler creates a new API handler.
func NewHandler(registry *mind.Registry, scheduler *orchestrator.Scheduler, logger *zap.Logger, opts ...Option) *Handler {
	h := &Handler{
		registry:  registry,
		scheduler: scheduler,
		logger:    logger,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/minds", h.listMinds)
		r.Post("/minds", h.createMind)
		r.Get("/minds/{id}", h.getMind)
		r.Delete("/minds/{id}", h.removeMind)
		r.Post("/minds/{id}/decide", h.decide)
		r.Post("/minds/{id}/consolidate", h.consolidate)
		r.Get("/minds/{id}/working_memory", h.workingMemory)
		r.Get("/minds/{id}/daily_memories", h.dailyMemories)
		r.Get("/minds/{id}/events", h.mindEvents)

		// Batch routes
		r.Post("/decide", h.decideBatch)
		r.Post("/sweep", h.sweep)

		r.Get("/providers", h.listProviders)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"minds":  len(h.registry.List()),
	})
}

func (h *Handler) listMinds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.List())
}

func (h *Handler) createMind(w http.ResponseWriter, r *http.Request) {
	var spec mind.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	info, err := h.registry.Create(r.Context(), spec)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (h *Handler) getMind(w http.ResponseWriter, r *http.Request) {
	info, err := h.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) removeMind(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.registry.Remove(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "id": id})
}

type decideRequest struct {
	Observation      cognitive.Observation       `json:"observation"`
	AvailableActions []cognitive.AvailableAction `json:"available_actions,omitempty"`
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	d, err := h.registry.Decide(r.Context(), id, req.Observation, req.AvailableActions)
	if err != nil {
		writeStageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type batchRequest struct {
	Requests []orchestrator.Request `json:"requests"`
}

func (h *Handler) decideBatch(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "scheduler not initialized"})
		return
	}
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Requests) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "requests is required"})
		return
	}
	results := h.scheduler.DecideAll(r.Context(), req.Requests)
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (h *Handler) consolidate(w http.ResponseWriter, r *http.Request) {
	report, err := h.registry.Consolidate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) sweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "sweeper not initialized"})
		return
	}
	n := h.sweeper.Sweep(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"persisted": n})
}

func (h *Handler) workingMemory(w http.ResponseWriter, r *http.Request) {
	wm, err := h.registry.WorkingMemory(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, wm)
}

func (h *Handler) dailyMemories(w http.ResponseWriter, r *http.Request) {
	buf, err := h.registry.Buffer(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if buf == nil {
		buf = []memory.Candidate{}
	}
	writeJSON(w, http.StatusOK, buf)
}

func (h *Handler) mindEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "event history not configured"})
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.registry.Get(id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.events.Events(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if events == nil {
		events = []mind.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

type providerInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	out := []providerInfo{}
	if h.providers != nil {
		for _, p := range h.providers.ListProviders() {
			out = append(out, providerInfo{ID: p.ID(), Name: p.Name()})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, mind.ErrMindNotFound):
		return http.StatusNotFound
	case errors.Is(err, mind.ErrMindExists):
		return http.StatusConflict
	case errors.Is(err, cognitive.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, cognitive.ErrTransient):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error      string                `json:"error"`
	Stage      string                `json:"stage,omitempty"`
	Attempts   int                   `json:"attempts,omitempty"`
	Violations []cognitive.Violation `json:"violations,omitempty"`
	Tokens     map[string]int        `json:"tokens,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// writeStageError reports a failed cycle with whatever partial
// instrumentation it carries.
func writeStageError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	var se *cognitive.StageError
	if errors.As(err, &se) {
		body.Stage = se.Stage
		body.Attempts = se.Attempts
		body.Tokens = se.Tokens
	}
	var ve *cognitive.ValidationError
	if errors.As(err, &ve) {
		body.Violations = ve.Violations
	}
	writeJSON(w, statusFor(err), body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
