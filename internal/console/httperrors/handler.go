package httperrors

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"go.agentconsole.tech/internal/common/metrics"
	"go.agentconsole.tech/internal/console/api"
	"go.agentconsole.tech/internal/console/pointcut"
)

// Handler is the shared error handler for page controllers
type Handler struct {
	log *Log
}

// NewHandler creates a handler recording into log
func NewHandler(log *Log) *Handler {
	if log == nil {
		log = NewLog(0)
	}
	return &Handler{log: log}
}

// Log returns the failure log
func (h *Handler) Log() *Log { return h.log }

// Handle records err and rejects done when given
func (h *Handler) Handle(ctx context.Context, err error, done pointcut.Completion) {
	f := h.Record(ctx, err)
	if done != nil {
		done.Reject(&RequestError{Failure: f, Err: err})
	}
}

// Record classifies, logs, counts and stores a failure
func (h *Handler) Record(ctx context.Context, err error) Failure {
	kind := Classify(err)
	message, statusCode, method, path, detail := describe(kind, err)

	f := Failure{
		ID:         uuid.New().String(),
		Kind:       kind,
		Method:     method,
		Path:       path,
		StatusCode: statusCode,
		Message:    message,
		Detail:     detail,
		Timestamp:  time.Now(),
	}

	metrics.HTTPFailures.WithLabelValues(string(kind)).Inc()

	if kind == KindCanceled {
		slog.Debug("Backend request canceled", "error", err)
	} else {
		h.log.Add(f)
		slog.Warn("Backend request failed",
			"kind", kind,
			"method", method,
			"path", path,
			"statusCode", statusCode,
			"error", err)
	}

	if rec := recorderFrom(ctx); rec != nil {
		rec.set(f)
	}

	return f
}

// RegisterRoutes registers the failure log routes on the given router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/errors", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/{id}/acknowledge", h.Acknowledge)
		r.Delete("/", h.ClearAll)
	})
}

// List returns recorded failures, newest first
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	unacknowledged := r.URL.Query().Get("unacknowledged") == "true"
	api.WriteJSON(w, http.StatusOK, h.log.Recent(unacknowledged))
}

// Acknowledge marks one failure as seen
func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.log.Acknowledge(id) {
		api.WriteNotFound(w, "Failure not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearAll removes every recorded failure
func (h *Handler) ClearAll(w http.ResponseWriter, r *http.Request) {
	count := h.log.Clear()
	slog.Info("Cleared recorded failures", "count", count)
	w.WriteHeader(http.StatusNoContent)
}

// WriteFailure writes a failure as an API error response
func WriteFailure(w http.ResponseWriter, f Failure) {
	api.WriteErrorWithDetails(w, StatusFor(f), string(f.Kind), f.Message, f)
}
