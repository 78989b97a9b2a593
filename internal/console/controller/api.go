package controller

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"go.agentconsole.tech/internal/backend"
	"go.agentconsole.tech/internal/console/api"
	"go.agentconsole.tech/internal/console/httperrors"
	"go.agentconsole.tech/internal/console/pointcut"
)

// PointcutAPI serves the actions of the pointcut list page
type PointcutAPI struct {
	scopes *Scopes
}

// NewPointcutAPI creates the pointcut API handler
func NewPointcutAPI(scopes *Scopes) *PointcutAPI {
	return &PointcutAPI{scopes: scopes}
}

// RegisterRoutes registers the pointcut routes on the given router
func (h *PointcutAPI) RegisterRoutes(r chi.Router) {
	r.Route("/pointcuts", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/", h.Add)
		r.Post("/reload", h.Reload)
		r.Post("/retransform", h.Retransform)
		r.Delete("/{id}", h.Remove)
	})
}

// Get returns the scope's list as last saved
func (h *PointcutAPI) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.scopes.Current(r.Context(), w, r)
	if err != nil {
		h.storeFailed(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, newPointcutListView(sess))
}

// Reload fetches the pointcuts from the backend into a fresh list
func (h *PointcutAPI) Reload(w http.ResponseWriter, r *http.Request) {
	ctx, sess, err := h.scopes.Begin(r.Context(), w, r)
	if err != nil {
		h.storeFailed(w, err)
		return
	}
	defer sess.Release()

	loadErr := sess.List.Load(ctx)
	if err := h.scopes.Save(ctx, sess); err != nil {
		h.storeFailed(w, err)
		return
	}

	if loadErr != nil {
		h.writeRequestFailure(w, sess)
		return
	}
	api.WriteJSON(w, http.StatusOK, newPointcutListView(sess))
}

// Add appends a new metric pointcut to the scope's list
func (h *PointcutAPI) Add(w http.ResponseWriter, r *http.Request) {
	ctx, sess, err := h.scopes.Resume(r.Context(), w, r)
	if err != nil {
		h.storeFailed(w, err)
		return
	}
	defer sess.Release()

	p := sess.List.Add()
	if err := h.scopes.Save(ctx, sess); err != nil {
		h.storeFailed(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, p)
}

// Remove deletes a pointcut from the scope's list. Removing an unknown
// pointcut leaves the list unchanged.
func (h *PointcutAPI) Remove(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.WriteBadRequest(w, "Invalid pointcut ID")
		return
	}

	ctx, sess, err := h.scopes.Resume(r.Context(), w, r)
	if err != nil {
		h.storeFailed(w, err)
		return
	}
	defer sess.Release()

	if p := sess.List.Find(id); p != nil {
		sess.List.Remove(p)
	}
	if err := h.scopes.Save(ctx, sess); err != nil {
		h.storeFailed(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Retransform reweaves the pointcuts and returns the summary message
func (h *PointcutAPI) Retransform(w http.ResponseWriter, r *http.Request) {
	ctx, sess, err := h.scopes.Resume(r.Context(), w, r)
	if err != nil {
		h.storeFailed(w, err)
		return
	}
	defer sess.Release()

	done := pointcut.NewDeferred()
	sess.List.Retransform(ctx, done)
	message, err := done.Wait(ctx)

	if saveErr := h.scopes.Save(ctx, sess); saveErr != nil {
		slog.Warn("Failed to save pointcut scope", "scope", sess.ID, "error", saveErr)
	}

	if err != nil {
		var reqErr *httperrors.RequestError
		if errors.As(err, &reqErr) {
			httperrors.WriteFailure(w, reqErr.Failure)
			return
		}
		api.WriteInternalError(w, "Re-transform did not complete")
		return
	}
	api.WriteJSON(w, http.StatusOK, api.MessageResponse{Message: message})
}

func (h *PointcutAPI) writeRequestFailure(w http.ResponseWriter, sess *Session) {
	if sess.LastError != nil {
		httperrors.WriteFailure(w, *sess.LastError)
		return
	}
	api.WriteError(w, http.StatusBadGateway, "backend_error", "Request to backend failed")
}

func (h *PointcutAPI) storeFailed(w http.ResponseWriter, err error) {
	slog.Error("Scope store failed", "error", err)
	api.WriteInternalError(w, "Failed to access navigation scope")
}

// ConfigAPI reads and saves configuration documents for the editor pages
type ConfigAPI struct {
	backend ConfigBackend
	errors  *httperrors.Handler
}

// NewConfigAPI creates the configuration API handler
func NewConfigAPI(b ConfigBackend, h *httperrors.Handler) *ConfigAPI {
	return &ConfigAPI{backend: b, errors: h}
}

// RegisterRoutes registers the configuration routes on the given router
func (h *ConfigAPI) RegisterRoutes(r chi.Router) {
	r.Get("/config", h.Get)
	r.Post("/config", h.Save)
}

// Get returns the document at ?backendUrl=
func (h *ConfigAPI) Get(w http.ResponseWriter, r *http.Request) {
	path, ok := h.path(w, r)
	if !ok {
		return
	}

	doc, err := h.backend.Config(r.Context(), path)
	if err != nil {
		httperrors.WriteFailure(w, h.errors.Record(r.Context(), err))
		return
	}
	api.WriteJSON(w, http.StatusOK, doc)
}

// Save posts the request body to ?backendUrl= and returns the saved document
func (h *ConfigAPI) Save(w http.ResponseWriter, r *http.Request) {
	path, ok := h.path(w, r)
	if !ok {
		return
	}

	var doc backend.Document
	if err := api.DecodeJSON(r, &doc); err != nil {
		api.WriteBadRequest(w, "Invalid request body")
		return
	}

	updated, err := h.backend.SaveConfig(r.Context(), path, doc)
	if err != nil {
		httperrors.WriteFailure(w, h.errors.Record(r.Context(), err))
		return
	}

	slog.Info("Configuration saved", "backendUrl", path)
	api.WriteJSON(w, http.StatusOK, updated)
}

func (h *ConfigAPI) path(w http.ResponseWriter, r *http.Request) (string, bool) {
	path := r.URL.Query().Get("backendUrl")
	if !backend.IsConfigPath(path) {
		api.WriteBadRequest(w, "Unknown configuration path")
		return "", false
	}
	return path, true
}
