// Package api exposes the session control surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"dashplayd/internal/logger"
)

// SessionControl is the slice of the player the API drives.
type SessionControl interface {
	Create(ctx context.Context, id, manifestURL string) error
	Destroy()
}

type API struct {
	ctrl   SessionControl
	logger logger.Logger
}

// New builds the control-surface router.
func New(ctrl SessionControl, log logger.Logger) http.Handler {
	a := &API{ctrl: ctrl, logger: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", a.handleHealth)
	r.Post("/api/sessions", a.handleCreate)
	r.Delete("/api/sessions", a.handleDestroy)

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type createRequest struct {
	ID          string `json:"id"`
	ManifestURL string `json:"manifest_url"`
}

type createResponse struct {
	ID string `json:"id"`
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ManifestURL == "" {
		http.Error(w, "manifest_url is required", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	if err := a.ctrl.Create(r.Context(), req.ID, req.ManifestURL); err != nil {
		a.logger.Errorf("Session create for %s failed: %v", req.ID, err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(createResponse{ID: req.ID})
}

func (a *API) handleDestroy(w http.ResponseWriter, r *http.Request) {
	a.ctrl.Destroy()
	w.WriteHeader(http.StatusNoContent)
}
