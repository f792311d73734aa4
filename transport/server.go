// Package transport is the external collaborator the core assumes: an
// HTTP adapter that decodes a dispatch.Envelope, runs it against a
// graphstore.Store, and maps the error taxonomy onto status codes.
package transport

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/kishek/graph-store/dispatch"
	"github.com/kishek/graph-store/errs"
	"github.com/kishek/graph-store/graphstore"
	"github.com/kishek/graph-store/logging"
)

// Handler is a net/http.Handler that dispatches every request body as a
// dispatch.Envelope against a single Store.
type Handler struct {
	store *graphstore.Store
	log   *logging.Logger
}

// NewHandler builds a Handler over store.
func NewHandler(store *graphstore.Store) *Handler {
	return &Handler{store: store, log: logging.Root()}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var env dispatch.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, errs.New(errs.BadRequest, "malformed envelope: %v", err))
		return
	}

	// A tag correlates this request across logs even when the caller
	// didn't supply one; it never affects dispatch semantics.
	if env.Tag == "" {
		env.Tag = uuid.NewString()
	}

	result, err := dispatch.Dispatch(r.Context(), h.store, env)
	if err != nil {
		h.log.With("transport").WithField("tag", env.Tag).WithField("type", env.Type).WithField("operation", env.Operation).WithError(err).Warn("dispatch failed")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(errs.KindOf(err)), map[string]string{"error": err.Error()})
}

// statusFor implements spec §6's HTTP mapping.
func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.BadRequest, errs.UnknownOperation, errs.DeleteFailed:
		return http.StatusBadRequest
	case errs.NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
