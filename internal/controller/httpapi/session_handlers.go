package httpapi

import (
	"fmt"
	"net/http"

	"github.com/Freeeeeet/attendance_tracker/internal/service"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func sessionIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["sessionID"]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed session id %q", service.ErrValidation, raw)
	}
	return id, nil
}

// StartSession POST /api/classes/{classRef}/sessions
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Start(r.Context(), mux.Vars(r)["classRef"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	principal, _ := principalFromContext(r.Context())
	h.logger.Info("Session opened via API",
		zap.String("session_id", session.ID.String()),
		zap.String("principal", principal.ID),
	)

	writeJSON(w, http.StatusCreated, session)
}

// StopSession POST /api/classes/{classRef}/sessions/stop
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Stop(r.Context(), mux.Vars(r)["classRef"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// GetOpenSession GET /api/classes/{classRef}/sessions/open
func (h *Handler) GetOpenSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetOpen(r.Context(), mux.Vars(r)["classRef"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// GetSession GET /api/sessions/{sessionID}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDFromPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	session, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// ReconcileSession POST /api/sessions/{sessionID}/reconcile
func (h *Handler) ReconcileSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDFromPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.reconciler.Reconcile(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
