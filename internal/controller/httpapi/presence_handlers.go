package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Freeeeeet/attendance_tracker/internal/model"
	"github.com/Freeeeeet/attendance_tracker/internal/service"
	"github.com/google/uuid"
)

type recordEventRequest struct {
	EventID       *uuid.UUID      `json:"event_id"`
	ParticipantID string          `json:"participant_id"`
	Type          model.EventType `json:"type"`
	Source        string          `json:"source"`
	OccurredAt    *time.Time      `json:"occurred_at"`
	Evidence      *model.Evidence `json:"evidence"`
}

type detectRequest struct {
	ImageURL  string          `json:"image_url"`
	ImageData string          `json:"image_data"`
	Source    string          `json:"source"`
	Type      model.EventType `json:"type"`
}

// RecordEvent POST /api/sessions/{sessionID}/events
func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDFromPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var body recordEventRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	req := service.RecordRequest{
		SessionID:     id,
		ParticipantID: body.ParticipantID,
		Type:          body.Type,
		Source:        body.Source,
	}
	if body.EventID != nil {
		req.EventID = *body.EventID
	}
	if body.OccurredAt != nil {
		req.OccurredAt = *body.OccurredAt
	}
	if body.Evidence != nil {
		req.Evidence = *body.Evidence
	}
	if req.Evidence.DetectorID == "" {
		principal, _ := principalFromContext(r.Context())
		req.Evidence.DetectorID = principal.ID
	}

	result, err := h.presence.Record(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// Detect POST /api/sessions/{sessionID}/detections
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	if h.detection == nil {
		writeErrorCode(w, http.StatusServiceUnavailable, "external_service_error", "face matching is not configured")
		return
	}

	id, err := sessionIDFromPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var body detectRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	principal, _ := principalFromContext(r.Context())
	result, err := h.detection.Detect(r.Context(), service.DetectRequest{
		SessionID:  id,
		ImageURL:   body.ImageURL,
		ImageData:  body.ImageData,
		Source:     body.Source,
		DetectorID: principal.ID,
		Type:       body.Type,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Recorded && !result.Result.Duplicate {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

// ListEvents GET /api/sessions/{sessionID}/events?cursor=&limit=
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDFromPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	cursor, err := queryInt(r, "cursor")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	page, err := h.presence.ListEvents(r.Context(), id, cursor, int(limit))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// ListAttendance GET /api/sessions/{sessionID}/attendance
func (h *Handler) ListAttendance(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDFromPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	records, err := h.presence.ListRecords(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// GetDelta GET /api/sessions/{sessionID}/delta
func (h *Handler) GetDelta(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDFromPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	delta, err := h.presence.Delta(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, delta)
}

func queryInt(r *http.Request, key string) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", service.ErrValidation, key)
	}
	return v, nil
}
