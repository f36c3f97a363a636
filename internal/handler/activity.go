package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/babysteps/progression/internal/auth"
	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/service"
	"github.com/google/uuid"
)

// ActivityHandler accepts inbound collaborator events over REST, as an
// alternative to the Kafka consumer.
type ActivityHandler struct {
	svc    *service.ProgressionService
	logger *slog.Logger
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(svc *service.ProgressionService, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{svc: svc, logger: logger}
}

// Ingest handles POST /internal/activity. The body is an envelope
// {"type": ..., "payload": {...}}.
func (h *ActivityHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		RespondError(w, domain.ErrValidation("request body too large"))
		return
	}

	evt, err := domain.DecodeActivity(body)
	if err != nil {
		RespondError(w, err)
		return
	}

	snap, err := h.svc.ProcessActivity(r.Context(), evt)
	if err != nil {
		h.logger.Error("activity rejected",
			"event_id", evt.EventID,
			"kind", evt.Kind,
			"caller", auth.SubjectFromContext(r.Context()),
			"error", err,
		)
		RespondError(w, err)
		return
	}

	status := http.StatusAccepted
	if snap.Duplicate {
		status = http.StatusOK
	}
	RespondJSON(w, status, snap)
}

// EventProgress handles POST /internal/events/{id}/progress. Collaborators
// report an absolute value under key; updates for ended events are dropped
// and answered with applied=false.
func (h *ActivityHandler) EventProgress(w http.ResponseWriter, r *http.Request) {
	eventID, err := URLUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}

	var input struct {
		UserID uuid.UUID `json:"user_id"`
		Key    string    `json:"key"`
		Value  int64     `json:"value"`
	}
	if err := DecodeJSON(r, &input); err != nil {
		RespondError(w, err)
		return
	}
	if input.UserID == uuid.Nil {
		RespondError(w, domain.ErrValidation("user_id is required"))
		return
	}

	ue, err := h.svc.RecordEventProgress(r.Context(), input.UserID, eventID, input.Key, input.Value)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"user_event": ue,
		"applied":    ue != nil,
	})
}
