package admin

import (
	"log/slog"
	"net/http"

	"github.com/babysteps/progression/internal/auth"
	"github.com/babysteps/progression/internal/handler"
	"github.com/babysteps/progression/internal/service"
	"github.com/go-chi/chi/v5"
)

// OpsHandler runs scheduled jobs on demand and verifies user ledgers.
type OpsHandler struct {
	jobs        *service.Jobs
	progression *service.ProgressionService
	logger      *slog.Logger
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(jobs *service.Jobs, progression *service.ProgressionService, logger *slog.Logger) *OpsHandler {
	return &OpsHandler{jobs: jobs, progression: progression, logger: logger}
}

// ListJobs handles GET /admin/jobs.
func (h *OpsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	handler.RespondJSON(w, http.StatusOK, map[string][]string{"jobs": h.jobs.Names()})
}

// RunJob handles POST /admin/jobs/{name}/run.
func (h *OpsHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	h.logger.Info("job triggered by admin", "job", name, "admin", auth.SubjectFromContext(r.Context()))

	res, err := h.jobs.Run(r.Context(), name)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, res)
}

// VerifyLedger handles GET /admin/users/{id}/ledger/verify.
func (h *OpsHandler) VerifyLedger(w http.ResponseWriter, r *http.Request) {
	userID, err := handler.URLUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	res, err := h.progression.Verify(r.Context(), userID)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, res)
}
