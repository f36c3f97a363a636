package handler

import (
	"net/http"
	"strings"

	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/guard"
	"github.com/babysteps/progression/internal/service"
	"github.com/google/uuid"
)

// ProgressionHandler serves the user-realm progression API.
type ProgressionHandler struct {
	svc          *service.ProgressionService
	rankingLimit int
}

// NewProgressionHandler creates a new ProgressionHandler.
func NewProgressionHandler(svc *service.ProgressionService, rankingLimit int) *ProgressionHandler {
	if rankingLimit <= 0 {
		rankingLimit = 10
	}
	return &ProgressionHandler{svc: svc, rankingLimit: rankingLimit}
}

// GetSnapshot handles GET /progression/snapshot.
func (h *ProgressionHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	snap, err := h.svc.GetSnapshot(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, snap)
}

type txListResponse struct {
	Transactions []domain.PointTransaction `json:"transactions"`
	NextCursor   *string                   `json:"next_cursor,omitempty"`
}

// GetTransactions handles GET /progression/transactions with cursor-based pagination.
func (h *ProgressionHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	limit := QueryLimit(r, 20, 50)
	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		if _, err := uuid.Parse(c); err != nil {
			RespondError(w, domain.ErrValidation("cursor must be a transaction id"))
			return
		}
		cursor = &c
	}

	txs, err := h.svc.History(r.Context(), userID, cursor, limit+1)
	if err != nil {
		RespondError(w, err)
		return
	}

	resp := txListResponse{Transactions: txs}
	if resp.Transactions == nil {
		resp.Transactions = []domain.PointTransaction{}
	}
	if len(txs) > limit {
		resp.Transactions = txs[:limit]
		nextID := txs[limit-1].ID.String()
		resp.NextCursor = &nextID
	}
	RespondJSON(w, http.StatusOK, resp)
}

// GetRanking handles GET /progression/ranking?week=&limit=.
func (h *ProgressionHandler) GetRanking(w http.ResponseWriter, r *http.Request) {
	week := r.URL.Query().Get("week")
	if week != "" {
		if err := domain.ValidateWeekKey(week); err != nil {
			RespondError(w, domain.ErrValidation(err.Error()))
			return
		}
	}

	entries, err := h.svc.Ranking(r.Context(), week, QueryLimit(r, h.rankingLimit, 100))
	if err != nil {
		RespondError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.GamificationRankingEntry{}
	}
	RespondJSON(w, http.StatusOK, entries)
}

// ClaimChallenge handles POST /progression/challenges/{id}/claim.
func (h *ProgressionHandler) ClaimChallenge(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	challengeID, err := URLUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}

	res, err := h.svc.ClaimChallenge(r.Context(), userID, challengeID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// ClaimMission handles POST /progression/missions/{id}/claim.
func (h *ProgressionHandler) ClaimMission(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	missionID, err := URLUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}

	res, err := h.svc.ClaimMission(r.Context(), userID, missionID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// Purchase handles POST /progression/shop/{id}/purchase. The Idempotency-Key
// header makes client retries safe.
func (h *ProgressionHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	itemID, err := URLUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}

	requestID := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if len(requestID) > 128 {
		RespondError(w, domain.ErrValidation("Idempotency-Key must be at most 128 characters"))
		return
	}

	res, err := h.svc.Purchase(r.Context(), userID, itemID, requestID)
	if err != nil {
		RespondError(w, err)
		return
	}
	status := http.StatusCreated
	if !res.Applied {
		status = http.StatusOK
	}
	RespondJSON(w, status, res)
}

// UnlockAIReward handles POST /progression/ai-rewards/{id}/unlock.
func (h *ProgressionHandler) UnlockAIReward(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	res, err := h.svc.UnlockAIReward(r.Context(), userID, chiParam(r, "id"))
	if err != nil {
		RespondError(w, err)
		return
	}
	status := http.StatusCreated
	if !res.Applied {
		status = http.StatusOK
	}
	RespondJSON(w, status, res)
}

// JoinEvent handles POST /progression/events/{id}/join.
func (h *ProgressionHandler) JoinEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	eventID, err := URLUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}

	ue, joined, err := h.svc.JoinEvent(r.Context(), userID, eventID)
	if err != nil {
		RespondError(w, err)
		return
	}
	status := http.StatusOK
	if joined {
		status = http.StatusCreated
	}
	RespondJSON(w, status, map[string]interface{}{
		"user_event": ue,
		"joined":     joined,
	})
}

// SetTimezone handles PUT /progression/timezone.
func (h *ProgressionHandler) SetTimezone(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var input struct {
		Timezone string `json:"timezone"`
	}
	if err := DecodeJSON(r, &input); err != nil {
		RespondError(w, err)
		return
	}

	if err := h.svc.SetTimezone(r.Context(), userID, input.Timezone); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"timezone": input.Timezone})
}

// RateLimitUser rejects a user's requests beyond the limiter's window budget.
func RateLimitUser(limiter *guard.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := userIDFromContext(r)
			if err != nil {
				RespondError(w, err)
				return
			}
			if res := limiter.Check(r.Context(), userID.String()); !res.Allowed {
				RespondError(w, domain.ErrRateLimited(res.Reason))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
