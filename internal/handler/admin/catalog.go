// Package admin serves the admin-realm catalog and operations API.
package admin

import (
	"net/http"

	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/handler"
	"github.com/babysteps/progression/internal/service"
)

// CatalogAdminHandler manages badge rules, challenges, missions, shop items
// and special events.
type CatalogAdminHandler struct {
	catalog *service.CatalogService
}

// NewCatalogAdminHandler creates a new CatalogAdminHandler.
func NewCatalogAdminHandler(catalog *service.CatalogService) *CatalogAdminHandler {
	return &CatalogAdminHandler{catalog: catalog}
}

// ListRules handles GET /admin/rules.
func (h *CatalogAdminHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.catalog.ListRules(r.Context())
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	if rules == nil {
		rules = []domain.GamificationRule{}
	}
	handler.RespondJSON(w, http.StatusOK, rules)
}

// SaveRule handles POST /admin/rules. The condition is parsed before the rule
// is stored; a rule that does not compile is rejected.
func (h *CatalogAdminHandler) SaveRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.GamificationRule
	if err := handler.DecodeJSON(r, &rule); err != nil {
		handler.RespondError(w, err)
		return
	}
	if err := h.catalog.SaveRule(r.Context(), &rule); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusCreated, rule)
}

// ListChallenges handles GET /admin/challenges.
func (h *CatalogAdminHandler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	out, err := h.catalog.ListChallenges(r.Context())
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	if out == nil {
		out = []domain.WeeklyChallenge{}
	}
	handler.RespondJSON(w, http.StatusOK, out)
}

// SaveChallenge handles POST /admin/challenges.
func (h *CatalogAdminHandler) SaveChallenge(w http.ResponseWriter, r *http.Request) {
	var c domain.WeeklyChallenge
	if err := handler.DecodeJSON(r, &c); err != nil {
		handler.RespondError(w, err)
		return
	}
	if err := h.catalog.SaveChallenge(r.Context(), &c); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusCreated, c)
}

// ListMissions handles GET /admin/missions.
func (h *CatalogAdminHandler) ListMissions(w http.ResponseWriter, r *http.Request) {
	out, err := h.catalog.ListMissions(r.Context())
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	if out == nil {
		out = []domain.DailyMission{}
	}
	handler.RespondJSON(w, http.StatusOK, out)
}

// SaveMission handles POST /admin/missions.
func (h *CatalogAdminHandler) SaveMission(w http.ResponseWriter, r *http.Request) {
	var m domain.DailyMission
	if err := handler.DecodeJSON(r, &m); err != nil {
		handler.RespondError(w, err)
		return
	}
	if err := h.catalog.SaveMission(r.Context(), &m); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusCreated, m)
}

// ListShopItems handles GET /admin/shop/items.
func (h *CatalogAdminHandler) ListShopItems(w http.ResponseWriter, r *http.Request) {
	out, err := h.catalog.ListShopItems(r.Context())
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	if out == nil {
		out = []domain.ShopItem{}
	}
	handler.RespondJSON(w, http.StatusOK, out)
}

// SaveShopItem handles POST /admin/shop/items.
func (h *CatalogAdminHandler) SaveShopItem(w http.ResponseWriter, r *http.Request) {
	var item domain.ShopItem
	if err := handler.DecodeJSON(r, &item); err != nil {
		handler.RespondError(w, err)
		return
	}
	if err := h.catalog.SaveShopItem(r.Context(), &item); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusCreated, item)
}

// ToggleShopItem handles PATCH /admin/shop/items/{id}.
func (h *CatalogAdminHandler) ToggleShopItem(w http.ResponseWriter, r *http.Request) {
	id, err := handler.URLUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	var input struct {
		IsActive *bool `json:"is_active"`
	}
	if err := handler.DecodeJSON(r, &input); err != nil {
		handler.RespondError(w, err)
		return
	}
	if input.IsActive == nil {
		handler.RespondError(w, domain.ErrValidation("is_active is required"))
		return
	}

	if err := h.catalog.SetShopItemActive(r.Context(), id, *input.IsActive); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]interface{}{"id": id, "is_active": *input.IsActive})
}

// CreateEvent handles POST /admin/events.
func (h *CatalogAdminHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var ev domain.SpecialEvent
	if err := handler.DecodeJSON(r, &ev); err != nil {
		handler.RespondError(w, err)
		return
	}
	if err := h.catalog.CreateEvent(r.Context(), &ev); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusCreated, ev)
}

// GetEvent handles GET /admin/events/{id}.
func (h *CatalogAdminHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := handler.URLUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	ev, err := h.catalog.GetEvent(r.Context(), id)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, ev)
}

// FinalizeEvent handles POST /admin/events/{id}/finalize. Finalizing twice
// reports already_finalized and pays nothing.
func (h *CatalogAdminHandler) FinalizeEvent(w http.ResponseWriter, r *http.Request) {
	id, err := handler.URLUUID(r, "id")
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	res, err := h.catalog.FinalizeEvent(r.Context(), id)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, res)
}
