package app

import (
	"log/slog"
	"time"

	"github.com/babysteps/progression/internal/auth"
	"github.com/babysteps/progression/internal/guard"
	"github.com/babysteps/progression/internal/handler"
	adminhandler "github.com/babysteps/progression/internal/handler/admin"
	"github.com/go-chi/chi/v5"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Engine          *Engine
	JWTMgr          *auth.JWTManager
	Logger          *slog.Logger
	PurchaseLimiter *guard.RateLimiter
	Health          map[string]handler.HealthCheck
	CORSOrigins     string
	RankingLimit    int
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	jwtMgr := deps.JWTMgr
	logger := deps.Logger
	limiter := deps.PurchaseLimiter
	if limiter == nil {
		limiter = guard.NewRateLimiter(10, time.Minute)
	}
	origins := deps.CORSOrigins
	if origins == "" {
		origins = "*"
	}

	// Handlers
	progressionHandler := handler.NewProgressionHandler(deps.Engine.Progression, deps.RankingLimit)
	activityHandler := handler.NewActivityHandler(deps.Engine.Progression, logger)
	catalogAdmin := adminhandler.NewCatalogAdminHandler(deps.Engine.Catalog)
	opsAdmin := adminhandler.NewOpsHandler(deps.Engine.Jobs, deps.Engine.Progression, logger)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORSWithOrigins(origins))
	r.Use(handler.JSONContentType)

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(deps.Health))

	// Internal collaborators
	r.Route("/internal", func(r chi.Router) {
		r.Use(auth.AuthenticateService(jwtMgr))
		r.Post("/activity", activityHandler.Ingest)
		r.Post("/events/{id}/progress", activityHandler.EventProgress)
	})

	// User-authenticated routes
	r.Route("/progression", func(r chi.Router) {
		r.Use(auth.AuthenticateUser(jwtMgr))

		r.Get("/snapshot", progressionHandler.GetSnapshot)
		r.Get("/transactions", progressionHandler.GetTransactions)
		r.Get("/ranking", progressionHandler.GetRanking)
		r.Put("/timezone", progressionHandler.SetTimezone)
		r.Post("/challenges/{id}/claim", progressionHandler.ClaimChallenge)
		r.Post("/missions/{id}/claim", progressionHandler.ClaimMission)
		r.Post("/events/{id}/join", progressionHandler.JoinEvent)

		// Spending routes are rate limited per user
		r.Group(func(r chi.Router) {
			r.Use(handler.RateLimitUser(limiter))
			r.Post("/shop/{id}/purchase", progressionHandler.Purchase)
			r.Post("/ai-rewards/{id}/unlock", progressionHandler.UnlockAIReward)
		})
	})

	// Admin-authenticated routes
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.AuthenticateAdmin(jwtMgr))
		write := auth.RequireRole(auth.WriteRoles()...)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", catalogAdmin.ListRules)
			r.With(write).Post("/", catalogAdmin.SaveRule)
		})

		r.Route("/challenges", func(r chi.Router) {
			r.Get("/", catalogAdmin.ListChallenges)
			r.With(write).Post("/", catalogAdmin.SaveChallenge)
		})

		r.Route("/missions", func(r chi.Router) {
			r.Get("/", catalogAdmin.ListMissions)
			r.With(write).Post("/", catalogAdmin.SaveMission)
		})

		r.Route("/shop/items", func(r chi.Router) {
			r.Get("/", catalogAdmin.ListShopItems)
			r.With(write).Post("/", catalogAdmin.SaveShopItem)
			r.With(write).Patch("/{id}", catalogAdmin.ToggleShopItem)
		})

		r.Route("/events", func(r chi.Router) {
			r.With(write).Post("/", catalogAdmin.CreateEvent)
			r.Get("/{id}", catalogAdmin.GetEvent)
			r.With(write).Post("/{id}/finalize", catalogAdmin.FinalizeEvent)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", opsAdmin.ListJobs)
			r.With(write).Post("/{name}/run", opsAdmin.RunJob)
		})

		r.Get("/users/{id}/ledger/verify", opsAdmin.VerifyLedger)
	})

	return r
}
