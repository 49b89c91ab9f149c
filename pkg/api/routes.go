package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints.
		r.Get("/health", s.handleHealth)
		r.Get("/config", s.handleConfig)

		// Read endpoints. Anonymous unless anonymous_read is disabled.
		r.Group(func(r chi.Router) {
			if !s.cfg.Auth.AnonymousRead {
				r.Use(s.requireAuth)
			}

			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					"public", s.cfg.Server.RateLimit.Public,
				))
			}

			r.Get("/dashboard", s.handleOverview)

			r.Get("/projects", s.handleListProjects)
			r.Get("/projects/{id}", s.handleGetProject)
			r.Get("/projects/name/{name}", s.handleGetProjectByName)
			r.Get("/projects/{id}/branches", s.handleListBranches)
			r.Get("/projects/{id}/dashboard", s.handleProjectDashboard)

			r.Get("/branches/{id}", s.handleGetBranch)
			r.Get("/branches/{id}/dashboard", s.handleBranchDashboard)
			r.Get("/branches/{id}/promotion-levels", s.handleListPromotionLevels)
			r.Get("/branches/{id}/validation-stamps", s.handleListValidationStamps)
			r.Get("/branches/{id}/builds", s.handleListBuilds)
			r.Get("/branches/{id}/builds/last", s.handleLastBuild)
			r.Get("/branches/{id}/builds/name/{name}", s.handleFindBuildByName)

			r.Get("/promotion-levels/{id}", s.handleGetPromotionLevel)
			r.Get("/promotion-levels/{id}/image", s.handleGetPromotionLevelImage)
			r.Get("/promotion-levels/{id}/promoted-runs", s.handleListPromotedRuns)
			r.Get("/promotion-levels/{id}/last-build", s.handleLastBuildWithPromotion)

			r.Get("/validation-stamps/{id}", s.handleGetValidationStamp)
			r.Get("/validation-stamps/{id}/image", s.handleGetValidationStampImage)
			r.Get("/validation-stamps/{id}/statuses", s.handleStampStatuses)
			r.Get("/validation-stamps/{id}/status-history", s.handleStampStatusHistory)
			r.Get("/validation-stamps/{id}/last-build", s.handleLastBuildWithStampStatus)

			r.Get("/builds/{id}", s.handleGetBuild)
			r.Get("/builds/{id}/validation-runs", s.handleListValidationRuns)
			r.Get("/builds/{id}/validation-stamps/{stampID}/rollup",
				s.handleBuildStampRollup)
			r.Get("/builds/{id}/promotions", s.handleBuildPromotions)
			r.Get("/builds/{id}/promotions/{levelID}/earliest",
				s.handleEarliestPromotion)
			r.Get("/builds/{id}/promotions/{levelID}/check",
				s.handleCheckAutoPromotable)

			r.Get("/validation-runs/{id}", s.handleGetValidationRun)
			r.Get("/validation-runs/{id}/statuses", s.handleListRunStatuses)
			r.Get("/validation-runs/{id}/statuses/last", s.handleLastRunStatus)

			r.Get("/entities/{kind}/{id}/comments", s.handleListComments)
			r.Get("/entities/{kind}/{id}/properties", s.handleGetProperties)
			r.Get("/entities/{kind}/{id}/events", s.handleListEntityEvents)
			r.Get("/events", s.handleListEvents)
		})

		// Mutating endpoints always require authentication.
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					"authenticated", s.cfg.Server.RateLimit.Authenticated,
				))
			}

			r.Get("/auth/me", s.handleMe)

			r.Post("/projects", s.handleCreateProject)
			r.Put("/projects/{id}", s.handleUpdateProject)
			r.Delete("/projects/{id}", s.handleDeleteProject)
			r.Post("/projects/{id}/branches", s.handleCreateBranch)

			r.Put("/branches/{id}", s.handleUpdateBranch)
			r.Delete("/branches/{id}", s.handleDeleteBranch)
			r.Post("/branches/{id}/clone", s.handleCloneBranch)
			r.Post("/branches/{id}/promotion-levels", s.handleCreatePromotionLevel)
			r.Post("/branches/{id}/validation-stamps", s.handleCreateValidationStamp)
			r.Post("/branches/{id}/builds", s.handleCreateBuild)

			r.Put("/promotion-levels/{id}", s.handleUpdatePromotionLevel)
			r.Delete("/promotion-levels/{id}", s.handleDeletePromotionLevel)
			r.Post("/promotion-levels/{id}/move", s.handleMovePromotionLevel)
			r.Put("/promotion-levels/{id}/auto-promote", s.handleSetAutoPromote)
			r.Put("/promotion-levels/{id}/image", s.handleSetPromotionLevelImage)

			r.Put("/validation-stamps/{id}", s.handleUpdateValidationStamp)
			r.Delete("/validation-stamps/{id}", s.handleDeleteValidationStamp)
			r.Post("/validation-stamps/{id}/link", s.handleLinkValidationStamp)
			r.Post("/validation-stamps/{id}/unlink", s.handleUnlinkValidationStamp)
			r.Put("/validation-stamps/{id}/owner", s.handleSetValidationStampOwner)
			r.Post("/validation-stamps/{id}/move", s.handleMoveValidationStamp)
			r.Put("/validation-stamps/{id}/image", s.handleSetValidationStampImage)

			r.Delete("/builds/{id}", s.handleDeleteBuild)
			r.Post("/builds/{id}/validation-runs", s.handleCreateValidationRun)
			r.Post("/builds/{id}/promotions", s.handlePromote)
			r.Delete("/builds/{id}/promotions/{levelID}", s.handleDeletePromotion)

			r.Post("/validation-runs/{id}/statuses", s.handleAddRunStatus)

			r.Post("/entities/{kind}/{id}/comments", s.handleCreateComment)
			r.Put("/entities/{kind}/{id}/properties", s.handleSetProperties)
		})

		// Admin endpoints (require auth + admin role).
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Use(s.requireRole("admin"))

			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					"admin", s.cfg.Server.RateLimit.Authenticated,
				))
			}

			r.Get("/accounts", s.handleListAccounts)
		})
	})

	return r
}

// corsMiddleware returns a CORS handler configured from the API config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	origins := s.cfg.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Reflect the requesting origin so credentials work from any origin.
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
