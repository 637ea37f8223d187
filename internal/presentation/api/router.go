// SPDX-License-Identifier: AGPL-3.0-or-later
package api

import (
	"database/sql"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/triops/actioncore/internal/presentation/actions"
	"github.com/triops/actioncore/internal/presentation/admin"
	"github.com/triops/actioncore/internal/presentation/api/health"
	"github.com/triops/actioncore/internal/presentation/api/shared"
)

// RouterConfig holds everything NewRouter needs to assemble the action
// dispatch and admin API surfaces (spec §6.1, §9 supplemented features).
type RouterConfig struct {
	DB *sql.DB

	ClientSecret    string
	JWTSigningKey   []byte
	ExternalBaseURL string

	ActionsHandler *actions.Handler
	AdminHandler   *admin.Handler

	GeneralRateLimit int
}

// NewRouter creates the chi mux serving /health, /v1/actions/*, and
// /v1/admin/*.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	mw := shared.NewMiddleware(cfg.ClientSecret, cfg.JWTSigningKey, cfg.ExternalBaseURL)

	generalLimit := cfg.GeneralRateLimit
	if generalLimit == 0 {
		generalLimit = 100
	}
	generalRateLimit := shared.NewRateLimit(generalLimit, time.Minute)

	r.Use(middleware.RequestID)
	r.Use(shared.AddRequestIDToContext)
	r.Use(middleware.RealIP)
	r.Use(shared.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(shared.SecurityHeaders)
	r.Use(generalRateLimit.Middleware)

	healthHandler := health.NewHandler()
	r.Get("/health", healthHandler.HandleHealth)
	r.Get("/openapi.json", serveOpenAPISpec)

	// Action dispatch: app-level HMAC signature auth, RLS scoped inside the
	// Dispatcher itself since the tenant is only known once the envelope
	// body is parsed (spec §6.1, §4.1).
	r.Group(func(r chi.Router) {
		r.Use(mw.VerifySignature)
		r.Route("/v1/actions", func(r chi.Router) {
			r.Post("/webhook", cfg.ActionsHandler.HandleWebhook)
			r.Post("/code", cfg.ActionsHandler.HandleCode)
			r.Post("/format", cfg.ActionsHandler.HandleFormat)
		})
	})

	// Admin API: bearer JWT auth, RLS scoped by the HTTP middleware since
	// the tenant is already known from the JWT claim.
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAdminJWT)
		if cfg.DB != nil {
			rls := shared.NewRLSMiddleware(cfg.DB)
			r.Use(rls.Handler)
		}
		r.Route("/v1/admin", func(r chi.Router) {
			r.Get("/executions", cfg.AdminHandler.HandleListExecutions)
			r.Get("/usage", cfg.AdminHandler.HandleUsage)
		})
	})

	return r
}
