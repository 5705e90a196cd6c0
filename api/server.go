/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the admin frontend
  5. Identity:   Resolves the bearer token into a caller identity

AUTHORIZATION:
  The identity middleware only resolves who is calling; it rejects nothing
  by itself except a malformed bearer token. Each mutating handler runs
  the admin gate before touching the store, so read endpoints stay open
  and write endpoints are admin-only.

ROUTE GROUPS:
  /api/billing/*        Bulk generation, rollover, summary
  /api/electric-bills/* Per-month audit records
  /api/members/*        Member admin, ledger, payments, settlement
  /api/settings         Singleton configuration (admin)
  /api/scenarios/*      Demo data (dev only)
  /metrics              Prometheus scrape endpoint

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hosteldesk/billing-engine/auth"
)

// RouterConfig carries the router's environment-dependent knobs.
type RouterConfig struct {
	JWTSecret      []byte
	AllowedOrigins []string

	// EnableScenarios exposes the demo seeding endpoint. Never on in
	// production.
	EnableScenarios bool
}

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	r.Use(identityMiddleware(cfg.JWTSecret))

	r.Route("/api", func(r chi.Router) {
		r.Route("/billing", func(r chi.Router) {
			r.Post("/generate", h.GenerateBills)
			r.Post("/rollover", h.AdvanceBillingPeriod)
			r.Get("/summary", h.GetSummary)
			r.Get("/summary/export.xlsx", h.ExportSummary)
		})

		r.Route("/electric-bills", func(r chi.Router) {
			r.Get("/current", h.GetCurrentElectricBill)
			r.Get("/{month}", h.GetElectricBill)
		})

		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.AdmitMember)
			r.Get("/{id}", h.GetMember)
			r.Put("/{id}", h.AmendMember)
			r.Get("/{id}/ledger", h.GetMemberLedger)
			r.Get("/{id}/ledger/{month}", h.GetLedgerEntry)
			r.Post("/{id}/ledger/{month}/payment", h.RecordPayment)
			r.Get("/{id}/settlement", h.PreviewSettlement)
			r.Post("/{id}/settlement", h.FinalizeSettlement)
			r.Get("/{id}/settlement/statement.pdf", h.SettlementStatementPDF)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", h.GetSettings)
			r.Put("/", h.UpdateSettings)
		})

		if cfg.EnableScenarios {
			r.Post("/scenarios/seed", h.SeedScenario)
		}
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// identityMiddleware resolves "Authorization: Bearer <token>" into a caller
// identity on the request context. Requests without the header pass
// through anonymous; the per-handler gate decides what they may do.
func identityMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := strings.TrimPrefix(header, "Bearer ")
			if token == header {
				writeError(w, http.StatusUnauthorized, "Authorization header must use the Bearer scheme", nil)
				return
			}

			id, err := auth.ParseToken(token, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid bearer token", err)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}
