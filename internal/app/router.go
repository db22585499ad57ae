package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-po/internal/audit"
	"github.com/odyssey-erp/odyssey-po/internal/auth"
	"github.com/odyssey-erp/odyssey-po/internal/documents"
	"github.com/odyssey-erp/odyssey-po/internal/inventory"
	"github.com/odyssey-erp/odyssey-po/internal/notify"
	"github.com/odyssey-erp/odyssey-po/internal/observability"
	"github.com/odyssey-erp/odyssey-po/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-po/internal/procurement"
	"github.com/odyssey-erp/odyssey-po/jobs"
	"github.com/odyssey-erp/odyssey-po/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	Tokens  *auth.TokenIssuer

	AuthHandler         *auth.Handler
	InventoryHandler    *inventory.Handler
	ProcurementHandler  *procurement.Handler
	DocumentHandler     *documents.Handler
	NotificationHandler *notify.Handler
	ReportHandler       *report.Handler
	JobHandler          *jobs.Handler
	AuditHandler        *audit.Handler
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.OK(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(params.Tokens, params.Logger))
			if params.AuthHandler != nil {
				r.Get("/me", params.AuthHandler.Me)
			}
			r.Route("/purchase-orders", params.ProcurementHandler.MountRoutes)
			if params.DocumentHandler != nil {
				r.Route("/documents/purchase-orders", params.DocumentHandler.MountRoutes)
			}
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
			if params.NotificationHandler != nil {
				r.Route("/notifications", params.NotificationHandler.MountRoutes)
			}
			if params.ReportHandler != nil {
				r.Route("/report", params.ReportHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
			if params.AuditHandler != nil {
				r.Route("/audit", params.AuditHandler.MountRoutes)
			}
		})
	})

	return r
}
