package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/calade/reportdeck/internal/builder"
	"github.com/calade/reportdeck/internal/config"
	"github.com/calade/reportdeck/internal/observability"
	"github.com/calade/reportdeck/internal/session"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Authenticate func(http.Handler) http.Handler
	Sessions     *session.Manager
	Gateway      builder.Gateway
	Quick        *builder.QuickRunner
	Metrics      *observability.Metrics
	Ready        observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes — bypass authentication.
	r.Get("/healthz", observability.HandleHealth())
	r.Get("/readyz", observability.HandleReady(deps.Ready))
	r.Method(http.MethodGet, "/metrics", observability.Handler())

	// Authenticated API.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(auth)
		r.Use(observability.TracingMiddleware)
		r.Use(BuildRequestContextMiddleware(deps.Config.Identity.ClaimPaths))
		r.Use(RequireRole(deps.Config.Identity.RequiredRole))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging)
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		r.Get("/models", handleListModels(deps))

		r.Route("/reports", func(r chi.Router) {
			r.Post("/quick", handleQuickReport(deps))
			r.Post("/validate-filters", handleValidateFilters(deps))
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", handleCreateSession(deps))

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", handleGetSession(deps))
				r.Delete("/", handleDestroySession(deps))

				r.Put("/model", handleSetModel(deps))

				r.Route("/fields", func(r chi.Router) {
					r.Post("/", handleAddField(deps))
					r.Delete("/{name}", handleRemoveField(deps))
					r.Post("/{name}/move", handleMoveField(deps))
					r.Post("/{name}/duplicate", handleDuplicateField(deps))
				})

				r.Route("/filters", func(r chi.Router) {
					r.Post("/", handleAddFilter(deps))
					r.Patch("/{filterID}", handleUpdateFilter(deps))
					r.Delete("/{filterID}", handleRemoveFilter(deps))
				})

				r.Route("/sorts", func(r chi.Router) {
					r.Post("/", handleAddSort(deps))
					r.Patch("/{sortID}", handleUpdateSort(deps))
					r.Delete("/{sortID}", handleRemoveSort(deps))
				})

				r.Route("/groups", func(r chi.Router) {
					r.Post("/", handleAddGroup(deps))
					r.Patch("/{groupID}", handleUpdateGroup(deps))
					r.Delete("/{groupID}", handleRemoveGroup(deps))
				})

				r.Post("/step", handleGoToStep(deps))
				r.Post("/validate", handleValidate(deps))
				r.Post("/execute", handleExecute(deps))
				r.Post("/export", handleExport(deps))
				r.Post("/save-template", handleSaveTemplate(deps))

				r.Get("/results.json", handleResultsJSON(deps))
				r.Get("/results.csv", handleResultsCSV(deps))
				r.Get("/preview", handlePreview(deps))

				r.Post("/undo", handleUndo(deps))
				r.Post("/redo", handleRedo(deps))
				r.Get("/history", handleHistory(deps))

				r.Post("/advanced", handleAdvancedMode(deps))
				r.Post("/auto-refresh", handleAutoRefresh(deps))
				r.Get("/stats", handleStats(deps))
				r.Post("/cache/clear", handleClearCache(deps))

				r.Get("/settings", handleExportSettings(deps))
				r.Post("/settings", handleImportSettings(deps))

				r.Route("/pickers/bulk", func(r chi.Router) {
					r.Post("/", handleBulkOpen(deps))
					r.Post("/query", handleBulkQuery(deps))
					r.Post("/toggle", handleBulkToggle(deps))
					r.Post("/select-all", handleBulkSelectAll(deps))
					r.Post("/confirm", handleBulkConfirm(deps))
					r.Post("/cancel", handleBulkCancel(deps))
				})

				r.Route("/pickers/recommend", func(r chi.Router) {
					r.Post("/", handleRecommendOpen(deps))
					r.Post("/toggle", handleRecommendToggle(deps))
					r.Post("/select-all", handleRecommendSelectAll(deps))
					r.Post("/confirm", handleRecommendConfirm(deps))
					r.Post("/cancel", handleRecommendCancel(deps))
				})
			})
		})
	})

	return r
}
