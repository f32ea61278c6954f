package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/invoicing"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/settlement"
	"github.com/odyssey-erp/backoffice/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	LedgerHandler     *ledger.Handler
	InventoryHandler  *inventory.Handler
	InvoicingHandler  *invoicing.Handler
	SettlementHandler *settlement.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
	// Ready reports whether the backing stores answer; nil means always ready.
	Ready func(ctx context.Context) error
}

type healthResponse struct {
	Status string `json:"status"`
}

// NewRouter constructs the chi.Router with back-office defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Ready != nil {
			if err := params.Ready(r.Context()); err != nil {
				params.Logger.Warn("readiness check failed", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, healthResponse{Status: "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		if params.LedgerHandler != nil {
			r.Route("/ledger", params.LedgerHandler.MountRoutes)
		}
		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
		if params.InvoicingHandler != nil {
			r.Route("/invoices", params.InvoicingHandler.MountRoutes)
		}
		if params.SettlementHandler != nil {
			r.Route("/settlements", params.SettlementHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
