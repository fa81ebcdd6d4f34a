package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/fulfillment/internal/backorders"
	"github.com/odyssey-erp/fulfillment/internal/fulfillment"
	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/observability"
	"github.com/odyssey-erp/fulfillment/internal/sales"
	"github.com/odyssey-erp/fulfillment/internal/sequence"
	"github.com/odyssey-erp/fulfillment/internal/shipping"
	"github.com/odyssey-erp/fulfillment/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	BackordersHandler  *backorders.Handler
	FulfillmentHandler *fulfillment.Handler
	InventoryHandler   *inventory.Handler
	SalesHandler       *sales.Handler
	SequenceHandler    *sequence.Handler
	ShippingHandler    *shipping.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(api chi.Router) {
		api.Route("/backorders", func(br chi.Router) {
			if params.BackordersHandler != nil {
				params.BackordersHandler.MountRoutes(br)
			}
			if params.FulfillmentHandler != nil {
				params.FulfillmentHandler.MountRoutes(br)
			}
		})
		if params.InventoryHandler != nil {
			api.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
		if params.SalesHandler != nil {
			api.Route("/sales", params.SalesHandler.MountRoutes)
		}
		if params.SequenceHandler != nil {
			api.Route("/sequences", params.SequenceHandler.MountRoutes)
		}
		if params.ShippingHandler != nil {
			api.Route("/shipping", params.ShippingHandler.MountQuoteRoutes)
			api.Route("/shipments", params.ShippingHandler.MountRoutes)
		}
	})

	return r
}
