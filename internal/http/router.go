package http

import (
	"net/http"

	"github.com/fjod/storefront/internal/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type Deps struct {
	Sessions SessionSource
	Catalog  Catalog
	Orders   Orders
}

// NewRouter wires the storefront API under /api/v1.
func NewRouter(cfg config.HTTP, deps Deps, log logrus.FieldLogger) chi.Router {
	cartHandler := NewCartHandler(deps.Catalog, deps.Orders, cfg.RequestTimeout, log)
	catalogHandler := NewCatalogHandler(deps.Catalog, cfg.RequestTimeout, log)
	ordersHandler := NewOrdersHandler(deps.Catalog, deps.Orders, cfg.RequestTimeout, log)
	profileHandler := NewProfileHandler(deps.Orders, log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: log, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(log))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	if cfg.MaxRequestBodySize > 0 {
		r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))
	}

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SessionMiddleware(deps.Sessions))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/lines", cartHandler.AddLine)
			r.Put("/lines/{line_id}", cartHandler.UpdateQuantity)
			r.Delete("/lines/{line_id}", cartHandler.RemoveLine)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", catalogHandler.GetCategories)
			r.Get("/{category_id}/sub", catalogHandler.GetSubCategories)
			r.Get("/{category_id}/{sub}/items", catalogHandler.GetItems)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordersHandler.PlaceOrder)
			r.Get("/", ordersHandler.ListOrders)
			r.Get("/pending", ordersHandler.PendingOrder)
			r.Get("/{order_id}", ordersHandler.GetOrder)
		})

		r.Route("/profile", func(r chi.Router) {
			r.Get("/", profileHandler.GetProfile)
			r.Put("/phone", profileHandler.UpdatePhone)
			r.Put("/address", profileHandler.UpdateAddress)
		})
	})

	return r
}
