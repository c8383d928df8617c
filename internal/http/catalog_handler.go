package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type CatalogHandler struct {
	catalog Catalog
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewCatalogHandler(catalog Catalog, timeout time.Duration, log logrus.FieldLogger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		timeout: timeout,
		log:     log,
	}
}

func (h *CatalogHandler) GetCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	categories, err := h.catalog.Categories(ctx)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, r, http.StatusOK, categories)
}

func (h *CatalogHandler) GetSubCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	subs, err := h.catalog.SubCategories(ctx, chi.URLParam(r, "category_id"))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, r, http.StatusOK, subs)
}

func (h *CatalogHandler) GetItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	items, err := h.catalog.Items(ctx, chi.URLParam(r, "category_id"), chi.URLParam(r, "sub"))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, r, http.StatusOK, items)
}
