package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type OrdersHandler struct {
	catalog Catalog
	orders  Orders
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewOrdersHandler(catalog Catalog, orders Orders, timeout time.Duration, log logrus.FieldLogger) *OrdersHandler {
	return &OrdersHandler{
		catalog: catalog,
		orders:  orders,
		timeout: timeout,
		log:     log,
	}
}

type PlaceOrderRequestDTO struct {
	OrderType       domain.OrderType        `json:"orderType" validate:"required,oneof=delivery pickup"`
	Phone           string                  `json:"phone" validate:"required"`
	DeliveryAddress *domain.DeliveryAddress `json:"deliveryAddress"`
}

type PendingOrderResponseDTO struct {
	HasPendingOrder bool `json:"hasPendingOrder"`
}

func (h *OrdersHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess := getSession(r.Context())
	if sess == nil {
		respondError(w, r, http.StatusUnauthorized, "no_session", "missing session")
		return
	}

	var req PlaceOrderRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	conf, err := h.orders.PlaceOrder(ctx, sess, service.PlaceOrderRequest{
		OrderType:       req.OrderType,
		Phone:           req.Phone,
		DeliveryAddress: req.DeliveryAddress,
	})
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, conf)
}

// ListOrders returns the orders filed under the session's phone number.
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess := getSession(r.Context())
	if sess == nil {
		respondError(w, r, http.StatusUnauthorized, "no_session", "missing session")
		return
	}

	userID := sess.UserID(ctx)
	if userID == "" {
		respondJSON(w, r, http.StatusOK, []domain.Order{})
		return
	}

	orders, err := h.catalog.UserOrders(ctx, userID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	respondJSON(w, r, http.StatusOK, orders)
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.catalog.Order(ctx, chi.URLParam(r, "order_id"))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, r, http.StatusOK, order)
}

func (h *OrdersHandler) PendingOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess := getSession(r.Context())
	if sess == nil {
		respondError(w, r, http.StatusUnauthorized, "no_session", "missing session")
		return
	}

	respondJSON(w, r, http.StatusOK, PendingOrderResponseDTO{
		HasPendingOrder: h.orders.HasPendingOrder(ctx, sess.UserID(ctx)),
	})
}
