package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/backend"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/internal/session"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var validate = validator.New()

// Catalog is the cached read side of the backend.
type Catalog interface {
	Categories(ctx context.Context) ([]domain.Category, error)
	SubCategories(ctx context.Context, categoryID string) ([]domain.SubCategory, error)
	Items(ctx context.Context, categoryID, subCategory string) ([]domain.Item, error)
	FindItem(ctx context.Context, categoryID, subCategory, productID string) (domain.Item, error)
	UserOrders(ctx context.Context, userID string) ([]domain.Order, error)
	Order(ctx context.Context, orderID string) (*domain.Order, error)
}

// Orders places orders and keeps the customer's identity.
type Orders interface {
	Summary(sess *session.Session, orderType domain.OrderType) service.Summary
	PlaceOrder(ctx context.Context, sess *session.Session, req service.PlaceOrderRequest) (*service.Confirmation, error)
	RememberPhone(ctx context.Context, sess *session.Session, phone string) (string, error)
	HasPendingOrder(ctx context.Context, userID string) bool
}

type CartHandler struct {
	catalog Catalog
	orders  Orders
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewCartHandler(catalog Catalog, orders Orders, timeout time.Duration, log logrus.FieldLogger) *CartHandler {
	return &CartHandler{
		catalog: catalog,
		orders:  orders,
		timeout: timeout,
		log:     log,
	}
}

// AddLineRequestDTO adds a product to the cart. With categoryId the name and
// price are looked up in the catalog; without it the caller supplies them.
type AddLineRequestDTO struct {
	CategoryID     string                `json:"categoryId"`
	SubCategory    string                `json:"subCategory" validate:"required_with=CategoryID"`
	ProductID      string                `json:"productId" validate:"required"`
	Name           string                `json:"name"`
	Description    string                `json:"description"`
	Image          string                `json:"image"`
	Price          *decimal.Decimal      `json:"price" validate:"required_without=CategoryID"`
	Quantity       int                   `json:"quantity" validate:"min=1,max=100"`
	Customizations domain.Customizations `json:"customizations"`
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type CartLineDTO struct {
	ID string `json:"id"`
	domain.CartLine
	Subtotal decimal.Decimal `json:"subtotal"`
}

type PriceDisplayDTO struct {
	Subtotal string `json:"subtotal"`
	Delivery string `json:"delivery"`
	Total    string `json:"total"`
}

type CartResponseDTO struct {
	Lines         []CartLineDTO    `json:"lines"`
	TotalItems    int              `json:"totalItems"`
	TotalPrice    decimal.Decimal  `json:"totalPrice"`
	OrderType     domain.OrderType `json:"orderType"`
	Summary       service.Summary  `json:"summary"`
	SubtotalLabel string           `json:"subtotalLabel"`
	Display       PriceDisplayDTO  `json:"display"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r.Context())
	if sess == nil {
		respondError(w, r, http.StatusUnauthorized, "no_session", "missing session")
		return
	}

	orderType := domain.OrderType(r.URL.Query().Get("orderType"))
	if orderType == "" {
		orderType = domain.OrderTypePickup
	}
	if !orderType.Valid() {
		respondError(w, r, http.StatusBadRequest, "invalid_order_type", "orderType must be delivery or pickup")
		return
	}

	respondJSON(w, r, http.StatusOK, h.cartResponse(sess, orderType))
}

func (h *CartHandler) AddLine(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess := getSession(r.Context())
	if sess == nil {
		respondError(w, r, http.StatusUnauthorized, "no_session", "missing session")
		return
	}

	var req AddLineRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	line := domain.CartLine{
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		Customizations: req.Customizations,
	}
	if req.CategoryID != "" {
		item, err := h.catalog.FindItem(ctx, req.CategoryID, req.SubCategory, req.ProductID)
		if err != nil {
			handleServiceError(w, r, h.log, err)
			return
		}
		if err := item.Options.Allows(req.Customizations); err != nil {
			respondErrorDetails(w, r, http.StatusBadRequest, "invalid_customization", "customization not offered", err.Error())
			return
		}
		line.Name = item.Name
		line.Description = item.Description
		line.Image = item.Image
		line.UnitPrice = item.Price
		line.Customizations = req.Customizations.WithDefaults(item.Options.Defaults())
	} else {
		if req.Price.IsNegative() {
			respondError(w, r, http.StatusBadRequest, "invalid_price", "price must not be negative")
			return
		}
		line.Name = req.Name
		line.Description = req.Description
		line.Image = req.Image
		line.UnitPrice = *req.Price
	}

	sess.Cart.AddLine(ctx, line)
	respondJSON(w, r, http.StatusCreated, h.cartResponse(sess, domain.OrderTypePickup))
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r.Context())
	if sess == nil {
		respondError(w, r, http.StatusUnauthorized, "no_session", "missing session")
		return
	}

	line, ok := sess.Cart.Lookup(chi.URLParam(r, "line_id"))
	if !ok {
		respondError(w, r, http.StatusNotFound, "not_found", "cart line not found")
		return
	}

	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := sess.Cart.UpdateQuantity(r.Context(), line.Key(), *req.Quantity); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, r, http.StatusOK, h.cartResponse(sess, domain.OrderTypePickup))
}

func (h *CartHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r.Context())
	if sess == nil {
		respondError(w, r, http.StatusUnauthorized, "no_session", "missing session")
		return
	}

	line, ok := sess.Cart.Lookup(chi.URLParam(r, "line_id"))
	if !ok {
		respondError(w, r, http.StatusNotFound, "not_found", "cart line not found")
		return
	}
	if err := sess.Cart.RemoveLine(r.Context(), line.Key()); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, r, http.StatusOK, h.cartResponse(sess, domain.OrderTypePickup))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r.Context())
	if sess == nil {
		respondError(w, r, http.StatusUnauthorized, "no_session", "missing session")
		return
	}

	sess.Cart.Clear(r.Context())
	respondJSON(w, r, http.StatusOK, h.cartResponse(sess, domain.OrderTypePickup))
}

func (h *CartHandler) cartResponse(sess *session.Session, orderType domain.OrderType) CartResponseDTO {
	lines := sess.Cart.Lines()
	dto := CartResponseDTO{
		Lines:      make([]CartLineDTO, 0, len(lines)),
		TotalItems: sess.Cart.TotalItemCount(),
		TotalPrice: sess.Cart.TotalPrice(),
		OrderType:  orderType,
		Summary:    h.orders.Summary(sess, orderType),
	}
	for _, l := range lines {
		dto.Lines = append(dto.Lines, CartLineDTO{
			ID:       l.Key().ID(),
			CartLine: l,
			Subtotal: l.Subtotal(),
		})
	}
	dto.SubtotalLabel = dto.Summary.SubtotalLabel()
	dto.Display = PriceDisplayDTO{
		Subtotal: domain.FormatPrice(dto.Summary.Subtotal),
		Delivery: domain.FormatPrice(dto.Summary.Delivery),
		Total:    domain.FormatPrice(dto.Summary.Total),
	}
	return dto
}

// decodeJSON reads and validates the request body, answering 400 itself
// when it cannot.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		respondErrorDetails(w, r, http.StatusBadRequest, "validation_failed", "invalid request", err.Error())
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		getLogger(r.Context()).WithError(err).Error("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondErrorDetails(w, r, status, code, message, "")
}

func respondErrorDetails(w http.ResponseWriter, r *http.Request, status int, code, message, details string) {
	respondJSON(w, r, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// handleServiceError maps service and backend errors to HTTP status codes.
func handleServiceError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	var apiErr *backend.APIError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, r, http.StatusGatewayTimeout, "timeout", "backend did not answer in time")
	case errors.Is(err, cart.ErrLineNotFound):
		respondError(w, r, http.StatusNotFound, "not_found", "cart line not found")
	case errors.Is(err, service.ErrItemNotFound):
		respondError(w, r, http.StatusNotFound, "not_found", "item not found")
	case errors.Is(err, service.ErrEmptyCart):
		respondError(w, r, http.StatusConflict, "empty_cart", err.Error())
	case errors.Is(err, service.ErrInvalidPhone):
		respondError(w, r, http.StatusBadRequest, "invalid_phone", err.Error())
	case errors.Is(err, service.ErrInvalidOrderType):
		respondError(w, r, http.StatusBadRequest, "invalid_order_type", err.Error())
	case errors.Is(err, service.ErrAddressRequired):
		respondError(w, r, http.StatusBadRequest, "address_required", err.Error())
	case errors.Is(err, backend.ErrUnavailable):
		respondError(w, r, http.StatusServiceUnavailable, "service_unavailable", "backend temporarily unavailable")
	case backend.IsNotFound(err):
		respondError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &apiErr):
		respondError(w, r, http.StatusBadGateway, "backend_error", apiErr.Message)
	default:
		logger.WithTrace(r.Context(), log).WithError(err).WithField("request_id", getRequestID(r.Context())).Error("request failed")
		respondError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
