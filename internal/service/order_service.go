package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/session"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// fallback order number when the backend answers without one
const unknownOrderNumber = "PENDING"

var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrInvalidOrderType = errors.New("order type must be delivery or pickup")
	ErrAddressRequired  = errors.New("delivery address is required for delivery orders")
)

type PlaceOrderRequest struct {
	OrderType       domain.OrderType
	Phone           string
	DeliveryAddress *domain.DeliveryAddress
}

// Confirmation is what the customer sees after a successful order.
type Confirmation struct {
	OrderID     string             `json:"orderId"`
	OrderNumber string             `json:"orderNumber"`
	Status      domain.OrderStatus `json:"status"`
	OrderType   domain.OrderType   `json:"orderType"`
	Summary     Summary            `json:"summary"`
	Items       []domain.OrderItem `json:"items"`
}

type OrderService struct {
	backend     Backend
	cache       cache.Cache
	deliveryFee decimal.Decimal
	phonePrefix string
	log         logrus.FieldLogger
}

func NewOrderService(backend Backend, c cache.Cache, deliveryFee decimal.Decimal, phonePrefix string, log logrus.FieldLogger) *OrderService {
	if phonePrefix == "" {
		phonePrefix = DefaultPhonePrefix
	}
	return &OrderService{
		backend:     backend,
		cache:       c,
		deliveryFee: deliveryFee,
		phonePrefix: phonePrefix,
		log:         log,
	}
}

func (s *OrderService) DeliveryFee() decimal.Decimal { return s.deliveryFee }

func (s *OrderService) Summary(sess *session.Session, orderType domain.OrderType) Summary {
	return CalculateSummary(sess.Cart.Lines(), orderType, s.deliveryFee)
}

// PlaceOrder posts the session's cart as a cash order. The cart is cleared
// only after the backend accepts the order; on failure it is left untouched.
func (s *OrderService) PlaceOrder(ctx context.Context, sess *session.Session, req PlaceOrderRequest) (*Confirmation, error) {
	if !req.OrderType.Valid() {
		return nil, ErrInvalidOrderType
	}
	lines := sess.Cart.Lines()
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	userID, err := NormalizePhone(req.Phone, s.phonePrefix)
	if err != nil {
		return nil, err
	}
	log := logger.WithTrace(ctx, s.log).WithFields(logrus.Fields{"session": sess.ID, "user_id": userID})

	if err := sess.SetIdentity(ctx, req.Phone, userID); err != nil {
		log.WithError(err).Warn("failed to remember phone")
	}

	var address *domain.DeliveryAddress
	if req.OrderType == domain.OrderTypeDelivery {
		address = req.DeliveryAddress
		if address == nil {
			address = sess.DeliveryAddress(ctx)
		} else if err := sess.SetDeliveryAddress(ctx, *address); err != nil {
			log.WithError(err).Warn("failed to remember delivery address")
		}
		if address == nil {
			return nil, ErrAddressRequired
		}
	}

	summary := CalculateSummary(lines, req.OrderType, s.deliveryFee)
	items := make([]domain.OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, domain.NewOrderItem(l))
	}

	order, err := s.backend.CreateOrder(ctx, domain.OrderRequest{
		OrderType:       req.OrderType,
		Total:           summary.Total,
		PaymentMethod:   domain.PaymentMethodCash,
		DeliveryAddress: address,
		UserID:          userID,
		Items:           items,
	})
	if err != nil {
		log.WithError(err).Error("order placement failed")
		return nil, fmt.Errorf("place order failed: %w", err)
	}

	sess.Cart.Clear(ctx)
	s.cache.Remove(ctx, cache.OrdersKey(userID))

	number := order.Number()
	if number == "" {
		number = unknownOrderNumber
	}
	status := order.Status
	if status == "" {
		status = domain.StatusPending
	}
	log.WithField("order_number", number).Info("order placed")

	return &Confirmation{
		OrderID:     string(order.ID),
		OrderNumber: number,
		Status:      status,
		OrderType:   req.OrderType,
		Summary:     summary,
		Items:       items,
	}, nil
}

// RememberPhone normalises phone and stores it on the session as the user id.
func (s *OrderService) RememberPhone(ctx context.Context, sess *session.Session, phone string) (string, error) {
	userID, err := NormalizePhone(phone, s.phonePrefix)
	if err != nil {
		return "", err
	}
	if err := sess.SetIdentity(ctx, phone, userID); err != nil {
		return "", err
	}
	return userID, nil
}

// HasPendingOrder asks the backend directly, bypassing the cache. Lookup
// failures count as no pending order.
func (s *OrderService) HasPendingOrder(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	orders, err := s.backend.UserOrders(ctx, userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("pending order check failed")
		return false
	}
	for _, o := range orders {
		if o.Pending() {
			return true
		}
	}
	return false
}
