package domain

import "github.com/shopspring/decimal"

type OrderType string

const (
	OrderTypeDelivery OrderType = "delivery"
	OrderTypePickup   OrderType = "pickup"
)

func (t OrderType) Valid() bool {
	return t == OrderTypeDelivery || t == OrderTypePickup
}

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "Ready for Pickup"
	StatusCompleted OrderStatus = "Completed"
	StatusCancelled OrderStatus = "cancelled"
)

const PaymentMethodCash = "cash"

type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type DeliveryAddress struct {
	Block        string    `json:"block" validate:"required"`
	Road         string    `json:"road" validate:"required"`
	Building     string    `json:"building" validate:"required"`
	Apartment    string    `json:"apartment,omitempty"`
	Instructions string    `json:"instructions,omitempty"`
	Position     *Position `json:"position,omitempty"`
}

// OrderCustomizations is the wire form; unset options are sent as null.
type OrderCustomizations struct {
	Size  *string `json:"size"`
	Milk  *string `json:"milk"`
	Shots *string `json:"shots"`
	Mixer *string `json:"mixer"`
}

type OrderItem struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Image          *string             `json:"image"`
	Description    string              `json:"description"`
	Quantity       int                 `json:"quantity"`
	Price          decimal.Decimal     `json:"price"`
	Customizations OrderCustomizations `json:"customizations"`
}

// OrderRequest is the payload posted to the backend's /orders endpoint.
type OrderRequest struct {
	OrderType       OrderType        `json:"orderType"`
	Total           decimal.Decimal  `json:"total"`
	PaymentMethod   string           `json:"paymentMethod"`
	DeliveryAddress *DeliveryAddress `json:"deliveryAddress"`
	UserID          string           `json:"userId"`
	Items           []OrderItem      `json:"items"`
}

// Order is the backend's view of a placed order.
type Order struct {
	ID          ID              `json:"id"`
	OrderNumber string          `json:"orderNumber,omitempty"`
	UserID      string          `json:"userId"`
	OrderType   OrderType       `json:"orderType"`
	Status      OrderStatus     `json:"status"`
	Total       decimal.Decimal `json:"total"`
	Items       []OrderItem     `json:"items"`
	CreatedAt   string          `json:"createdAt,omitempty"`
}

func (o Order) Pending() bool {
	return o.Status == StatusPending
}

// Number is what the customer sees: orderNumber, else id.
func (o Order) Number() string {
	if o.OrderNumber != "" {
		return o.OrderNumber
	}
	return string(o.ID)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// NewOrderItem converts a cart line into its order payload form.
func NewOrderItem(l CartLine) OrderItem {
	name := l.Name
	if name == "" {
		name = "Item #" + l.ProductID
	}
	return OrderItem{
		ID:          l.ProductID,
		Name:        name,
		Image:       optional(l.Image),
		Description: l.Description,
		Quantity:    l.Quantity,
		Price:       l.UnitPrice,
		Customizations: OrderCustomizations{
			Size:  optional(l.Customizations.Size),
			Milk:  optional(l.Customizations.Milk),
			Shots: optional(l.Customizations.Shots),
			Mixer: optional(l.Customizations.Mixer),
		},
	}
}
