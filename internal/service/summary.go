package service

import (
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// Summary is the price breakdown shown before an order is placed.
type Summary struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Delivery   decimal.Decimal `json:"delivery"`
	Total      decimal.Decimal `json:"total"`
	TotalItems int             `json:"totalItems"`
}

// CalculateSummary charges deliveryFee only for delivery orders.
func CalculateSummary(lines []domain.CartLine, orderType domain.OrderType, deliveryFee decimal.Decimal) Summary {
	s := Summary{Subtotal: decimal.Zero, Delivery: decimal.Zero}
	for _, l := range lines {
		s.Subtotal = s.Subtotal.Add(l.Subtotal())
		s.TotalItems += l.Quantity
	}
	if orderType == domain.OrderTypeDelivery {
		s.Delivery = deliveryFee
	}
	s.Total = s.Subtotal.Add(s.Delivery)
	return s
}

func (s Summary) SubtotalLabel() string {
	noun := "items"
	if s.TotalItems == 1 {
		noun = "item"
	}
	return fmt.Sprintf("Subtotal (%d %s)", s.TotalItems, noun)
}
