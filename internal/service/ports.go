package service

import (
	"context"

	"github.com/fjod/storefront/internal/domain"
)

// Backend is the part of the REST backend the storefront reads and writes.
type Backend interface {
	Categories(ctx context.Context) ([]domain.Category, error)
	SubCategories(ctx context.Context, categoryID string) ([]domain.SubCategory, error)
	Items(ctx context.Context, categoryID, subCategory string) ([]domain.Item, error)
	UserOrders(ctx context.Context, userID string) ([]domain.Order, error)
	Order(ctx context.Context, orderID string) (*domain.Order, error)
	CreateOrder(ctx context.Context, req domain.OrderRequest) (*domain.Order, error)
}
