package service

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultOrdersTTL is shorter than the catalog ttl because order status moves.
	DefaultOrdersTTL = 30 * time.Second

	DefaultFetchTimeout = 15 * time.Second
)

var ErrItemNotFound = errors.New("item not found")

type CatalogService struct {
	backend   Backend
	cache     cache.Cache
	ordersTTL    time.Duration
	fetchTimeout time.Duration
	sfg          singleflight.Group // Prevents cache stampede
	log          logrus.FieldLogger
}

func NewCatalogService(backend Backend, c cache.Cache, log logrus.FieldLogger) *CatalogService {
	return &CatalogService{
		backend:      backend,
		cache:        c,
		ordersTTL:    DefaultOrdersTTL,
		fetchTimeout: DefaultFetchTimeout,
		log:          log,
	}
}

// cached serves key from the cache, or fetches it once for all concurrent
// callers and stores the result. A ttl of zero uses the cache default.
func cached[T any](ctx context.Context, s *CatalogService, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var v T
	if s.cache.Get(ctx, key, &v) {
		return v, nil
	}

	ch := s.sfg.DoChan(key, func() (interface{}, error) {
		// Shared by every waiter: detach from the caller that started it.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()

		fresh, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		if ttl > 0 {
			s.cache.SetWithTTL(fetchCtx, key, fresh, ttl)
		} else {
			s.cache.Set(fetchCtx, key, fresh)
		}
		return fresh, nil
	})

	var res interface{}
	var err error
	select {
	case r := <-ch:
		res, err = r.Val, r.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("backend fetch failed")
		var zero T
		return zero, err
	}
	return res.(T), nil
}

func (s *CatalogService) Categories(ctx context.Context) ([]domain.Category, error) {
	return cached(ctx, s, cache.CategoriesKey, 0, s.backend.Categories)
}

func (s *CatalogService) SubCategories(ctx context.Context, categoryID string) ([]domain.SubCategory, error) {
	return cached(ctx, s, cache.SubCategoriesKey(categoryID), 0, func(ctx context.Context) ([]domain.SubCategory, error) {
		return s.backend.SubCategories(ctx, categoryID)
	})
}

func (s *CatalogService) Items(ctx context.Context, categoryID, subCategory string) ([]domain.Item, error) {
	return cached(ctx, s, cache.ItemsKey(categoryID, subCategory), 0, func(ctx context.Context) ([]domain.Item, error) {
		return s.backend.Items(ctx, categoryID, subCategory)
	})
}

// FindItem looks the product up in its sub-category listing.
func (s *CatalogService) FindItem(ctx context.Context, categoryID, subCategory, productID string) (domain.Item, error) {
	items, err := s.Items(ctx, categoryID, subCategory)
	if err != nil {
		return domain.Item{}, err
	}
	for _, item := range items {
		if string(item.ID) == productID {
			return item, nil
		}
	}
	return domain.Item{}, ErrItemNotFound
}

func (s *CatalogService) UserOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	return cached(ctx, s, cache.OrdersKey(userID), s.ordersTTL, func(ctx context.Context) ([]domain.Order, error) {
		return s.backend.UserOrders(ctx, userID)
	})
}

func (s *CatalogService) Order(ctx context.Context, orderID string) (*domain.Order, error) {
	return cached(ctx, s, cache.OrderKey(orderID), s.ordersTTL, func(ctx context.Context) (*domain.Order, error) {
		return s.backend.Order(ctx, orderID)
	})
}

// InvalidateOrders drops cached order reads after a status change.
func (s *CatalogService) InvalidateOrders(ctx context.Context, userID, orderID string) {
	if userID != "" {
		s.cache.Remove(ctx, cache.OrdersKey(userID))
	}
	if orderID != "" {
		s.cache.Remove(ctx, cache.OrderKey(orderID))
	}
}
