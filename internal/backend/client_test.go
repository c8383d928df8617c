package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T, r chi.Router) *Client {
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 5*time.Second)
}

func TestCategoriesAndItems(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/categories", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"id":1,"name":"Coffee"}]`))
	})
	r.Get("/categories/{id}/sub", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", chi.URLParam(r, "id"))
		w.Write([]byte(`[{"id":"s1","name":"Hot Drinks"}]`))
	})
	r.Get("/categories/{id}/{sub}/items", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Hot Drinks", chi.URLParam(r, "sub"))
		w.Write([]byte(`[{"id":9,"name":"Latte","price":1.5,"options":{"sizes":"Small,Large"}}]`))
	})
	c := newTestBackend(t, r)
	ctx := context.Background()

	cats, err := c.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Category{{ID: "1", Name: "Coffee"}}, cats)

	subs, err := c.SubCategories(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Hot Drinks", subs[0].Name)

	items, err := c.Items(ctx, "1", "Hot Drinks")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Price.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, domain.OptionValues{"Small", "Large"}, items[0].Options.Sizes)
}

func TestCreateOrder_PostsPayload(t *testing.T) {
	var got domain.OrderRequest
	var raw map[string]interface{}
	r := chi.NewRouter()
	r.Post("/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &got))
		assert.NoError(t, json.Unmarshal(body, &raw))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":12,"orderNumber":"U-12","status":"pending"}`))
	})
	c := newTestBackend(t, r)

	order, err := c.CreateOrder(context.Background(), domain.OrderRequest{
		OrderType:     domain.OrderTypePickup,
		Total:         decimal.RequireFromString("3.5"),
		PaymentMethod: domain.PaymentMethodCash,
		UserID:        "+97333334444",
		Items:         []domain.OrderItem{{ID: "9", Name: "Latte", Quantity: 1, Price: decimal.RequireFromString("3.5")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "U-12", order.Number())
	assert.Equal(t, domain.StatusPending, order.Status)
	assert.Equal(t, "+97333334444", got.UserID)
	assert.Len(t, got.Items, 1)

	assert.Equal(t, 3.5, raw["total"])
	items, ok := raw["items"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, 3.5, items[0].(map[string]interface{})["price"])
}

func TestCreateOrder_OrderNumberError(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/orders", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"null value in column \"order_number\""}`))
	})
	c := newTestBackend(t, r)

	_, err := c.CreateOrder(context.Background(), domain.OrderRequest{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Contains(t, apiErr.Message, "Missing order number")
}

func TestErrors(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"order not found"}`))
	})
	r.Get("/orders/user/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`<html>bad gateway</html>`))
	})
	r.Get("/categories", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{not json`))
	})
	c := newTestBackend(t, r)
	ctx := context.Background()

	_, err := c.Order(ctx, "404")
	assert.True(t, IsNotFound(err))
	assert.ErrorContains(t, err, "order not found")

	_, err = c.UserOrders(ctx, "+973")
	assert.False(t, IsNotFound(err))
	assert.ErrorContains(t, err, "HTTP error! status: 502")

	_, err = c.Categories(ctx)
	assert.ErrorContains(t, err, "decode /categories response failed")
}

func TestUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewClient(srv.URL, time.Second)

	_, err := c.Categories(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GET /categories failed")
}

func TestCircuitBreaker_OpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	r := chi.NewRouter()
	r.Get("/categories", func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := newTestBackend(t, r)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := c.Categories(ctx)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
	}

	_, err := c.Categories(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(5), calls.Load())
}

func TestCircuitBreaker_IgnoresClientErrors(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	c := newTestBackend(t, r)

	for i := 0; i < 10; i++ {
		_, err := c.Order(context.Background(), "1")
		require.True(t, IsNotFound(err))
	}
}
