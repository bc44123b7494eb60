package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopcore/internal/model"
	"shopcore/internal/payment"
)

type decrementCall struct {
	productID string
	qty       int
}

type stubCatalog struct {
	mu         sync.Mutex
	products   map[string]*model.Product
	decrements []decrementCall
	decErr     error
}

func newStubCatalog(products ...*model.Product) *stubCatalog {
	m := make(map[string]*model.Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return &stubCatalog{products: m}
}

func (c *stubCatalog) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (c *stubCatalog) DecrementInventory(ctx context.Context, id string, qty int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.decErr != nil {
		return c.decErr
	}
	p, ok := c.products[id]
	if !ok {
		return ErrProductNotFound
	}
	p.Inventory -= qty
	c.decrements = append(c.decrements, decrementCall{productID: id, qty: qty})
	return nil
}

type stubOrders struct {
	mu          sync.Mutex
	created     []*model.Order
	createErr   error
	findCalls   int
	markedCalls []string
}

func (o *stubOrders) Create(ctx context.Context, order *model.Order) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.createErr != nil {
		return o.createErr
	}
	o.created = append(o.created, order)
	return nil
}

func (o *stubOrders) FindByPaymentIntentID(ctx context.Context, intentID string) (*model.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.findCalls++
	for _, ord := range o.created {
		if ord.PaymentIntentID == intentID {
			return ord, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (o *stubOrders) MarkProcessing(ctx context.Context, orderID string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.markedCalls = append(o.markedCalls, orderID)
	for _, ord := range o.created {
		if ord.ID == orderID && ord.Status == model.OrderStatusPending {
			ord.Status = model.OrderStatusProcessing
			return true, nil
		}
	}
	return false, nil
}

type intentCall struct {
	amount   int64
	currency string
	metadata map[string]string
}

type stubGateway struct {
	calls  []intentCall
	err    error
	intent *payment.Intent
}

func (g *stubGateway) CreateIntent(ctx context.Context, amountMinorUnits int64, currency string, metadata map[string]string) (*payment.Intent, error) {
	g.calls = append(g.calls, intentCall{amount: amountMinorUnits, currency: currency, metadata: metadata})
	if g.err != nil {
		return nil, g.err
	}
	return g.intent, nil
}

func product(id, name, price string, inventory int) *model.Product {
	return &model.Product{
		ID:        id,
		Name:      name,
		Price:     decimal.RequireFromString(price),
		Inventory: inventory,
		IsActive:  true,
	}
}

func TestPlaceOrder_Success(t *testing.T) {
	catalog := newStubCatalog(product("P1", "Coffee", "10.00", 5))
	orders := &stubOrders{}
	gateway := &stubGateway{intent: &payment.Intent{ID: "pi_1", ClientSecret: "pi_1_secret"}}
	svc := NewCheckoutService(catalog, orders, gateway, "usd")

	result, err := svc.PlaceOrder(context.Background(), "user-1", CheckoutInput{
		Items: []CheckoutItem{{ProductID: "P1", Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret", result.ClientSecret)

	require.Len(t, orders.created, 1)
	order := orders.created[0]
	assert.Equal(t, result.OrderID, order.ID)
	assert.Equal(t, "user-1", order.UserID)
	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.Equal(t, "pi_1", order.PaymentIntentID)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("20.00")),
		"total %s", order.TotalAmount)

	require.Len(t, order.Items, 1)
	assert.True(t, order.Items[0].UnitPrice.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, 2, order.Items[0].Quantity)

	require.Len(t, gateway.calls, 1)
	assert.Equal(t, int64(2000), gateway.calls[0].amount)
	assert.Equal(t, "usd", gateway.calls[0].currency)
	assert.Equal(t, "user-1", gateway.calls[0].metadata["user_id"])
}

func TestPlaceOrder_ExactDecimalTotal(t *testing.T) {
	// 3 x 19.99 must come out as 59.97 / 5997 cents, not a float
	// artifact.
	catalog := newStubCatalog(product("P1", "Watch", "19.99", 10))
	orders := &stubOrders{}
	gateway := &stubGateway{intent: &payment.Intent{ID: "pi_1", ClientSecret: "s"}}
	svc := NewCheckoutService(catalog, orders, gateway, "usd")

	_, err := svc.PlaceOrder(context.Background(), "user-1", CheckoutInput{
		Items: []CheckoutItem{{ProductID: "P1", Quantity: 3}},
	})
	require.NoError(t, err)
	assert.True(t, orders.created[0].TotalAmount.Equal(decimal.RequireFromString("59.97")))
	assert.Equal(t, int64(5997), gateway.calls[0].amount)
}

func TestPlaceOrder_InsufficientInventory(t *testing.T) {
	catalog := newStubCatalog(product("P2", "Bottle", "34.99", 3))
	orders := &stubOrders{}
	gateway := &stubGateway{intent: &payment.Intent{ID: "pi_1", ClientSecret: "s"}}
	svc := NewCheckoutService(catalog, orders, gateway, "usd")

	_, err := svc.PlaceOrder(context.Background(), "user-1", CheckoutInput{
		Items: []CheckoutItem{{ProductID: "P2", Quantity: 10}},
	})

	var insufficient *InsufficientInventoryError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "Bottle", insufficient.ProductName)
	assert.Empty(t, orders.created, "no order may be persisted on a declined cart")
	assert.Empty(t, gateway.calls, "no payment intent may be requested on a declined cart")
}

func TestPlaceOrder_MissingProduct(t *testing.T) {
	catalog := newStubCatalog()
	orders := &stubOrders{}
	gateway := &stubGateway{intent: &payment.Intent{ID: "pi_1", ClientSecret: "s"}}
	svc := NewCheckoutService(catalog, orders, gateway, "usd")

	_, err := svc.PlaceOrder(context.Background(), "user-1", CheckoutInput{
		Items: []CheckoutItem{{ProductID: "nope", Quantity: 1}},
	})

	var insufficient *InsufficientInventoryError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "Unknown", insufficient.ProductName)
	assert.Empty(t, orders.created)
	assert.Empty(t, gateway.calls)
}

func TestPlaceOrder_AllOrNothing(t *testing.T) {
	// A failing second line aborts the whole cart before the gateway is
	// touched, even though the first line was fine.
	catalog := newStubCatalog(
		product("P1", "Coffee", "10.00", 5),
		product("P2", "Bottle", "34.99", 1),
	)
	orders := &stubOrders{}
	gateway := &stubGateway{intent: &payment.Intent{ID: "pi_1", ClientSecret: "s"}}
	svc := NewCheckoutService(catalog, orders, gateway, "usd")

	_, err := svc.PlaceOrder(context.Background(), "user-1", CheckoutInput{
		Items: []CheckoutItem{
			{ProductID: "P1", Quantity: 2},
			{ProductID: "P2", Quantity: 2},
		},
	})

	var insufficient *InsufficientInventoryError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "Bottle", insufficient.ProductName)
	assert.Empty(t, orders.created)
	assert.Empty(t, gateway.calls)
}

func TestPlaceOrder_GatewayFailure(t *testing.T) {
	catalog := newStubCatalog(product("P1", "Coffee", "10.00", 5))
	orders := &stubOrders{}
	gateway := &stubGateway{err: payment.ErrGateway}
	svc := NewCheckoutService(catalog, orders, gateway, "usd")

	_, err := svc.PlaceOrder(context.Background(), "user-1", CheckoutInput{
		Items: []CheckoutItem{{ProductID: "P1", Quantity: 1}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, payment.ErrGateway)
	assert.Empty(t, orders.created, "gateway failure must not leave a partial order")
}

func TestPlaceOrder_InvalidInput(t *testing.T) {
	catalog := newStubCatalog(product("P1", "Coffee", "10.00", 5))
	orders := &stubOrders{}
	gateway := &stubGateway{intent: &payment.Intent{ID: "pi_1", ClientSecret: "s"}}
	svc := NewCheckoutService(catalog, orders, gateway, "usd")

	_, err := svc.PlaceOrder(context.Background(), "user-1", CheckoutInput{})
	require.Error(t, err)

	_, err = svc.PlaceOrder(context.Background(), "user-1", CheckoutInput{
		Items: []CheckoutItem{{ProductID: "P1", Quantity: 0}},
	})
	require.Error(t, err)

	assert.Empty(t, orders.created)
	assert.Empty(t, gateway.calls)
}

func TestPlaceOrder_PriceSnapshotIsolation(t *testing.T) {
	catalog := newStubCatalog(product("P1", "Coffee", "10.00", 5))
	orders := &stubOrders{}
	gateway := &stubGateway{intent: &payment.Intent{ID: "pi_1", ClientSecret: "s"}}
	svc := NewCheckoutService(catalog, orders, gateway, "usd")

	_, err := svc.PlaceOrder(context.Background(), "user-1", CheckoutInput{
		Items: []CheckoutItem{{ProductID: "P1", Quantity: 1}},
	})
	require.NoError(t, err)

	// Catalog price change after assembly must not leak into the order.
	catalog.products["P1"].Price = decimal.RequireFromString("99.99")
	assert.True(t, orders.created[0].Items[0].UnitPrice.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, orders.created[0].TotalAmount.Equal(decimal.RequireFromString("10.00")))
}

func TestPlaceOrder_PersistFailure(t *testing.T) {
	catalog := newStubCatalog(product("P1", "Coffee", "10.00", 5))
	orders := &stubOrders{createErr: errors.New("db down")}
	gateway := &stubGateway{intent: &payment.Intent{ID: "pi_1", ClientSecret: "s"}}
	svc := NewCheckoutService(catalog, orders, gateway, "usd")

	_, err := svc.PlaceOrder(context.Background(), "user-1", CheckoutInput{
		Items: []CheckoutItem{{ProductID: "P1", Quantity: 1}},
	})
	require.Error(t, err)
	assert.Empty(t, orders.created)
}
