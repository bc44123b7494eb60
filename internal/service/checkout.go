package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shopcore/internal/model"
	"shopcore/internal/payment"
)

// ProductCatalog is the catalog surface the settlement flow consumes:
// reads at assembly time, atomic decrements at settlement time.
type ProductCatalog interface {
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	DecrementInventory(ctx context.Context, id string, qty int) error
}

// OrderStore persists orders and owns the status transition gate.
type OrderStore interface {
	Create(ctx context.Context, o *model.Order) error
	FindByPaymentIntentID(ctx context.Context, intentID string) (*model.Order, error)
	MarkProcessing(ctx context.Context, orderID string) (bool, error)
}

type IntentCreator interface {
	CreateIntent(ctx context.Context, amountMinorUnits int64, currency string, metadata map[string]string) (*payment.Intent, error)
}

// InsufficientInventoryError names the offending product so the client
// can adjust its cart. Raised for missing products as well, with a
// best-effort name.
type InsufficientInventoryError struct {
	ProductName string
}

func (e *InsufficientInventoryError) Error() string {
	return "insufficient inventory for product: " + e.ProductName
}

type CheckoutItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CheckoutInput struct {
	Items           []CheckoutItem  `json:"items"`
	ShippingAddress json.RawMessage `json:"shipping_address"`
}

type CheckoutResult struct {
	ClientSecret string `json:"client_secret"`
	OrderID      string `json:"order_id"`
}

type CheckoutService struct {
	catalog  ProductCatalog
	orders   OrderStore
	gateway  IntentCreator
	currency string
}

func NewCheckoutService(catalog ProductCatalog, orders OrderStore, gateway IntentCreator, currency string) *CheckoutService {
	return &CheckoutService{catalog: catalog, orders: orders, gateway: gateway, currency: currency}
}

// PlaceOrder turns a cart into a priced pending order plus a payment
// handle. Every line is validated before any side effect: a single
// missing or out-of-stock product aborts the whole assembly, so no
// payment intent is requested and no order row is written.
func (s *CheckoutService) PlaceOrder(ctx context.Context, userID string, in CheckoutInput) (*CheckoutResult, error) {
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("empty cart")
	}

	total := decimal.Zero
	items := make([]model.OrderItem, 0, len(in.Items))

	for _, line := range in.Items {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("invalid quantity for product %s", line.ProductID)
		}

		p, err := s.catalog.GetProduct(ctx, line.ProductID)
		if errors.Is(err, ErrProductNotFound) {
			return nil, &InsufficientInventoryError{ProductName: "Unknown"}
		}
		if err != nil {
			return nil, fmt.Errorf("fetch product: %w", err)
		}
		if p.Inventory < line.Quantity {
			return nil, &InsufficientInventoryError{ProductName: p.Name}
		}

		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		items = append(items, model.OrderItem{
			ProductID: p.ID,
			Quantity:  line.Quantity,
			UnitPrice: p.Price,
		})
	}

	intent, err := s.gateway.CreateIntent(ctx, toMinorUnits(total), s.currency, map[string]string{
		"user_id":    userID,
		"item_count": strconv.Itoa(len(items)),
	})
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	order := &model.Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		Items:           items,
		TotalAmount:     total,
		PaymentIntentID: intent.ID,
		ShippingAddress: in.ShippingAddress,
		Status:          model.OrderStatusPending,
		CreatedAt:       time.Now(),
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	return &CheckoutResult{ClientSecret: intent.ClientSecret, OrderID: order.ID}, nil
}

// toMinorUnits rounds a decimal amount to integer minor currency units
// (cents) the way the provider expects.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
