package service

import (
	"context"
	"errors"
	"log/slog"

	"shopcore/internal/payment"
)

type EventVerifier interface {
	VerifyEvent(payload []byte, sigHeader string) (*payment.Event, error)
}

// SettlementService consumes provider webhook deliveries and applies a
// confirmed payment's effects at most once per order.
type SettlementService struct {
	verifier EventVerifier
	orders   OrderStore
	catalog  ProductCatalog
}

func NewSettlementService(verifier EventVerifier, orders OrderStore, catalog ProductCatalog) *SettlementService {
	return &SettlementService{verifier: verifier, orders: orders, catalog: catalog}
}

// HandleDelivery verifies and applies one raw webhook delivery.
//
// Only a signature failure is surfaced to the caller; the provider must
// then retry. Every verified event is acknowledged, even when applying
// it fails internally, because provider redelivery is coarse-grained
// and a redelivered event would be absorbed by the status gate anyway.
func (s *SettlementService) HandleDelivery(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := s.verifier.VerifyEvent(payload, sigHeader)
	if err != nil {
		return err
	}

	if event.Type != payment.EventPaymentSucceeded {
		return nil
	}

	order, err := s.orders.FindByPaymentIntentID(ctx, event.IntentID)
	if errors.Is(err, ErrOrderNotFound) {
		// The intent may belong to another system, or the event beat
		// the order write. Not ours to fail.
		slog.Info("succeeded event for unknown payment intent", "intent_id", event.IntentID)
		return nil
	}
	if err != nil {
		slog.Error("order lookup failed during settlement", "intent_id", event.IntentID, "error", err)
		return nil
	}

	// Flip status before touching inventory. If we crash mid-decrement
	// the redelivered event is a no-op, leaving at worst a partial
	// decrement instead of a doubled one.
	flipped, err := s.orders.MarkProcessing(ctx, order.ID)
	if err != nil {
		slog.Error("status transition failed", "order_id", order.ID, "error", err)
		return nil
	}
	if !flipped {
		slog.Info("duplicate settlement event ignored", "order_id", order.ID, "intent_id", event.IntentID)
		return nil
	}

	for _, it := range order.Items {
		if err := s.catalog.DecrementInventory(ctx, it.ProductID, it.Quantity); err != nil {
			slog.Error("inventory decrement failed",
				"order_id", order.ID, "product_id", it.ProductID, "quantity", it.Quantity, "error", err)
		}
	}

	slog.Info("order settled", "order_id", order.ID, "intent_id", event.IntentID)
	return nil
}
