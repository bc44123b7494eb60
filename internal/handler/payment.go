package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"shopcore/internal/mw"
	"shopcore/internal/payment"
	"shopcore/internal/service"
)

const maxWebhookBody = 64 * 1024

func CheckoutHandler(checkoutSvc *service.CheckoutService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := r.Context().Value(mw.UserCtxKey).(string)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var in service.CheckoutInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		result, err := checkoutSvc.PlaceOrder(r.Context(), userID, in)
		if err != nil {
			var insufficient *service.InsufficientInventoryError
			switch {
			case errors.As(err, &insufficient):
				http.Error(w, insufficient.Error(), http.StatusBadRequest)
			case errors.Is(err, payment.ErrGateway):
				slog.Error("payment gateway failure during checkout", "user_id", userID, "error", err)
				http.Error(w, "payment provider unavailable", http.StatusBadGateway)
			default:
				slog.Error("checkout failed", "user_id", userID, "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// WebhookHandler is the provider-facing settlement entry point. It is
// deliberately outside session auth; the only trust anchor is the
// signature header.
func WebhookHandler(settlementSvc *service.SettlementService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}

		err = settlementSvc.HandleDelivery(r.Context(), body, r.Header.Get("Stripe-Signature"))
		if err != nil {
			if errors.Is(err, payment.ErrInvalidSignature) {
				http.Error(w, "webhook signature verification failed", http.StatusBadRequest)
				return
			}
			slog.Error("webhook handling failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}
