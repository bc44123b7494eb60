package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"shopcore/internal/model"
	"shopcore/internal/mw"
	"shopcore/internal/service"
)

func ListOrdersHandler(orderSvc *service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := r.Context().Value(mw.UserCtxKey).(string)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		orders, err := orderSvc.ListByUser(r.Context(), userID)
		if err != nil {
			slog.Error("list orders failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if orders == nil {
			orders = []model.Order{}
		}

		writeJSON(w, http.StatusOK, orders)
	}
}

func GetOrderHandler(orderSvc *service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := r.Context().Value(mw.UserCtxKey).(string)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		// Scoping the lookup to the caller makes another user's order
		// indistinguishable from a missing one.
		order, err := orderSvc.FindForUser(r.Context(), userID, chi.URLParam(r, "id"))
		if err != nil {
			switch {
			case errors.Is(err, service.ErrOrderNotFound):
				http.Error(w, "order not found", http.StatusNotFound)
			default:
				slog.Error("get order failed", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusOK, order)
	}
}
