package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"shopcore/internal/model"
	"shopcore/internal/service"
)

type productListResponse struct {
	Products []model.Product `json:"products"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
}

func ListProductsHandler(catalogSvc *service.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if page < 1 {
			page = 1
		}

		products, total, err := catalogSvc.List(r.Context(), page, limit)
		if err != nil {
			slog.Error("list products failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if products == nil {
			products = []model.Product{}
		}

		writeJSON(w, http.StatusOK, productListResponse{Products: products, Total: total, Page: page})
	}
}

func GetProductHandler(catalogSvc *service.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		p, err := catalogSvc.GetProduct(r.Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrProductNotFound):
				http.Error(w, "product not found", http.StatusNotFound)
			default:
				slog.Error("get product failed", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusOK, p)
	}
}

func CreateProductHandler(catalogSvc *service.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in service.CreateProductInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if in.Name == "" || in.Price.IsNegative() || in.Inventory < 0 {
			http.Error(w, "name required, price and inventory must be non-negative", http.StatusBadRequest)
			return
		}

		p, err := catalogSvc.Create(r.Context(), in)
		if err != nil {
			slog.Error("create product failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, p)
	}
}

func UpdateProductHandler(catalogSvc *service.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var in service.UpdateProductInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if in.Price != nil && in.Price.IsNegative() {
			http.Error(w, "price must be non-negative", http.StatusBadRequest)
			return
		}
		if in.Inventory != nil && *in.Inventory < 0 {
			http.Error(w, "inventory must be non-negative", http.StatusBadRequest)
			return
		}

		p, err := catalogSvc.Update(r.Context(), id, in)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrProductNotFound):
				http.Error(w, "product not found", http.StatusNotFound)
			default:
				slog.Error("update product failed", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusOK, p)
	}
}

func DeactivateProductHandler(catalogSvc *service.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := catalogSvc.Deactivate(r.Context(), id); err != nil {
			switch {
			case errors.Is(err, service.ErrProductNotFound):
				http.Error(w, "product not found", http.StatusNotFound)
			default:
				slog.Error("deactivate product failed", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
