package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/youquan/minishop/internal/lib/api"
	"github.com/youquan/minishop/internal/service"
)

// ListProductsHandler обрабатывает GET /products?category_id=&page=&limit=
func ListProductsHandler(log *slog.Logger, catalogService service.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListProductsHandler"
		logger := log.With(slog.String("op", op))

		var categoryID *int64
		if raw := r.URL.Query().Get("category_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				api.Error(w, http.StatusBadRequest, "invalid category_id")
				return
			}
			categoryID = &id
		}

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		products, err := catalogService.Products(r.Context(), categoryID, page, limit)
		if err != nil {
			logger.Error("failed to list products", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, products, "")
	}
}

// ProductDetailHandler обрабатывает GET /products/{id}
func ProductDetailHandler(log *slog.Logger, catalogService service.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ProductDetailHandler"
		logger := log.With(slog.String("op", op))

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid product id")
			return
		}

		product, err := catalogService.Product(r.Context(), id)
		if err != nil {
			logger.Warn("failed to get product", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, product, "")
	}
}

// ProductSpecsHandler обрабатывает GET /products/{id}/specs
func ProductSpecsHandler(log *slog.Logger, catalogService service.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ProductSpecsHandler"
		logger := log.With(slog.String("op", op))

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid product id")
			return
		}

		specs, err := catalogService.Specs(r.Context(), id)
		if err != nil {
			logger.Warn("failed to get product specs", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, specs, "")
	}
}

// ListCategoriesHandler обрабатывает GET /categories
func ListCategoriesHandler(log *slog.Logger, catalogService service.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListCategoriesHandler"
		logger := log.With(slog.String("op", op))

		categories, err := catalogService.Categories(r.Context())
		if err != nil {
			logger.Error("failed to list categories", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, categories, "")
	}
}
