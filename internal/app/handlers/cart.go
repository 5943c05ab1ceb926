package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/youquan/minishop/internal/jwt-new/jwtmiddleware"
	"github.com/youquan/minishop/internal/lib/api"
	"github.com/youquan/minishop/internal/service"
)

// AddToCartRequest — тело POST /cart
type AddToCartRequest struct {
	ProductID int64  `json:"product_id" validate:"required"`
	SpecID    *int64 `json:"spec_id"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// ListCartHandler обрабатывает GET /cart
func ListCartHandler(log *slog.Logger, cartService service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListCartHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		items, err := cartService.List(r.Context(), userID)
		if err != nil {
			logger.Error("failed to list cart", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, items, "")
	}
}

// AddToCartHandler обрабатывает POST /cart
func AddToCartHandler(log *slog.Logger, cartService service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.AddToCartHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req AddToCartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			api.Error(w, http.StatusBadRequest, "invalid request")
			return
		}
		if err := validate.Struct(req); err != nil {
			api.Error(w, http.StatusBadRequest, "validation error")
			return
		}

		if err := cartService.Add(r.Context(), userID, req.ProductID, req.SpecID, req.Quantity); err != nil {
			logger.Warn("failed to add to cart", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, nil, "item added to cart")
	}
}

// UpdateCartItemHandler обрабатывает PUT /cart/{id}
func UpdateCartItemHandler(log *slog.Logger, cartService service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateCartItemHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		itemID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid cart item id")
			return
		}

		var req struct {
			Quantity int `json:"quantity" validate:"required,gt=0"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.Error(w, http.StatusBadRequest, "invalid request")
			return
		}
		if err := validate.Struct(req); err != nil {
			api.Error(w, http.StatusBadRequest, "validation error")
			return
		}

		if err := cartService.UpdateQuantity(r.Context(), userID, itemID, req.Quantity); err != nil {
			logger.Warn("failed to update cart item", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, nil, "cart item updated")
	}
}

// RemoveCartItemHandler обрабатывает DELETE /cart/{id}
func RemoveCartItemHandler(log *slog.Logger, cartService service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.RemoveCartItemHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		itemID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid cart item id")
			return
		}

		if err := cartService.Remove(r.Context(), userID, itemID); err != nil {
			logger.Warn("failed to remove cart item", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, nil, "cart item removed")
	}
}

// ClearCartHandler обрабатывает DELETE /cart
func ClearCartHandler(log *slog.Logger, cartService service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ClearCartHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		if err := cartService.Clear(r.Context(), userID); err != nil {
			logger.Error("failed to clear cart", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, nil, "cart cleared")
	}
}
