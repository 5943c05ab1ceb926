package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/youquan/minishop/internal/domain/models"
	"github.com/youquan/minishop/internal/jwt-new/jwtmiddleware"
	"github.com/youquan/minishop/internal/lib/api"
	"github.com/youquan/minishop/internal/service"
)

// OrderLineRequest — строка тела запроса на создание заказа
type OrderLineRequest struct {
	ProductID int64  `json:"product_id" validate:"required"`
	SpecID    *int64 `json:"spec_id"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// CreateOrderRequest — тело POST /orders
type CreateOrderRequest struct {
	Items     []OrderLineRequest `json:"items" validate:"required,min=1,dive"`
	AddressID *int64             `json:"address_id"`
}

func toLineRequests(items []OrderLineRequest) []service.LineRequest {
	lines := make([]service.LineRequest, 0, len(items))
	for _, item := range items {
		lines = append(lines, service.LineRequest{
			ProductID: item.ProductID,
			SpecID:    item.SpecID,
			Quantity:  item.Quantity,
		})
	}
	return lines
}

// CreateOrderHandler обрабатывает POST /orders
func CreateOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateOrderHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req CreateOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			api.Error(w, http.StatusBadRequest, "invalid request")
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			api.Error(w, http.StatusBadRequest, "validation error")
			return
		}

		result, err := orderService.Create(r.Context(), userID, toLineRequests(req.Items), req.AddressID)
		if err != nil {
			logger.Error("failed to create order", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, result, "order created")
	}
}

// PreviewOrderHandler обрабатывает POST /orders/preview
func PreviewOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.PreviewOrderHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req struct {
			Items []OrderLineRequest `json:"items" validate:"required,min=1,dive"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			api.Error(w, http.StatusBadRequest, "invalid request")
			return
		}
		if err := validate.Struct(req); err != nil {
			api.Error(w, http.StatusBadRequest, "validation error")
			return
		}

		result, err := orderService.Preview(r.Context(), userID, toLineRequests(req.Items))
		if err != nil {
			logger.Error("failed to build order preview", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, result, "order preview")
	}
}

// OrderDetailHandler обрабатывает GET /orders/{orderNo}
func OrderDetailHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.OrderDetailHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		orderNo := chi.URLParam(r, "orderNo")
		if orderNo == "" {
			api.Error(w, http.StatusBadRequest, "orderNo is required")
			return
		}

		order, err := orderService.Detail(r.Context(), userID, orderNo)
		if err != nil {
			logger.Warn("failed to get order detail", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, order, "")
	}
}

// statusFilter разбирает необязательный query-параметр status
func statusFilter(r *http.Request) (*models.OrderStatus, bool) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return nil, true
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, false
	}
	status := models.OrderStatus(val)
	if !status.Valid() {
		return nil, false
	}
	return &status, true
}

// ListOrdersHandler обрабатывает GET /orders?status=&page=&limit=
func ListOrdersHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListOrdersHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		status, ok := statusFilter(r)
		if !ok {
			api.Error(w, http.StatusBadRequest, "invalid status filter")
			return
		}

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		orders, err := orderService.List(r.Context(), userID, status, page, limit)
		if err != nil {
			logger.Error("failed to list orders", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, orders, "")
	}
}

// UpdateOrderAddressHandler обрабатывает PUT /orders/{orderNo}/address
func UpdateOrderAddressHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateOrderAddressHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		orderNo := chi.URLParam(r, "orderNo")

		var req struct {
			AddressID int64 `json:"addressId" validate:"required"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.Error(w, http.StatusBadRequest, "invalid request")
			return
		}
		if err := validate.Struct(req); err != nil {
			api.Error(w, http.StatusBadRequest, "validation error")
			return
		}

		if err := orderService.UpdateAddress(r.Context(), userID, orderNo, req.AddressID); err != nil {
			logger.Warn("failed to update order address", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, nil, "order address updated")
	}
}

// UpdateOrderStatusHandler обрабатывает PUT /orders/{orderNo}/status
func UpdateOrderStatusHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateOrderStatusHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		orderNo := chi.URLParam(r, "orderNo")

		var req struct {
			Status *int `json:"status" validate:"required"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.Error(w, http.StatusBadRequest, "invalid request")
			return
		}
		if err := validate.Struct(req); err != nil {
			api.Error(w, http.StatusBadRequest, "validation error")
			return
		}

		if err := orderService.UpdateStatus(r.Context(), userID, orderNo, models.OrderStatus(*req.Status)); err != nil {
			logger.Warn("failed to update order status", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, nil, "order status updated")
	}
}

// DeleteOrderHandler обрабатывает DELETE /orders/{orderNo}
func DeleteOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.DeleteOrderHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		orderNo := chi.URLParam(r, "orderNo")

		if err := orderService.Delete(r.Context(), userID, orderNo); err != nil {
			logger.Warn("failed to delete order", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, nil, "order deleted")
	}
}

// ClearOrdersHandler обрабатывает DELETE /orders
func ClearOrdersHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ClearOrdersHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		status, ok := statusFilter(r)
		if !ok {
			api.Error(w, http.StatusBadRequest, "invalid status filter")
			return
		}

		if err := orderService.Clear(r.Context(), userID, status); err != nil {
			logger.Error("failed to clear orders", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, nil, "orders cleared")
	}
}

// ShareOrderHandler обрабатывает POST /orders/{orderNo}/share
func ShareOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ShareOrderHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		orderNo := chi.URLParam(r, "orderNo")

		var req struct {
			TemplateID string `json:"templateId" validate:"required"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.Error(w, http.StatusBadRequest, "invalid request")
			return
		}
		if err := validate.Struct(req); err != nil {
			api.Error(w, http.StatusBadRequest, "validation error")
			return
		}

		result, err := orderService.Share(r.Context(), userID, orderNo, req.TemplateID)
		if err != nil {
			logger.Warn("failed to create share", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, result, "share created")
	}
}

// ShareDetailHandler обрабатывает GET /share/{shareCode} — без аутентификации
func ShareDetailHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ShareDetailHandler"
		logger := log.With(slog.String("op", op))

		shareCode := chi.URLParam(r, "shareCode")
		if shareCode == "" {
			api.Error(w, http.StatusBadRequest, "shareCode is required")
			return
		}

		order, err := orderService.ShareDetail(r.Context(), shareCode)
		if err != nil {
			logger.Warn("failed to get shared order", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, order, "")
	}
}
