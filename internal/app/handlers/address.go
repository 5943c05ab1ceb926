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

// AddressRequest — тело POST /addresses и PUT /addresses/{id}
type AddressRequest struct {
	Receiver  string `json:"receiver" validate:"required"`
	Phone     string `json:"phone" validate:"required"`
	Province  string `json:"province" validate:"required"`
	City      string `json:"city" validate:"required"`
	District  string `json:"district" validate:"required"`
	Detail    string `json:"detail" validate:"required"`
	IsDefault bool   `json:"is_default"`
}

// ListAddressesHandler обрабатывает GET /addresses
func ListAddressesHandler(log *slog.Logger, addressService service.AddressService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListAddressesHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		addresses, err := addressService.List(r.Context(), userID)
		if err != nil {
			logger.Error("failed to list addresses", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, addresses, "")
	}
}

// CreateAddressHandler обрабатывает POST /addresses
func CreateAddressHandler(log *slog.Logger, addressService service.AddressService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateAddressHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req AddressRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			api.Error(w, http.StatusBadRequest, "invalid request")
			return
		}
		if err := validate.Struct(req); err != nil {
			api.Error(w, http.StatusBadRequest, "validation error")
			return
		}

		id, err := addressService.Create(r.Context(), &models.Address{
			UserID:    userID,
			Receiver:  req.Receiver,
			Phone:     req.Phone,
			Province:  req.Province,
			City:      req.City,
			District:  req.District,
			Detail:    req.Detail,
			IsDefault: req.IsDefault,
		})
		if err != nil {
			logger.Error("failed to create address", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.Created(w, map[string]int64{"id": id}, "address created")
	}
}

// UpdateAddressHandler обрабатывает PUT /addresses/{id}
func UpdateAddressHandler(log *slog.Logger, addressService service.AddressService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateAddressHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid address id")
			return
		}

		var req AddressRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.Error(w, http.StatusBadRequest, "invalid request")
			return
		}
		if err := validate.Struct(req); err != nil {
			api.Error(w, http.StatusBadRequest, "validation error")
			return
		}

		err = addressService.Update(r.Context(), &models.Address{
			ID:        id,
			UserID:    userID,
			Receiver:  req.Receiver,
			Phone:     req.Phone,
			Province:  req.Province,
			City:      req.City,
			District:  req.District,
			Detail:    req.Detail,
			IsDefault: req.IsDefault,
		})
		if err != nil {
			logger.Warn("failed to update address", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, nil, "address updated")
	}
}

// DeleteAddressHandler обрабатывает DELETE /addresses/{id}
func DeleteAddressHandler(log *slog.Logger, addressService service.AddressService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.DeleteAddressHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid address id")
			return
		}

		if err := addressService.Delete(r.Context(), userID, id); err != nil {
			logger.Warn("failed to delete address", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, nil, "address deleted")
	}
}

// SetDefaultAddressHandler обрабатывает PUT /addresses/{id}/default
func SetDefaultAddressHandler(log *slog.Logger, addressService service.AddressService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.SetDefaultAddressHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid address id")
			return
		}

		if err := addressService.SetDefault(r.Context(), userID, id); err != nil {
			logger.Warn("failed to set default address", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, nil, "default address updated")
	}
}
