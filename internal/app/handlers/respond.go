package handlers

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/youquan/minishop/internal/lib/api"
	"github.com/youquan/minishop/internal/service"
	"github.com/youquan/minishop/internal/storage"
)

var validate = validator.New()

// respondError переводит ошибку сервисного слоя в конверт ответа.
// Детали внутренних ошибок наружу не выдаются — только логируются вызывающим
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrOrderNotFound):
		api.Error(w, http.StatusNotFound, "order not found")
	case errors.Is(err, storage.ErrProductNotFound):
		api.Error(w, http.StatusNotFound, "product not found or not on sale")
	case errors.Is(err, storage.ErrAddressNotFound):
		api.Error(w, http.StatusNotFound, "address not found")
	case errors.Is(err, storage.ErrCartItemNotFound):
		api.Error(w, http.StatusNotFound, "cart item not found")
	case errors.Is(err, storage.ErrUserNotFound):
		api.Error(w, http.StatusNotFound, "user not found")
	case errors.Is(err, storage.ErrInsufficientStock):
		api.Error(w, http.StatusBadRequest, "insufficient stock")
	case errors.Is(err, service.ErrInvalidTransition):
		api.Error(w, http.StatusBadRequest, "invalid status transition")
	default:
		api.Error(w, http.StatusInternalServerError, "internal server error")
	}
}
