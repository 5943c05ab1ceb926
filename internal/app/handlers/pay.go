package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/youquan/minishop/internal/jwt-new/jwtmiddleware"
	"github.com/youquan/minishop/internal/lib/api"
	"github.com/youquan/minishop/internal/service"
	"github.com/youquan/minishop/internal/wechat"
)

// PayParamsRequest — тело POST /pay/params
type PayParamsRequest struct {
	OrderNo string `json:"orderNo" validate:"required"`
}

// PayParamsHandler обрабатывает POST /pay/params
func PayParamsHandler(log *slog.Logger, paymentService service.PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.PayParamsHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		openid, ok := jwtmiddleware.OpenIDFromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req PayParamsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			api.Error(w, http.StatusBadRequest, "invalid request")
			return
		}
		if err := validate.Struct(req); err != nil {
			api.Error(w, http.StatusBadRequest, "orderNo is required")
			return
		}

		params, err := paymentService.PayParams(r.Context(), userID, openid, req.OrderNo)
		if err != nil {
			logger.Warn("failed to issue pay params", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, params, "pay params issued")
	}
}

// PayCallbackHandler обрабатывает POST /pay/callback — вебхук платёжного шлюза.
// Ответ всегда HTTP 200: результат обработки шлюз читает из кода в теле.
func PayCallbackHandler(log *slog.Logger, paymentService service.PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.PayCallbackHandler"
		logger := log.With(slog.String("op", op))

		body, err := io.ReadAll(r.Body)
		if err != nil {
			logger.Error("failed to read callback body", slog.Any("error", err))
			body = nil
		}

		headers := wechat.CallbackHeaders{
			Timestamp: r.Header.Get("Wechatpay-Timestamp"),
			Nonce:     r.Header.Get("Wechatpay-Nonce"),
			Signature: r.Header.Get("Wechatpay-Signature"),
			Serial:    r.Header.Get("Wechatpay-Serial"),
		}

		ack := paymentService.HandleCallback(r.Context(), headers, body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(ack)
	}
}
