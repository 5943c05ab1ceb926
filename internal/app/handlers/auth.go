package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/youquan/minishop/internal/jwt-new/jwtmiddleware"
	"github.com/youquan/minishop/internal/lib/api"
	"github.com/youquan/minishop/internal/service"
)

// LoginRequest — тело POST /auth/login
type LoginRequest struct {
	Code string `json:"code" validate:"required"`
}

// LoginHandler обрабатывает POST /auth/login — вход по коду авторизации WeChat
func LoginHandler(log *slog.Logger, authService service.AuthServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.LoginHandler"
		logger := log.With(slog.String("op", op))

		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			api.Error(w, http.StatusBadRequest, "invalid request")
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			api.Error(w, http.StatusBadRequest, "code is required")
			return
		}

		result, err := authService.Login(r.Context(), req.Code)
		if err != nil {
			logger.Error("login failed", slog.Any("error", err))
			api.Error(w, http.StatusUnauthorized, "login failed")
			return
		}

		api.OK(w, result, "login successful")
	}
}

// TestLoginHandler обрабатывает POST /auth/test-login — вход без мини-программы
func TestLoginHandler(log *slog.Logger, authService service.AuthServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.TestLoginHandler"
		logger := log.With(slog.String("op", op))

		result, err := authService.TestLogin(r.Context())
		if err != nil {
			logger.Error("test login failed", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, result, "test login successful")
	}
}

// LogoutHandler обрабатывает POST /auth/logout
func LogoutHandler(log *slog.Logger, authService service.AuthServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.LogoutHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		if err := authService.Logout(r.Context(), userID); err != nil {
			logger.Error("logout failed", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, nil, "logout successful")
	}
}

// ProfileHandler обрабатывает GET /user/profile
func ProfileHandler(log *slog.Logger, authService service.AuthServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ProfileHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		profile, err := authService.Profile(r.Context(), userID)
		if err != nil {
			logger.Error("failed to load profile", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, profile, "")
	}
}
