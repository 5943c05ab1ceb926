package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/youquan/minishop/internal/lib/api"
	"github.com/youquan/minishop/internal/wechat"
)

// JSConfigProvider выдаёт подпись JS-SDK для страницы
type JSConfigProvider interface {
	GetJSConfig(ctx context.Context, pageURL string) (*wechat.JSConfig, error)
}

// WechatEchoHandler обрабатывает GET /wechat/verify — echo-проверку сервера WeChat.
// Сервер WeChat присылает подпись и echostr; при совпадении подписи echostr
// возвращается как есть, plain text
func WechatEchoHandler(log *slog.Logger, token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.WechatEchoHandler"
		logger := log.With(slog.String("op", op))

		q := r.URL.Query()
		signature := q.Get("signature")
		timestamp := q.Get("timestamp")
		nonce := q.Get("nonce")
		echostr := q.Get("echostr")

		if !wechat.VerifyServerSignature(token, timestamp, nonce, signature) {
			logger.Warn("server signature mismatch")
			api.Error(w, http.StatusUnauthorized, "signature mismatch")
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(echostr))
	}
}

// JSConfigHandler обрабатывает GET /wechat/js-config?url=...
func JSConfigHandler(log *slog.Logger, provider JSConfigProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.JSConfigHandler"
		logger := log.With(slog.String("op", op))

		pageURL := r.URL.Query().Get("url")
		if pageURL == "" {
			api.Error(w, http.StatusBadRequest, "url is required")
			return
		}

		cfg, err := provider.GetJSConfig(r.Context(), pageURL)
		if err != nil {
			logger.Error("failed to build js config", slog.Any("error", err))
			respondError(w, err)
			return
		}

		api.OK(w, cfg, "")
	}
}
