package wechat

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	apiBaseURL = "https://api.weixin.qq.com"

	accessTokenKey = "wechat:access_token"
	jsapiTicketKey = "wechat:jsapi_ticket"
)

// APIError — ошибка WeChat API с кодом errcode
type APIError struct {
	Code    int    `json:"errcode"`
	Message string `json:"errmsg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wechat api error: %s (%d)", e.Message, e.Code)
}

// TokenResult — результат обмена кода авторизации
type TokenResult struct {
	AccessToken string `json:"access_token"`
	OpenID      string `json:"openid"`
}

// UserInfo — профиль пользователя WeChat
type UserInfo struct {
	Nickname string `json:"nickname"`
	Avatar   string `json:"headimgurl"`
}

// JSConfig — параметры подписи для JS-SDK
type JSConfig struct {
	NonceStr  string `json:"nonceStr"`
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"`
}

// OAuthClient — клиент WeChat OAuth и JS-SDK. Кэш учетных данных передаётся
// явной зависимостью, общего мутабельного состояния у клиента нет.
type OAuthClient struct {
	log        *slog.Logger
	httpClient *http.Client
	cache      *CredentialCache
	appID      string
	appSecret  string
	baseURL    string
}

func NewOAuthClient(log *slog.Logger, cache *CredentialCache, appID, appSecret string) *OAuthClient {
	return &OAuthClient{
		log:        log,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      cache,
		appID:      appID,
		appSecret:  appSecret,
		baseURL:    apiBaseURL,
	}
}

// WithBaseURL заменяет адрес API (для тестов).
func (c *OAuthClient) WithBaseURL(base string) *OAuthClient {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

func (c *OAuthClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wechat request failed: %w", err)
	}
	defer resp.Body.Close()

	return json.NewDecoder(resp.Body).Decode(out)
}

// ExchangeCode меняет код авторизации мини-программы на access_token и openid
func (c *OAuthClient) ExchangeCode(ctx context.Context, code string) (*TokenResult, error) {
	const op = "wechat.OAuthClient.ExchangeCode"

	q := url.Values{}
	q.Set("appid", c.appID)
	q.Set("secret", c.appSecret)
	q.Set("code", code)
	q.Set("grant_type", "authorization_code")

	var payload struct {
		APIError
		TokenResult
	}
	if err := c.getJSON(ctx, "/sns/oauth2/access_token", q, &payload); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if payload.Code != 0 {
		c.log.Warn("wechat access token error", slog.Int("errcode", payload.Code), slog.String("errmsg", payload.Message))
		return nil, fmt.Errorf("%s: %w", op, &payload.APIError)
	}
	return &payload.TokenResult, nil
}

// GetUserInfo запрашивает профиль пользователя по openid
func (c *OAuthClient) GetUserInfo(ctx context.Context, accessToken, openid string) (*UserInfo, error) {
	const op = "wechat.OAuthClient.GetUserInfo"

	q := url.Values{}
	q.Set("access_token", accessToken)
	q.Set("openid", openid)

	var payload struct {
		APIError
		UserInfo
	}
	if err := c.getJSON(ctx, "/sns/userinfo", q, &payload); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if payload.Code != 0 {
		c.log.Warn("wechat userinfo error", slog.Int("errcode", payload.Code), slog.String("errmsg", payload.Message))
		return nil, fmt.Errorf("%s: %w", op, &payload.APIError)
	}
	return &payload.UserInfo, nil
}

// GetAccessToken возвращает серверный access_token приложения через кэш
func (c *OAuthClient) GetAccessToken(ctx context.Context) (string, error) {
	const op = "wechat.OAuthClient.GetAccessToken"

	token, err := c.cache.GetOrRefresh(ctx, accessTokenKey, func(ctx context.Context) (*Credential, error) {
		q := url.Values{}
		q.Set("grant_type", "client_credential")
		q.Set("appid", c.appID)
		q.Set("secret", c.appSecret)

		var payload struct {
			APIError
			AccessToken string `json:"access_token"`
			ExpiresIn   int    `json:"expires_in"`
		}
		if err := c.getJSON(ctx, "/cgi-bin/token", q, &payload); err != nil {
			return nil, err
		}
		if payload.Code != 0 {
			return nil, &payload.APIError
		}
		return &Credential{
			Value:     payload.AccessToken,
			ExpiresAt: time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second),
		}, nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return token, nil
}

// GetJSAPITicket возвращает jsapi_ticket через кэш
func (c *OAuthClient) GetJSAPITicket(ctx context.Context) (string, error) {
	const op = "wechat.OAuthClient.GetJSAPITicket"

	ticket, err := c.cache.GetOrRefresh(ctx, jsapiTicketKey, func(ctx context.Context) (*Credential, error) {
		accessToken, err := c.GetAccessToken(ctx)
		if err != nil {
			return nil, err
		}

		q := url.Values{}
		q.Set("access_token", accessToken)
		q.Set("type", "jsapi")

		var payload struct {
			APIError
			Ticket    string `json:"ticket"`
			ExpiresIn int    `json:"expires_in"`
		}
		if err := c.getJSON(ctx, "/cgi-bin/ticket/getticket", q, &payload); err != nil {
			return nil, err
		}
		if payload.Code != 0 {
			return nil, &payload.APIError
		}
		return &Credential{
			Value:     payload.Ticket,
			ExpiresAt: time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second),
		}, nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return ticket, nil
}

// GetJSConfig строит подпись JS-SDK для переданного URL страницы
func (c *OAuthClient) GetJSConfig(ctx context.Context, pageURL string) (*JSConfig, error) {
	const op = "wechat.OAuthClient.GetJSConfig"

	ticket, err := c.GetJSAPITicket(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	nonceStr := randomNonce()
	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	str := fmt.Sprintf("jsapi_ticket=%s&noncestr=%s&timestamp=%s&url=%s", ticket, nonceStr, timestamp, pageURL)
	sum := sha1.Sum([]byte(str))

	return &JSConfig{
		NonceStr:  nonceStr,
		Timestamp: timestamp,
		Signature: hex.EncodeToString(sum[:]),
	}, nil
}

// VerifyServerSignature проверяет подпись запроса от сервера WeChat
// (sha1 от отсортированных token, timestamp, nonce)
func VerifyServerSignature(token, timestamp, nonce, signature string) bool {
	params := []string{token, timestamp, nonce}
	sort.Strings(params)
	sum := sha1.Sum([]byte(strings.Join(params, "")))
	return hex.EncodeToString(sum[:]) == signature
}
