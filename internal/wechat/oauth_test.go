package wechat_test

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/youquan/minishop/internal/wechat"
)

func newTestOAuthClient(t *testing.T, serverURL string) *wechat.OAuthClient {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := wechat.NewCredentialCache(rdb)
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return wechat.NewOAuthClient(log, cache, "wxtest", "secret").WithBaseURL(serverURL)
}

func TestOAuthClient_ExchangeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sns/oauth2/access_token", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "wxtest", q.Get("appid"))
		assert.Equal(t, "secret", q.Get("secret"))
		assert.Equal(t, "the-code", q.Get("code"))
		assert.Equal(t, "authorization_code", q.Get("grant_type"))
		fmt.Fprint(w, `{"access_token":"wx-at","openid":"openid-1"}`)
	}))
	defer server.Close()

	client := newTestOAuthClient(t, server.URL)

	result, err := client.ExchangeCode(context.Background(), "the-code")
	assert.NoError(t, err)
	assert.Equal(t, "wx-at", result.AccessToken)
	assert.Equal(t, "openid-1", result.OpenID)
}

func TestOAuthClient_ExchangeCode_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errcode":40029,"errmsg":"invalid code"}`)
	}))
	defer server.Close()

	client := newTestOAuthClient(t, server.URL)

	_, err := client.ExchangeCode(context.Background(), "bad-code")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid code")

	var apiErr *wechat.APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 40029, apiErr.Code)
}

func TestOAuthClient_GetUserInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sns/userinfo", r.URL.Path)
		assert.Equal(t, "wx-at", r.URL.Query().Get("access_token"))
		assert.Equal(t, "openid-1", r.URL.Query().Get("openid"))
		fmt.Fprint(w, `{"nickname":"小明","headimgurl":"https://cdn/avatar.jpg"}`)
	}))
	defer server.Close()

	client := newTestOAuthClient(t, server.URL)

	info, err := client.GetUserInfo(context.Background(), "wx-at", "openid-1")
	assert.NoError(t, err)
	assert.Equal(t, "小明", info.Nickname)
	assert.Equal(t, "https://cdn/avatar.jpg", info.Avatar)
}

func TestOAuthClient_GetAccessToken_Cached(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cgi-bin/token", r.URL.Path)
		calls++
		fmt.Fprint(w, `{"access_token":"server-at","expires_in":7200}`)
	}))
	defer server.Close()

	client := newTestOAuthClient(t, server.URL)

	token, err := client.GetAccessToken(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "server-at", token)
	assert.Equal(t, 1, calls)

	// Повторный запрос обслуживается из кэша
	token, err = client.GetAccessToken(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "server-at", token)
	assert.Equal(t, 1, calls, "second call must hit the cache, not the API")
}

func TestOAuthClient_GetJSConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cgi-bin/token":
			fmt.Fprint(w, `{"access_token":"server-at","expires_in":7200}`)
		case "/cgi-bin/ticket/getticket":
			assert.Equal(t, "jsapi", r.URL.Query().Get("type"))
			fmt.Fprint(w, `{"ticket":"the-ticket","expires_in":7200}`)
		default:
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestOAuthClient(t, server.URL)

	cfg, err := client.GetJSConfig(context.Background(), "https://shop.local/page")
	assert.NoError(t, err)
	assert.NotEmpty(t, cfg.NonceStr)
	assert.NotEmpty(t, cfg.Timestamp)

	// Подпись должна сходиться: sha1 от канонической строки jsapi_ticket…
	str := fmt.Sprintf("jsapi_ticket=%s&noncestr=%s&timestamp=%s&url=%s",
		"the-ticket", cfg.NonceStr, cfg.Timestamp, "https://shop.local/page")
	sum := sha1.Sum([]byte(str))
	assert.Equal(t, hex.EncodeToString(sum[:]), cfg.Signature)
}

func TestVerifyServerSignature(t *testing.T) {
	token, timestamp, nonce := "vtoken", "1700000000", "nonce7"

	params := []string{token, timestamp, nonce}
	sort.Strings(params)
	sum := sha1.Sum([]byte(strings.Join(params, "")))
	signature := hex.EncodeToString(sum[:])

	assert.True(t, wechat.VerifyServerSignature(token, timestamp, nonce, signature))
	assert.False(t, wechat.VerifyServerSignature(token, timestamp, nonce, "deadbeef"))
	assert.False(t, wechat.VerifyServerSignature("other", timestamp, nonce, signature))
}
