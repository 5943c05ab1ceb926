package wechat_test

import (
	"context"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/youquan/minishop/internal/wechat"
)

const testAPIv3Key = "0123456789abcdef0123456789abcdef" // 32 байта

// testKeyMaterial генерирует мерчантский ключ и самоподписанный сертификат
// платформы на том же ключе, чтобы проверять подписи в обе стороны
func testKeyMaterial(t *testing.T) (*rsa.PrivateKey, []byte, []byte) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	assert.NoError(t, err)

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	assert.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "Test Platform"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	assert.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	return key, keyPEM, certPEM
}

func newTestPayClient(t *testing.T) (*wechat.PayClient, *rsa.PrivateKey) {
	t.Helper()
	key, keyPEM, certPEM := testKeyMaterial(t)

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	client, err := wechat.NewPayClient(log, "wxtest", "mch123", "SERIAL1", testAPIv3Key,
		keyPEM, certPEM, "https://shop.local/v1/pay/callback")
	assert.NoError(t, err)
	return client, key
}

func TestPayClient_CreateJSAPITransaction(t *testing.T) {
	client, _ := newTestPayClient(t)

	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"prepay_id":"prepay-abc"}`)
	}))
	defer server.Close()

	prepayID, err := client.WithBaseURL(server.URL).CreateJSAPITransaction(
		context.Background(), "WX1", "订单支付-WX1", 5990, "openid-1")
	assert.NoError(t, err)
	assert.Equal(t, "prepay-abc", prepayID)

	assert.True(t, strings.HasPrefix(gotAuth, "WECHATPAY2-SHA256-RSA2048 "), "authorization scheme mismatch: %s", gotAuth)
	assert.Contains(t, gotAuth, `mchid="mch123"`)
	assert.Contains(t, gotAuth, `serial_no="SERIAL1"`)

	assert.Equal(t, "WX1", gotBody["out_trade_no"])
	assert.Equal(t, "https://shop.local/v1/pay/callback", gotBody["notify_url"])
	amount := gotBody["amount"].(map[string]any)
	assert.Equal(t, float64(5990), amount["total"])
	assert.Equal(t, "CNY", amount["currency"])
}

func TestPayClient_CreateJSAPITransaction_RetriesOnGatewayError(t *testing.T) {
	client, _ := newTestPayClient(t)

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"code":"SYSTEM_ERROR","message":"try later"}`)
			return
		}
		fmt.Fprint(w, `{"prepay_id":"prepay-after-retry"}`)
	}))
	defer server.Close()

	prepayID, err := client.WithBaseURL(server.URL).CreateJSAPITransaction(
		context.Background(), "WX1", "订单支付-WX1", 100, "openid-1")
	assert.NoError(t, err)
	assert.Equal(t, "prepay-after-retry", prepayID)
	assert.Equal(t, 3, attempts)
}

func TestPayClient_CreateJSAPITransaction_GivesUpAfterMaxAttempts(t *testing.T) {
	client, _ := newTestPayClient(t)

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"code":"SYSTEM_ERROR","message":"try later"}`)
	}))
	defer server.Close()

	_, err := client.WithBaseURL(server.URL).CreateJSAPITransaction(
		context.Background(), "WX1", "订单支付-WX1", 100, "openid-1")
	assert.Error(t, err)
	assert.Equal(t, 3, attempts, "exactly three attempts should be made")
}

func TestPayClient_CreateJSAPITransaction_NoRetryOnGatewayRejection(t *testing.T) {
	client, _ := newTestPayClient(t)

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":"PARAM_ERROR","message":"invalid openid"}`)
	}))
	defer server.Close()

	_, err := client.WithBaseURL(server.URL).CreateJSAPITransaction(
		context.Background(), "WX1", "订单支付-WX1", 100, "openid-1")
	assert.Error(t, err)
	assert.Equal(t, 1, attempts, "business rejection must not be retried")

	var gwErr *wechat.GatewayError
	assert.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "PARAM_ERROR", gwErr.Code)
	assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
}

func TestPayClient_BuildClientParams(t *testing.T) {
	client, key := newTestPayClient(t)

	params, err := client.BuildClientParams("prepay-abc")
	assert.NoError(t, err)
	assert.Equal(t, "wxtest", params.AppID)
	assert.Equal(t, "prepay_id=prepay-abc", params.Package)
	assert.Equal(t, "RSA", params.SignType)

	// paySign должен сходиться по схеме appid\ntimestamp\nnonce\npackage\n
	message := fmt.Sprintf("%s\n%s\n%s\n%s\n", params.AppID, params.TimeStamp, params.NonceStr, params.Package)
	digest := sha256.Sum256([]byte(message))
	sig, err := base64.StdEncoding.DecodeString(params.PaySign)
	assert.NoError(t, err)
	assert.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig))
}

func signCallback(t *testing.T, key *rsa.PrivateKey, timestamp, nonce string, body []byte) string {
	t.Helper()
	message := fmt.Sprintf("%s\n%s\n%s\n", timestamp, nonce, body)
	digest := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	assert.NoError(t, err)
	return base64.StdEncoding.EncodeToString(sig)
}

func TestPayClient_VerifyCallback(t *testing.T) {
	client, key := newTestPayClient(t)

	body := []byte(`{"event_type":"TRANSACTION.SUCCESS"}`)
	headers := wechat.CallbackHeaders{
		Timestamp: "1700000000",
		Nonce:     "nonce123",
		Serial:    "SERIAL1",
	}
	headers.Signature = signCallback(t, key, headers.Timestamp, headers.Nonce, body)

	assert.NoError(t, client.VerifyCallback(headers, body))

	// Подмена тела ломает подпись
	err := client.VerifyCallback(headers, []byte(`{"event_type":"TAMPERED"}`))
	assert.ErrorIs(t, err, wechat.ErrSignatureInvalid)

	// Мусор вместо base64
	headers.Signature = "%%%not-base64%%%"
	err = client.VerifyCallback(headers, body)
	assert.ErrorIs(t, err, wechat.ErrSignatureInvalid)
}

func encryptResource(t *testing.T, trade *wechat.TradeResult, nonce, associatedData string) wechat.Resource {
	t.Helper()
	plaintext, err := json.Marshal(trade)
	assert.NoError(t, err)

	block, err := aes.NewCipher([]byte(testAPIv3Key))
	assert.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	assert.NoError(t, err)

	ciphertext := gcm.Seal(nil, []byte(nonce), plaintext, []byte(associatedData))
	return wechat.Resource{
		Ciphertext:     base64.StdEncoding.EncodeToString(ciphertext),
		AssociatedData: associatedData,
		Nonce:          nonce,
	}
}

func TestPayClient_DecryptResource(t *testing.T) {
	client, _ := newTestPayClient(t)

	res := encryptResource(t, &wechat.TradeResult{
		OutTradeNo:    "WX1",
		TransactionID: "4200001",
		TradeState:    "SUCCESS",
		SuccessTime:   "2026-08-30T12:00:00+08:00",
	}, "123456789012", "transaction")

	trade, err := client.DecryptResource(&res)
	assert.NoError(t, err)
	assert.Equal(t, "WX1", trade.OutTradeNo)
	assert.Equal(t, "SUCCESS", trade.TradeState)
}

func TestPayClient_DecryptResource_WrongKey(t *testing.T) {
	client, _ := newTestPayClient(t)

	res := encryptResource(t, &wechat.TradeResult{OutTradeNo: "WX1"}, "123456789012", "transaction")
	// Ломаем шифртекст
	res.Ciphertext = base64.StdEncoding.EncodeToString([]byte("garbage-garbage-garbage"))

	_, err := client.DecryptResource(&res)
	assert.Error(t, err)
}
