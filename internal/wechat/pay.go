package wechat

import (
	"bytes"
	"context"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	payBaseURL = "https://api.mch.weixin.qq.com"
	jsapiPath  = "/v3/pay/transactions/jsapi"

	// Ограничения исходящих вызовов к шлюзу: таймаут ответа, общий дедлайн и
	// число попыток
	payResponseTimeout = 10 * time.Second
	payOverallDeadline = 30 * time.Second
	payMaxAttempts     = 3
)

var ErrSignatureInvalid = errors.New("wechat pay signature invalid")

// CallbackHeaders — заголовки подписи вебхука WeChat Pay
type CallbackHeaders struct {
	Timestamp string
	Nonce     string
	Signature string
	Serial    string
}

// Complete проверяет, что все обязательные заголовки присутствуют
func (h CallbackHeaders) Complete() bool {
	return h.Timestamp != "" && h.Nonce != "" && h.Signature != "" && h.Serial != ""
}

// Resource — зашифрованная полезная нагрузка вебхука
type Resource struct {
	Ciphertext     string `json:"ciphertext"`
	AssociatedData string `json:"associated_data"`
	Nonce          string `json:"nonce"`
}

// CallbackNotification — тело вебхука WeChat Pay
type CallbackNotification struct {
	EventType string   `json:"event_type"`
	Resource  Resource `json:"resource"`
}

// TradeResult — расшифрованные данные о платеже
type TradeResult struct {
	OutTradeNo    string `json:"out_trade_no"`
	TransactionID string `json:"transaction_id"`
	TradeState    string `json:"trade_state"`
	SuccessTime   string `json:"success_time"`
}

// GatewayError — окончательный отказ шлюза: бизнес-код в теле ответа
// (PARAM_ERROR и подобные). Повтор с теми же параметрами даст тот же отказ,
// поэтому такие ошибки не ретраятся
type GatewayError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway rejected request: %s (%s)", e.Message, e.Code)
}

// JSAPIParams — параметры вызова wx.requestPayment на стороне мини-программы
type JSAPIParams struct {
	AppID     string `json:"appId"`
	TimeStamp string `json:"timeStamp"`
	NonceStr  string `json:"nonceStr"`
	Package   string `json:"package"`
	SignType  string `json:"signType"`
	PaySign   string `json:"paySign"`
}

// PayClient — клиент WeChat Pay API v3: подпись запросов мерчантским ключом,
// проверка подписи вебхуков сертификатом платформы, расшифровка полезной
// нагрузки ключом APIv3.
type PayClient struct {
	log          *slog.Logger
	httpClient   *http.Client
	appID        string
	mchID        string
	serialNo     string
	apiV3Key     []byte
	privateKey   *rsa.PrivateKey
	platformKey  *rsa.PublicKey
	baseURL      string
	notifyURL    string
}

// NewPayClient собирает клиент из PEM-содержимого ключа мерчанта и
// сертификата платформы.
func NewPayClient(log *slog.Logger, appID, mchID, serialNo, apiV3Key string, privateKeyPEM, platformCertPEM []byte, notifyURL string) (*PayClient, error) {
	privateKey, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse merchant private key: %w", err)
	}
	platformKey, err := parseCertificatePublicKey(platformCertPEM)
	if err != nil {
		return nil, fmt.Errorf("parse platform certificate: %w", err)
	}

	return &PayClient{
		log:         log,
		httpClient:  &http.Client{Timeout: payResponseTimeout},
		appID:       appID,
		mchID:       mchID,
		serialNo:    serialNo,
		apiV3Key:    []byte(apiV3Key),
		privateKey:  privateKey,
		platformKey: platformKey,
		baseURL:     payBaseURL,
		notifyURL:   notifyURL,
	}, nil
}

// WithBaseURL заменяет адрес API (для тестов).
func (c *PayClient) WithBaseURL(base string) *PayClient {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

func parsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// старый формат
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return rsaKey, nil
}

func parseCertificatePublicKey(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, err
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("certificate public key is not RSA")
	}
	return pub, nil
}

func randomNonce() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// sign подписывает сообщение мерчантским ключом (SHA256-RSA, base64)
func (c *PayClient) sign(message string) (string, error) {
	digest := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPKCS1v15(rand.Reader, c.privateKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// authorization строит заголовок Authorization для API v3
func (c *PayClient) authorization(method, path string, body []byte) (string, error) {
	nonce := randomNonce()
	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	message := fmt.Sprintf("%s\n%s\n%s\n%s\n%s\n", method, path, timestamp, nonce, body)
	signature, err := c.sign(message)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(
		`WECHATPAY2-SHA256-RSA2048 mchid="%s",nonce_str="%s",signature="%s",timestamp="%s",serial_no="%s"`,
		c.mchID, nonce, signature, timestamp, c.serialNo,
	), nil
}

// CreateJSAPITransaction создаёт предоплату JSAPI и возвращает prepay_id.
// Вызов ограничен общим дедлайном и повторяется до payMaxAttempts раз;
// идемпотентность повторов обеспечивает out_trade_no на стороне шлюза.
func (c *PayClient) CreateJSAPITransaction(ctx context.Context, orderNo, description string, amountCents int64, openid string) (string, error) {
	const op = "wechat.PayClient.CreateJSAPITransaction"
	logger := c.log.With(slog.String("op", op), slog.String("orderNo", orderNo))

	body, err := json.Marshal(map[string]any{
		"appid":        c.appID,
		"mchid":        c.mchID,
		"description":  description,
		"out_trade_no": orderNo,
		"notify_url":   c.notifyURL,
		"amount": map[string]any{
			"total":    amountCents,
			"currency": "CNY",
		},
		"payer": map[string]any{
			"openid": openid,
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, payOverallDeadline)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= payMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%s: %w", op, ctx.Err())
		default:
		}

		prepayID, err := c.doJSAPIRequest(ctx, body)
		if err == nil {
			return prepayID, nil
		}

		// Бизнес-отказ шлюза окончателен, ретраи только на транспортных
		// ошибках и 5xx
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			logger.Warn("prepay rejected by gateway", slog.String("code", gwErr.Code), slog.Any("error", err))
			return "", fmt.Errorf("%s: %w", op, err)
		}

		lastErr = err
		logger.Warn("prepay attempt failed", slog.Int("attempt", attempt), slog.Any("error", err))
	}
	return "", fmt.Errorf("%s: %w", op, lastErr)
}

func (c *PayClient) doJSAPIRequest(ctx context.Context, body []byte) (string, error) {
	auth, err := c.authorization(http.MethodPost, jsapiPath, body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+jsapiPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", auth)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var payload struct {
		PrepayID string `json:"prepay_id"`
		Code     string `json:"code"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return "", fmt.Errorf("decode gateway response: %w", err)
	}
	if payload.PrepayID == "" {
		if resp.StatusCode >= http.StatusInternalServerError {
			return "", fmt.Errorf("gateway error: %s (%s)", payload.Message, payload.Code)
		}
		return "", &GatewayError{StatusCode: resp.StatusCode, Code: payload.Code, Message: payload.Message}
	}
	return payload.PrepayID, nil
}

// BuildClientParams формирует параметры wx.requestPayment с подписью paySign
func (c *PayClient) BuildClientParams(prepayID string) (*JSAPIParams, error) {
	nonceStr := randomNonce()
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	packageStr := "prepay_id=" + prepayID

	message := fmt.Sprintf("%s\n%s\n%s\n%s\n", c.appID, timestamp, nonceStr, packageStr)
	paySign, err := c.sign(message)
	if err != nil {
		return nil, err
	}

	return &JSAPIParams{
		AppID:     c.appID,
		TimeStamp: timestamp,
		NonceStr:  nonceStr,
		Package:   packageStr,
		SignType:  "RSA",
		PaySign:   paySign,
	}, nil
}

// VerifyCallback проверяет подпись вебхука сертификатом платформы
func (c *PayClient) VerifyCallback(headers CallbackHeaders, body []byte) error {
	if !headers.Complete() {
		return ErrSignatureInvalid
	}

	signature, err := base64.StdEncoding.DecodeString(headers.Signature)
	if err != nil {
		return ErrSignatureInvalid
	}

	message := fmt.Sprintf("%s\n%s\n%s\n", headers.Timestamp, headers.Nonce, body)
	digest := sha256.Sum256([]byte(message))
	if err := rsa.VerifyPKCS1v15(c.platformKey, crypto.SHA256, digest[:], signature); err != nil {
		return ErrSignatureInvalid
	}
	return nil
}

// DecryptResource расшифровывает полезную нагрузку вебхука (AES-256-GCM, ключ APIv3)
func (c *PayClient) DecryptResource(res *Resource) (*TradeResult, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(res.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(c.apiV3Key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, []byte(res.Nonce), ciphertext, []byte(res.AssociatedData))
	if err != nil {
		return nil, fmt.Errorf("decrypt resource: %w", err)
	}

	var result TradeResult
	if err := json.Unmarshal(plaintext, &result); err != nil {
		return nil, fmt.Errorf("decode trade result: %w", err)
	}
	return &result, nil
}
