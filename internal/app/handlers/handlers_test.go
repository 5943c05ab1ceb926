package handlers_test

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/youquan/minishop/internal/app/handlers"
	"github.com/youquan/minishop/internal/domain/models"
	"github.com/youquan/minishop/internal/jwt-new/jwtmiddleware"
	"github.com/youquan/minishop/internal/service"
	"github.com/youquan/minishop/internal/storage"
	"github.com/youquan/minishop/internal/wechat"
)

// fakeOrderService — фиктивная реализация для тестирования обработчиков заказов.
type fakeOrderService struct {
	createResult *service.CreateOrderResult
	createErr    error
	detailOrder  *models.Order
	detailErr    error
	updateErr    error
	shareResult  *service.ShareResult
	shareErr     error

	lastLines  []service.LineRequest
	lastStatus models.OrderStatus
}

var _ service.OrderService = (*fakeOrderService)(nil)

func (f *fakeOrderService) Create(ctx context.Context, userID int64, lines []service.LineRequest, addressID *int64) (*service.CreateOrderResult, error) {
	f.lastLines = lines
	return f.createResult, f.createErr
}

func (f *fakeOrderService) Preview(ctx context.Context, userID int64, lines []service.LineRequest) (*service.PreviewResult, error) {
	return &service.PreviewResult{TotalAmount: decimal.Zero}, nil
}

func (f *fakeOrderService) Detail(ctx context.Context, userID int64, orderNo string) (*models.Order, error) {
	return f.detailOrder, f.detailErr
}

func (f *fakeOrderService) List(ctx context.Context, userID int64, status *models.OrderStatus, page, limit int) ([]*models.Order, error) {
	return []*models.Order{}, nil
}

func (f *fakeOrderService) UpdateAddress(ctx context.Context, userID int64, orderNo string, addressID int64) error {
	return f.updateErr
}

func (f *fakeOrderService) UpdateStatus(ctx context.Context, userID int64, orderNo string, target models.OrderStatus) error {
	f.lastStatus = target
	return f.updateErr
}

func (f *fakeOrderService) Delete(ctx context.Context, userID int64, orderNo string) error {
	return f.updateErr
}

func (f *fakeOrderService) Clear(ctx context.Context, userID int64, status *models.OrderStatus) error {
	return f.updateErr
}

func (f *fakeOrderService) Share(ctx context.Context, userID int64, orderNo, templateID string) (*service.ShareResult, error) {
	return f.shareResult, f.shareErr
}

func (f *fakeOrderService) ShareDetail(ctx context.Context, shareCode string) (*models.Order, error) {
	return f.detailOrder, f.detailErr
}

// fakePaymentService — фиктивный платёжный мост
type fakePaymentService struct {
	params *wechat.JSAPIParams
	err    error
	ack    *service.CallbackAck

	gotHeaders wechat.CallbackHeaders
	gotBody    []byte
}

var _ service.PaymentService = (*fakePaymentService)(nil)

func (f *fakePaymentService) PayParams(ctx context.Context, userID int64, openid, orderNo string) (*wechat.JSAPIParams, error) {
	return f.params, f.err
}

func (f *fakePaymentService) HandleCallback(ctx context.Context, headers wechat.CallbackHeaders, body []byte) *service.CallbackAck {
	f.gotHeaders = headers
	f.gotBody = body
	return f.ack
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func withUser(req *http.Request, userID int64) *http.Request {
	ctx := context.WithValue(req.Context(), jwtmiddleware.UserIDKey, userID)
	ctx = context.WithValue(ctx, jwtmiddleware.OpenIDKey, "openid-1")
	return req.WithContext(ctx)
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) (int, string, json.RawMessage) {
	t.Helper()
	var resp struct {
		Code    int             `json:"code"`
		Status  string          `json:"status"`
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
	}
	err := json.NewDecoder(rr.Body).Decode(&resp)
	assert.NoError(t, err, "Response decoding should succeed")
	return resp.Code, resp.Status, resp.Data
}

func TestCreateOrderHandler_Success(t *testing.T) {
	fakeSvc := &fakeOrderService{
		createResult: &service.CreateOrderResult{
			OrderID:     1,
			OrderNo:     "WX17000000000001234",
			TotalAmount: decimal.RequireFromString("59.00"),
		},
	}
	handler := handlers.CreateOrderHandler(newLogger(), fakeSvc)

	reqBody := `{"items": [{"product_id": 1, "quantity": 2}, {"product_id": 2, "spec_id": 7, "quantity": 1}]}`
	req := withUser(httptest.NewRequest("POST", "/v1/shop/orders", bytes.NewBufferString(reqBody)), 1)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	code, status, data := decodeEnvelope(t, rr)
	assert.Equal(t, http.StatusOK, code, "envelope code mirrors HTTP status")
	assert.Equal(t, "success", status)

	var result service.CreateOrderResult
	assert.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "WX17000000000001234", result.OrderNo)

	assert.Len(t, fakeSvc.lastLines, 2)
	assert.Equal(t, int64(7), *fakeSvc.lastLines[1].SpecID)
}

func TestCreateOrderHandler_EmptyItems(t *testing.T) {
	handler := handlers.CreateOrderHandler(newLogger(), &fakeOrderService{})

	req := withUser(httptest.NewRequest("POST", "/v1/shop/orders", bytes.NewBufferString(`{"items": []}`)), 1)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "empty item list must fail validation")
}

func TestCreateOrderHandler_InvalidJSON(t *testing.T) {
	handler := handlers.CreateOrderHandler(newLogger(), &fakeOrderService{})

	req := withUser(httptest.NewRequest("POST", "/v1/shop/orders", bytes.NewBufferString(`{"items": [`)), 1)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateOrderHandler_Unauthorized(t *testing.T) {
	handler := handlers.CreateOrderHandler(newLogger(), &fakeOrderService{})

	req := httptest.NewRequest("POST", "/v1/shop/orders", bytes.NewBufferString(`{"items": [{"product_id": 1, "quantity": 1}]}`))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateOrderHandler_InsufficientStock(t *testing.T) {
	fakeSvc := &fakeOrderService{createErr: storage.ErrInsufficientStock}
	handler := handlers.CreateOrderHandler(newLogger(), fakeSvc)

	reqBody := `{"items": [{"product_id": 1, "quantity": 100}]}`
	req := withUser(httptest.NewRequest("POST", "/v1/shop/orders", bytes.NewBufferString(reqBody)), 1)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "insufficient stock is a business-rule 400")

	code, status, _ := decodeEnvelope(t, rr)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "error", status)
}

func TestUpdateOrderStatusHandler_InvalidTransition(t *testing.T) {
	fakeSvc := &fakeOrderService{updateErr: service.ErrInvalidTransition}
	handler := handlers.UpdateOrderStatusHandler(newLogger(), fakeSvc)

	req := httptest.NewRequest("PUT", "/v1/shop/orders/WX1/status", bytes.NewBufferString(`{"status": 1}`))
	req = withURLParam(req, "orderNo", "WX1")
	req = withUser(req, 1)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateOrderStatusHandler_ZeroStatusAccepted(t *testing.T) {
	// status: 0 — валидное значение; required-валидация не должна его отбрасывать
	fakeSvc := &fakeOrderService{}
	handler := handlers.UpdateOrderStatusHandler(newLogger(), fakeSvc)

	req := httptest.NewRequest("PUT", "/v1/shop/orders/WX1/status", bytes.NewBufferString(`{"status": 0}`))
	req = withURLParam(req, "orderNo", "WX1")
	req = withUser(req, 1)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.OrderStatusPendingPayment, fakeSvc.lastStatus)
}

func TestOrderDetailHandler_NotFound(t *testing.T) {
	fakeSvc := &fakeOrderService{detailErr: storage.ErrOrderNotFound}
	handler := handlers.OrderDetailHandler(newLogger(), fakeSvc)

	req := httptest.NewRequest("GET", "/v1/shop/orders/WXnope", nil)
	req = withURLParam(req, "orderNo", "WXnope")
	req = withUser(req, 1)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code, "missing or foreign order yields 404")
}

func TestListOrdersHandler_BadStatusFilter(t *testing.T) {
	handler := handlers.ListOrdersHandler(newLogger(), &fakeOrderService{})

	req := withUser(httptest.NewRequest("GET", "/v1/shop/orders?status=7", nil), 1)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "status outside the known set is rejected")
}

func TestShareOrderHandler_Success(t *testing.T) {
	fakeSvc := &fakeOrderService{
		shareResult: &service.ShareResult{
			ShareURL:  "http://shop.local/share/tplA_deadbeef",
			ShareCode: "tplA_deadbeef",
		},
	}
	handler := handlers.ShareOrderHandler(newLogger(), fakeSvc)

	req := httptest.NewRequest("POST", "/v1/shop/orders/WX1/share", bytes.NewBufferString(`{"templateId": "tplA"}`))
	req = withURLParam(req, "orderNo", "WX1")
	req = withUser(req, 1)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	_, _, data := decodeEnvelope(t, rr)
	var result service.ShareResult
	assert.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "tplA_deadbeef", result.ShareCode)
}

func TestShareDetailHandler_NoAuthRequired(t *testing.T) {
	code := "tplA_deadbeef"
	fakeSvc := &fakeOrderService{
		detailOrder: &models.Order{
			OrderNo: "WX1", Status: models.OrderStatusPendingPayment,
			ShareCode: &code, CreatorNickname: "小明",
		},
	}
	handler := handlers.ShareDetailHandler(newLogger(), fakeSvc)

	// Без userID в контексте — ссылка-шаринг публичная
	req := httptest.NewRequest("GET", "/v1/shop/share/tplA_deadbeef", nil)
	req = withURLParam(req, "shareCode", "tplA_deadbeef")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestPayParamsHandler_Success(t *testing.T) {
	fakeSvc := &fakePaymentService{
		params: &wechat.JSAPIParams{
			AppID:   "wxtest",
			Package: "prepay_id=prepay-abc",
			PaySign: "signed",
		},
	}
	handler := handlers.PayParamsHandler(newLogger(), fakeSvc)

	req := withUser(httptest.NewRequest("POST", "/v1/pay/params", bytes.NewBufferString(`{"orderNo": "WX1"}`)), 1)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	_, _, data := decodeEnvelope(t, rr)
	var params wechat.JSAPIParams
	assert.NoError(t, json.Unmarshal(data, &params))
	assert.Equal(t, "prepay_id=prepay-abc", params.Package)
}

func TestPayParamsHandler_MissingOrderNo(t *testing.T) {
	handler := handlers.PayParamsHandler(newLogger(), &fakePaymentService{})

	req := withUser(httptest.NewRequest("POST", "/v1/pay/params", bytes.NewBufferString(`{}`)), 1)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWechatEchoHandler(t *testing.T) {
	token := "verify-token"
	timestamp := "1700000000"
	nonce := "nonce"

	// Подпись считается так же, как её считает сервер WeChat
	params := []string{token, timestamp, nonce}
	sort.Strings(params)
	sum := sha1.Sum([]byte(strings.Join(params, "")))
	signature := hex.EncodeToString(sum[:])

	handler := handlers.WechatEchoHandler(newLogger(), token)

	req := httptest.NewRequest("GET",
		"/v1/wechat/verify?signature="+signature+"&timestamp="+timestamp+"&nonce="+nonce+"&echostr=hello", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "hello", rr.Body.String(), "echostr returned verbatim on valid signature")

	// Испорченная подпись отклоняется
	req = httptest.NewRequest("GET",
		"/v1/wechat/verify?signature=deadbeef&timestamp="+timestamp+"&nonce="+nonce+"&echostr=hello", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

type fakeJSConfigProvider struct {
	cfg *wechat.JSConfig
	err error
}

func (f *fakeJSConfigProvider) GetJSConfig(ctx context.Context, pageURL string) (*wechat.JSConfig, error) {
	return f.cfg, f.err
}

func TestJSConfigHandler(t *testing.T) {
	handler := handlers.JSConfigHandler(newLogger(), &fakeJSConfigProvider{
		cfg: &wechat.JSConfig{NonceStr: "n", Timestamp: "1700000000", Signature: "sig"},
	})

	req := httptest.NewRequest("GET", "/v1/wechat/js-config?url=https%3A%2F%2Fshop.local%2Fpage", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	_, _, data := decodeEnvelope(t, rr)
	var cfg wechat.JSConfig
	assert.NoError(t, json.Unmarshal(data, &cfg))
	assert.Equal(t, "sig", cfg.Signature)
}

func TestJSConfigHandler_MissingURL(t *testing.T) {
	handler := handlers.JSConfigHandler(newLogger(), &fakeJSConfigProvider{})

	req := httptest.NewRequest("GET", "/v1/wechat/js-config", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPayCallbackHandler_Always200(t *testing.T) {
	fakeSvc := &fakePaymentService{ack: &service.CallbackAck{Code: service.AckFail, Message: "signature verification failed"}}
	handler := handlers.PayCallbackHandler(newLogger(), fakeSvc)

	req := httptest.NewRequest("POST", "/v1/pay/callback", bytes.NewBufferString(`{"resource":{}}`))
	req.Header.Set("Wechatpay-Timestamp", "1700000000")
	req.Header.Set("Wechatpay-Nonce", "nonce")
	req.Header.Set("Wechatpay-Signature", "c2ln")
	req.Header.Set("Wechatpay-Serial", "serial")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	// Даже при неуспехе обработки HTTP-статус 200, результат — в коде тела
	assert.Equal(t, http.StatusOK, rr.Code)

	var ack service.CallbackAck
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&ack))
	assert.Equal(t, service.AckFail, ack.Code)

	// Заголовки подписи дошли до сервиса как есть
	assert.Equal(t, "1700000000", fakeSvc.gotHeaders.Timestamp)
	assert.Equal(t, "serial", fakeSvc.gotHeaders.Serial)
	assert.JSONEq(t, `{"resource":{}}`, string(fakeSvc.gotBody))
}
