package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/youquan/minishop/internal/domain/models"
	"github.com/youquan/minishop/internal/service"
	"github.com/youquan/minishop/internal/storage"
	"github.com/youquan/minishop/internal/wechat"
)

// fakeGateway подменяет платёжный шлюз: без сети и криптографии
type fakeGateway struct {
	prepayID     string
	prepayErr    error
	verifyErr    error
	trade        *wechat.TradeResult
	decryptErr   error
	lastAmount   int64
	lastOrderNo  string
	lastOpenid   string
	requestCount int
}

var _ service.PayGateway = (*fakeGateway)(nil)

func (f *fakeGateway) CreateJSAPITransaction(ctx context.Context, orderNo, description string, amountCents int64, openid string) (string, error) {
	f.requestCount++
	f.lastOrderNo = orderNo
	f.lastAmount = amountCents
	f.lastOpenid = openid
	if f.prepayErr != nil {
		return "", f.prepayErr
	}
	return f.prepayID, nil
}

func (f *fakeGateway) BuildClientParams(prepayID string) (*wechat.JSAPIParams, error) {
	return &wechat.JSAPIParams{
		AppID:     "wxtest",
		TimeStamp: "1700000000",
		NonceStr:  "nonce",
		Package:   "prepay_id=" + prepayID,
		SignType:  "RSA",
		PaySign:   "signed",
	}, nil
}

func (f *fakeGateway) VerifyCallback(headers wechat.CallbackHeaders, body []byte) error {
	return f.verifyErr
}

func (f *fakeGateway) DecryptResource(res *wechat.Resource) (*wechat.TradeResult, error) {
	if f.decryptErr != nil {
		return nil, f.decryptErr
	}
	return f.trade, nil
}

func completeHeaders() wechat.CallbackHeaders {
	return wechat.CallbackHeaders{
		Timestamp: "1700000000",
		Nonce:     "nonce",
		Signature: "c2ln",
		Serial:    "serial",
	}
}

func pendingOrder(no string, amount string) *models.Order {
	return &models.Order{
		ID: 1, OrderNo: no, UserID: 1,
		TotalAmount: decimal.RequireFromString(amount),
		Status:      models.OrderStatusPendingPayment,
	}
}

func TestPaymentService_PayParams_Success(t *testing.T) {
	orderRepo := newFakeOrderRepo()
	orderRepo.orders["WX1"] = pendingOrder("WX1", "59.90")

	gateway := &fakeGateway{prepayID: "prepay123"}
	paySvc := service.NewPaymentService(newTestLogger(), orderRepo, gateway)

	params, err := paySvc.PayParams(context.Background(), 1, "openid-1", "WX1")
	assert.NoError(t, err)
	assert.Equal(t, "prepay_id=prepay123", params.Package)

	// Сумма уходит в шлюз в фэнях: 59.90 → 5990
	assert.Equal(t, int64(5990), gateway.lastAmount)
	assert.Equal(t, "WX1", gateway.lastOrderNo)
	assert.Equal(t, "openid-1", gateway.lastOpenid)
}

func TestPaymentService_PayParams_NotPending(t *testing.T) {
	orderRepo := newFakeOrderRepo()
	paid := pendingOrder("WX1", "59.90")
	paid.Status = models.OrderStatusPaid
	orderRepo.orders["WX1"] = paid

	gateway := &fakeGateway{prepayID: "prepay123"}
	paySvc := service.NewPaymentService(newTestLogger(), orderRepo, gateway)

	_, err := paySvc.PayParams(context.Background(), 1, "openid-1", "WX1")
	assert.ErrorIs(t, err, storage.ErrOrderNotFound, "non-pending order must not reach the gateway")
	assert.Zero(t, gateway.requestCount)
}

func TestPaymentService_PayParams_ForeignOrder(t *testing.T) {
	orderRepo := newFakeOrderRepo()
	order := pendingOrder("WX1", "59.90")
	order.UserID = 7
	orderRepo.orders["WX1"] = order

	paySvc := service.NewPaymentService(newTestLogger(), orderRepo, &fakeGateway{prepayID: "p"})

	_, err := paySvc.PayParams(context.Background(), 1, "openid-1", "WX1")
	assert.ErrorIs(t, err, storage.ErrOrderNotFound)
}

func TestPaymentService_HandleCallback_Success(t *testing.T) {
	orderRepo := newFakeOrderRepo()
	orderRepo.orders["WX1"] = pendingOrder("WX1", "59.90")

	gateway := &fakeGateway{
		trade: &wechat.TradeResult{
			OutTradeNo:  "WX1",
			TradeState:  "SUCCESS",
			SuccessTime: time.Now().Format(time.RFC3339),
		},
	}
	paySvc := service.NewPaymentService(newTestLogger(), orderRepo, gateway)

	ack := paySvc.HandleCallback(context.Background(), completeHeaders(), []byte(`{"event_type":"TRANSACTION.SUCCESS","resource":{}}`))
	assert.Equal(t, service.AckSuccess, ack.Code)

	order := orderRepo.orders["WX1"]
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.NotNil(t, order.PayTime)
}

func TestPaymentService_HandleCallback_ReplayIsNoop(t *testing.T) {
	orderRepo := newFakeOrderRepo()
	orderRepo.orders["WX1"] = pendingOrder("WX1", "59.90")

	gateway := &fakeGateway{
		trade: &wechat.TradeResult{
			OutTradeNo:  "WX1",
			TradeState:  "SUCCESS",
			SuccessTime: time.Now().Format(time.RFC3339),
		},
	}
	paySvc := service.NewPaymentService(newTestLogger(), orderRepo, gateway)

	body := []byte(`{"event_type":"TRANSACTION.SUCCESS","resource":{}}`)
	first := paySvc.HandleCallback(context.Background(), completeHeaders(), body)
	assert.Equal(t, service.AckSuccess, first.Code)
	firstPayTime := *orderRepo.orders["WX1"].PayTime

	// Повтор вебхука: статус и pay_time не меняются, ack всё равно SUCCESS
	second := paySvc.HandleCallback(context.Background(), completeHeaders(), body)
	assert.Equal(t, service.AckSuccess, second.Code)
	assert.Equal(t, models.OrderStatusPaid, orderRepo.orders["WX1"].Status)
	assert.Equal(t, firstPayTime, *orderRepo.orders["WX1"].PayTime)
}

func TestPaymentService_HandleCallback_BadSignature(t *testing.T) {
	orderRepo := newFakeOrderRepo()
	orderRepo.orders["WX1"] = pendingOrder("WX1", "59.90")

	gateway := &fakeGateway{verifyErr: wechat.ErrSignatureInvalid}
	paySvc := service.NewPaymentService(newTestLogger(), orderRepo, gateway)

	ack := paySvc.HandleCallback(context.Background(), completeHeaders(), []byte(`{}`))
	assert.Equal(t, service.AckFail, ack.Code)
	assert.Equal(t, models.OrderStatusPendingPayment, orderRepo.orders["WX1"].Status, "order must stay pending on bad signature")
}

func TestPaymentService_HandleCallback_MissingHeaders(t *testing.T) {
	paySvc := service.NewPaymentService(newTestLogger(), newFakeOrderRepo(), &fakeGateway{})

	ack := paySvc.HandleCallback(context.Background(), wechat.CallbackHeaders{}, []byte(`{}`))
	assert.Equal(t, service.AckFail, ack.Code)
}

func TestPaymentService_HandleCallback_TradeNotSuccess(t *testing.T) {
	orderRepo := newFakeOrderRepo()
	orderRepo.orders["WX1"] = pendingOrder("WX1", "59.90")

	gateway := &fakeGateway{
		trade: &wechat.TradeResult{OutTradeNo: "WX1", TradeState: "CLOSED"},
	}
	paySvc := service.NewPaymentService(newTestLogger(), orderRepo, gateway)

	ack := paySvc.HandleCallback(context.Background(), completeHeaders(), []byte(`{"resource":{}}`))
	assert.Equal(t, service.AckFail, ack.Code)
	assert.Equal(t, models.OrderStatusPendingPayment, orderRepo.orders["WX1"].Status)
}

func TestPaymentService_HandleCallback_DecryptFailure(t *testing.T) {
	gateway := &fakeGateway{decryptErr: errors.New("gcm: message authentication failed")}
	paySvc := service.NewPaymentService(newTestLogger(), newFakeOrderRepo(), gateway)

	ack := paySvc.HandleCallback(context.Background(), completeHeaders(), []byte(`{"resource":{}}`))
	assert.Equal(t, service.AckFail, ack.Code)
}
