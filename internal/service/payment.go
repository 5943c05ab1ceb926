package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/youquan/minishop/internal/domain/models"
	"github.com/youquan/minishop/internal/storage"
	"github.com/youquan/minishop/internal/wechat"
)

// PayGateway — та часть платёжного шлюза, которая нужна сервису.
// Реализуется wechat.PayClient; в тестах подменяется фейком.
type PayGateway interface {
	CreateJSAPITransaction(ctx context.Context, orderNo, description string, amountCents int64, openid string) (string, error)
	BuildClientParams(prepayID string) (*wechat.JSAPIParams, error)
	VerifyCallback(headers wechat.CallbackHeaders, body []byte) error
	DecryptResource(res *wechat.Resource) (*wechat.TradeResult, error)
}

// CallbackAck — ответ вебхуку в терминах шлюза. Отдаётся всегда с HTTP 200:
// повторную доставку шлюз решает по коду в теле, а не по HTTP-статусу
type CallbackAck struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	AckSuccess = "SUCCESS"
	AckFail    = "FAIL"
)

// PaymentService определяет операции платёжного моста.
type PaymentService interface {
	// PayParams запрашивает предоплату у шлюза и возвращает параметры для wx.requestPayment.
	PayParams(ctx context.Context, userID int64, openid, orderNo string) (*wechat.JSAPIParams, error)
	// HandleCallback обрабатывает вебхук; любой исход выражается ack-кодом, не ошибкой.
	HandleCallback(ctx context.Context, headers wechat.CallbackHeaders, body []byte) *CallbackAck
}

type paymentService struct {
	log       *slog.Logger
	orderRepo storage.OrderStorage
	gateway   PayGateway
}

func NewPaymentService(log *slog.Logger, orderRepo storage.OrderStorage, gateway PayGateway) PaymentService {
	return &paymentService{
		log:       log,
		orderRepo: orderRepo,
		gateway:   gateway,
	}
}

func (s *paymentService) PayParams(ctx context.Context, userID int64, openid, orderNo string) (*wechat.JSAPIParams, error) {
	const op = "service.PaymentService.PayParams"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID), slog.String("orderNo", orderNo))

	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if order.Status != models.OrderStatusPendingPayment {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrOrderNotFound)
	}

	// Сумма для шлюза — в фэнях (центах)
	amountCents := order.TotalAmount.Mul(decimal.NewFromInt(100)).IntPart()
	description := "订单支付-" + order.OrderNo

	prepayID, err := s.gateway.CreateJSAPITransaction(ctx, order.OrderNo, description, amountCents, openid)
	if err != nil {
		logger.Error("prepay request failed", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create prepay transaction: %w", op, err)
	}

	params, err := s.gateway.BuildClientParams(prepayID)
	if err != nil {
		logger.Error("failed to build client params", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to build client params: %w", op, err)
	}

	logger.Info("pay params issued")
	return params, nil
}

// HandleCallback проверяет подпись, расшифровывает данные и при успешном
// платеже переводит заказ 0→1. Предикат status = 0 в MarkPaid делает повтор
// вебхука по уже оплаченному заказу no-op'ом.
func (s *paymentService) HandleCallback(ctx context.Context, headers wechat.CallbackHeaders, body []byte) *CallbackAck {
	const op = "service.PaymentService.HandleCallback"
	logger := s.log.With(slog.String("op", op))

	if !headers.Complete() {
		logger.Warn("callback missing signature headers")
		return &CallbackAck{Code: AckFail, Message: "missing signature headers"}
	}

	if err := s.gateway.VerifyCallback(headers, body); err != nil {
		logger.Warn("callback signature verification failed", slog.Any("error", err))
		return &CallbackAck{Code: AckFail, Message: "signature verification failed"}
	}

	var notification wechat.CallbackNotification
	if err := json.Unmarshal(body, &notification); err != nil {
		logger.Error("failed to decode callback body", slog.Any("error", err))
		return &CallbackAck{Code: AckFail, Message: "invalid callback body"}
	}

	trade, err := s.gateway.DecryptResource(&notification.Resource)
	if err != nil {
		logger.Error("failed to decrypt callback resource", slog.Any("error", err))
		return &CallbackAck{Code: AckFail, Message: "failed to decrypt resource"}
	}

	if trade.TradeState != "SUCCESS" {
		logger.Warn("trade not successful", slog.String("tradeState", trade.TradeState))
		return &CallbackAck{Code: AckFail, Message: "trade not successful"}
	}

	payTime, err := time.Parse(time.RFC3339, trade.SuccessTime)
	if err != nil {
		payTime = time.Now()
	}

	updated, err := s.orderRepo.MarkPaid(ctx, trade.OutTradeNo, payTime)
	if err != nil {
		logger.Error("failed to mark order paid", slog.String("orderNo", trade.OutTradeNo), slog.Any("error", err))
		return &CallbackAck{Code: AckFail, Message: "failed to update order"}
	}
	if !updated {
		// Повтор вебхука: заказ уже не в статусе 0
		logger.Info("callback replay ignored", slog.String("orderNo", trade.OutTradeNo))
	} else {
		logger.Info("order marked paid", slog.String("orderNo", trade.OutTradeNo))
	}

	return &CallbackAck{Code: AckSuccess, Message: "ok"}
}
