package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/youquan/minishop/internal/domain/models"
	"github.com/youquan/minishop/internal/storage"
)

// ErrInvalidTransition — запрошенный статус недостижим из текущего за один шаг
var ErrInvalidTransition = errors.New("invalid status transition")

// LineRequest — строка запроса на создание заказа
type LineRequest struct {
	ProductID int64
	SpecID    *int64
	Quantity  int
}

// CreateOrderResult — результат успешного создания заказа
type CreateOrderResult struct {
	OrderID     int64           `json:"order_id"`
	OrderNo     string          `json:"order_no"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// PreviewLine — строка предпросмотра заказа
type PreviewLine struct {
	ProductID int64           `json:"product_id"`
	SpecID    *int64          `json:"spec_id,omitempty"`
	Quantity  int             `json:"quantity"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
}

// PreviewResult — предпросмотр заказа: строки, сумма и адрес по умолчанию
type PreviewResult struct {
	Items       []*PreviewLine  `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Address     *models.Address `json:"address"`
}

// ShareResult — результат создания ссылки-шаринга
type ShareResult struct {
	ShareURL  string `json:"shareUrl"`
	ShareCode string `json:"shareCode"`
}

// OrderService определяет бизнес-логику работы с заказами.
type OrderService interface {
	Create(ctx context.Context, userID int64, lines []LineRequest, addressID *int64) (*CreateOrderResult, error)
	Preview(ctx context.Context, userID int64, lines []LineRequest) (*PreviewResult, error)
	Detail(ctx context.Context, userID int64, orderNo string) (*models.Order, error)
	List(ctx context.Context, userID int64, status *models.OrderStatus, page, limit int) ([]*models.Order, error)
	UpdateAddress(ctx context.Context, userID int64, orderNo string, addressID int64) error
	UpdateStatus(ctx context.Context, userID int64, orderNo string, target models.OrderStatus) error
	Delete(ctx context.Context, userID int64, orderNo string) error
	Clear(ctx context.Context, userID int64, status *models.OrderStatus) error
	Share(ctx context.Context, userID int64, orderNo, templateID string) (*ShareResult, error)
	ShareDetail(ctx context.Context, shareCode string) (*models.Order, error)
}

// Допустимые переходы статуса по запросу клиента.
// Переход 0→1 сюда не входит: его выполняет только платёжный вебхук.
// Из завершённого и отменённого переходов нет.
var statusTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPendingPayment: {models.OrderStatusCancelled},
	models.OrderStatusPaid:           {models.OrderStatusShipped},
	models.OrderStatusShipped:        {models.OrderStatusCompleted},
}

func transitionAllowed(from, to models.OrderStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type orderService struct {
	log         *slog.Logger
	db          *sql.DB
	productRepo storage.ProductStorage
	orderRepo   storage.OrderStorage
	addressRepo storage.AddressStorage
	clientURL   string
}

func NewOrderService(log *slog.Logger, db *sql.DB, productRepo storage.ProductStorage, orderRepo storage.OrderStorage, addressRepo storage.AddressStorage, clientURL string) OrderService {
	return &orderService{
		log:         log,
		db:          db,
		productRepo: productRepo,
		orderRepo:   orderRepo,
		addressRepo: addressRepo,
		clientURL:   strings.TrimRight(clientURL, "/"),
	}
}

// generateOrderNo формирует номер заказа: префикс + миллисекунды + 4 случайные цифры.
// Номер служит идемпотентным ключом для платёжного шлюза; уникальность
// дополнительно гарантирует индекс в БД (см. Create).
func generateOrderNo() string {
	return fmt.Sprintf("WX%d%04d", time.Now().UnixMilli(), rand.Intn(10000))
}

// Create создаёт заказ одной транзакцией: по каждой строке каталог читается
// ровно один раз под блокировкой, остаток списывается условным UPDATE, шапка
// и позиции пишутся из того же снимка. Любая ошибка откатывает транзакцию
// целиком — частичных заказов не бывает, побеждает первая ошибочная строка.
func (s *orderService) Create(ctx context.Context, userID int64, lines []LineRequest, addressID *int64) (*CreateOrderResult, error) {
	const op = "service.OrderService.Create"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID), slog.Int("lines", len(lines)))
	logger.Info("starting order transaction")

	if len(lines) == 0 {
		return nil, fmt.Errorf("%s: order must contain at least one line", op)
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%s: quantity must be positive", op)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	totalAmount := decimal.Zero
	resolved := make([]*storage.ResolvedLine, 0, len(lines))

	for _, line := range lines {
		// Единственное чтение каталога на строку: этот же снимок идёт и в
		// валидацию, и в позицию заказа
		rl, err := s.productRepo.ResolveLine(ctx, tx, line.ProductID, line.SpecID)
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("transaction rollback failed", slog.Any("error", rbErr))
			}
			logger.Warn("line resolution failed", slog.Int64("productID", line.ProductID), slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to resolve product %d: %w", op, line.ProductID, err)
		}

		if rl.Stock < line.Quantity {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("transaction rollback failed", slog.Any("error", rbErr))
			}
			logger.Warn("insufficient stock", slog.Int64("productID", line.ProductID),
				slog.Int("stock", rl.Stock), slog.Int("requested", line.Quantity))
			return nil, fmt.Errorf("%s: product %d: %w", op, line.ProductID, storage.ErrInsufficientStock)
		}

		// Условное списание остатка; конкурирующий заказ, успевший раньше,
		// приведёт здесь к ErrInsufficientStock
		if err := s.productRepo.DecrementStock(ctx, tx, line.ProductID, line.SpecID, line.Quantity); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("transaction rollback failed", slog.Any("error", rbErr))
			}
			logger.Warn("stock decrement failed", slog.Int64("productID", line.ProductID), slog.Any("error", err))
			return nil, fmt.Errorf("%s: product %d: %w", op, line.ProductID, err)
		}

		totalAmount = totalAmount.Add(rl.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		resolved = append(resolved, rl)
	}

	order := &models.Order{
		OrderNo:     generateOrderNo(),
		UserID:      userID,
		TotalAmount: totalAmount,
		Status:      models.OrderStatusPendingPayment,
		AddressID:   addressID,
	}

	orderID, err := s.orderRepo.CreateOrder(ctx, tx, order)
	if errors.Is(err, storage.ErrOrderNoTaken) {
		// Коллизия номера — перегенерируем один раз и повторяем вставку
		logger.Warn("order number collision, regenerating", slog.String("orderNo", order.OrderNo))
		order.OrderNo = generateOrderNo()
		orderID, err = s.orderRepo.CreateOrder(ctx, tx, order)
	}
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Error("failed to create order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create order: %w", op, err)
	}

	for i, line := range lines {
		rl := resolved[i]
		item := &models.OrderItem{
			OrderID:      orderID,
			ProductID:    line.ProductID,
			SpecID:       line.SpecID,
			ProductName:  rl.Name,
			ProductImage: rl.Image,
			Price:        rl.Price,
			Quantity:     line.Quantity,
		}
		if err := s.orderRepo.CreateOrderItem(ctx, tx, item); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("transaction rollback failed", slog.Any("error", rbErr))
			}
			logger.Error("failed to create order item", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to create order item: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("order created", slog.String("orderNo", order.OrderNo), slog.String("total", totalAmount.String()))
	return &CreateOrderResult{
		OrderID:     orderID,
		OrderNo:     order.OrderNo,
		TotalAmount: totalAmount,
	}, nil
}

// Preview рассчитывает строки и сумму без записи; отсутствующие товары
// просто пропускаются
func (s *orderService) Preview(ctx context.Context, userID int64, lines []LineRequest) (*PreviewResult, error) {
	const op = "service.OrderService.Preview"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID))

	result := &PreviewResult{Items: []*PreviewLine{}, TotalAmount: decimal.Zero}

	for _, line := range lines {
		rl, err := s.productRepo.GetLine(ctx, line.ProductID, line.SpecID)
		if err != nil {
			if errors.Is(err, storage.ErrProductNotFound) {
				continue
			}
			logger.Error("failed to resolve preview line", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to resolve product %d: %w", op, line.ProductID, err)
		}

		amount := rl.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		result.TotalAmount = result.TotalAmount.Add(amount)
		result.Items = append(result.Items, &PreviewLine{
			ProductID: line.ProductID,
			SpecID:    line.SpecID,
			Quantity:  line.Quantity,
			Name:      rl.Name,
			Image:     rl.Image,
			Price:     rl.Price,
			Amount:    amount,
		})
	}

	addr, err := s.addressRepo.GetDefault(ctx, userID)
	if err != nil && !errors.Is(err, storage.ErrAddressNotFound) {
		logger.Error("failed to get default address", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get default address: %w", op, err)
	}
	result.Address = addr

	return result, nil
}

func (s *orderService) Detail(ctx context.Context, userID int64, orderNo string) (*models.Order, error) {
	const op = "service.OrderService.Detail"

	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	items, err := s.orderRepo.ItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load order items: %w", op, err)
	}
	order.Items = items
	return order, nil
}

func (s *orderService) List(ctx context.Context, userID int64, status *models.OrderStatus, page, limit int) ([]*models.Order, error) {
	const op = "service.OrderService.List"

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	orders, err := s.orderRepo.ListByUser(ctx, userID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, order := range orders {
		items, err := s.orderRepo.ItemsByOrderID(ctx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to load order items: %w", op, err)
		}
		order.Items = items
	}
	return orders, nil
}

func (s *orderService) UpdateAddress(ctx context.Context, userID int64, orderNo string, addressID int64) error {
	const op = "service.OrderService.UpdateAddress"

	// Адрес должен принадлежать пользователю
	if _, err := s.addressRepo.GetByID(ctx, addressID, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.orderRepo.UpdateAddress(ctx, orderNo, userID, addressID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateStatus переводит заказ в запрошенный статус, сверяясь с таблицей
// допустимых переходов; недостижимые за один шаг цели отклоняются
func (s *orderService) UpdateStatus(ctx context.Context, userID int64, orderNo string, target models.OrderStatus) error {
	const op = "service.OrderService.UpdateStatus"
	logger := s.log.With(slog.String("op", op), slog.String("orderNo", orderNo), slog.Int("target", int(target)))

	if !target.Valid() {
		return fmt.Errorf("%s: %w", op, ErrInvalidTransition)
	}

	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !transitionAllowed(order.Status, target) {
		logger.Warn("transition rejected", slog.Int("current", int(order.Status)))
		return fmt.Errorf("%s: %d -> %d: %w", op, order.Status, target, ErrInvalidTransition)
	}

	// Предикат по текущему статусу защищает от гонки между чтением и записью
	if err := s.orderRepo.UpdateStatus(ctx, orderNo, userID, order.Status, target); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	logger.Info("order status updated")
	return nil
}

func (s *orderService) Delete(ctx context.Context, userID int64, orderNo string) error {
	const op = "service.OrderService.Delete"
	if err := s.orderRepo.Delete(ctx, orderNo, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *orderService) Clear(ctx context.Context, userID int64, status *models.OrderStatus) error {
	const op = "service.OrderService.Clear"
	if err := s.orderRepo.Clear(ctx, userID, status); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Share выдаёт код шаринга для неоплаченного заказа; код стабилен после выдачи
func (s *orderService) Share(ctx context.Context, userID int64, orderNo, templateID string) (*ShareResult, error) {
	const op = "service.OrderService.Share"
	logger := s.log.With(slog.String("op", op), slog.String("orderNo", orderNo))

	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if order.Status != models.OrderStatusPendingPayment {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrOrderNotFound)
	}
	if order.ShareCode != nil {
		// Код уже выдан — возвращаем существующий
		return &ShareResult{
			ShareURL:  s.clientURL + "/share/" + *order.ShareCode,
			ShareCode: *order.ShareCode,
		}, nil
	}

	shareCode := fmt.Sprintf("%s_%s", templateID, uuid.NewString()[:8])
	if err := s.orderRepo.SetShareCode(ctx, orderNo, userID, shareCode); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("share code created", slog.String("shareCode", shareCode))
	return &ShareResult{
		ShareURL:  s.clientURL + "/share/" + shareCode,
		ShareCode: shareCode,
	}, nil
}

func (s *orderService) ShareDetail(ctx context.Context, shareCode string) (*models.Order, error) {
	const op = "service.OrderService.ShareDetail"

	order, err := s.orderRepo.GetByShareCode(ctx, shareCode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	items, err := s.orderRepo.ItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load order items: %w", op, err)
	}
	order.Items = items
	return order, nil
}
