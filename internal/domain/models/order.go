package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus — статус заказа
type OrderStatus int

const (
	OrderStatusPendingPayment OrderStatus = 0 // ожидает оплаты
	OrderStatusPaid           OrderStatus = 1 // оплачен
	OrderStatusShipped        OrderStatus = 2 // отправлен
	OrderStatusCompleted      OrderStatus = 3 // завершён
	OrderStatusCancelled      OrderStatus = 4 // отменён
)

// Valid проверяет, что статус входит в известный набор
func (s OrderStatus) Valid() bool {
	return s >= OrderStatusPendingPayment && s <= OrderStatusCancelled
}

// Order представляет заказ (шапку): total_amount фиксируется при создании
// и после этого не пересчитывается
type Order struct {
	ID          int64           `json:"id"`
	OrderNo     string          `json:"order_no"`
	UserID      int64           `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      OrderStatus     `json:"status"`
	AddressID   *int64          `json:"address_id,omitempty"`
	ShareCode   *string         `json:"share_code,omitempty"`
	PayTime     *time.Time      `json:"pay_time,omitempty"`
	CreatedAt   time.Time       `json:"create_time"`

	Address *Address     `json:"address,omitempty"` // снимок адреса; заполняется через JOIN с таблицей address
	Items   []*OrderItem `json:"items,omitempty"`

	// Данные создателя заказа; заполняются только при выдаче по share_code
	CreatorNickname string `json:"creator_nickname,omitempty"`
	CreatorAvatar   string `json:"creator_avatar,omitempty"`
}

// OrderItem представляет позицию заказа. Название/картинка/цена — снимок
// каталога на момент создания заказа, после создания с каталогом не сверяется
type OrderItem struct {
	ID           int64           `json:"id"`
	OrderID      int64           `json:"order_id"`
	ProductID    int64           `json:"product_id"`
	SpecID       *int64          `json:"spec_id,omitempty"`
	ProductName  string          `json:"product_name"`
	ProductImage string          `json:"product_image"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
}
