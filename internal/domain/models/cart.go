package models

import "github.com/shopspring/decimal"

// CartItem представляет позицию корзины; отображаемые поля товара и варианта
// заполняются через JOIN с таблицами product и product_spec
type CartItem struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	ProductID int64  `json:"product_id"`
	SpecID    *int64 `json:"spec_id,omitempty"`
	Quantity  int    `json:"quantity"`

	ProductName  string          `json:"product_name"`
	ProductImage string          `json:"product_image"`
	SpecName     string          `json:"spec_name,omitempty"`
	Price        decimal.Decimal `json:"price"`
}
