package models

import "github.com/shopspring/decimal"

// Product представляет товар каталога
type Product struct {
	ID         int64           `json:"id"`
	CategoryID int64           `json:"category_id"`
	Name       string          `json:"name"`
	Image      string          `json:"image"`
	Detail     string          `json:"detail"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	IsOnSale   bool            `json:"is_on_sale"`
}

// ProductSpec представляет вариант (спецификацию) товара со своими ценой и
// остатком; при указании варианта они полностью замещают базовые
type ProductSpec struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
}

// Category представляет категорию товаров
type Category struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}
