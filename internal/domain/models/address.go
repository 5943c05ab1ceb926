package models

// Address представляет адрес доставки пользователя
type Address struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Receiver  string `json:"receiver"`
	Phone     string `json:"phone"`
	Province  string `json:"province"`
	City      string `json:"city"`
	District  string `json:"district"`
	Detail    string `json:"detail"`
	IsDefault bool   `json:"is_default"`
}
