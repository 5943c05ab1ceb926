package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/youquan/minishop/internal/domain/models"
)

var ErrCartItemNotFound = errors.New("cart item not found")

// CartStorage описывает методы для работы с корзиной.
type CartStorage interface {
	// ListByUser возвращает позиции корзины с отображаемыми данными товара и варианта.
	ListByUser(ctx context.Context, userID int64) ([]*models.CartItem, error)
	// Upsert добавляет позицию либо накапливает количество существующей.
	Upsert(ctx context.Context, userID, productID int64, specID *int64, quantity int) error
	UpdateQuantity(ctx context.Context, id, userID int64, quantity int) error
	Delete(ctx context.Context, id, userID int64) error
	Clear(ctx context.Context, userID int64) error
}

type cartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) CartStorage {
	return &cartRepository{db: db}
}

func (r *cartRepository) ListByUser(ctx context.Context, userID int64) ([]*models.CartItem, error) {
	query := `SELECT c.id, c.user_id, c.product_id, c.spec_id, c.quantity,
	                 p.name, p.image,
	                 COALESCE(ps.name, ''), COALESCE(ps.price, p.price)
	          FROM cart_items c
	          LEFT JOIN products p ON p.id = c.product_id
	          LEFT JOIN product_specs ps ON ps.id = c.spec_id
	          WHERE c.user_id = $1`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.CartItem
	for rows.Next() {
		item := &models.CartItem{}
		if err := rows.Scan(&item.ID, &item.UserID, &item.ProductID, &item.SpecID, &item.Quantity,
			&item.ProductName, &item.ProductImage, &item.SpecName, &item.Price); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *cartRepository) Upsert(ctx context.Context, userID, productID int64, specID *int64, quantity int) error {
	query := `INSERT INTO cart_items (user_id, product_id, spec_id, quantity)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (user_id, product_id, spec_id)
	          DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`
	_, err := r.db.ExecContext(ctx, query, userID, productID, specID, quantity)
	return err
}

func (r *cartRepository) UpdateQuantity(ctx context.Context, id, userID int64, quantity int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE cart_items SET quantity = $1 WHERE id = $2 AND user_id = $3`, quantity, id, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

func (r *cartRepository) Delete(ctx context.Context, id, userID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

func (r *cartRepository) Clear(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return err
}
