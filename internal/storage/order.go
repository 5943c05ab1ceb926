package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/youquan/minishop/internal/domain/models"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderNoTaken — уникальный индекс по order_no сработал; номер нужно перегенерировать
	ErrOrderNoTaken = errors.New("order number already taken")
)

// OrderStorage описывает методы для работы с заказами.
type OrderStorage interface {
	// CreateOrder вставляет шапку заказа внутри транзакции и возвращает её id.
	CreateOrder(ctx context.Context, tx *sql.Tx, order *models.Order) (int64, error)
	// CreateOrderItem вставляет позицию заказа внутри той же транзакции.
	CreateOrderItem(ctx context.Context, tx *sql.Tx, item *models.OrderItem) error
	// GetByOrderNo возвращает заказ с адресом; владелец зашит в предикат запроса.
	GetByOrderNo(ctx context.Context, orderNo string, userID int64) (*models.Order, error)
	// ListByUser возвращает страницу заказов пользователя, опционально отфильтрованных по статусу.
	ListByUser(ctx context.Context, userID int64, status *models.OrderStatus, limit, offset int) ([]*models.Order, error)
	ItemsByOrderID(ctx context.Context, orderID int64) ([]*models.OrderItem, error)
	// UpdateAddress меняет адрес только пока заказ не оплачен.
	UpdateAddress(ctx context.Context, orderNo string, userID, addressID int64) error
	// UpdateStatus переводит заказ из from в to; предикат по from защищает от гонок.
	UpdateStatus(ctx context.Context, orderNo string, userID int64, from, to models.OrderStatus) error
	// MarkPaid переводит заказ 0→1 и ставит pay_time; повтор вебхука — no-op.
	MarkPaid(ctx context.Context, orderNo string, payTime time.Time) (bool, error)
	Delete(ctx context.Context, orderNo string, userID int64) error
	Clear(ctx context.Context, userID int64, status *models.OrderStatus) error
	SetShareCode(ctx context.Context, orderNo string, userID int64, shareCode string) error
	GetByShareCode(ctx context.Context, shareCode string) (*models.Order, error)
}

// orderRepository — конкретная реализация OrderStorage.
type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт новый репозиторий заказов.
func NewOrderRepository(db *sql.DB) OrderStorage {
	return &orderRepository{db: db}
}

func (r *orderRepository) CreateOrder(ctx context.Context, tx *sql.Tx, order *models.Order) (int64, error) {
	// После ошибки уникального индекса Postgres переводит транзакцию в aborted,
	// и повторная вставка без отката невозможна (25P02). Точка сохранения
	// позволяет откатить только вставку шапки и повторить её с новым номером.
	if _, err := tx.ExecContext(ctx, `SAVEPOINT order_header`); err != nil {
		return 0, fmt.Errorf("failed to create savepoint: %w", err)
	}

	var id int64
	query := `INSERT INTO orders (order_no, user_id, total_amount, status, address_id, create_time)
	          VALUES ($1, $2, $3, $4, $5, NOW())
	          RETURNING id`
	err := tx.QueryRowContext(ctx, query,
		order.OrderNo, order.UserID, order.TotalAmount, order.Status, order.AddressID,
	).Scan(&id)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			if _, rbErr := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT order_header`); rbErr != nil {
				return 0, fmt.Errorf("failed to rollback to savepoint: %w", rbErr)
			}
			return 0, ErrOrderNoTaken
		}
		return 0, fmt.Errorf("failed to create order: %w", err)
	}
	return id, nil
}

func (r *orderRepository) CreateOrderItem(ctx context.Context, tx *sql.Tx, item *models.OrderItem) error {
	query := `INSERT INTO order_items (order_id, product_id, spec_id, product_name, product_image, price, quantity)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := tx.ExecContext(ctx, query,
		item.OrderID, item.ProductID, item.SpecID, item.ProductName, item.ProductImage, item.Price, item.Quantity)
	if err != nil {
		return fmt.Errorf("failed to create order item: %w", err)
	}
	return nil
}

const orderColumns = `o.id, o.order_no, o.user_id, o.total_amount, o.status, o.address_id, o.share_code, o.pay_time, o.create_time`

func scanOrderWithAddress(row interface{ Scan(...any) error }) (*models.Order, error) {
	order := &models.Order{}
	var receiver, phone, province, city, district, detail sql.NullString
	if err := row.Scan(
		&order.ID, &order.OrderNo, &order.UserID, &order.TotalAmount, &order.Status,
		&order.AddressID, &order.ShareCode, &order.PayTime, &order.CreatedAt,
		&receiver, &phone, &province, &city, &district, &detail,
	); err != nil {
		return nil, err
	}
	if receiver.Valid {
		order.Address = &models.Address{
			Receiver: receiver.String,
			Phone:    phone.String,
			Province: province.String,
			City:     city.String,
			District: district.String,
			Detail:   detail.String,
		}
		if order.AddressID != nil {
			order.Address.ID = *order.AddressID
		}
	}
	return order, nil
}

func (r *orderRepository) GetByOrderNo(ctx context.Context, orderNo string, userID int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + `,
	                 a.receiver, a.phone, a.province, a.city, a.district, a.detail
	          FROM orders o
	          LEFT JOIN addresses a ON o.address_id = a.id
	          WHERE o.order_no = $1 AND o.user_id = $2`
	order, err := scanOrderWithAddress(r.db.QueryRowContext(ctx, query, orderNo, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) ListByUser(ctx context.Context, userID int64, status *models.OrderStatus, limit, offset int) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + `,
	                 a.receiver, a.phone, a.province, a.city, a.district, a.detail
	          FROM orders o
	          LEFT JOIN addresses a ON o.address_id = a.id
	          WHERE o.user_id = $1`
	args := []any{userID}
	if status != nil {
		query += ` AND o.status = $2 ORDER BY o.create_time DESC LIMIT $3 OFFSET $4`
		args = append(args, *status, limit, offset)
	} else {
		query += ` ORDER BY o.create_time DESC LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrderWithAddress(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) ItemsByOrderID(ctx context.Context, orderID int64) ([]*models.OrderItem, error) {
	query := `SELECT id, order_id, product_id, spec_id, product_name, product_image, price, quantity
	          FROM order_items
	          WHERE order_id = $1`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.OrderItem
	for rows.Next() {
		item := &models.OrderItem{}
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.SpecID,
			&item.ProductName, &item.ProductImage, &item.Price, &item.Quantity); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *orderRepository) UpdateAddress(ctx context.Context, orderNo string, userID, addressID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET address_id = $1 WHERE order_no = $2 AND user_id = $3 AND status = 0`,
		addressID, orderNo, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, orderNo string, userID int64, from, to models.OrderStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $1 WHERE order_no = $2 AND user_id = $3 AND status = $4`,
		to, orderNo, userID, from)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) MarkPaid(ctx context.Context, orderNo string, payTime time.Time) (bool, error) {
	// Предикат status = 0 делает повтор вебхука no-op'ом
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = 1, pay_time = $1 WHERE order_no = $2 AND status = 0`,
		payTime, orderNo)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *orderRepository) Delete(ctx context.Context, orderNo string, userID int64) error {
	// Позиции удаляются каскадом по FK
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM orders WHERE order_no = $1 AND user_id = $2`, orderNo, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) Clear(ctx context.Context, userID int64, status *models.OrderStatus) error {
	query := `DELETE FROM orders WHERE user_id = $1`
	args := []any{userID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *orderRepository) SetShareCode(ctx context.Context, orderNo string, userID int64, shareCode string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET share_code = $1 WHERE order_no = $2 AND user_id = $3 AND status = 0`,
		shareCode, orderNo, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) GetByShareCode(ctx context.Context, shareCode string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + `,
	                 a.receiver, a.phone, a.province, a.city, a.district, a.detail,
	                 u.nickname, u.avatar
	          FROM orders o
	          LEFT JOIN addresses a ON o.address_id = a.id
	          LEFT JOIN users u ON o.user_id = u.id
	          WHERE o.share_code = $1`

	order := &models.Order{}
	var receiver, phone, province, city, district, detail sql.NullString
	var nickname, avatar sql.NullString
	err := r.db.QueryRowContext(ctx, query, shareCode).Scan(
		&order.ID, &order.OrderNo, &order.UserID, &order.TotalAmount, &order.Status,
		&order.AddressID, &order.ShareCode, &order.PayTime, &order.CreatedAt,
		&receiver, &phone, &province, &city, &district, &detail,
		&nickname, &avatar,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if receiver.Valid {
		order.Address = &models.Address{
			Receiver: receiver.String,
			Phone:    phone.String,
			Province: province.String,
			City:     city.String,
			District: district.String,
			Detail:   detail.String,
		}
		if order.AddressID != nil {
			order.Address.ID = *order.AddressID
		}
	}
	order.CreatorNickname = nickname.String
	order.CreatorAvatar = avatar.String
	return order, nil
}
