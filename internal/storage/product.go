package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/youquan/minishop/internal/domain/models"
)

var (
	ErrProductNotFound   = errors.New("product not found or not on sale")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ResolvedLine — снимок строки заказа, полученный из каталога: авторитетные
// цена и остаток плюс отображаемые данные. Один снимок используется и для
// валидации, и для записи позиции заказа
type ResolvedLine struct {
	ProductID int64
	SpecID    *int64
	Name      string
	Image     string
	Price     decimal.Decimal
	Stock     int
}

// ProductStorage описывает методы для работы с каталогом.
type ProductStorage interface {
	// ResolveLine возвращает цену/остаток для (товар, вариант) с блокировкой строки остатка.
	// При указании варианта его цена и остаток полностью замещают базовые.
	ResolveLine(ctx context.Context, tx *sql.Tx, productID int64, specID *int64) (*ResolvedLine, error)
	// DecrementStock атомарно уменьшает остаток, если его хватает.
	DecrementStock(ctx context.Context, tx *sql.Tx, productID int64, specID *int64, quantity int) error
	// GetLine — то же разрешение цены/остатка, но вне транзакции и без блокировки (для предпросмотра).
	GetLine(ctx context.Context, productID int64, specID *int64) (*ResolvedLine, error)
	ListProducts(ctx context.Context, categoryID *int64, limit, offset int) ([]*models.Product, error)
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetSpecsByProductID(ctx context.Context, productID int64) ([]*models.ProductSpec, error)
	ListCategories(ctx context.Context) ([]*models.Category, error)
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт новый репозиторий каталога.
func NewProductRepository(db *sql.DB) ProductStorage {
	return &productRepository{db: db}
}

// ResolveLine читает цену/остаток внутри транзакции под FOR UPDATE, чтобы
// конкурирующие заказы на тот же товар выстраивались по блокировке строки.
func (r *productRepository) ResolveLine(ctx context.Context, tx *sql.Tx, productID int64, specID *int64) (*ResolvedLine, error) {
	line := &ResolvedLine{ProductID: productID, SpecID: specID}

	if specID != nil {
		// Вариант должен принадлежать товару; цена и остаток берутся из варианта
		query := `SELECT p.name, p.image, ps.price, ps.stock
		          FROM products p
		          JOIN product_specs ps ON ps.product_id = p.id AND ps.id = $2
		          WHERE p.id = $1 AND p.is_on_sale = TRUE
		          FOR UPDATE OF ps NOWAIT`
		row := tx.QueryRowContext(ctx, query, productID, *specID)
		if err := row.Scan(&line.Name, &line.Image, &line.Price, &line.Stock); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrProductNotFound
			}
			return nil, lockErr(err)
		}
		return line, nil
	}

	query := `SELECT name, image, price, stock
	          FROM products
	          WHERE id = $1 AND is_on_sale = TRUE
	          FOR UPDATE NOWAIT`
	row := tx.QueryRowContext(ctx, query, productID)
	if err := row.Scan(&line.Name, &line.Image, &line.Price, &line.Stock); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, lockErr(err)
	}
	return line, nil
}

// DecrementStock выполняет условное списание остатка: уменьшает только если
// остатка хватает, иначе затронется 0 строк и вернётся ErrInsufficientStock.
func (r *productRepository) DecrementStock(ctx context.Context, tx *sql.Tx, productID int64, specID *int64, quantity int) error {
	var res sql.Result
	var err error

	if specID != nil {
		res, err = tx.ExecContext(ctx,
			`UPDATE product_specs SET stock = stock - $1 WHERE id = $2 AND product_id = $3 AND stock >= $1`,
			quantity, *specID, productID)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1`,
			quantity, productID)
	}
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (r *productRepository) GetLine(ctx context.Context, productID int64, specID *int64) (*ResolvedLine, error) {
	line := &ResolvedLine{ProductID: productID, SpecID: specID}

	var row *sql.Row
	if specID != nil {
		row = r.db.QueryRowContext(ctx,
			`SELECT p.name, p.image, ps.price, ps.stock
			 FROM products p
			 JOIN product_specs ps ON ps.product_id = p.id AND ps.id = $2
			 WHERE p.id = $1 AND p.is_on_sale = TRUE`, productID, *specID)
	} else {
		row = r.db.QueryRowContext(ctx,
			`SELECT name, image, price, stock
			 FROM products
			 WHERE id = $1 AND is_on_sale = TRUE`, productID)
	}
	if err := row.Scan(&line.Name, &line.Image, &line.Price, &line.Stock); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return line, nil
}

func (r *productRepository) ListProducts(ctx context.Context, categoryID *int64, limit, offset int) ([]*models.Product, error) {
	query := `SELECT id, category_id, name, image, detail, price, stock, is_on_sale
	          FROM products`
	args := []any{}
	if categoryID != nil {
		query += ` WHERE category_id = $1 LIMIT $2 OFFSET $3`
		args = append(args, *categoryID, limit, offset)
	} else {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p := &models.Product{}
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Image, &p.Detail, &p.Price, &p.Stock, &p.IsOnSale); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *productRepository) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	p := &models.Product{}
	row := r.db.QueryRowContext(ctx,
		`SELECT id, category_id, name, image, detail, price, stock, is_on_sale FROM products WHERE id = $1`, id)
	if err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Image, &p.Detail, &p.Price, &p.Stock, &p.IsOnSale); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *productRepository) GetSpecsByProductID(ctx context.Context, productID int64) ([]*models.ProductSpec, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, product_id, name, price, stock FROM product_specs WHERE product_id = $1`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var specs []*models.ProductSpec
	for rows.Next() {
		s := &models.ProductSpec{}
		if err := rows.Scan(&s.ID, &s.ProductID, &s.Name, &s.Price, &s.Stock); err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return specs, nil
}

func (r *productRepository) ListCategories(ctx context.Context) ([]*models.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, image FROM categories`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []*models.Category
	for rows.Next() {
		c := &models.Category{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Image); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

// lockErr переводит ошибку lock_not_available в понятное сообщение
func lockErr(err error) error {
	if pqErr, ok := err.(*pq.Error); ok {
		if pqErr.Code == "55P03" { // lock
			return fmt.Errorf("resource is locked, please try again: %w", err)
		}
	}
	return err
}
