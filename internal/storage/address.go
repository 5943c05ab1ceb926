package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/youquan/minishop/internal/domain/models"
)

var ErrAddressNotFound = errors.New("address not found")

// AddressStorage описывает методы для работы с адресами доставки.
// Владелец всегда входит в предикат запроса.
type AddressStorage interface {
	ListByUser(ctx context.Context, userID int64) ([]*models.Address, error)
	GetByID(ctx context.Context, id, userID int64) (*models.Address, error)
	GetDefault(ctx context.Context, userID int64) (*models.Address, error)
	Create(ctx context.Context, addr *models.Address) (int64, error)
	Update(ctx context.Context, addr *models.Address) error
	Delete(ctx context.Context, id, userID int64) error
	// SetDefault сбрасывает прежний дефолт и назначает новый.
	SetDefault(ctx context.Context, id, userID int64) error
	// DemoteDefaults снимает флаг is_default со всех адресов пользователя.
	DemoteDefaults(ctx context.Context, userID int64) error
}

type addressRepository struct {
	db *sql.DB
}

func NewAddressRepository(db *sql.DB) AddressStorage {
	return &addressRepository{db: db}
}

const addressColumns = `id, user_id, receiver, phone, province, city, district, detail, is_default`

func (r *addressRepository) ListByUser(ctx context.Context, userID int64) ([]*models.Address, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE user_id = $1 ORDER BY is_default DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addresses []*models.Address
	for rows.Next() {
		a := &models.Address{}
		if err := rows.Scan(&a.ID, &a.UserID, &a.Receiver, &a.Phone, &a.Province, &a.City, &a.District, &a.Detail, &a.IsDefault); err != nil {
			return nil, err
		}
		addresses = append(addresses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return addresses, nil
}

func (r *addressRepository) GetByID(ctx context.Context, id, userID int64) (*models.Address, error) {
	a := &models.Address{}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE id = $1 AND user_id = $2`, id, userID)
	if err := row.Scan(&a.ID, &a.UserID, &a.Receiver, &a.Phone, &a.Province, &a.City, &a.District, &a.Detail, &a.IsDefault); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAddressNotFound
		}
		return nil, err
	}
	return a, nil
}

func (r *addressRepository) GetDefault(ctx context.Context, userID int64) (*models.Address, error) {
	a := &models.Address{}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE user_id = $1 AND is_default = TRUE`, userID)
	if err := row.Scan(&a.ID, &a.UserID, &a.Receiver, &a.Phone, &a.Province, &a.City, &a.District, &a.Detail, &a.IsDefault); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAddressNotFound
		}
		return nil, err
	}
	return a, nil
}

func (r *addressRepository) Create(ctx context.Context, addr *models.Address) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO addresses (user_id, receiver, phone, province, city, district, detail, is_default)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		addr.UserID, addr.Receiver, addr.Phone, addr.Province, addr.City, addr.District, addr.Detail, addr.IsDefault,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *addressRepository) Update(ctx context.Context, addr *models.Address) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE addresses
		 SET receiver = $1, phone = $2, province = $3, city = $4, district = $5, detail = $6, is_default = $7
		 WHERE id = $8 AND user_id = $9`,
		addr.Receiver, addr.Phone, addr.Province, addr.City, addr.District, addr.Detail, addr.IsDefault,
		addr.ID, addr.UserID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAddressNotFound
	}
	return nil
}

func (r *addressRepository) Delete(ctx context.Context, id, userID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM addresses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAddressNotFound
	}
	return nil
}

func (r *addressRepository) SetDefault(ctx context.Context, id, userID int64) error {
	if err := r.DemoteDefaults(ctx, userID); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE addresses SET is_default = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAddressNotFound
	}
	return nil
}

func (r *addressRepository) DemoteDefaults(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE addresses SET is_default = FALSE WHERE user_id = $1`, userID)
	return err
}
