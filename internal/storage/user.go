package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/youquan/minishop/internal/domain/models"
)

var ErrUserNotFound = errors.New("user not found")

// ProfileStats — агрегаты для страницы профиля: число заказов по статусам и
// количество адресов
type ProfileStats struct {
	PendingPayment int `json:"pending_payment"`
	Paid           int `json:"paid"`
	Shipped        int `json:"shipped"`
	Completed      int `json:"completed"`
	AddressCount   int `json:"address_count"`
}

type UserStorage interface {
	GetByOpenID(ctx context.Context, openid string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdateProfile(ctx context.Context, id int64, nickname, avatar string) error
	// SaveToken сохраняет выданный токен и срок его жизни.
	SaveToken(ctx context.Context, id int64, token string, expireTime time.Time) error
	// ClearToken сбрасывает токен при логауте.
	ClearToken(ctx context.Context, id int64) error
	ProfileStats(ctx context.Context, id int64) (*ProfileStats, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserStorage {
	return &userRepository{db: db}
}

func (r *userRepository) GetByOpenID(ctx context.Context, openid string) (*models.User, error) {
	user := &models.User{}
	row := r.db.QueryRowContext(ctx,
		"SELECT id, openid, nickname, avatar FROM users WHERE openid = $1", openid)
	if err := row.Scan(&user.ID, &user.OpenID, &user.Nickname, &user.Avatar); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	row := r.db.QueryRowContext(ctx,
		"SELECT id, openid, nickname, avatar FROM users WHERE id = $1", id)
	if err := row.Scan(&user.ID, &user.OpenID, &user.Nickname, &user.Avatar); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO users (openid, nickname, avatar) VALUES ($1, $2, $3) RETURNING id",
		user.OpenID, user.Nickname, user.Avatar,
	).Scan(&id)
	if err != nil {
		return nil, err
	}
	user.ID = id
	return user, nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, id int64, nickname, avatar string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET nickname = $1, avatar = $2 WHERE id = $3", nickname, avatar, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *userRepository) SaveToken(ctx context.Context, id int64, token string, expireTime time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE users SET access_token = $1, token_expire_time = $2 WHERE id = $3",
		token, expireTime, id)
	return err
}

func (r *userRepository) ClearToken(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE users SET access_token = NULL, token_expire_time = NULL WHERE id = $1", id)
	return err
}

func (r *userRepository) ProfileStats(ctx context.Context, id int64) (*ProfileStats, error) {
	stats := &ProfileStats{}
	row := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 0) AS pending_payment,
			COUNT(*) FILTER (WHERE status = 1) AS paid,
			COUNT(*) FILTER (WHERE status = 2) AS shipped,
			COUNT(*) FILTER (WHERE status = 3) AS completed
		FROM orders
		WHERE user_id = $1`, id)
	if err := row.Scan(&stats.PendingPayment, &stats.Paid, &stats.Shipped, &stats.Completed); err != nil {
		return nil, err
	}

	row = r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM addresses WHERE user_id = $1", id)
	if err := row.Scan(&stats.AddressCount); err != nil {
		return nil, err
	}
	return stats, nil
}
