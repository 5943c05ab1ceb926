package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	security "github.com/youquan/minishop/internal/jwt-new"
	"github.com/youquan/minishop/internal/domain/models"
	"github.com/youquan/minishop/internal/storage"
	"github.com/youquan/minishop/internal/wechat"
)

// Identity — та часть WeChat OAuth, которая нужна сервису аутентификации.
type Identity interface {
	ExchangeCode(ctx context.Context, code string) (*wechat.TokenResult, error)
	GetUserInfo(ctx context.Context, accessToken, openid string) (*wechat.UserInfo, error)
}

// LoginResult — данные пользователя с выданным токеном
type LoginResult struct {
	User       *models.User `json:"user"`
	Token      string       `json:"token"`
	ExpireTime time.Time    `json:"expire_time"`
}

// ProfileResult — профиль со статистикой заказов
type ProfileResult struct {
	UserInfo   *models.User          `json:"userInfo"`
	OrderStats *storage.ProfileStats `json:"orderStats"`
}

type AuthServiceInterface interface {
	Login(ctx context.Context, code string) (*LoginResult, error)
	TestLogin(ctx context.Context) (*LoginResult, error)
	Logout(ctx context.Context, userID int64) error
	Profile(ctx context.Context, userID int64) (*ProfileResult, error)
}

type AuthService struct {
	log      *slog.Logger
	userRepo storage.UserStorage
	identity Identity
	tokenTTL time.Duration
}

func NewAuthService(log *slog.Logger, userRepo storage.UserStorage, identity Identity, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		log:      log,
		userRepo: userRepo,
		identity: identity,
		tokenTTL: tokenTTL,
	}
}

// Login осуществляет вход по коду авторизации WeChat.
// Код меняется на openid; если пользователь новый — создаётся, иначе
// обновляется профиль из WeChat. После этого выдаётся JWT-токен.
func (a *AuthService) Login(ctx context.Context, code string) (*LoginResult, error) {
	const op = "auth.Login"
	logger := a.log.With(slog.String("op", op))
	logger.Info("exchanging wechat code")

	tokenResult, err := a.identity.ExchangeCode(ctx, code)
	if err != nil {
		logger.Warn("failed to exchange code", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to exchange code: %w", op, err)
	}

	userInfo, err := a.identity.GetUserInfo(ctx, tokenResult.AccessToken, tokenResult.OpenID)
	if err != nil {
		logger.Warn("failed to get user info", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get user info: %w", op, err)
	}

	return a.loginAs(ctx, logger, tokenResult.OpenID, userInfo.Nickname, userInfo.Avatar)
}

// TestLogin создаёт пользователя с фиктивными данными WeChat — для отладки без мини-программы
func (a *AuthService) TestLogin(ctx context.Context) (*LoginResult, error) {
	const op = "auth.TestLogin"
	logger := a.log.With(slog.String("op", op))

	openid := fmt.Sprintf("test_openid_%09d", rand.Intn(1_000_000_000))
	return a.loginAs(ctx, logger, openid, "测试用户", "https://placekitten.com/200/200")
}

func (a *AuthService) loginAs(ctx context.Context, logger *slog.Logger, openid, nickname, avatar string) (*LoginResult, error) {
	const op = "auth.loginAs"

	user, err := a.userRepo.GetByOpenID(ctx, openid)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			logger.Info("user not found, creating new user")
			user, err = a.userRepo.Create(ctx, &models.User{
				OpenID:   openid,
				Nickname: nickname,
				Avatar:   avatar,
			})
			if err != nil {
				logger.Error("failed to create user", slog.Any("error", err))
				return nil, fmt.Errorf("%s: failed to create user: %w", op, err)
			}
		} else {
			logger.Error("failed to get user", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to get user: %w", op, err)
		}
	} else {
		// Обновляем профиль актуальными данными WeChat
		if err := a.userRepo.UpdateProfile(ctx, user.ID, nickname, avatar); err != nil {
			logger.Error("failed to update user profile", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to update user profile: %w", op, err)
		}
		user.Nickname = nickname
		user.Avatar = avatar
	}

	token, err := security.NewToken(ctx, user, a.tokenTTL)
	if err != nil {
		logger.Error("failed to generate token", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to generate token: %w", op, err)
	}

	expireTime := time.Now().Add(a.tokenTTL)
	if err := a.userRepo.SaveToken(ctx, user.ID, token, expireTime); err != nil {
		logger.Error("failed to save token", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to save token: %w", op, err)
	}

	logger.Info("user logged in successfully", slog.Int64("userID", user.ID))
	return &LoginResult{User: user, Token: token, ExpireTime: expireTime}, nil
}

// Logout сбрасывает сохранённый токен пользователя
func (a *AuthService) Logout(ctx context.Context, userID int64) error {
	const op = "auth.Logout"
	if err := a.userRepo.ClearToken(ctx, userID); err != nil {
		return fmt.Errorf("%s: failed to clear token: %w", op, err)
	}
	return nil
}

// Profile возвращает данные пользователя со статистикой заказов и адресов
func (a *AuthService) Profile(ctx context.Context, userID int64) (*ProfileResult, error) {
	const op = "auth.Profile"

	user, err := a.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	stats, err := a.userRepo.ProfileStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load profile stats: %w", op, err)
	}
	return &ProfileResult{UserInfo: user, OrderStats: stats}, nil
}
