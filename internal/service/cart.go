package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/youquan/minishop/internal/domain/models"
	"github.com/youquan/minishop/internal/storage"
)

// CartService определяет операции с корзиной.
type CartService interface {
	List(ctx context.Context, userID int64) ([]*models.CartItem, error)
	Add(ctx context.Context, userID, productID int64, specID *int64, quantity int) error
	UpdateQuantity(ctx context.Context, userID, itemID int64, quantity int) error
	Remove(ctx context.Context, userID, itemID int64) error
	Clear(ctx context.Context, userID int64) error
}

type cartService struct {
	log         *slog.Logger
	cartRepo    storage.CartStorage
	productRepo storage.ProductStorage
}

func NewCartService(log *slog.Logger, cartRepo storage.CartStorage, productRepo storage.ProductStorage) CartService {
	return &cartService{log: log, cartRepo: cartRepo, productRepo: productRepo}
}

func (s *cartService) List(ctx context.Context, userID int64) ([]*models.CartItem, error) {
	const op = "service.CartService.List"

	items, err := s.cartRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return items, nil
}

// Add проверяет товар/вариант и доступный остаток, затем добавляет позицию
// либо накапливает количество существующей
func (s *cartService) Add(ctx context.Context, userID, productID int64, specID *int64, quantity int) error {
	const op = "service.CartService.Add"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID), slog.Int64("productID", productID))

	if quantity <= 0 {
		return fmt.Errorf("%s: quantity must be positive", op)
	}

	line, err := s.productRepo.GetLine(ctx, productID, specID)
	if err != nil {
		logger.Warn("product lookup failed", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if line.Stock < quantity {
		logger.Warn("insufficient stock", slog.Int("stock", line.Stock), slog.Int("requested", quantity))
		return fmt.Errorf("%s: %w", op, storage.ErrInsufficientStock)
	}

	if err := s.cartRepo.Upsert(ctx, userID, productID, specID, quantity); err != nil {
		logger.Error("failed to upsert cart item", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *cartService) UpdateQuantity(ctx context.Context, userID, itemID int64, quantity int) error {
	const op = "service.CartService.UpdateQuantity"

	if quantity <= 0 {
		return fmt.Errorf("%s: quantity must be positive", op)
	}
	if err := s.cartRepo.UpdateQuantity(ctx, itemID, userID, quantity); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *cartService) Remove(ctx context.Context, userID, itemID int64) error {
	const op = "service.CartService.Remove"
	if err := s.cartRepo.Delete(ctx, itemID, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *cartService) Clear(ctx context.Context, userID int64) error {
	const op = "service.CartService.Clear"
	if err := s.cartRepo.Clear(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
