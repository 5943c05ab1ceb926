package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/youquan/minishop/internal/domain/models"
	"github.com/youquan/minishop/internal/storage"
)

// AddressService определяет операции с адресной книгой.
type AddressService interface {
	List(ctx context.Context, userID int64) ([]*models.Address, error)
	Create(ctx context.Context, addr *models.Address) (int64, error)
	Update(ctx context.Context, addr *models.Address) error
	Delete(ctx context.Context, userID, id int64) error
	SetDefault(ctx context.Context, userID, id int64) error
}

type addressService struct {
	log         *slog.Logger
	addressRepo storage.AddressStorage
}

func NewAddressService(log *slog.Logger, addressRepo storage.AddressStorage) AddressService {
	return &addressService{log: log, addressRepo: addressRepo}
}

func (s *addressService) List(ctx context.Context, userID int64) ([]*models.Address, error) {
	const op = "service.AddressService.List"

	addresses, err := s.addressRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return addresses, nil
}

func (s *addressService) Create(ctx context.Context, addr *models.Address) (int64, error) {
	const op = "service.AddressService.Create"

	// Новый дефолтный адрес снимает флаг с прежнего
	if addr.IsDefault {
		if err := s.addressRepo.DemoteDefaults(ctx, addr.UserID); err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
	}
	id, err := s.addressRepo.Create(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

func (s *addressService) Update(ctx context.Context, addr *models.Address) error {
	const op = "service.AddressService.Update"

	// Адрес должен существовать и принадлежать пользователю
	if _, err := s.addressRepo.GetByID(ctx, addr.ID, addr.UserID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if addr.IsDefault {
		if err := s.addressRepo.DemoteDefaults(ctx, addr.UserID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := s.addressRepo.Update(ctx, addr); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *addressService) Delete(ctx context.Context, userID, id int64) error {
	const op = "service.AddressService.Delete"
	if err := s.addressRepo.Delete(ctx, id, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *addressService) SetDefault(ctx context.Context, userID, id int64) error {
	const op = "service.AddressService.SetDefault"
	if err := s.addressRepo.SetDefault(ctx, id, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
