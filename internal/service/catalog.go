package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/youquan/minishop/internal/domain/models"
	"github.com/youquan/minishop/internal/storage"
)

// CatalogService определяет чтение каталога: товары, варианты, категории.
type CatalogService interface {
	Products(ctx context.Context, categoryID *int64, page, limit int) ([]*models.Product, error)
	Product(ctx context.Context, id int64) (*models.Product, error)
	Specs(ctx context.Context, productID int64) ([]*models.ProductSpec, error)
	Categories(ctx context.Context) ([]*models.Category, error)
}

type catalogService struct {
	log         *slog.Logger
	productRepo storage.ProductStorage
}

func NewCatalogService(log *slog.Logger, productRepo storage.ProductStorage) CatalogService {
	return &catalogService{log: log, productRepo: productRepo}
}

func (s *catalogService) Products(ctx context.Context, categoryID *int64, page, limit int) ([]*models.Product, error) {
	const op = "service.CatalogService.Products"

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	offset := (page - 1) * limit

	products, err := s.productRepo.ListProducts(ctx, categoryID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return products, nil
}

func (s *catalogService) Product(ctx context.Context, id int64) (*models.Product, error) {
	const op = "service.CatalogService.Product"

	product, err := s.productRepo.GetProductByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return product, nil
}

func (s *catalogService) Specs(ctx context.Context, productID int64) ([]*models.ProductSpec, error) {
	const op = "service.CatalogService.Specs"

	specs, err := s.productRepo.GetSpecsByProductID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return specs, nil
}

func (s *catalogService) Categories(ctx context.Context) ([]*models.Category, error) {
	const op = "service.CatalogService.Categories"

	categories, err := s.productRepo.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return categories, nil
}
