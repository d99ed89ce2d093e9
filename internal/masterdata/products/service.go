package products

import (
	"context"
	"fmt"

	mdshared "github.com/tienbob/Tubex-sub001/internal/masterdata/shared"
	"github.com/tienbob/Tubex-sub001/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]Product, int, error) {
	filters.Normalize()
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, actor shared.Actor, req CreateRequest) (Product, error) {
	if actor.Role == shared.RoleCustomer {
		return Product{}, fmt.Errorf("%w: customers cannot manage the catalog", shared.ErrForbidden)
	}
	product := Product{
		CompanyID:   req.CompanyID,
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Unit:        req.Unit,
		BasePrice:   req.BasePrice,
		Status:      StatusActive,
	}
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	return s.repo.Create(ctx, product)
}

func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, req UpdateRequest) (Product, error) {
	if actor.Role == shared.RoleCustomer {
		return Product{}, fmt.Errorf("%w: customers cannot manage the catalog", shared.ErrForbidden)
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return Product{}, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Category != nil {
		updates["category"] = *req.Category
	}
	if req.Unit != nil {
		updates["unit"] = *req.Unit
	}
	if req.BasePrice != nil {
		if req.BasePrice.IsNegative() {
			return Product{}, fmt.Errorf("%w: base price must be non-negative", shared.ErrValidation)
		}
		updates["base_price"] = *req.BasePrice
	}
	if len(updates) > 0 {
		if err := s.repo.Update(ctx, id, updates); err != nil {
			return Product{}, err
		}
	}
	return s.repo.Get(ctx, id)
}

// SetStatus moves a product between active, inactive and out_of_stock.
// Products are never hard-deleted, existing documents reference them.
func (s *Service) SetStatus(ctx context.Context, actor shared.Actor, id int64, status string) (Product, error) {
	if actor.Role == shared.RoleCustomer {
		return Product{}, fmt.Errorf("%w: customers cannot manage the catalog", shared.ErrForbidden)
	}
	switch status {
	case StatusActive, StatusInactive, StatusOutOfStock:
	default:
		return Product{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, status)
	}
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return Product{}, err
	}
	return s.repo.Get(ctx, id)
}
