package warehouses

import (
	"context"
	"fmt"

	"github.com/tienbob/Tubex-sub001/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateRequest adds a warehouse to a company.
type CreateRequest struct {
	CompanyID int64   `json:"company_id" validate:"required,gt=0"`
	Name      string  `json:"name" validate:"required,min=2,max=200"`
	Address   *string `json:"address,omitempty" validate:"omitempty,max=500"`
}

// UpdateRequest edits warehouse fields.
type UpdateRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=2,max=200"`
	Address  *string `json:"address,omitempty" validate:"omitempty,max=500"`
	IsActive *bool   `json:"is_active,omitempty"`
}

func (s *Service) ListByCompany(ctx context.Context, companyID int64) ([]Warehouse, error) {
	return s.repo.ListByCompany(ctx, companyID)
}

func (s *Service) Get(ctx context.Context, id int64) (Warehouse, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, actor shared.Actor, req CreateRequest) (Warehouse, error) {
	if actor.Role == shared.RoleCustomer {
		return Warehouse{}, fmt.Errorf("%w: customers cannot manage warehouses", shared.ErrForbidden)
	}
	return s.repo.Create(ctx, Warehouse{
		CompanyID: req.CompanyID,
		Name:      req.Name,
		Address:   req.Address,
		IsActive:  true,
	})
}

func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, req UpdateRequest) (Warehouse, error) {
	if actor.Role == shared.RoleCustomer {
		return Warehouse{}, fmt.Errorf("%w: customers cannot manage warehouses", shared.ErrForbidden)
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return Warehouse{}, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Address != nil {
		updates["address"] = *req.Address
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) > 0 {
		if err := s.repo.Update(ctx, id, updates); err != nil {
			return Warehouse{}, err
		}
	}
	return s.repo.Get(ctx, id)
}
