package companies

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

// CreateRequest registers a trading company.
type CreateRequest struct {
	Name    string  `json:"name" validate:"required,min=2,max=200"`
	Type    string  `json:"type" validate:"required,oneof=dealer supplier"`
	TaxCode *string `json:"tax_code,omitempty" validate:"omitempty,max=50"`
	Address *string `json:"address,omitempty" validate:"omitempty,max=500"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,max=20"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email"`
}

// UpdateRequest edits company fields.
type UpdateRequest struct {
	Name    *string `json:"name,omitempty" validate:"omitempty,min=2,max=200"`
	TaxCode *string `json:"tax_code,omitempty" validate:"omitempty,max=50"`
	Address *string `json:"address,omitempty" validate:"omitempty,max=500"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,max=20"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email"`
	Status  *string `json:"status,omitempty" validate:"omitempty,oneof=active suspended"`
}

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]Company, int, error) {
	filters.Normalize()
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Company, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, actor shared.Actor, req CreateRequest) (Company, error) {
	if !actor.IsAdmin() {
		return Company{}, fmt.Errorf("%w: only admins can register companies", shared.ErrForbidden)
	}
	return s.repo.Create(ctx, Company{
		Name:    req.Name,
		Type:    req.Type,
		TaxCode: req.TaxCode,
		Address: req.Address,
		Phone:   req.Phone,
		Email:   req.Email,
		Status:  StatusActive,
	})
}

func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, req UpdateRequest) (Company, error) {
	if !actor.IsAdmin() {
		return Company{}, fmt.Errorf("%w: only admins can edit companies", shared.ErrForbidden)
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return Company{}, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.TaxCode != nil {
		updates["tax_code"] = *req.TaxCode
	}
	if req.Address != nil {
		updates["address"] = *req.Address
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if len(updates) > 0 {
		if err := s.repo.Update(ctx, id, updates); err != nil {
			return Company{}, err
		}
	}
	return s.repo.Get(ctx, id)
}
