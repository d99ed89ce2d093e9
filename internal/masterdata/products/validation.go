package products

import (
	"fmt"
	"strings"

	"github.com/tienbob/Tubex-sub001/internal/shared"
)

func (s *Service) validate(p Product) error {
	if strings.TrimSpace(p.SKU) == "" {
		return fmt.Errorf("%w: product sku is required", shared.ErrValidation)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name is required", shared.ErrValidation)
	}
	if p.BasePrice.IsNegative() {
		return fmt.Errorf("%w: base price must be non-negative", shared.ErrValidation)
	}
	return nil
}
