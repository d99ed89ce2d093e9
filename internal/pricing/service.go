package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/tienbob/Tubex-sub001/internal/shared"
)

// Service implements price lists, unified pricing and the migration between
// them. Every price mutation writes a history row in the same transaction
// and drops the affected cache entry.
type Service struct {
	repo     Repository
	cache    *redis.Client
	cacheTTL time.Duration
	audit    *shared.AuditLogger
	logger   *slog.Logger
}

// NewService constructs a pricing service.
func NewService(repo Repository, cache *redis.Client, cacheTTL time.Duration, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, cacheTTL: cacheTTL, audit: audit, logger: logger}
}

func requireStaff(actor shared.Actor) error {
	if actor.Role == shared.RoleCustomer {
		return fmt.Errorf("%w: pricing is managed by staff", shared.ErrForbidden)
	}
	return nil
}

// CreatePriceList creates a legacy price list. Setting the default flag
// clears it from every other list of the company under a row lock, so two
// concurrent creations cannot both end up default.
func (s *Service) CreatePriceList(ctx context.Context, actor shared.Actor, req CreatePriceListRequest) (*PriceList, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if req.IsDefault {
			if err := tx.LockCompanyPriceLists(ctx, req.CompanyID); err != nil {
				return err
			}
			if err := tx.ClearDefaultList(ctx, req.CompanyID); err != nil {
				return err
			}
		}
		var err error
		id, err = tx.CreatePriceList(ctx, PriceList{
			CompanyID: req.CompanyID,
			Name:      req.Name,
			IsDefault: req.IsDefault,
			CreatedBy: actor.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, "price_list.create", "price_list", id, nil)
	return s.repo.GetPriceList(ctx, id)
}

// GetPriceList returns a list with its items.
func (s *Service) GetPriceList(ctx context.Context, id int64) (*PriceList, error) {
	return s.repo.GetPriceList(ctx, id)
}

// ListPriceLists returns all lists of a company.
func (s *Service) ListPriceLists(ctx context.Context, companyID int64) ([]PriceList, error) {
	return s.repo.ListPriceLists(ctx, companyID)
}

// UpdatePriceList renames a list or changes its default flag.
func (s *Service) UpdatePriceList(ctx context.Context, actor shared.Actor, id int64, req UpdatePriceListRequest) (*PriceList, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	list, err := s.repo.GetPriceList(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.IsDefault != nil {
		updates["is_default"] = *req.IsDefault
	}
	if len(updates) == 0 {
		return list, nil
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if req.IsDefault != nil && *req.IsDefault {
			if err := tx.LockCompanyPriceLists(ctx, list.CompanyID); err != nil {
				return err
			}
			if err := tx.ClearDefaultList(ctx, list.CompanyID); err != nil {
				return err
			}
		}
		return tx.UpdatePriceList(ctx, id, updates)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, "price_list.update", "price_list", id, nil)
	return s.repo.GetPriceList(ctx, id)
}

func (s *Service) checkItemRequest(ctx context.Context, actor shared.Actor, listID int64, req UpsertPriceListItemRequest) (*PriceList, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must be non-negative", shared.ErrValidation)
	}
	if req.EffectiveFrom != nil && req.EffectiveTo != nil && req.EffectiveTo.Before(*req.EffectiveFrom) {
		return nil, fmt.Errorf("%w: effective_to precedes effective_from", shared.ErrValidation)
	}
	return s.repo.GetPriceList(ctx, listID)
}

// AddPriceListItem adds a product to a list. Adding a product already on the
// list is a conflict; the price history row is written in the same
// transaction as the item.
func (s *Service) AddPriceListItem(ctx context.Context, actor shared.Actor, listID int64, req UpsertPriceListItemRequest) (*PriceList, error) {
	list, err := s.checkItemRequest(ctx, actor, listID, req)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.InsertPriceListItem(ctx, PriceListItem{
			PriceListID:   listID,
			ProductID:     req.ProductID,
			Price:         req.Price,
			EffectiveFrom: req.EffectiveFrom,
			EffectiveTo:   req.EffectiveTo,
		}); err != nil {
			return err
		}
		return tx.InsertListPriceChange(ctx, ListPriceChange{
			PriceListID: listID,
			ProductID:   req.ProductID,
			NewPrice:    req.Price,
			Reason:      req.Reason,
			ChangedBy:   actor.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidatePrice(ctx, list.CompanyID, req.ProductID)
	s.recordAudit(ctx, actor, "price_list.add_price", "price_list", listID,
		map[string]any{"product_id": req.ProductID, "price": req.Price.String()})
	return s.repo.GetPriceList(ctx, listID)
}

// UpsertPriceListItem sets a product's price on a list and records the
// change in the price history.
func (s *Service) UpsertPriceListItem(ctx context.Context, actor shared.Actor, listID int64, req UpsertPriceListItemRequest) (*PriceList, error) {
	list, err := s.checkItemRequest(ctx, actor, listID, req)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var oldPrice *decimal.Decimal
		if existing, err := tx.GetPriceListItem(ctx, listID, req.ProductID); err == nil {
			oldPrice = &existing.Price
		}
		if _, err := tx.UpsertPriceListItem(ctx, PriceListItem{
			PriceListID:   listID,
			ProductID:     req.ProductID,
			Price:         req.Price,
			EffectiveFrom: req.EffectiveFrom,
			EffectiveTo:   req.EffectiveTo,
		}); err != nil {
			return err
		}
		return tx.InsertListPriceChange(ctx, ListPriceChange{
			PriceListID: listID,
			ProductID:   req.ProductID,
			OldPrice:    oldPrice,
			NewPrice:    req.Price,
			Reason:      req.Reason,
			ChangedBy:   actor.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidatePrice(ctx, list.CompanyID, req.ProductID)
	s.recordAudit(ctx, actor, "price_list.set_price", "price_list", listID,
		map[string]any{"product_id": req.ProductID, "price": req.Price.String()})
	return s.repo.GetPriceList(ctx, listID)
}

// RemovePriceListItem removes a product from a list. The removal leaves a
// history row carrying the last price, like every other price mutation.
func (s *Service) RemovePriceListItem(ctx context.Context, actor shared.Actor, listID, productID int64) error {
	if err := requireStaff(actor); err != nil {
		return err
	}

	list, err := s.repo.GetPriceList(ctx, listID)
	if err != nil {
		return err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetPriceListItem(ctx, listID, productID)
		if err != nil {
			return err
		}
		if err := tx.DeletePriceListItem(ctx, listID, productID); err != nil {
			return err
		}
		return tx.InsertListPriceChange(ctx, ListPriceChange{
			PriceListID: listID,
			ProductID:   productID,
			OldPrice:    &existing.Price,
			NewPrice:    decimal.Zero,
			Reason:      "removed from list",
			ChangedBy:   actor.ID,
		})
	})
	if err != nil {
		return err
	}

	s.invalidatePrice(ctx, list.CompanyID, productID)
	s.recordAudit(ctx, actor, "price_list.remove_price", "price_list", listID,
		map[string]any{"product_id": productID})
	return nil
}

// CreatePricing creates a unified pricing entry.
func (s *Service) CreatePricing(ctx context.Context, actor shared.Actor, req CreatePricingRequest) (*ProductPricing, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if !req.PricingType.IsValid() {
		return nil, fmt.Errorf("%w: unknown pricing type %q", shared.ErrValidation, req.PricingType)
	}
	if req.Price.IsNegative() || req.MinQuantity.IsNegative() {
		return nil, fmt.Errorf("%w: price and min quantity must be non-negative", shared.ErrValidation)
	}

	effectiveFrom := time.Now()
	if req.EffectiveFrom != nil {
		effectiveFrom = *req.EffectiveFrom
	}
	if req.EffectiveTo != nil && req.EffectiveTo.Before(effectiveFrom) {
		return nil, fmt.Errorf("%w: effective_to precedes effective_from", shared.ErrValidation)
	}

	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = tx.CreatePricing(ctx, ProductPricing{
			CompanyID:     req.CompanyID,
			ProductID:     req.ProductID,
			PricingType:   req.PricingType,
			Price:         req.Price,
			MinQuantity:   req.MinQuantity,
			EffectiveFrom: effectiveFrom,
			EffectiveTo:   req.EffectiveTo,
			IsActive:      true,
			CreatedBy:     actor.ID,
		})
		if err != nil {
			return err
		}
		newPrice := req.Price
		return tx.InsertPricingEvent(ctx, PricingEvent{
			PricingID: id,
			CompanyID: req.CompanyID,
			ProductID: req.ProductID,
			Action:    ActionCreated,
			NewPrice:  &newPrice,
			ChangedBy: actor.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidatePrice(ctx, req.CompanyID, req.ProductID)
	s.recordAudit(ctx, actor, "pricing.create", "product_pricing", id, nil)
	return s.repo.GetPricing(ctx, id)
}

// UpdatePricing changes price, window or active flag of an entry.
func (s *Service) UpdatePricing(ctx context.Context, actor shared.Actor, id int64, req UpdatePricingRequest) (*ProductPricing, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	entry, err := s.repo.GetPricing(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, fmt.Errorf("%w: price must be non-negative", shared.ErrValidation)
		}
		updates["price"] = *req.Price
	}
	if req.EffectiveTo != nil {
		updates["effective_to"] = *req.EffectiveTo
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		return entry, nil
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdatePricing(ctx, id, updates); err != nil {
			return err
		}
		action := ActionUpdated
		if req.IsActive != nil && *req.IsActive != entry.IsActive {
			action = ActionDeactivated
			if *req.IsActive {
				action = ActionActivated
			}
		}
		event := PricingEvent{
			PricingID: id,
			CompanyID: entry.CompanyID,
			ProductID: entry.ProductID,
			Action:    action,
			ChangedBy: actor.ID,
		}
		if req.Price != nil {
			old := entry.Price
			event.OldPrice = &old
			event.NewPrice = req.Price
		}
		return tx.InsertPricingEvent(ctx, event)
	})
	if err != nil {
		return nil, err
	}

	s.invalidatePrice(ctx, entry.CompanyID, entry.ProductID)
	s.recordAudit(ctx, actor, "pricing.update", "product_pricing", id, nil)
	return s.repo.GetPricing(ctx, id)
}

// ListPricing returns filtered unified pricing entries.
func (s *Service) ListPricing(ctx context.Context, req ListPricingRequest) ([]ProductPricing, int, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	return s.repo.ListPricing(ctx, req)
}

// PriceHistory returns both audit trails for one product within a company:
// the legacy price list changes and the unified pricing events.
func (s *Service) PriceHistory(ctx context.Context, companyID, productID int64) (*PriceHistory, error) {
	listChanges, err := s.repo.ListListPriceChanges(ctx, companyID, productID)
	if err != nil {
		return nil, err
	}
	events, err := s.repo.ListPricingEvents(ctx, companyID, productID)
	if err != nil {
		return nil, err
	}
	return &PriceHistory{ListChanges: listChanges, PricingEvents: events}, nil
}

// SweepExpiredPricing deactivates entries whose window has closed. Called by
// the scheduled sweep; returns how many were deactivated.
func (s *Service) SweepExpiredPricing(ctx context.Context, asOf time.Time) (int, error) {
	ids, err := s.repo.ListExpiredPricingIDs(ctx, asOf)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, id := range ids {
		entry, err := s.repo.GetPricing(ctx, id)
		if err != nil {
			continue
		}
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if err := tx.UpdatePricing(ctx, id, map[string]interface{}{"is_active": false}); err != nil {
				return err
			}
			return tx.InsertPricingEvent(ctx, PricingEvent{
				PricingID: id,
				CompanyID: entry.CompanyID,
				ProductID: entry.ProductID,
				Action:    ActionDeactivated,
			})
		})
		if err != nil {
			s.logger.Error("deactivate expired pricing", "pricing_id", id, "error", err)
			continue
		}
		s.invalidatePrice(ctx, entry.CompanyID, entry.ProductID)
		swept++
	}
	if swept > 0 {
		s.logger.Info("deactivated expired pricing entries", "count", swept)
	}
	return swept, nil
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Error("audit record", "action", action, "error", err)
	}
}
