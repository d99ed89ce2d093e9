package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tienbob/Tubex-sub001/internal/shared"
)

// Migrate copies a company's active price list items into unified pricing
// entries. The pricing type is inferred from the list name, provenance is
// kept in metadata, and the whole run is one transaction: a count mismatch
// at the end aborts and rolls everything back. A company that already holds
// migrated rows is refused; roll the previous batch back first.
func (s *Service) Migrate(ctx context.Context, actor shared.Actor, req MigrateRequest) (*MigrationReport, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can run the pricing migration", shared.ErrForbidden)
	}

	existing, err := s.repo.CountMigratedRows(ctx, req.CompanyID)
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, fmt.Errorf("%w: company %d already migrated (%d rows)", shared.ErrValidation, req.CompanyID, existing)
	}

	items, err := s.repo.ListMigratableItems(ctx, req.CompanyID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: company %d has no price list items to migrate", shared.ErrValidation, req.CompanyID)
	}

	skipped, err := s.repo.CountSkippedLists(ctx, req.CompanyID)
	if err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	report := &MigrationReport{
		BatchID:      batchID,
		CompanyID:    req.CompanyID,
		SourceItems:  len(items),
		SkippedLists: skipped,
	}

	if req.DryRun {
		report.MigratedRows = len(items)
		report.CompletedAt = time.Now()
		return report, nil
	}

	now := time.Now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, item := range items {
			effectiveFrom := now
			if item.EffectiveFrom != nil {
				effectiveFrom = *item.EffectiveFrom
			}
			id, err := tx.CreatePricing(ctx, ProductPricing{
				CompanyID:     req.CompanyID,
				ProductID:     item.ProductID,
				PricingType:   InferPricingType(item.ListName),
				Price:         item.Price,
				EffectiveFrom: effectiveFrom,
				EffectiveTo:   item.EffectiveTo,
				IsActive:      true,
				Metadata: map[string]any{
					"migrated_from":   "price_list_item",
					"migration_batch": batchID,
					"source_list_id":  item.ListID,
				},
				CreatedBy: actor.ID,
			})
			if err != nil {
				return fmt.Errorf("migrate product %d from list %d: %w", item.ProductID, item.ListID, err)
			}
			price := item.Price
			if err := tx.InsertPricingEvent(ctx, PricingEvent{
				PricingID: id,
				CompanyID: req.CompanyID,
				ProductID: item.ProductID,
				Action:    ActionCreated,
				NewPrice:  &price,
				ChangedBy: actor.ID,
			}); err != nil {
				return err
			}
		}

		migrated, err := tx.CountMigratedRows(ctx, req.CompanyID)
		if err != nil {
			return err
		}
		if migrated != len(items) {
			return fmt.Errorf("migration count mismatch: migrated %d rows but expected %d, aborting", migrated, len(items))
		}
		report.MigratedRows = migrated
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		s.invalidatePrice(ctx, req.CompanyID, item.ProductID)
	}
	report.CompletedAt = time.Now()

	s.logger.Info("pricing migration completed",
		"company_id", req.CompanyID, "batch_id", batchID, "rows", report.MigratedRows)
	s.recordAudit(ctx, actor, "pricing.migrate", "company", req.CompanyID,
		map[string]any{"batch_id": batchID, "rows": report.MigratedRows})
	return report, nil
}

// RollbackMigration deletes every unified pricing row created by one batch.
func (s *Service) RollbackMigration(ctx context.Context, actor shared.Actor, req RollbackRequest) (int, error) {
	if !actor.IsAdmin() {
		return 0, fmt.Errorf("%w: only admins can roll back the pricing migration", shared.ErrForbidden)
	}

	var removed int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		removed, err = tx.DeleteMigrationBatch(ctx, req.CompanyID, req.BatchID, actor.ID)
		return err
	})
	if err != nil {
		return 0, err
	}
	if removed == 0 {
		return 0, fmt.Errorf("%w: batch %s has no rows for company %d", shared.ErrNotFound, req.BatchID, req.CompanyID)
	}

	s.logger.Info("pricing migration rolled back",
		"company_id", req.CompanyID, "batch_id", req.BatchID, "rows", removed)
	s.recordAudit(ctx, actor, "pricing.rollback", "company", req.CompanyID,
		map[string]any{"batch_id": req.BatchID, "rows": removed})
	return removed, nil
}
