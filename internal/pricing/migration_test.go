package pricing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tienbob/Tubex-sub001/internal/shared"
)

func seedLegacyPricing(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()

	wholesale, err := svc.CreatePriceList(ctx, staff, CreatePriceListRequest{
		CompanyID: 1, Name: "Wholesale North", IsDefault: true,
	})
	require.NoError(t, err)
	retail, err := svc.CreatePriceList(ctx, staff, CreatePriceListRequest{
		CompanyID: 1, Name: "Standard",
	})
	require.NoError(t, err)

	_, err = svc.UpsertPriceListItem(ctx, staff, wholesale.ID, UpsertPriceListItemRequest{ProductID: 1, Price: dec("130000")})
	require.NoError(t, err)
	_, err = svc.UpsertPriceListItem(ctx, staff, wholesale.ID, UpsertPriceListItemRequest{ProductID: 2, Price: dec("80000")})
	require.NoError(t, err)
	_, err = svc.UpsertPriceListItem(ctx, staff, retail.ID, UpsertPriceListItemRequest{ProductID: 1, Price: dec("150000")})
	require.NoError(t, err)
}

func TestMigrateCreatesUnifiedRows(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)
	seedLegacyPricing(t, svc)

	report, err := svc.Migrate(context.Background(), admin, MigrateRequest{CompanyID: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, report.SourceItems)
	assert.Equal(t, 3, report.MigratedRows)
	assert.NotEmpty(t, report.BatchID)

	byType := map[PricingType]int{}
	for _, p := range repo.pricing {
		byType[p.PricingType]++
		assert.Equal(t, "price_list_item", p.Metadata["migrated_from"])
		assert.Equal(t, report.BatchID, p.Metadata["migration_batch"])
		assert.True(t, p.IsActive)
	}
	assert.Equal(t, 2, byType[TypeWholesale], "list name drives the inferred type")
	assert.Equal(t, 1, byType[TypeBase])

	created := 0
	for _, e := range repo.events {
		if e.Action == ActionCreated {
			created++
			assert.NotZero(t, e.PricingID)
		}
	}
	assert.Equal(t, 3, created, "every migrated row leaves an audit event")
}

func TestMigrateAbortsOnCountMismatch(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)
	seedLegacyPricing(t, svc)
	repo.countShortfall = 1

	_, err := svc.Migrate(context.Background(), admin, MigrateRequest{CompanyID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count mismatch")

	// the mismatch is an internal failure, never a client error
	assert.NotErrorIs(t, err, shared.ErrConflict)
	assert.NotErrorIs(t, err, shared.ErrValidation)

	// everything rolls back, audit events included
	assert.Empty(t, repo.pricing)
	assert.Empty(t, repo.events)
}

func TestMigrateCountsSkippedLists(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)
	seedLegacyPricing(t, svc)
	for _, list := range repo.lists {
		if list.Name == "Standard" {
			list.Status = "archived"
		}
	}

	report, err := svc.Migrate(context.Background(), admin, MigrateRequest{CompanyID: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, report.SourceItems, "archived lists contribute no items")
	assert.Equal(t, 2, report.MigratedRows)
	assert.Equal(t, 1, report.SkippedLists)
}

func TestMigrateIsGuardedAgainstReruns(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)
	seedLegacyPricing(t, svc)

	_, err := svc.Migrate(context.Background(), admin, MigrateRequest{CompanyID: 1})
	require.NoError(t, err)

	_, err = svc.Migrate(context.Background(), admin, MigrateRequest{CompanyID: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestMigrateDryRunWritesNothing(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)
	seedLegacyPricing(t, svc)

	report, err := svc.Migrate(context.Background(), admin, MigrateRequest{CompanyID: 1, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 3, report.MigratedRows)
	assert.Empty(t, repo.pricing)

	// a dry run does not trip the rerun guard
	_, err = svc.Migrate(context.Background(), admin, MigrateRequest{CompanyID: 1})
	require.NoError(t, err)
}

func TestMigrateRequiresAdminAndItems(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)

	_, err := svc.Migrate(context.Background(), staff, MigrateRequest{CompanyID: 1})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.Migrate(context.Background(), admin, MigrateRequest{CompanyID: 1})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestRollbackMigration(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)
	seedLegacyPricing(t, svc)
	ctx := context.Background()

	report, err := svc.Migrate(ctx, admin, MigrateRequest{CompanyID: 1})
	require.NoError(t, err)

	removed, err := svc.RollbackMigration(ctx, admin, RollbackRequest{CompanyID: 1, BatchID: report.BatchID})
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Empty(t, repo.pricing)

	deleted := 0
	for _, e := range repo.events {
		if e.Action == ActionDeleted {
			deleted++
			assert.Equal(t, admin.ID, e.ChangedBy)
		}
	}
	assert.Equal(t, 3, deleted)

	// an unknown batch is reported, not silently ignored
	_, err = svc.RollbackMigration(ctx, admin, RollbackRequest{CompanyID: 1, BatchID: report.BatchID})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	// after the rollback the company can migrate again
	_, err = svc.Migrate(ctx, admin, MigrateRequest{CompanyID: 1})
	require.NoError(t, err)
}
