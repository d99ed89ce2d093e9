package pricing

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tienbob/Tubex-sub001/internal/shared"
)

type itemKey struct {
	listID    int64
	productID int64
}

type mockRepo struct {
	lists       map[int64]*PriceList
	items       map[itemKey]*PriceListItem
	pricing     map[int64]*ProductPricing
	listChanges []ListPriceChange
	events      []PricingEvent
	basePrices  map[int64]decimal.Decimal
	nextID      int64

	resolveHits int

	// when set, CountMigratedRows under-reports a populated table by this
	// many rows, simulating a concurrent writer racing the migration
	countShortfall int
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		lists:   map[int64]*PriceList{},
		items:   map[itemKey]*PriceListItem{},
		pricing: map[int64]*ProductPricing{},
		basePrices: map[int64]decimal.Decimal{
			1: dec("150000"),
			2: dec("85000"),
		},
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (m *mockRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *mockRepo) snapshot() mockRepo {
	cp := mockRepo{
		lists:       make(map[int64]*PriceList, len(m.lists)),
		items:       make(map[itemKey]*PriceListItem, len(m.items)),
		pricing:     make(map[int64]*ProductPricing, len(m.pricing)),
		listChanges: append([]ListPriceChange(nil), m.listChanges...),
		events:      append([]PricingEvent(nil), m.events...),
		nextID:      m.nextID,
	}
	for k, v := range m.lists {
		l := *v
		cp.lists[k] = &l
	}
	for k, v := range m.items {
		it := *v
		cp.items[k] = &it
	}
	for k, v := range m.pricing {
		p := *v
		cp.pricing[k] = &p
	}
	return cp
}

func (m *mockRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	saved := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.lists, m.items, m.pricing = saved.lists, saved.items, saved.pricing
		m.listChanges, m.events, m.nextID = saved.listChanges, saved.events, saved.nextID
		return err
	}
	return nil
}

func (m *mockRepo) GetPriceList(_ context.Context, id int64) (*PriceList, error) {
	list, ok := m.lists[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *list
	cp.Items = nil
	for k, it := range m.items {
		if k.listID == id {
			cp.Items = append(cp.Items, *it)
		}
	}
	return &cp, nil
}

func (m *mockRepo) ListPriceLists(_ context.Context, companyID int64) ([]PriceList, error) {
	var out []PriceList
	for _, list := range m.lists {
		if list.CompanyID == companyID {
			out = append(out, *list)
		}
	}
	return out, nil
}

func (m *mockRepo) GetPricing(_ context.Context, id int64) (*ProductPricing, error) {
	p, ok := m.pricing[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) ListPricing(_ context.Context, req ListPricingRequest) ([]ProductPricing, int, error) {
	var out []ProductPricing
	for _, p := range m.pricing {
		if p.CompanyID != req.CompanyID {
			continue
		}
		if req.ProductID != nil && p.ProductID != *req.ProductID {
			continue
		}
		if req.ActiveOnly && !p.IsActive {
			continue
		}
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (m *mockRepo) ListListPriceChanges(_ context.Context, companyID, productID int64) ([]ListPriceChange, error) {
	var out []ListPriceChange
	for _, c := range m.listChanges {
		list, ok := m.lists[c.PriceListID]
		if ok && list.CompanyID == companyID && c.ProductID == productID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockRepo) ListPricingEvents(_ context.Context, companyID, productID int64) ([]PricingEvent, error) {
	var out []PricingEvent
	for _, e := range m.events {
		if e.CompanyID == companyID && e.ProductID == productID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockRepo) FindActivePricing(_ context.Context, companyID, productID int64, at time.Time) (*ProductPricing, error) {
	m.resolveHits++
	for _, p := range m.pricing {
		if p.CompanyID == companyID && p.ProductID == productID && p.IsActive && p.InWindow(at) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepo) FindDefaultListPrice(_ context.Context, companyID, productID int64, at time.Time) (decimal.Decimal, error) {
	for _, list := range m.lists {
		if list.CompanyID != companyID || !list.IsDefault || list.Status != "active" {
			continue
		}
		if it, ok := m.items[itemKey{list.ID, productID}]; ok && it.InWindow(at) {
			return it.Price, nil
		}
	}
	return decimal.Zero, shared.ErrNotFound
}

func (m *mockRepo) GetBasePrice(_ context.Context, productID int64) (decimal.Decimal, error) {
	price, ok := m.basePrices[productID]
	if !ok {
		return decimal.Zero, shared.ErrNotFound
	}
	return price, nil
}

func (m *mockRepo) ListExpiredPricingIDs(_ context.Context, asOf time.Time) ([]int64, error) {
	var ids []int64
	for id, p := range m.pricing {
		if p.IsActive && p.EffectiveTo != nil && p.EffectiveTo.Before(asOf) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *mockRepo) ListMigratableItems(_ context.Context, companyID int64) ([]MigratableItem, error) {
	var out []MigratableItem
	for k, it := range m.items {
		list, ok := m.lists[k.listID]
		if !ok || list.CompanyID != companyID || list.Status != "active" {
			continue
		}
		out = append(out, MigratableItem{
			ListID: k.listID, ListName: list.Name, ProductID: k.productID, Price: it.Price,
			EffectiveFrom: it.EffectiveFrom, EffectiveTo: it.EffectiveTo,
		})
	}
	return out, nil
}

func (m *mockRepo) CountMigratedRows(_ context.Context, companyID int64) (int, error) {
	count := 0
	for _, p := range m.pricing {
		if p.CompanyID == companyID && p.Metadata["migrated_from"] == "price_list_item" {
			count++
		}
	}
	if count > 0 && m.countShortfall > 0 {
		count -= m.countShortfall
	}
	return count, nil
}

func (m *mockRepo) CountSkippedLists(_ context.Context, companyID int64) (int, error) {
	count := 0
	for _, list := range m.lists {
		if list.CompanyID == companyID && list.Status != "active" {
			count++
		}
	}
	return count, nil
}

func (m *mockRepo) LockCompanyPriceLists(_ context.Context, _ int64) error { return nil }

func (m *mockRepo) ClearDefaultList(_ context.Context, companyID int64) error {
	for _, list := range m.lists {
		if list.CompanyID == companyID {
			list.IsDefault = false
		}
	}
	return nil
}

func (m *mockRepo) CreatePriceList(_ context.Context, list PriceList) (int64, error) {
	list.ID = m.id()
	list.Status = "active"
	m.lists[list.ID] = &list
	return list.ID, nil
}

func (m *mockRepo) UpdatePriceList(_ context.Context, id int64, updates map[string]interface{}) error {
	list, ok := m.lists[id]
	if !ok {
		return shared.ErrNotFound
	}
	if v, ok := updates["name"]; ok {
		list.Name = v.(string)
	}
	if v, ok := updates["is_default"]; ok {
		list.IsDefault = v.(bool)
	}
	return nil
}

func (m *mockRepo) GetPriceListItem(_ context.Context, listID, productID int64) (*PriceListItem, error) {
	it, ok := m.items[itemKey{listID, productID}]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *mockRepo) InsertPriceListItem(_ context.Context, item PriceListItem) (int64, error) {
	key := itemKey{item.PriceListID, item.ProductID}
	if _, ok := m.items[key]; ok {
		return 0, shared.ErrConflict
	}
	item.ID = m.id()
	m.items[key] = &item
	return item.ID, nil
}

func (m *mockRepo) UpsertPriceListItem(_ context.Context, item PriceListItem) (int64, error) {
	key := itemKey{item.PriceListID, item.ProductID}
	if existing, ok := m.items[key]; ok {
		existing.Price = item.Price
		existing.EffectiveFrom = item.EffectiveFrom
		existing.EffectiveTo = item.EffectiveTo
		return existing.ID, nil
	}
	item.ID = m.id()
	m.items[key] = &item
	return item.ID, nil
}

func (m *mockRepo) DeletePriceListItem(_ context.Context, listID, productID int64) error {
	key := itemKey{listID, productID}
	if _, ok := m.items[key]; !ok {
		return shared.ErrNotFound
	}
	delete(m.items, key)
	return nil
}

func (m *mockRepo) CreatePricing(_ context.Context, p ProductPricing) (int64, error) {
	p.ID = m.id()
	m.pricing[p.ID] = &p
	return p.ID, nil
}

func (m *mockRepo) UpdatePricing(_ context.Context, id int64, updates map[string]interface{}) error {
	p, ok := m.pricing[id]
	if !ok {
		return shared.ErrNotFound
	}
	if v, ok := updates["price"]; ok {
		p.Price = v.(decimal.Decimal)
	}
	if v, ok := updates["effective_to"]; ok {
		t := v.(time.Time)
		p.EffectiveTo = &t
	}
	if v, ok := updates["is_active"]; ok {
		p.IsActive = v.(bool)
	}
	return nil
}

func (m *mockRepo) InsertListPriceChange(_ context.Context, change ListPriceChange) error {
	change.ID = m.id()
	change.ChangedAt = time.Now()
	m.listChanges = append(m.listChanges, change)
	return nil
}

func (m *mockRepo) InsertPricingEvent(_ context.Context, event PricingEvent) error {
	event.ID = m.id()
	event.ChangedAt = time.Now()
	m.events = append(m.events, event)
	return nil
}

func (m *mockRepo) DeleteMigrationBatch(_ context.Context, companyID int64, batchID string, changedBy int64) (int, error) {
	removed := 0
	for id, p := range m.pricing {
		if p.CompanyID == companyID && p.Metadata["migration_batch"] == batchID {
			price := p.Price
			m.events = append(m.events, PricingEvent{
				ID: m.id(), PricingID: id, CompanyID: companyID, ProductID: p.ProductID,
				Action: ActionDeleted, OldPrice: &price, ChangedBy: changedBy, ChangedAt: time.Now(),
			})
			delete(m.pricing, id)
			removed++
		}
	}
	return removed, nil
}

func newTestService(t *testing.T, repo *mockRepo) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, client, time.Minute, nil, logger)
}

var (
	staff = shared.Actor{ID: 7, Role: shared.RoleStaff}
	admin = shared.Actor{ID: 1, Role: shared.RoleAdmin}
)

func TestInferPricingType(t *testing.T) {
	cases := map[string]PricingType{
		"Wholesale North":     TypeWholesale,
		"retail standard":     TypeRetail,
		"Premium Contractors": TypePremium,
		"Dealer Tier A":       TypeDealer,
		"BULK buyers":         TypeBulk,
		"Summer Promo 2024":   TypePromo,
		"Standard":            TypeBase,
		"":                    TypeBase,
	}
	for name, want := range cases {
		assert.Equal(t, want, InferPricingType(name), "name %q", name)
	}
}

func TestDefaultListExclusivity(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)

	first, err := svc.CreatePriceList(context.Background(), staff, CreatePriceListRequest{
		CompanyID: 1, Name: "Retail Standard", IsDefault: true,
	})
	require.NoError(t, err)
	assert.True(t, first.IsDefault)

	second, err := svc.CreatePriceList(context.Background(), staff, CreatePriceListRequest{
		CompanyID: 1, Name: "Wholesale North", IsDefault: true,
	})
	require.NoError(t, err)
	assert.True(t, second.IsDefault)

	reloaded, err := svc.GetPriceList(context.Background(), first.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsDefault, "only one default list per company")
}

func TestUpsertItemWritesHistory(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)

	list, err := svc.CreatePriceList(context.Background(), staff, CreatePriceListRequest{
		CompanyID: 1, Name: "Retail Standard", IsDefault: true,
	})
	require.NoError(t, err)

	_, err = svc.UpsertPriceListItem(context.Background(), staff, list.ID, UpsertPriceListItemRequest{
		ProductID: 1, Price: dec("140000"),
	})
	require.NoError(t, err)

	_, err = svc.UpsertPriceListItem(context.Background(), staff, list.ID, UpsertPriceListItemRequest{
		ProductID: 1, Price: dec("145000"),
	})
	require.NoError(t, err)

	history, err := svc.PriceHistory(context.Background(), 1, 1)
	require.NoError(t, err)
	changes := history.ListChanges
	require.Len(t, changes, 2)
	assert.Nil(t, changes[0].OldPrice)
	require.NotNil(t, changes[1].OldPrice)
	assert.True(t, changes[1].OldPrice.Equal(dec("140000")))
	assert.True(t, changes[1].NewPrice.Equal(dec("145000")))
	assert.Equal(t, staff.ID, changes[1].ChangedBy)
}

func TestAddItemRefusesDuplicateProduct(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	list, err := svc.CreatePriceList(ctx, staff, CreatePriceListRequest{
		CompanyID: 1, Name: "Retail Standard",
	})
	require.NoError(t, err)

	_, err = svc.AddPriceListItem(ctx, staff, list.ID, UpsertPriceListItemRequest{
		ProductID: 1, Price: dec("140000"),
	})
	require.NoError(t, err)

	_, err = svc.AddPriceListItem(ctx, staff, list.ID, UpsertPriceListItemRequest{
		ProductID: 1, Price: dec("135000"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConflict)

	// the refused add leaves the existing price and a single history row
	item, err := repo.GetPriceListItem(ctx, list.ID, 1)
	require.NoError(t, err)
	assert.True(t, item.Price.Equal(dec("140000")))
	assert.Len(t, repo.listChanges, 1)
}

func TestRemoveItemWritesHistory(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	list, err := svc.CreatePriceList(ctx, staff, CreatePriceListRequest{
		CompanyID: 1, Name: "Retail Standard",
	})
	require.NoError(t, err)
	_, err = svc.AddPriceListItem(ctx, staff, list.ID, UpsertPriceListItemRequest{
		ProductID: 1, Price: dec("140000"),
	})
	require.NoError(t, err)

	err = svc.RemovePriceListItem(ctx, staff, list.ID, 1)
	require.NoError(t, err)

	history, err := svc.PriceHistory(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, history.ListChanges, 2)
	removal := history.ListChanges[1]
	require.NotNil(t, removal.OldPrice)
	assert.True(t, removal.OldPrice.Equal(dec("140000")))
	assert.True(t, removal.NewPrice.IsZero())
	assert.Equal(t, "removed from list", removal.Reason)
	assert.Equal(t, staff.ID, removal.ChangedBy)
}

func TestCreatePricingValidation(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)

	_, err := svc.CreatePricing(context.Background(), staff, CreatePricingRequest{
		CompanyID: 1, ProductID: 1, PricingType: "GOLD", Price: dec("100"),
	})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreatePricing(context.Background(), staff, CreatePricingRequest{
		CompanyID: 1, ProductID: 1, PricingType: TypeRetail, Price: dec("-1"),
	})
	assert.ErrorIs(t, err, shared.ErrValidation)

	from := time.Now()
	to := from.Add(-time.Hour)
	_, err = svc.CreatePricing(context.Background(), staff, CreatePricingRequest{
		CompanyID: 1, ProductID: 1, PricingType: TypeRetail, Price: dec("100"),
		EffectiveFrom: &from, EffectiveTo: &to,
	})
	assert.ErrorIs(t, err, shared.ErrValidation)

	customer := shared.Actor{ID: 10, Role: shared.RoleCustomer}
	_, err = svc.CreatePricing(context.Background(), customer, CreatePricingRequest{
		CompanyID: 1, ProductID: 1, PricingType: TypeRetail, Price: dec("100"),
	})
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestResolvePricePrecedence(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	// nothing configured: base price wins
	resolved, err := svc.ResolvePrice(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, ResolvedFromBasePrice, resolved.Source)
	assert.True(t, resolved.Price.Equal(dec("150000")))

	// a default list price overrides the base price
	list, err := svc.CreatePriceList(ctx, staff, CreatePriceListRequest{
		CompanyID: 1, Name: "Retail Standard", IsDefault: true,
	})
	require.NoError(t, err)
	_, err = svc.UpsertPriceListItem(ctx, staff, list.ID, UpsertPriceListItemRequest{
		ProductID: 1, Price: dec("140000"),
	})
	require.NoError(t, err)

	resolved, err = svc.ResolvePrice(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, ResolvedFromPriceList, resolved.Source)
	assert.True(t, resolved.Price.Equal(dec("140000")))

	// an active unified entry overrides everything
	_, err = svc.CreatePricing(ctx, staff, CreatePricingRequest{
		CompanyID: 1, ProductID: 1, PricingType: TypeRetail, Price: dec("135000"),
	})
	require.NoError(t, err)

	resolved, err = svc.ResolvePrice(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, ResolvedFromPricing, resolved.Source)
	assert.True(t, resolved.Price.Equal(dec("135000")))
}

func TestResolvePriceCaching(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.ResolvePrice(ctx, 1, 1)
	require.NoError(t, err)
	hits := repo.resolveHits

	// second resolution is served from cache
	resolved, err := svc.ResolvePrice(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, hits, repo.resolveHits)
	assert.True(t, resolved.Price.Equal(dec("150000")))

	// a mutation invalidates the cache
	entry, err := svc.CreatePricing(ctx, staff, CreatePricingRequest{
		CompanyID: 1, ProductID: 1, PricingType: TypeRetail, Price: dec("120000"),
	})
	require.NoError(t, err)

	resolved, err = svc.ResolvePrice(ctx, 1, 1)
	require.NoError(t, err)
	assert.Greater(t, repo.resolveHits, hits)
	assert.True(t, resolved.Price.Equal(dec("120000")))

	// deactivation invalidates again and resolution falls back
	inactive := false
	_, err = svc.UpdatePricing(ctx, staff, entry.ID, UpdatePricingRequest{IsActive: &inactive})
	require.NoError(t, err)

	resolved, err = svc.ResolvePrice(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, ResolvedFromBasePrice, resolved.Source)
}

func TestSweepExpiredPricing(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	from := time.Now().Add(-48 * time.Hour)
	to := time.Now().Add(-time.Hour)
	expired, err := svc.CreatePricing(ctx, staff, CreatePricingRequest{
		CompanyID: 1, ProductID: 1, PricingType: TypeRetail, Price: dec("100"),
		EffectiveFrom: &from, EffectiveTo: &to,
	})
	require.NoError(t, err)
	open, err := svc.CreatePricing(ctx, staff, CreatePricingRequest{
		CompanyID: 1, ProductID: 2, PricingType: TypeRetail, Price: dec("200"),
	})
	require.NoError(t, err)

	count, err := svc.SweepExpiredPricing(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.False(t, repo.pricing[expired.ID].IsActive)
	assert.True(t, repo.pricing[open.ID].IsActive)

	events, err := repo.ListPricingEvents(ctx, 1, 1)
	require.NoError(t, err)
	var deactivations int
	for _, e := range events {
		if e.Action == ActionDeactivated {
			deactivations++
		}
	}
	assert.Equal(t, 1, deactivations)
}
