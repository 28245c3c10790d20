package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/tldpricing-backend/internal/domain"
	"github.com/simaogato/tldpricing-backend/internal/usecase/derivation"
)

// memoryStore is an in-memory PricingStore that counts writes
type memoryStore struct {
	mu         sync.Mutex
	rows       []*domain.PricingRow
	cellWrites int
	groupWrite int
	failCell   map[domain.PriceType]bool
}

func newMemoryStore(rows ...*domain.PricingRow) *memoryStore {
	return &memoryStore{rows: rows, failCell: map[domain.PriceType]bool{}}
}

func (m *memoryStore) Lookup(_ context.Context, extension string) ([]*domain.PricingRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PricingRow
	for _, row := range m.rows {
		if row.Extension == extension {
			out = append(out, cloneRow(row))
		}
	}
	return out, nil
}

func (m *memoryStore) CreateRow(_ context.Context, extension string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := &domain.PricingRow{ID: uuid.New(), Extension: extension, CurrencyID: 1}
	m.rows = append(m.rows, row)
	return row.ID, nil
}

func (m *memoryStore) WriteCell(_ context.Context, rowID uuid.UUID, priceType domain.PriceType, term domain.Term, price decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCell[priceType] {
		return errors.New("disk full")
	}
	for _, row := range m.rows {
		if row.ID != rowID {
			continue
		}
		if row.Prices == nil {
			row.Prices = map[domain.PriceType]*domain.TermPrices{}
		}
		if row.Prices[priceType] == nil {
			row.Prices[priceType] = &domain.TermPrices{}
		}
		row.Prices[priceType].Set(term, price)
		m.cellWrites++
		return nil
	}
	return errors.New("row not found")
}

func (m *memoryStore) WriteGroup(_ context.Context, extension, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Extension == extension {
			row.Group = label
		}
	}
	m.groupWrite++
	return nil
}

func (m *memoryStore) ListExtensions(context.Context) ([]string, error) {
	return nil, nil
}

func (m *memoryStore) ListRows(context.Context) ([]*domain.PricingRow, error) {
	return nil, nil
}

func (m *memoryStore) snapshot() []*domain.PricingRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.PricingRow, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, cloneRow(row))
	}
	return out
}

func cloneRow(row *domain.PricingRow) *domain.PricingRow {
	cp := *row
	if row.Prices != nil {
		cp.Prices = map[domain.PriceType]*domain.TermPrices{}
		for k, v := range row.Prices {
			prices := *v
			cp.Prices[k] = &prices
		}
	}
	return &cp
}

// MockDerivedPriceCache is a mock implementation of DerivedPriceCache
type MockDerivedPriceCache struct {
	mock.Mock
}

func (m *MockDerivedPriceCache) Put(ctx context.Context, extension string, set *domain.DerivedPriceSet) error {
	args := m.Called(ctx, extension, set)
	return args.Error(0)
}

func (m *MockDerivedPriceCache) Get(ctx context.Context, extension string) (*domain.CachedPriceSet, error) {
	args := m.Called(ctx, extension)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CachedPriceSet), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, event domain.PriceChangeEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

var (
	testNow    = time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	testPolicy = domain.PricingPolicy{
		Margin:   domain.MarginPolicy{Type: domain.MarginTypePercentage, Value: decimal.NewFromInt(20)},
		Rounding: domain.RoundingPolicy{Type: domain.RoundingUpTo, Increment: decimal.NewFromInt(1000)},
	}
)

func idEntry(withPromo bool) domain.CatalogEntry {
	entry := domain.CatalogEntry{
		Extension:    ".id",
		Registration: "Rp110.000",
		Renewal:      "Rp100.000",
		Transfer:     "Rp50.000",
	}
	if withPromo {
		entry.Promo = &domain.PromoOffer{
			Registration: "Rp50.000",
			StartDate:    testNow.AddDate(0, 0, -1).Format("2006-01-02"),
			EndDate:      testNow.AddDate(0, 0, 5).Format("2006-01-02"),
			Terms:        "2",
		}
	}
	return entry
}

func derive(t *testing.T, entry domain.CatalogEntry) *domain.DerivedPriceSet {
	t.Helper()
	set, err := derivation.Derive(entry, testPolicy, testNow)
	require.NoError(t, err)
	return set
}

func newService(store domain.PricingStore, cache domain.DerivedPriceCache, publisher domain.EventPublisher) *ReconcileService {
	return NewReconcileService(store, cache, publisher, clockwork.NewFakeClockAt(testNow), zerolog.Nop())
}

func pricedRow(ext string, register, renew, transfer int64) *domain.PricingRow {
	row := &domain.PricingRow{
		ID:         uuid.New(),
		Extension:  ext,
		CurrencyID: 1,
		Prices:     map[domain.PriceType]*domain.TermPrices{},
	}
	for priceType, price := range map[domain.PriceType]int64{
		domain.PriceTypeRegister: register,
		domain.PriceTypeRenew:    renew,
		domain.PriceTypeTransfer: transfer,
	} {
		tp := &domain.TermPrices{}
		tp.Set(domain.MinTerm, decimal.NewFromInt(price))
		row.Prices[priceType] = tp
	}
	return row
}

func cell(t *testing.T, row *domain.PricingRow, priceType domain.PriceType, term domain.Term) decimal.Decimal {
	t.Helper()
	price, ok := row.Cell(priceType, term)
	require.True(t, ok, "%s year %d is empty", priceType, term)
	return price
}

func TestReconcile_CreatesRowWhenAbsent(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	cache := new(MockDerivedPriceCache)
	derived := derive(t, idEntry(false))
	cache.On("Put", ctx, ".id", derived).Return(nil)

	result := newService(store, cache, nil).Reconcile(ctx, ".id", derived)

	assert.Empty(t, result.Errors)
	assert.True(t, result.Created)
	assert.True(t, result.Updated)
	assert.Equal(t, domain.RowAbsent, result.Resolution)
	assert.Len(t, result.Changes, 3)

	rows := store.snapshot()
	require.Len(t, rows, 1)
	assert.True(t, cell(t, rows[0], domain.PriceTypeRegister, 1).Equal(decimal.NewFromInt(132000)))
	assert.True(t, cell(t, rows[0], domain.PriceTypeRenew, 1).Equal(decimal.NewFromInt(120000)))
	assert.True(t, cell(t, rows[0], domain.PriceTypeTransfer, 1).Equal(decimal.NewFromInt(60000)))
	assert.Equal(t, "", rows[0].Group)
	assert.Equal(t, 0, store.groupWrite)
	cache.AssertExpectations(t)
}

func TestReconcile_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	cache := new(MockDerivedPriceCache)
	cache.On("Put", ctx, ".id", mock.Anything).Return(nil)
	service := newService(store, cache, nil)

	for _, withPromo := range []bool{false, true} {
		derived := derive(t, idEntry(withPromo))

		first := service.Reconcile(ctx, ".id", derived)
		require.Empty(t, first.Errors)
		assert.True(t, first.Updated)

		before := store.snapshot()
		writesBefore := store.cellWrites
		groupsBefore := store.groupWrite

		second := service.Reconcile(ctx, ".id", derived)
		assert.Empty(t, second.Errors)
		assert.False(t, second.Updated)
		assert.Empty(t, second.Changes)
		assert.Equal(t, before, store.snapshot())
		assert.Equal(t, writesBefore, store.cellWrites)
		assert.Equal(t, groupsBefore, store.groupWrite)
	}

	// the derived set is cached on every run, changed or not
	cache.AssertNumberOfCalls(t, "Put", 4)
}

func TestReconcile_PromoWritesPromoTermCell(t *testing.T) {
	ctx := context.Background()
	existing := pricedRow(".id", 132000, 120000, 60000)
	store := newMemoryStore(existing)
	cache := new(MockDerivedPriceCache)
	cache.On("Put", ctx, ".id", mock.Anything).Return(nil)

	result := newService(store, cache, nil).Reconcile(ctx, ".id", derive(t, idEntry(true)))

	require.Empty(t, result.Errors)
	assert.True(t, result.Updated)
	assert.True(t, result.GroupChanged)
	assert.Equal(t, domain.RowCanonical, result.Resolution)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, domain.Term(2), result.Changes[0].Term)
	assert.False(t, result.Changes[0].Previous.Valid)

	row := store.snapshot()[0]
	assert.True(t, cell(t, row, domain.PriceTypeRegister, 2).Equal(decimal.NewFromInt(60000)))
	assert.True(t, cell(t, row, domain.PriceTypeRegister, 1).Equal(decimal.NewFromInt(132000)))
	assert.Equal(t, domain.PromoGroupLabel, row.Group)
}

func TestReconcile_PromoEndsClearsGroup(t *testing.T) {
	ctx := context.Background()
	existing := pricedRow(".id", 100000, 120000, 60000)
	existing.Group = domain.PromoGroupLabel
	store := newMemoryStore(existing)
	cache := new(MockDerivedPriceCache)
	cache.On("Put", ctx, ".id", mock.Anything).Return(nil)

	result := newService(store, cache, nil).Reconcile(ctx, ".id", derive(t, idEntry(false)))

	require.Empty(t, result.Errors)
	require.Len(t, result.Changes, 1)
	assert.True(t, result.Changes[0].Previous.Decimal.Equal(decimal.NewFromInt(100000)))

	row := store.snapshot()[0]
	assert.True(t, cell(t, row, domain.PriceTypeRegister, 1).Equal(decimal.NewFromInt(132000)))
	assert.Equal(t, "", row.Group)
}

func TestReconcile_DuplicateRows(t *testing.T) {
	ctx := context.Background()
	bare := &domain.PricingRow{ID: uuid.New(), Extension: ".id", CurrencyID: 1}
	priced := pricedRow(".id", 100000, 100000, 100000)
	store := newMemoryStore(bare, priced)
	cache := new(MockDerivedPriceCache)
	cache.On("Put", ctx, ".id", mock.Anything).Return(nil)

	result := newService(store, cache, nil).Reconcile(ctx, ".id", derive(t, idEntry(true)))

	require.Empty(t, result.Errors)
	assert.Equal(t, priced.ID, result.RowID)

	rows := store.snapshot()
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0].Prices, "the duplicate row must not receive price cells")
	assert.True(t, cell(t, rows[1], domain.PriceTypeRegister, 2).Equal(decimal.NewFromInt(60000)))
	assert.True(t, cell(t, rows[1], domain.PriceTypeRenew, 1).Equal(decimal.NewFromInt(120000)))
	assert.Equal(t, domain.PromoGroupLabel, rows[0].Group)
	assert.Equal(t, domain.PromoGroupLabel, rows[1].Group)
}

func TestReconcile_UncanonicalRowReceivesCells(t *testing.T) {
	ctx := context.Background()
	first := &domain.PricingRow{ID: uuid.New(), Extension: ".id"}
	second := &domain.PricingRow{ID: uuid.New(), Extension: ".id"}
	store := newMemoryStore(first, second)
	cache := new(MockDerivedPriceCache)
	cache.On("Put", ctx, ".id", mock.Anything).Return(nil)

	result := newService(store, cache, nil).Reconcile(ctx, ".id", derive(t, idEntry(false)))

	assert.Equal(t, domain.RowUncanonical, result.Resolution)
	assert.Equal(t, first.ID, result.RowID)
	assert.False(t, result.Created)
	assert.Len(t, result.Changes, 3)
}

func TestReconcile_FailedCellDoesNotBlockSiblings(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(pricedRow(".id", 1, 1, 1))
	store.failCell[domain.PriceTypeRenew] = true
	cache := new(MockDerivedPriceCache)
	cache.On("Put", ctx, ".id", mock.Anything).Return(nil)

	result := newService(store, cache, nil).Reconcile(ctx, ".id", derive(t, idEntry(false)))

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "renew")
	assert.True(t, result.Updated)
	assert.Len(t, result.Changes, 2)

	row := store.snapshot()[0]
	assert.True(t, cell(t, row, domain.PriceTypeTransfer, 1).Equal(decimal.NewFromInt(60000)))
}

func TestReconcile_CacheFailureIsReported(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(pricedRow(".id", 132000, 120000, 60000))
	cache := new(MockDerivedPriceCache)
	cache.On("Put", ctx, ".id", mock.Anything).Return(errors.New("redis down"))

	result := newService(store, cache, nil).Reconcile(ctx, ".id", derive(t, idEntry(false)))

	assert.False(t, result.Updated)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "redis down")
}

func TestReconcile_PublishesOnChangeOnly(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	cache := new(MockDerivedPriceCache)
	cache.On("Put", ctx, ".id", mock.Anything).Return(nil)
	publisher := new(MockEventPublisher)
	publisher.On("Publish", ctx, mock.MatchedBy(func(event domain.PriceChangeEvent) bool {
		return event.Extension == ".id" && event.Created && event.OccurredAt.Equal(testNow) && len(event.Changes) == 3
	})).Return(nil).Once()

	service := newService(store, cache, publisher)
	derived := derive(t, idEntry(false))
	service.Reconcile(ctx, ".id", derived)
	service.Reconcile(ctx, ".id", derived)

	publisher.AssertNumberOfCalls(t, "Publish", 1)
}

func TestReconcile_ConcurrentSameKey(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	cache := new(MockDerivedPriceCache)
	cache.On("Put", ctx, ".id", mock.Anything).Return(nil)
	service := newService(store, cache, nil)
	derived := derive(t, idEntry(false))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			service.Reconcile(ctx, ".id", derived)
		}()
	}
	wg.Wait()

	assert.Len(t, store.snapshot(), 1, "concurrent runs for one key must create a single row")
	assert.Equal(t, 3, store.cellWrites)
}

func TestReconcile_EmptyKey(t *testing.T) {
	result := newService(newMemoryStore(), nil, nil).Reconcile(context.Background(), " ", &domain.DerivedPriceSet{})
	assert.False(t, result.Updated)
	assert.Equal(t, []string{domain.ErrMissingExtension.Error()}, result.Errors)
}

// numericStore keeps two decimals per cell like a NUMERIC(18,2) column
type numericStore struct {
	*memoryStore
}

func (n numericStore) WriteCell(ctx context.Context, rowID uuid.UUID, priceType domain.PriceType, term domain.Term, price decimal.Decimal) error {
	return n.memoryStore.WriteCell(ctx, rowID, priceType, term, price.Round(2))
}

func TestReconcile_IdempotentAgainstTwoDecimalStore(t *testing.T) {
	ctx := context.Background()
	store := numericStore{newMemoryStore()}
	cache := new(MockDerivedPriceCache)
	cache.On("Put", ctx, ".com", mock.Anything).Return(nil)
	service := newService(store, cache, nil)

	noRounding := domain.PricingPolicy{
		Margin:   domain.MarginPolicy{Type: domain.MarginTypePercentage, Value: decimal.NewFromInt(20)},
		Rounding: domain.RoundingPolicy{Type: domain.RoundingNone},
	}
	derived, err := derivation.Derive(domain.CatalogEntry{
		Extension:    ".com",
		Registration: "12,99",
		Renewal:      "12,99",
		Transfer:     "12,99",
	}, noRounding, testNow)
	require.NoError(t, err)

	// a set computed at full precision, e.g. read back from an older cache entry
	unquantized := *derived
	for _, c := range []*domain.PriceComponent{&unquantized.Register, &unquantized.Renew, &unquantized.Transfer} {
		c.Final = decimal.RequireFromString("15.588")
	}

	first := service.Reconcile(ctx, ".com", derived)
	require.Empty(t, first.Errors)
	assert.True(t, first.Created)
	writes := store.cellWrites

	for _, set := range []*domain.DerivedPriceSet{derived, &unquantized} {
		again := service.Reconcile(ctx, ".com", set)
		assert.Empty(t, again.Errors)
		assert.False(t, again.Updated)
		assert.Empty(t, again.Changes)
	}
	assert.Equal(t, writes, store.cellWrites)

	rows := store.snapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, "15.59", cell(t, rows[0], domain.PriceTypeRegister, 1).String())
}
