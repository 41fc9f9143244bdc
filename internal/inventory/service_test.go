package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// FAKE REPOSITORY
// ============================================================================

type memRepo struct {
	items map[string]Item
}

func newMemRepo(items ...Item) *memRepo {
	r := &memRepo{items: map[string]Item{}}
	for _, it := range items {
		r.items[it.SKU] = it
	}
	return r
}

type memTx struct {
	repo    *memRepo
	applied map[string]int64
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memTx{repo: r, applied: map[string]int64{}}
	if err := fn(ctx, tx); err != nil {
		// Roll back the staged quantities.
		for sku, delta := range tx.applied {
			it := r.items[sku]
			it.Quantity -= delta
			r.items[sku] = it
		}
		return err
	}
	return nil
}

func (t *memTx) DecrementStock(_ context.Context, _ uuid.UUID, sku string, qty int64) (bool, error) {
	it, ok := t.repo.items[sku]
	if !ok || it.Quantity < qty {
		return false, nil
	}
	it.Quantity -= qty
	t.repo.items[sku] = it
	t.applied[sku] -= qty
	return true, nil
}

func (t *memTx) IncrementStock(_ context.Context, _ uuid.UUID, sku string, qty int64) error {
	it, ok := t.repo.items[sku]
	if !ok {
		return ErrItemNotFound
	}
	it.Quantity += qty
	t.repo.items[sku] = it
	t.applied[sku] += qty
	return nil
}

func (r *memRepo) List(_ context.Context, _ uuid.UUID, _ ListFilter) ([]Item, int, error) {
	var out []Item
	for _, it := range r.items {
		out = append(out, it)
	}
	return out, len(out), nil
}

func (r *memRepo) Get(_ context.Context, _ uuid.UUID, sku string) (Item, error) {
	it, ok := r.items[sku]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return it, nil
}

func (r *memRepo) GetBySKUs(_ context.Context, _ uuid.UUID, skus []string) (map[string]Item, error) {
	found := map[string]Item{}
	for _, sku := range skus {
		if it, ok := r.items[sku]; ok {
			found[sku] = it
		}
	}
	return found, nil
}

func (r *memRepo) Create(_ context.Context, item Item) (Item, error) {
	if _, dup := r.items[item.SKU]; dup {
		return Item{}, ErrDuplicateSKU
	}
	item.ID = int64(len(r.items) + 1)
	r.items[item.SKU] = item
	return item, nil
}

func (r *memRepo) Update(_ context.Context, item Item) error {
	if _, ok := r.items[item.SKU]; !ok {
		return ErrItemNotFound
	}
	r.items[item.SKU] = item
	return nil
}

func (r *memRepo) Delete(_ context.Context, _ uuid.UUID, sku string) error {
	if _, ok := r.items[sku]; !ok {
		return ErrItemNotFound
	}
	delete(r.items, sku)
	return nil
}

func (r *memRepo) SaveShortage(_ context.Context, _ uuid.UUID, sku string, shortage Shortage) error {
	it, ok := r.items[sku]
	if !ok {
		return ErrItemNotFound
	}
	it.Shortage = &shortage
	r.items[sku] = it
	return nil
}

func (r *memRepo) ListShortages(_ context.Context, _ uuid.UUID) ([]Item, error) {
	var out []Item
	for _, it := range r.items {
		if it.Shortage != nil {
			out = append(out, it)
		}
	}
	return out, nil
}

func item(sku string, qty int64) Item {
	return Item{SKU: sku, Name: sku, Quantity: qty}
}

// ============================================================================
// RECONCILE
// ============================================================================

func TestReconcileSufficient(t *testing.T) {
	svc := NewService(newMemRepo(item("A", 10), item("B", 3)), nil)

	verdict, err := svc.Reconcile(context.Background(), uuid.New(), []Demand{
		{SKU: "A", Quantity: 10},
		{SKU: "B", Quantity: 1},
	})
	require.NoError(t, err)
	assert.True(t, verdict.Sufficient())
}

func TestReconcileSeparatesUnknownAndShort(t *testing.T) {
	svc := NewService(newMemRepo(item("A", 2)), nil)

	verdict, err := svc.Reconcile(context.Background(), uuid.New(), []Demand{
		{SKU: "A", Quantity: 5},
		{SKU: "GHOST", Quantity: 1},
	})
	require.NoError(t, err)
	assert.False(t, verdict.Sufficient())
	assert.Equal(t, []string{"GHOST"}, verdict.UnknownSKUs)
	require.Len(t, verdict.Shortfalls, 1)
	assert.Equal(t, Shortfall{SKU: "A", Requested: 5, Available: 2}, verdict.Shortfalls[0])
}

func TestReconcileSumsRepeatedSKU(t *testing.T) {
	svc := NewService(newMemRepo(item("A", 7)), nil)

	// Each line alone fits, their sum does not.
	verdict, err := svc.Reconcile(context.Background(), uuid.New(), []Demand{
		{SKU: "A", Quantity: 4},
		{SKU: "A", Quantity: 4},
	})
	require.NoError(t, err)
	assert.False(t, verdict.Sufficient())
	require.Len(t, verdict.Shortfalls, 1)
	assert.Equal(t, Shortfall{SKU: "A", Requested: 8, Available: 7}, verdict.Shortfalls[0])
}

func TestReconcileRejectsNonPositiveQuantity(t *testing.T) {
	svc := NewService(newMemRepo(item("A", 2)), nil)

	_, err := svc.Reconcile(context.Background(), uuid.New(), []Demand{{SKU: "A", Quantity: 0}})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

// ============================================================================
// DECREMENTS
// ============================================================================

func TestApplyDecrementsAllOrNothing(t *testing.T) {
	repo := newMemRepo(item("A", 10), item("B", 1))
	svc := NewService(repo, nil)

	err := svc.ApplyDecrements(context.Background(), uuid.New(), []Demand{
		{SKU: "A", Quantity: 5},
		{SKU: "B", Quantity: 3},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Contains(t, err.Error(), "B")

	// Nothing may have been applied.
	assert.Equal(t, int64(10), repo.items["A"].Quantity)
	assert.Equal(t, int64(1), repo.items["B"].Quantity)
}

func TestApplyDecrementsSucceeds(t *testing.T) {
	repo := newMemRepo(item("A", 10), item("B", 3))
	svc := NewService(repo, nil)

	err := svc.ApplyDecrements(context.Background(), uuid.New(), []Demand{
		{SKU: "A", Quantity: 10},
		{SKU: "B", Quantity: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), repo.items["A"].Quantity)
	assert.Equal(t, int64(1), repo.items["B"].Quantity)
}

func TestRestoreStock(t *testing.T) {
	repo := newMemRepo(item("A", 0))
	svc := NewService(repo, nil)

	require.NoError(t, svc.RestoreStock(context.Background(), uuid.New(), []Demand{{SKU: "A", Quantity: 4}}))
	assert.Equal(t, int64(4), repo.items["A"].Quantity)
}

// ============================================================================
// SHORTAGES
// ============================================================================

func TestShortageImpactGrading(t *testing.T) {
	now := time.Now().UTC()

	high := ShortageFor(10, 1, now)
	assert.Equal(t, ImpactHigh, high.Impact)
	assert.Equal(t, int64(9), high.Gap)

	medium := ShortageFor(10, 6, now)
	assert.Equal(t, ImpactMedium, medium.Impact)

	low := ShortageFor(10, 9, now)
	assert.Equal(t, ImpactLow, low.Impact)
}

func TestRecordShortagesPersistsSnapshot(t *testing.T) {
	repo := newMemRepo(item("A", 2))
	svc := NewService(repo, nil)

	svc.RecordShortages(context.Background(), uuid.New(), Verdict{
		Shortfalls: []Shortfall{{SKU: "A", Requested: 8, Available: 2}},
	})

	stored := repo.items["A"]
	require.NotNil(t, stored.Shortage)
	assert.Equal(t, int64(8), stored.Shortage.Expected)
	assert.Equal(t, int64(2), stored.Shortage.Actual)
	assert.Equal(t, ImpactHigh, stored.Shortage.Impact)

	shortages, err := svc.ListShortages(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Len(t, shortages, 1)
}

// ============================================================================
// CRUD
// ============================================================================

func TestCreateValidatesInput(t *testing.T) {
	svc := NewService(newMemRepo(), nil)

	_, err := svc.Create(context.Background(), Item{SKU: "", Name: "x"})
	require.Error(t, err)

	_, err = svc.Create(context.Background(), Item{SKU: "A", Name: "x", Quantity: -1})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	created, err := svc.Create(context.Background(), Item{SKU: "A", Name: "x", Quantity: 5, UnitPrice: 1.5})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
}

func TestCreateDuplicateSKU(t *testing.T) {
	svc := NewService(newMemRepo(item("A", 1)), nil)

	_, err := svc.Create(context.Background(), Item{SKU: "A", Name: "again"})
	require.ErrorIs(t, err, ErrDuplicateSKU)
}
