package stock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/db/testdb"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

type fixture struct {
	client  *db.Client
	conn    *gorm.DB
	catalog catalog.Service
	ledger  Ledger
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client, conn := testdb.Client(t)
	catalogSvc, err := catalog.NewService(catalog.NewRepository(conn), client)
	require.NoError(t, err)
	ledger, err := NewService(ServiceParams{
		Repository: NewRepository(conn),
		Tx:         client,
		Catalog:    catalogSvc,
		Outbox:     outbox.NewService(outbox.NewRepository(conn), nil),
	})
	require.NoError(t, err)
	return fixture{client: client, conn: conn, catalog: catalogSvc, ledger: ledger}
}

func (f fixture) simpleProduct(t *testing.T) uuid.UUID {
	t.Helper()
	price := decimal.NewFromInt(10)
	product, err := f.catalog.CreateProduct(context.Background(), catalog.CreateProductInput{Name: "Mug", Price: &price})
	require.NoError(t, err)
	return product.ID
}

func (f fixture) variantProduct(t *testing.T) (uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	product, err := f.catalog.CreateProduct(ctx, catalog.CreateProductInput{Name: "Shirt", HasVariants: true})
	require.NoError(t, err)
	axis, err := f.catalog.AddAxis(ctx, product.ID, catalog.AddAxisInput{Name: "Size", Options: []string{"S", "M"}})
	require.NoError(t, err)
	combo, err := f.catalog.AddCombination(ctx, product.ID, catalog.AddCombinationInput{
		Values: []catalog.AxisValue{{AxisID: axis.ID, Value: "S"}},
		Price:  decimal.NewFromInt(20),
	})
	require.NoError(t, err)
	return product.ID, combo.ID
}

// importedBatch creates a batch and moves it to imported.
func (f fixture) importedBatch(t *testing.T, key Key, code string, qty int, importedAt time.Time) *BatchDTO {
	t.Helper()
	ctx := context.Background()
	batch, err := f.ledger.CreateBatch(ctx, "admin", CreateBatchInput{
		ProductID:     key.ProductID,
		CombinationID: key.CombinationID,
		BatchCode:     code,
		ImportPrice:   decimal.NewFromInt(4),
		Quantity:      qty,
		ImportDate:    importedAt,
	})
	require.NoError(t, err)
	batch, err = f.ledger.Transition(ctx, batch.ID, enums.BatchStatusImported, nil, "admin")
	require.NoError(t, err)
	return batch
}

func (f fixture) allocate(t *testing.T, key Key, qty int) ([]Allocation, error) {
	t.Helper()
	var out []Allocation
	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		allocs, err := f.ledger.Allocate(context.Background(), tx, key, qty)
		out = allocs
		return err
	})
	return out, err
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code(), typed.Error())
}

func TestCreateBatchStartsDraftAndLocksCombination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID, comboID := f.variantProduct(t)

	batch, err := f.ledger.CreateBatch(ctx, "admin-1", CreateBatchInput{
		ProductID:     productID,
		CombinationID: &comboID,
		BatchCode:     "LOT-1",
		ImportPrice:   decimal.NewFromInt(7),
		Quantity:      12,
	})
	require.NoError(t, err)
	require.Equal(t, enums.BatchStatusDraft, batch.Status)
	require.Equal(t, 12, batch.RemainingQuantity)
	require.Len(t, batch.History, 1)
	require.Equal(t, "admin-1", batch.History[0].ChangedBy)

	locked, err := f.catalog.LockStatus(ctx, comboID)
	require.NoError(t, err)
	require.True(t, locked)
}

func TestCreateBatchValidatesKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variantID, comboID := f.variantProduct(t)
	simpleID := f.simpleProduct(t)

	_, err := f.ledger.CreateBatch(ctx, "admin", CreateBatchInput{ProductID: variantID, BatchCode: "A", Quantity: 1})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.ledger.CreateBatch(ctx, "admin", CreateBatchInput{ProductID: simpleID, CombinationID: &comboID, BatchCode: "A", Quantity: 1})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.ledger.CreateBatch(ctx, "admin", CreateBatchInput{ProductID: uuid.New(), BatchCode: "A", Quantity: 1})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.ledger.CreateBatch(ctx, "admin", CreateBatchInput{ProductID: simpleID, BatchCode: "A", Quantity: 0})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.ledger.CreateBatch(ctx, "admin", CreateBatchInput{ProductID: simpleID, BatchCode: "A", Quantity: 3})
	require.NoError(t, err)
	_, err = f.ledger.CreateBatch(ctx, "admin", CreateBatchInput{ProductID: simpleID, BatchCode: "A", Quantity: 3})
	requireCode(t, err, pkgerrors.CodeConflict)
}

func TestEditBatchOnlyInDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := NewKey(f.simpleProduct(t), nil)

	batch, err := f.ledger.CreateBatch(ctx, "admin", CreateBatchInput{ProductID: key.ProductID, BatchCode: "LOT-1", Quantity: 5})
	require.NoError(t, err)

	qty := 9
	note := "recounted"
	edited, err := f.ledger.EditBatch(ctx, batch.ID, EditBatchInput{Quantity: &qty, Note: &note})
	require.NoError(t, err)
	require.Equal(t, 9, edited.Quantity)
	require.Equal(t, 9, edited.RemainingQuantity)
	require.Equal(t, "recounted", *edited.Note)

	_, err = f.ledger.Transition(ctx, batch.ID, enums.BatchStatusImported, nil, "admin")
	require.NoError(t, err)

	_, err = f.ledger.EditBatch(ctx, batch.ID, EditBatchInput{Quantity: &qty})
	requireCode(t, err, pkgerrors.CodeStateConflict)

	err = f.ledger.DeleteBatch(ctx, batch.ID)
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestEditBatchMovesCombinationAndHandsOffLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product, err := f.catalog.CreateProduct(ctx, catalog.CreateProductInput{Name: "Hoodie", HasVariants: true})
	require.NoError(t, err)
	axis, err := f.catalog.AddAxis(ctx, product.ID, catalog.AddAxisInput{Name: "Size", Options: []string{"S", "M"}})
	require.NoError(t, err)
	small, err := f.catalog.AddCombination(ctx, product.ID, catalog.AddCombinationInput{
		Values: []catalog.AxisValue{{AxisID: axis.ID, Value: "S"}},
		Price:  decimal.NewFromInt(30),
	})
	require.NoError(t, err)
	medium, err := f.catalog.AddCombination(ctx, product.ID, catalog.AddCombinationInput{
		Values: []catalog.AxisValue{{AxisID: axis.ID, Value: "M"}},
		Price:  decimal.NewFromInt(30),
	})
	require.NoError(t, err)

	batch, err := f.ledger.CreateBatch(ctx, "admin", CreateBatchInput{ProductID: product.ID, CombinationID: &small.ID, BatchCode: "LOT-1", Quantity: 4})
	require.NoError(t, err)

	edited, err := f.ledger.EditBatch(ctx, batch.ID, EditBatchInput{CombinationID: &medium.ID})
	require.NoError(t, err)
	require.NotNil(t, edited.CombinationID)
	require.Equal(t, medium.ID, *edited.CombinationID)

	locked, err := f.catalog.LockStatus(ctx, medium.ID)
	require.NoError(t, err)
	require.True(t, locked)
	locked, err = f.catalog.LockStatus(ctx, small.ID)
	require.NoError(t, err)
	require.False(t, locked)

	_, foreignCombo := f.variantProduct(t)
	_, err = f.ledger.EditBatch(ctx, batch.ID, EditBatchInput{CombinationID: &foreignCombo})
	requireCode(t, err, pkgerrors.CodeValidation)

	missing := uuid.New()
	_, err = f.ledger.EditBatch(ctx, batch.ID, EditBatchInput{CombinationID: &missing})
	requireCode(t, err, pkgerrors.CodeValidation)

	unchanged, err := f.ledger.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	require.Equal(t, medium.ID, *unchanged.CombinationID)

	simple, err := f.ledger.CreateBatch(ctx, "admin", CreateBatchInput{ProductID: f.simpleProduct(t), BatchCode: "LOT-2", Quantity: 1})
	require.NoError(t, err)
	_, err = f.ledger.EditBatch(ctx, simple.ID, EditBatchInput{CombinationID: &small.ID})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestDeleteDraftBatchUnlocksCombination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID, comboID := f.variantProduct(t)

	batch, err := f.ledger.CreateBatch(ctx, "admin", CreateBatchInput{ProductID: productID, CombinationID: &comboID, BatchCode: "LOT-1", Quantity: 5})
	require.NoError(t, err)

	require.NoError(t, f.ledger.DeleteBatch(ctx, batch.ID))

	locked, err := f.catalog.LockStatus(ctx, comboID)
	require.NoError(t, err)
	require.False(t, locked)

	_, err = f.ledger.GetBatch(ctx, batch.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestTransitionRecordsHistoryAndKeepsRemaining(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := NewKey(f.simpleProduct(t), nil)
	batch := f.importedBatch(t, key, "LOT-1", 10, time.Now().UTC())

	reason := "recall"
	cancelled, err := f.ledger.Transition(ctx, batch.ID, enums.BatchStatusCancelled, &reason, "admin")
	require.NoError(t, err)
	require.Equal(t, 10, cancelled.RemainingQuantity)
	require.Len(t, cancelled.History, 3)
	require.Equal(t, "recall", *cancelled.History[2].Reason)

	available, err := f.ledger.AvailableQuantity(ctx, nil, key)
	require.NoError(t, err)
	require.Equal(t, 0, available)

	_, err = f.ledger.Transition(ctx, batch.ID, enums.BatchStatusSoldOut, nil, "admin")
	requireCode(t, err, pkgerrors.CodeStateConflict)

	_, err = f.ledger.Transition(ctx, batch.ID, enums.BatchStatusImported, nil, "admin")
	require.NoError(t, err)
	_, err = f.ledger.Transition(ctx, batch.ID, enums.BatchStatusDiscontinued, nil, "admin")
	require.NoError(t, err)

	_, err = f.ledger.Transition(ctx, batch.ID, enums.BatchStatusImported, nil, "admin")
	requireCode(t, err, pkgerrors.CodeStateConflict)
	details := pkgerrors.As(err).Details().(map[string]any)
	require.Equal(t, enums.BatchStatusDiscontinued, details["from"])
	require.Equal(t, enums.BatchStatusImported, details["to"])

	var events int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventBatchStatusChanged, batch.ID).
		Count(&events).Error)
	require.EqualValues(t, 4, events)
}

func TestAllocateIsFIFO(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID, comboID := f.variantProduct(t)
	key := NewKey(productID, &comboID)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := f.importedBatch(t, key, "LOT-B", 10, base.Add(48*time.Hour))
	older := f.importedBatch(t, key, "LOT-A", 5, base)

	allocs, err := f.allocate(t, key, 7)
	require.NoError(t, err)
	require.Equal(t, []Allocation{
		{StockEntryID: older.ID, BatchCode: "LOT-A", Quantity: 5},
		{StockEntryID: newer.ID, BatchCode: "LOT-B", Quantity: 2},
	}, allocs)

	depleted, err := f.ledger.GetBatch(ctx, older.ID)
	require.NoError(t, err)
	require.Equal(t, enums.BatchStatusSoldOut, depleted.Status)
	require.Equal(t, 0, depleted.RemainingQuantity)
	last := depleted.History[len(depleted.History)-1]
	require.Equal(t, SystemActor, last.ChangedBy)
	require.Equal(t, depletedReason, *last.Reason)

	partial, err := f.ledger.GetBatch(ctx, newer.ID)
	require.NoError(t, err)
	require.Equal(t, enums.BatchStatusImported, partial.Status)
	require.Equal(t, 8, partial.RemainingQuantity)

	available, err := f.ledger.AvailableQuantity(ctx, nil, key)
	require.NoError(t, err)
	require.Equal(t, 8, available)
}

func TestAllocateIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := NewKey(f.simpleProduct(t), nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := f.importedBatch(t, key, "LOT-A", 4, base)
	b := f.importedBatch(t, key, "LOT-B", 2, base.Add(time.Hour))

	_, err := f.allocate(t, key, 7)
	requireCode(t, err, pkgerrors.CodeConflict)
	details := pkgerrors.As(err).Details().(map[string]any)
	require.Equal(t, "INSUFFICIENT_STOCK", details["reason"])
	require.Equal(t, 6, details["available"])

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		batch, err := f.ledger.GetBatch(ctx, id)
		require.NoError(t, err)
		require.Equal(t, enums.BatchStatusImported, batch.Status)
		require.Equal(t, batch.Quantity, batch.RemainingQuantity)
	}

	_, err = f.allocate(t, key, 0)
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestAllocateIgnoresDraftAndCancelledBatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := NewKey(f.simpleProduct(t), nil)

	_, err := f.ledger.CreateBatch(ctx, "admin", CreateBatchInput{ProductID: key.ProductID, BatchCode: "DRAFT", Quantity: 50})
	require.NoError(t, err)
	cancelled := f.importedBatch(t, key, "CANCELLED", 50, time.Now().UTC())
	_, err = f.ledger.Transition(ctx, cancelled.ID, enums.BatchStatusCancelled, nil, "admin")
	require.NoError(t, err)
	f.importedBatch(t, key, "LIVE", 3, time.Now().UTC())

	available, err := f.ledger.AvailableQuantity(ctx, nil, key)
	require.NoError(t, err)
	require.Equal(t, 3, available)

	_, err = f.allocate(t, key, 4)
	requireCode(t, err, pkgerrors.CodeConflict)
}

func TestConcurrentAllocationsNeverOversell(t *testing.T) {
	f := newFixture(t)
	key := NewKey(f.simpleProduct(t), nil)
	f.importedBatch(t, key, "LOT-A", 10, time.Now().UTC())

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
				_, err := f.ledger.Allocate(context.Background(), tx, key, 6)
				return err
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		requireCode(t, err, pkgerrors.CodeConflict)
	}
	require.Equal(t, 1, succeeded)

	available, err := f.ledger.AvailableQuantity(context.Background(), nil, key)
	require.NoError(t, err)
	require.Equal(t, 4, available)
}

func TestListBatchesFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := NewKey(f.simpleProduct(t), nil)
	f.importedBatch(t, key, "LOT-A", 2, time.Now().UTC())
	_, err := f.ledger.CreateBatch(ctx, "admin", CreateBatchInput{ProductID: key.ProductID, BatchCode: "LOT-B", Quantity: 2})
	require.NoError(t, err)

	all, err := f.ledger.ListBatches(ctx, ListFilter{ProductID: key.ProductID})
	require.NoError(t, err)
	require.Len(t, all, 2)

	draft := enums.BatchStatusDraft
	drafts, err := f.ledger.ListBatches(ctx, ListFilter{ProductID: key.ProductID, Status: &draft})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	require.Equal(t, "LOT-B", drafts[0].BatchCode)

	_, err = f.ledger.ListBatches(ctx, ListFilter{})
	requireCode(t, err, pkgerrors.CodeValidation)
}
