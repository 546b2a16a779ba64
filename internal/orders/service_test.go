package orders_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/checkout/helpers"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/stock"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/db/testdb"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type fixture struct {
	conn     *gorm.DB
	catalog  catalog.Service
	ledger   stock.Ledger
	checkout checkout.Service
	orders   orders.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client, conn := testdb.Client(t)
	publisher := outbox.NewService(outbox.NewRepository(conn), nil)
	catalogSvc, err := catalog.NewService(catalog.NewRepository(conn), client)
	require.NoError(t, err)
	ledger, err := stock.NewService(stock.ServiceParams{
		Repository: stock.NewRepository(conn),
		Tx:         client,
		Catalog:    catalogSvc,
		Outbox:     publisher,
	})
	require.NoError(t, err)
	repo := orders.NewRepository(conn)
	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Tx:      client,
		Orders:  repo,
		Catalog: catalogSvc,
		Stock:   ledger,
		Outbox:  publisher,
	})
	require.NoError(t, err)
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repository: repo,
		Tx:         client,
		Stock:      ledger,
		Outbox:     publisher,
	})
	require.NoError(t, err)
	return fixture{conn: conn, catalog: catalogSvc, ledger: ledger, checkout: checkoutSvc, orders: ordersSvc}
}

func (f fixture) product(t *testing.T) uuid.UUID {
	t.Helper()
	price := decimal.NewFromInt(3)
	product, err := f.catalog.CreateProduct(context.Background(), catalog.CreateProductInput{Name: "Tea", Price: &price})
	require.NoError(t, err)
	return product.ID
}

func (f fixture) batch(t *testing.T, productID uuid.UUID, code string, qty int, importedAt time.Time) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	batch, err := f.ledger.CreateBatch(ctx, "admin", stock.CreateBatchInput{
		ProductID:   productID,
		BatchCode:   code,
		ImportPrice: decimal.NewFromInt(1),
		Quantity:    qty,
		ImportDate:  importedAt,
	})
	require.NoError(t, err)
	_, err = f.ledger.Transition(ctx, batch.ID, enums.BatchStatusImported, nil, "admin")
	require.NoError(t, err)
	return batch.ID
}

func (f fixture) place(t *testing.T, userID, productID uuid.UUID, method enums.PaymentMethod, qty int) *orders.OrderDTO {
	t.Helper()
	order, err := f.checkout.CreateOrderFromSelection(context.Background(), checkout.CheckoutInput{
		UserID:        userID,
		PaymentMethod: method,
		Lines:         []helpers.Line{{ProductID: productID, Quantity: qty}},
	})
	require.NoError(t, err)
	return order
}

func (f fixture) available(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	n, err := f.ledger.AvailableQuantity(context.Background(), nil, stock.NewKey(productID, nil))
	require.NoError(t, err)
	return n
}

func (f fixture) itemBatchRows(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(&models.OrderItemBatch{}).Count(&n).Error)
	return n
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) *pkgerrors.Error {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code(), typed.Error())
	return typed
}

func TestConfirmOrderAllocatesFIFO(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.product(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	older := f.batch(t, productID, "LOT-A", 5, base)
	newer := f.batch(t, productID, "LOT-B", 10, base.Add(24*time.Hour))

	placed := f.place(t, uuid.New(), productID, enums.PaymentMethodCOD, 7)
	confirmed, err := f.orders.ConfirmOrder(ctx, placed.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusConfirmed, confirmed.Status)
	require.Equal(t, []orders.ItemBatchDTO{
		{StockEntryID: older, BatchCode: "LOT-A", Quantity: 5},
		{StockEntryID: newer, BatchCode: "LOT-B", Quantity: 2},
	}, confirmed.Items[0].Batches)

	batch, err := f.ledger.GetBatch(ctx, older)
	require.NoError(t, err)
	require.Equal(t, enums.BatchStatusSoldOut, batch.Status)
	require.Equal(t, 8, f.available(t, productID))
}

func TestConfirmOnlineOrderRequiresPayment(t *testing.T) {
	f := newFixture(t)
	productID := f.product(t)
	f.batch(t, productID, "LOT-A", 5, time.Now().UTC())

	placed := f.place(t, uuid.New(), productID, enums.PaymentMethodCard, 1)
	_, err := f.orders.ConfirmOrder(context.Background(), placed.ID)
	requireCode(t, err, pkgerrors.CodePrecondition)

	_, err = f.orders.SetOrderStatus(context.Background(), placed.ID, enums.OrderStatusConfirmed)
	requireCode(t, err, pkgerrors.CodePrecondition)
	require.Equal(t, 5, f.available(t, productID))
}

func TestReportPaymentResultCommitsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.product(t)
	f.batch(t, productID, "LOT-A", 10, time.Now().UTC())
	placed := f.place(t, uuid.New(), productID, enums.PaymentMethodCard, 4)

	first, err := f.orders.ReportPaymentResult(ctx, placed.OrderCode, true)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusConfirmed, first.Status)
	require.Equal(t, enums.PaymentStatusPaid, first.PaymentStatus)
	require.Len(t, first.Items[0].Batches, 1)
	require.Equal(t, 6, f.available(t, productID))

	second, err := f.orders.ReportPaymentResult(ctx, placed.OrderCode, true)
	require.NoError(t, err)
	require.Equal(t, first.Status, second.Status)
	require.Equal(t, first.Items[0].Batches, second.Items[0].Batches)
	require.Equal(t, 6, f.available(t, productID))
	require.EqualValues(t, 1, f.itemBatchRows(t))

	_, err = f.orders.ReportPaymentResult(ctx, placed.OrderCode, false)
	require.NoError(t, err)
	again, err := f.orders.GetOrder(ctx, placed.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusPaid, again.PaymentStatus)
}

func TestReportPaymentFailureKeepsOrderPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.product(t)
	f.batch(t, productID, "LOT-A", 10, time.Now().UTC())
	placed := f.place(t, uuid.New(), productID, enums.PaymentMethodWallet, 2)

	failed, err := f.orders.ReportPaymentResult(ctx, placed.OrderCode, false)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPending, failed.Status)
	require.Equal(t, enums.PaymentStatusFailed, failed.PaymentStatus)
	require.Equal(t, 10, f.available(t, productID))

	paid, err := f.orders.ReportPaymentResult(ctx, placed.OrderCode, true)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusConfirmed, paid.Status)
	require.Equal(t, 8, f.available(t, productID))
}

func TestReportPaymentResultRollsBackWhenStockIsGone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.product(t)
	batchID := f.batch(t, productID, "LOT-A", 10, time.Now().UTC())
	placed := f.place(t, uuid.New(), productID, enums.PaymentMethodCard, 6)

	reason := "damaged"
	_, err := f.ledger.Transition(ctx, batchID, enums.BatchStatusCancelled, &reason, "admin")
	require.NoError(t, err)

	_, err = f.orders.ReportPaymentResult(ctx, placed.OrderCode, true)
	typed := requireCode(t, err, pkgerrors.CodeConflict)
	details := typed.Details().(map[string]any)
	require.Equal(t, placed.Items[0].ID, details["order_item_id"])
	require.Equal(t, productID, details["product_id"])
	require.Equal(t, "INSUFFICIENT_STOCK", details["reason"])

	order, err := f.orders.GetOrder(ctx, placed.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPending, order.Status)
	require.Equal(t, enums.PaymentStatusUnpaid, order.PaymentStatus)
	require.EqualValues(t, 0, f.itemBatchRows(t))
}

func TestReportPaymentResultRejectsUnknownAndCOD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.product(t)
	f.batch(t, productID, "LOT-A", 10, time.Now().UTC())
	placed := f.place(t, uuid.New(), productID, enums.PaymentMethodCOD, 1)

	_, err := f.orders.ReportPaymentResult(ctx, "ORD-00000000", true)
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = f.orders.ReportPaymentResult(ctx, placed.OrderCode, true)
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestTerminalOrdersRejectEveryTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.product(t)
	f.batch(t, productID, "LOT-A", 10, time.Now().UTC())

	delivered := f.place(t, uuid.New(), productID, enums.PaymentMethodCOD, 1)
	_, err := f.orders.SetOrderStatus(ctx, delivered.ID, enums.OrderStatusShipping)
	requireCode(t, err, pkgerrors.CodeStateConflict)
	for _, next := range []enums.OrderStatus{
		enums.OrderStatusConfirmed,
		enums.OrderStatusPreparing,
		enums.OrderStatusShipping,
		enums.OrderStatusDelivered,
	} {
		_, err := f.orders.SetOrderStatus(ctx, delivered.ID, next)
		require.NoError(t, err, next)
	}

	cancelled := f.place(t, uuid.New(), productID, enums.PaymentMethodCOD, 1)
	_, err = f.orders.SetOrderStatus(ctx, cancelled.ID, enums.OrderStatusCancelled)
	require.NoError(t, err)

	for _, id := range []uuid.UUID{delivered.ID, cancelled.ID} {
		for _, next := range []enums.OrderStatus{
			enums.OrderStatusPending,
			enums.OrderStatusConfirmed,
			enums.OrderStatusPreparing,
			enums.OrderStatusShipping,
			enums.OrderStatusDelivered,
			enums.OrderStatusCancelled,
		} {
			_, err := f.orders.SetOrderStatus(ctx, id, next)
			requireCode(t, err, pkgerrors.CodeStateConflict)
		}
	}
}

func TestCancelPolicies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.product(t)
	f.batch(t, productID, "LOT-A", 10, time.Now().UTC())
	owner := uuid.New()

	pending := f.place(t, owner, productID, enums.PaymentMethodCOD, 2)
	_, err := f.orders.CancelOrder(ctx, uuid.New(), pending.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)
	cancelled, err := f.orders.CancelOrder(ctx, owner, pending.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, cancelled.Status)

	confirmed := f.place(t, owner, productID, enums.PaymentMethodCOD, 3)
	_, err = f.orders.ConfirmOrder(ctx, confirmed.ID)
	require.NoError(t, err)
	require.Equal(t, 7, f.available(t, productID))

	_, err = f.orders.CancelOrder(ctx, owner, confirmed.ID)
	requireCode(t, err, pkgerrors.CodeForbidden)

	adminCancelled, err := f.orders.SetOrderStatus(ctx, confirmed.ID, enums.OrderStatusCancelled)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, adminCancelled.Status)
	require.Equal(t, 7, f.available(t, productID), "committed stock is not restored")
}

func TestExpireStalePendingReleasesDemand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.product(t)
	f.batch(t, productID, "LOT-A", 10, time.Now().UTC())

	stale := f.place(t, uuid.New(), productID, enums.PaymentMethodCard, 8)
	kept := f.place(t, uuid.New(), productID, enums.PaymentMethodCOD, 2)
	_, err := f.orders.ConfirmOrder(ctx, kept.ID)
	require.NoError(t, err)

	_, err = f.checkout.CreateOrderFromSelection(ctx, checkout.CheckoutInput{
		UserID:        uuid.New(),
		PaymentMethod: enums.PaymentMethodCOD,
		Lines:         []helpers.Line{{ProductID: productID, Quantity: 1}},
	})
	requireCode(t, err, pkgerrors.CodeConflict)

	expired, err := f.orders.ExpireStalePending(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	order, err := f.orders.GetOrder(ctx, stale.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, order.Status)

	f.place(t, uuid.New(), productID, enums.PaymentMethodCOD, 8)

	var events int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventOrderExpired, stale.ID).
		Count(&events).Error)
	require.EqualValues(t, 1, events)
}

func TestListOrdersPagesByCursor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.product(t)
	f.batch(t, productID, "LOT-A", 10, time.Now().UTC())
	userID := uuid.New()
	for i := 0; i < 3; i++ {
		f.place(t, userID, productID, enums.PaymentMethodCOD, 1)
	}
	f.place(t, uuid.New(), productID, enums.PaymentMethodCOD, 1)

	page, err := f.orders.ListOrders(ctx, userID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	require.NotEmpty(t, page.NextCursor)

	rest, err := f.orders.ListOrders(ctx, userID, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Orders, 1)
	require.Empty(t, rest.NextCursor)

	_, err = f.orders.ListOrders(ctx, userID, pagination.Params{Cursor: "%%%"})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.orders.GetUserOrder(ctx, uuid.New(), page.Orders[0].ID)
	requireCode(t, err, pkgerrors.CodeNotFound)
}
