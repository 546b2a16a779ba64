package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/stock"
	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockAllocator commits stock to order items inside the caller's transaction.
type StockAllocator interface {
	Allocate(ctx context.Context, tx *gorm.DB, key stock.Key, qty int) ([]stock.Allocation, error)
	AvailableQuantity(ctx context.Context, tx *gorm.DB, key stock.Key) (int, error)
}

// Service drives the order lifecycle. Confirmation is the point where stock
// is irreversibly committed.
type Service interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error)
	GetUserOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	ConfirmOrder(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error)
	SetOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) (*OrderDTO, error)
	CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	ReportPaymentResult(ctx context.Context, orderCode string, success bool) (*OrderDTO, error)
	ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// ServiceParams bundles the order service dependencies.
type ServiceParams struct {
	Repository Repository
	Tx         txRunner
	Stock      StockAllocator
	Outbox     outboxPublisher
	Logger     *logger.Logger
	Now        func() time.Time
}

type service struct {
	repo   Repository
	tx     txRunner
	stock  StockAllocator
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock allocator required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:   params.Repository,
		tx:     params.Tx,
		stock:  params.Stock,
		outbox: params.Outbox,
		logg:   params.Logger,
		now:    func() time.Time { return now().UTC() },
	}, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, orderNotFoundOr(err, "load order")
	}
	return NewOrderDTO(order), nil
}

func (s *service) GetUserOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, orderNotFoundOr(err, "load order")
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return NewOrderDTO(order), nil
}

func (s *service) ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	list, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, dbpkg.MapError(err, "list orders")
	}
	return list, nil
}

func (s *service) ConfirmOrder(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, orderID)
		if err != nil {
			return orderNotFoundOr(err, "load order")
		}
		if !CanTransition(order.Status, enums.OrderStatusConfirmed) {
			return invalidTransition(order.Status, enums.OrderStatusConfirmed)
		}
		if order.PaymentMethod.IsOnline() && order.PaymentStatus != enums.PaymentStatusPaid {
			return pkgerrors.New(pkgerrors.CodePrecondition, "online orders must be paid before confirmation").
				WithDetails(map[string]any{"payment_status": order.PaymentStatus})
		}
		return s.confirm(ctx, tx, order, nil, adminActor())
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

// confirm commits stock for every item, records the allocation audit and
// moves the order to confirmed. extra carries additional column updates
// applied in the same write.
func (s *service) confirm(ctx context.Context, tx *gorm.DB, order *models.Order, extra map[string]any, actor *outbox.ActorRef) error {
	allocations, err := s.commitStock(ctx, tx, order)
	if err != nil {
		s.logFailure(ctx, order, "order allocation failed", err)
		return err
	}

	now := s.now()
	updates := map[string]any{"status": enums.OrderStatusConfirmed, "updated_at": now}
	for k, v := range extra {
		updates[k] = v
	}
	if err := s.repo.WithTx(tx).UpdateOrder(ctx, order.ID, updates); err != nil {
		return dbpkg.MapError(err, "confirm order")
	}
	paymentStatus := order.PaymentStatus
	if v, ok := updates["payment_status"].(enums.PaymentStatus); ok {
		paymentStatus = v
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderConfirmed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data: payloads.OrderConfirmedEvent{
			OrderID:       order.ID,
			OrderCode:     order.OrderCode,
			PaymentStatus: paymentStatus,
			Allocations:   allocations,
			ConfirmedAt:   now,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order confirmed event")
	}
	s.logTransition(ctx, order, enums.OrderStatusConfirmed)
	return nil
}

// commitStock checks every key can cover the order, then allocates item by
// item in key order. Any failure leaves the caller's transaction to roll back.
func (s *service) commitStock(ctx context.Context, tx *gorm.DB, order *models.Order) ([]payloads.BatchAllocation, error) {
	demand := make(map[string]int, len(order.Items))
	for _, item := range order.Items {
		demand[itemKey(item).String()] += item.Quantity
	}
	checked := make(map[string]bool, len(demand))
	for _, item := range order.Items {
		key := itemKey(item)
		if checked[key.String()] {
			continue
		}
		checked[key.String()] = true
		available, err := s.stock.AvailableQuantity(ctx, tx, key)
		if err != nil {
			return nil, itemError(item, err)
		}
		if available < demand[key.String()] {
			return nil, itemError(item, stock.InsufficientStock(key, demand[key.String()], available))
		}
	}

	items := append([]models.OrderItem{}, order.Items...)
	sort.SliceStable(items, func(i, j int) bool {
		return itemKey(items[i]).String() < itemKey(items[j]).String()
	})

	var rows []models.OrderItemBatch
	var out []payloads.BatchAllocation
	for _, item := range items {
		allocs, err := s.stock.Allocate(ctx, tx, itemKey(item), item.Quantity)
		if err != nil {
			return nil, itemError(item, err)
		}
		for _, a := range allocs {
			rows = append(rows, models.OrderItemBatch{
				OrderItemID:  item.ID,
				StockEntryID: a.StockEntryID,
				BatchCode:    a.BatchCode,
				Quantity:     a.Quantity,
			})
			out = append(out, payloads.BatchAllocation{
				OrderItemID:  item.ID,
				StockEntryID: a.StockEntryID,
				BatchCode:    a.BatchCode,
				Quantity:     a.Quantity,
			})
		}
	}
	if err := s.repo.WithTx(tx).CreateItemBatches(ctx, rows); err != nil {
		return nil, dbpkg.MapError(err, "record item batches")
	}
	return out, nil
}

func (s *service) SetOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) (*OrderDTO, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").
			WithDetails(map[string]any{"status": status})
	}
	if status == enums.OrderStatusConfirmed {
		return s.ConfirmOrder(ctx, orderID)
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, orderID)
		if err != nil {
			return orderNotFoundOr(err, "load order")
		}
		if !CanTransition(order.Status, status) {
			return invalidTransition(order.Status, status)
		}
		if status == enums.OrderStatusCancelled {
			return s.cancel(ctx, tx, order, adminActor(), "")
		}

		from := order.Status
		now := s.now()
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{"status": status, "updated_at": now}); err != nil {
			return dbpkg.MapError(err, "update order status")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         adminActor(),
			Data: payloads.OrderStatusChangedEvent{
				OrderID:   order.ID,
				OrderCode: order.OrderCode,
				From:      from,
				To:        status,
				ChangedAt: now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order status event")
		}
		s.logTransition(ctx, order, status)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

func (s *service) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).LockByID(ctx, orderID)
		if err != nil {
			return orderNotFoundOr(err, "load order")
		}
		if order.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only pending orders can be cancelled").
				WithDetails(map[string]any{"status": order.Status})
		}
		actor := &outbox.ActorRef{UserID: &userID, Role: enums.ActorRoleCustomer}
		return s.cancel(ctx, tx, order, actor, "cancelled by customer")
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

// cancel records the cancellation. Stock already committed to the order is
// not returned to its batches.
func (s *service) cancel(ctx context.Context, tx *gorm.DB, order *models.Order, actor *outbox.ActorRef, reason string) error {
	from := order.Status
	now := s.now()
	if err := s.repo.WithTx(tx).UpdateOrder(ctx, order.ID, map[string]any{
		"status":     enums.OrderStatusCancelled,
		"updated_at": now,
	}); err != nil {
		return dbpkg.MapError(err, "cancel order")
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data: payloads.OrderCancelledEvent{
			OrderID:     order.ID,
			OrderCode:   order.OrderCode,
			From:        from,
			CancelledBy: actor.Role,
			CancelledAt: now,
			Reason:      reason,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order cancelled event")
	}
	s.logTransition(ctx, order, enums.OrderStatusCancelled)
	return nil
}

func (s *service) ReportPaymentResult(ctx context.Context, orderCode string, success bool) (*OrderDTO, error) {
	code := strings.TrimSpace(orderCode)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_code is required")
	}

	var orderID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByCode(ctx, code)
		if err != nil {
			return orderNotFoundOr(err, "load order")
		}
		orderID = order.ID
		if !order.PaymentMethod.IsOnline() {
			return pkgerrors.New(pkgerrors.CodeValidation, "order is not paid online").
				WithDetails(map[string]any{"payment_method": order.PaymentMethod})
		}
		if order.PaymentStatus == enums.PaymentStatusPaid {
			return nil
		}

		if !success {
			now := s.now()
			if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
				"payment_status": enums.PaymentStatusFailed,
				"updated_at":     now,
			}); err != nil {
				return dbpkg.MapError(err, "record failed payment")
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPaymentFailed,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         outbox.SystemActor(),
				Data: payloads.PaymentFailedEvent{
					OrderID:       order.ID,
					OrderCode:     order.OrderCode,
					PaymentMethod: order.PaymentMethod,
					ReportedAt:    now,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit payment failed event")
			}
			return nil
		}

		if !CanTransition(order.Status, enums.OrderStatusConfirmed) {
			return invalidTransition(order.Status, enums.OrderStatusConfirmed)
		}
		order.PaymentStatus = enums.PaymentStatusPaid
		return s.confirm(ctx, tx, order, map[string]any{"payment_status": enums.PaymentStatusPaid}, outbox.SystemActor())
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

// ExpireStalePending cancels pending unpaid orders placed before cutoff. Each
// order is expired in its own transaction; failures are collected and the
// sweep continues.
func (s *service) ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	stale, err := s.repo.FindStalePending(ctx, cutoff, limit)
	if err != nil {
		return 0, dbpkg.MapError(err, "find stale orders")
	}

	expired := 0
	var errs error
	for _, candidate := range stale {
		done := false
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			order, err := s.repo.WithTx(tx).LockByID(ctx, candidate.ID)
			if err != nil {
				return orderNotFoundOr(err, "load order")
			}
			if order.Status != enums.OrderStatusPending || order.PaymentStatus == enums.PaymentStatusPaid {
				return nil
			}
			if err := s.cancel(ctx, tx, order, outbox.SystemActor(), "pending order expired"); err != nil {
				return err
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderExpired,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         outbox.SystemActor(),
				Data: payloads.OrderExpiredEvent{
					OrderID:   order.ID,
					OrderCode: order.OrderCode,
					PlacedAt:  order.CreatedAt,
					ExpiredAt: s.now(),
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order expired event")
			}
			done = true
			return nil
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", candidate.ID, err))
			continue
		}
		if done {
			expired++
		}
	}
	return expired, errs
}

func itemKey(item models.OrderItem) stock.Key {
	return stock.NewKey(item.ProductID, item.VariantCombinationID)
}

// itemError names the order item an allocation failure belongs to while
// keeping the original error code and details.
func itemError(item models.OrderItem, err error) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "allocate order item")
	}
	details := map[string]any{}
	if existing, ok := typed.Details().(map[string]any); ok {
		for k, v := range existing {
			details[k] = v
		}
	}
	details["order_item_id"] = item.ID
	details["product_id"] = item.ProductID
	if item.VariantCombinationID != nil {
		details["combination_id"] = *item.VariantCombinationID
	}
	return pkgerrors.Wrap(typed.Code(), err, typed.Message()).WithDetails(details)
}

func orderNotFoundOr(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return dbpkg.MapError(err, op)
}

func adminActor() *outbox.ActorRef {
	return &outbox.ActorRef{Role: enums.ActorRoleAdmin}
}

func (s *service) logTransition(ctx context.Context, order *models.Order, to enums.OrderStatus) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"from": order.Status, "to": to})
	s.logg.Info(logCtx, "order status changed")
}

func (s *service) logFailure(ctx context.Context, order *models.Order, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{"error": err.Error()}), msg)
}
