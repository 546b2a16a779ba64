package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/checkout/helpers"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/stock"
	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const orderCodeAttempts = 5

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type lineResolver interface {
	ResolveLine(ctx context.Context, tx *gorm.DB, productID uuid.UUID, combinationID *uuid.UUID) (*catalog.LineInfo, error)
}

type stockLocker interface {
	LockAvailable(ctx context.Context, tx *gorm.DB, key stock.Key) (int, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service places orders from a customer's selection.
type Service interface {
	CreateOrderFromSelection(ctx context.Context, input CheckoutInput) (*orders.OrderDTO, error)
}

// CheckoutInput is the customer's selection and chosen payment method.
type CheckoutInput struct {
	UserID        uuid.UUID
	PaymentMethod enums.PaymentMethod
	Lines         []helpers.Line
}

// ServiceParams bundles the checkout dependencies.
type ServiceParams struct {
	Tx            txRunner
	Orders        orders.Repository
	Catalog       lineResolver
	Stock         stockLocker
	Outbox        outboxPublisher
	Metrics       *metrics.InventoryMetrics
	Logger        *logger.Logger
	CodeGenerator func() string
}

type service struct {
	tx      txRunner
	orders  orders.Repository
	catalog lineResolver
	stock   stockLocker
	outbox  outboxPublisher
	metrics *metrics.InventoryMetrics
	logg    *logger.Logger
	newCode func() string
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	gen := params.CodeGenerator
	if gen == nil {
		gen = NewOrderCode
	}
	return &service{
		tx:      params.Tx,
		orders:  params.Orders,
		catalog: params.Catalog,
		stock:   params.Stock,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
		newCode: gen,
	}, nil
}

// NewOrderCode returns an order code of the form ORD-XXXXXXXX.
func NewOrderCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(raw[:8])
}

func (s *service) CreateOrderFromSelection(ctx context.Context, input CheckoutInput) (*orders.OrderDTO, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method").
			WithDetails(map[string]any{"payment_method": input.PaymentMethod})
	}
	lines := make([]helpers.Line, len(input.Lines))
	for i, line := range input.Lines {
		lines[i] = helpers.Line{ProductID: line.ProductID, CombinationID: line.Key().CombinationID, Quantity: line.Quantity}
	}
	if err := helpers.ValidateLines(lines); err != nil {
		return nil, err
	}

	var orderID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		prices := make([]decimal.Decimal, len(lines))
		for i, line := range lines {
			info, err := s.catalog.ResolveLine(ctx, tx, line.ProductID, line.CombinationID)
			if err != nil {
				return withLine(err, i)
			}
			if !info.Priced {
				return pkgerrors.New(pkgerrors.CodeValidation, "product has no price").
					WithDetails(map[string]any{"line": i, "product_id": line.ProductID})
			}
			prices[i] = info.UnitPrice
		}

		if err := s.admit(ctx, tx, lines); err != nil {
			return err
		}

		repo := s.orders.WithTx(tx)
		code, err := s.uniqueCode(ctx, repo)
		if err != nil {
			return err
		}
		order := &models.Order{
			ID:            uuid.New(),
			UserID:        input.UserID,
			OrderCode:     code,
			PaymentMethod: input.PaymentMethod,
			PaymentStatus: enums.PaymentStatusUnpaid,
			TotalPrice:    helpers.ComputeTotal(prices, lines),
			Status:        enums.OrderStatusPending,
			CreatedAt:     time.Now().UTC(),
			UpdatedAt:     time.Now().UTC(),
		}
		for i, line := range lines {
			order.Items = append(order.Items, models.OrderItem{
				ID:                   uuid.New(),
				ProductID:            line.ProductID,
				VariantCombinationID: line.CombinationID,
				Quantity:             line.Quantity,
				Price:                prices[i],
			})
		}
		if err := repo.CreateOrder(ctx, order); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order code already exists")
			}
			return dbpkg.MapError(err, "create order")
		}
		if err := s.emitOrderCreated(ctx, tx, order); err != nil {
			return err
		}
		orderID = order.ID
		return nil
	})
	if err != nil {
		if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
			s.metrics.ObserveAdmission(metrics.OutcomeError)
		}
		return nil, err
	}
	s.metrics.ObserveAdmission(metrics.OutcomeOK)

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, dbpkg.MapError(err, "load order")
	}
	return orders.NewOrderDTO(order), nil
}

// admit locks each key's allocatable batches in sorted order and rejects the
// selection when stock not already promised to pending orders cannot cover it.
func (s *service) admit(ctx context.Context, tx *gorm.DB, lines []helpers.Line) error {
	repo := s.orders.WithTx(tx)
	for _, demand := range helpers.GroupLinesByKey(lines) {
		available, err := s.stock.LockAvailable(ctx, tx, demand.Key)
		if err != nil {
			return err
		}
		outstanding, err := repo.OutstandingDemand(ctx, demand.Key.ProductID, demand.Key.CombinationID)
		if err != nil {
			return dbpkg.MapError(err, "sum outstanding demand")
		}
		free := available - outstanding
		if free < 0 {
			free = 0
		}
		if free < demand.Quantity {
			s.metrics.ObserveAdmission(metrics.OutcomeInsufficient)
			s.logRejection(ctx, demand, free)
			return withLine(stock.InsufficientStock(demand.Key, demand.Quantity, free), demand.FirstLine)
		}
	}
	return nil
}

func (s *service) uniqueCode(ctx context.Context, repo orders.Repository) (string, error) {
	for attempt := 0; attempt < orderCodeAttempts; attempt++ {
		code := s.newCode()
		exists, err := repo.OrderCodeExists(ctx, code)
		if err != nil {
			return "", dbpkg.MapError(err, "check order code")
		}
		if !exists {
			return code, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeInternal, "could not generate a unique order code")
}

func (s *service) emitOrderCreated(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	lines := make([]payloads.OrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, payloads.OrderLine{
			OrderItemID:   item.ID,
			ProductID:     item.ProductID,
			CombinationID: item.VariantCombinationID,
			Quantity:      item.Quantity,
			Price:         item.Price,
		})
	}
	userID := order.UserID
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: &userID, Role: enums.ActorRoleCustomer},
		Data: payloads.OrderCreatedEvent{
			OrderID:       order.ID,
			OrderCode:     order.OrderCode,
			UserID:        order.UserID,
			PaymentMethod: order.PaymentMethod,
			TotalPrice:    order.TotalPrice,
			Lines:         lines,
		},
		Version: outbox.EnvelopeVersion,
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order created event")
	}
	return nil
}

func (s *service) logRejection(ctx context.Context, demand helpers.KeyDemand, free int) {
	if s.logg == nil {
		return
	}
	combination := ""
	if demand.Key.CombinationID != nil {
		combination = demand.Key.CombinationID.String()
	}
	logCtx := s.logg.WithStockKey(ctx, demand.Key.ProductID.String(), combination)
	logCtx = s.logg.WithFields(logCtx, map[string]any{"requested": demand.Quantity, "free": free})
	s.logg.Info(logCtx, "checkout rejected for insufficient stock")
}

// withLine adds the offending line index to a typed error's details.
func withLine(err error, line int) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		return err
	}
	details := map[string]any{"line": line}
	if existing, ok := typed.Details().(map[string]any); ok {
		for k, v := range existing {
			details[k] = v
		}
	}
	return pkgerrors.Wrap(typed.Code(), err, typed.Message()).WithDetails(details)
}
