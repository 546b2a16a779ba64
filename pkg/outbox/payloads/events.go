package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderLine is one priced line carried by order events.
type OrderLine struct {
	OrderItemID   uuid.UUID       `json:"order_item_id"`
	ProductID     uuid.UUID       `json:"product_id" validate:"required"`
	CombinationID *uuid.UUID      `json:"combination_id,omitempty"`
	Quantity      int             `json:"quantity" validate:"min=1"`
	Price         decimal.Decimal `json:"price"`
}

// BatchAllocation records how much of a batch an order item consumed.
type BatchAllocation struct {
	OrderItemID  uuid.UUID `json:"order_item_id"`
	StockEntryID uuid.UUID `json:"stock_entry_id" validate:"required"`
	BatchCode    string    `json:"batch_code"`
	Quantity     int       `json:"quantity"`
}

// OrderCreatedEvent signals a new pending order placed at checkout.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id" validate:"required"`
	OrderCode     string              `json:"order_code" validate:"required"`
	UserID        uuid.UUID           `json:"user_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	TotalPrice    decimal.Decimal     `json:"total_price"`
	Lines         []OrderLine         `json:"lines" validate:"required,min=1,dive"`
}

// OrderConfirmedEvent is emitted once stock has been committed to the order.
type OrderConfirmedEvent struct {
	OrderID       uuid.UUID           `json:"order_id" validate:"required"`
	OrderCode     string              `json:"order_code" validate:"required"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Allocations   []BatchAllocation   `json:"allocations"`
	ConfirmedAt   time.Time           `json:"confirmed_at"`
}

// OrderStatusChangedEvent is emitted for fulfillment transitions past confirmation.
type OrderStatusChangedEvent struct {
	OrderID   uuid.UUID         `json:"order_id" validate:"required"`
	OrderCode string            `json:"order_code" validate:"required"`
	From      enums.OrderStatus `json:"from"`
	To        enums.OrderStatus `json:"to" validate:"required"`
	ChangedAt time.Time         `json:"changed_at"`
}

// OrderCancelledEvent is emitted whenever an order is cancelled by a customer or admin.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID         `json:"order_id" validate:"required"`
	OrderCode   string            `json:"order_code" validate:"required"`
	From        enums.OrderStatus `json:"from"`
	CancelledBy enums.ActorRole   `json:"cancelled_by"`
	CancelledAt time.Time         `json:"cancelled_at"`
	Reason      string            `json:"reason,omitempty"`
}

// OrderExpiredEvent reports a pending unpaid order cancelled by the sweep.
type OrderExpiredEvent struct {
	OrderID   uuid.UUID `json:"order_id" validate:"required"`
	OrderCode string    `json:"order_code" validate:"required"`
	PlacedAt  time.Time `json:"placed_at"`
	ExpiredAt time.Time `json:"expired_at"`
}

// PaymentFailedEvent reports a declined payment for an online order.
type PaymentFailedEvent struct {
	OrderID       uuid.UUID           `json:"order_id" validate:"required"`
	OrderCode     string              `json:"order_code" validate:"required"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	ReportedAt    time.Time           `json:"reported_at"`
}

// BatchStatusChangedEvent mirrors a stock_entry_status_history row.
type BatchStatusChangedEvent struct {
	StockEntryID  uuid.UUID         `json:"stock_entry_id" validate:"required"`
	ProductID     uuid.UUID         `json:"product_id"`
	CombinationID *uuid.UUID        `json:"combination_id,omitempty"`
	BatchCode     string            `json:"batch_code"`
	From          enums.BatchStatus `json:"from"`
	To            enums.BatchStatus `json:"to" validate:"required"`
	ChangedBy     string            `json:"changed_by"`
	Reason        string            `json:"reason,omitempty"`
}

// StockAllocatedEvent reports a FIFO decrement against one batch.
type StockAllocatedEvent struct {
	StockEntryID  uuid.UUID  `json:"stock_entry_id" validate:"required"`
	ProductID     uuid.UUID  `json:"product_id"`
	CombinationID *uuid.UUID `json:"combination_id,omitempty"`
	BatchCode     string     `json:"batch_code"`
	Quantity      int        `json:"quantity" validate:"gt=0"`
	Remaining     int        `json:"remaining"`
}
