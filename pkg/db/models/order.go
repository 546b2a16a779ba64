package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Order is a customer order placed at checkout.
type Order struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	OrderCode     string              `gorm:"column:order_code;not null"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null"`
	TotalPrice    decimal.Decimal     `gorm:"column:total_price;type:numeric(12,2);not null"`
	Status        enums.OrderStatus   `gorm:"column:status;type:text;not null"`
	Items         []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem is one priced line of an order. Batches stays empty until the
// order's commit point runs allocation.
type OrderItem struct {
	ID                   uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID              uuid.UUID        `gorm:"column:order_id;type:uuid;not null"`
	ProductID            uuid.UUID        `gorm:"column:product_id;type:uuid;not null"`
	VariantCombinationID *uuid.UUID       `gorm:"column:variant_combination_id;type:uuid"`
	Quantity             int              `gorm:"column:quantity;not null"`
	Price                decimal.Decimal  `gorm:"column:price;type:numeric(12,2);not null"`
	Reviewed             bool             `gorm:"column:reviewed;not null;default:false"`
	Batches              []OrderItemBatch `gorm:"foreignKey:OrderItemID;constraint:OnDelete:CASCADE"`
}

// OrderItemBatch records how much of one batch an order item consumed.
type OrderItemBatch struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderItemID  uuid.UUID `gorm:"column:order_item_id;type:uuid;not null"`
	StockEntryID uuid.UUID `gorm:"column:stock_entry_id;type:uuid;not null"`
	BatchCode    string    `gorm:"column:batch_code;not null"`
	Quantity     int       `gorm:"column:quantity;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// AllocatedQuantity sums the batch audit rows for the item.
func (i OrderItem) AllocatedQuantity() int {
	total := 0
	for _, b := range i.Batches {
		total += b.Quantity
	}
	return total
}
