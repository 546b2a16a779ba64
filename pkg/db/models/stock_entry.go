package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// StockEntry is a dated batch (lot) of a product or product variant.
// Quantity is the immutable original size; RemainingQuantity only decreases
// through allocation once the batch leaves draft.
type StockEntry struct {
	ID                   uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID            uuid.UUID            `gorm:"column:product_id;type:uuid;not null"`
	VariantCombinationID *uuid.UUID           `gorm:"column:variant_combination_id;type:uuid"`
	BatchCode            string               `gorm:"column:batch_code;not null"`
	ImportPrice          decimal.Decimal      `gorm:"column:import_price;type:numeric(12,2);not null"`
	Quantity             int                  `gorm:"column:quantity;not null"`
	RemainingQuantity    int                  `gorm:"column:remaining_quantity;not null"`
	ImportDate           time.Time            `gorm:"column:import_date;not null"`
	Status               enums.BatchStatus    `gorm:"column:status;type:text;not null"`
	Note                 *string              `gorm:"column:note"`
	Version              int                  `gorm:"column:version;not null;default:0"`
	History              []StockStatusHistory `gorm:"foreignKey:StockEntryID;constraint:OnDelete:CASCADE"`
	CreatedAt            time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// StockStatusHistory is the append-only audit trail of batch status changes.
type StockStatusHistory struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StockEntryID uuid.UUID         `gorm:"column:stock_entry_id;type:uuid;not null"`
	Status       enums.BatchStatus `gorm:"column:status;type:text;not null"`
	ChangedAt    time.Time         `gorm:"column:changed_at;not null"`
	ChangedBy    string            `gorm:"column:changed_by;not null"`
	Reason       *string           `gorm:"column:reason"`
}
