package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VariantCombination is one sellable point in the cross-product of a
// product's axes. IsLocked is set once any stock entry references it.
type VariantCombination struct {
	ID         uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID  uuid.UUID                 `gorm:"column:product_id;type:uuid;not null"`
	VariantKey string                    `gorm:"column:variant_key;not null"`
	Price      decimal.Decimal           `gorm:"column:price;type:numeric(12,2);not null"`
	IsLocked   bool                      `gorm:"column:is_locked;not null;default:false"`
	Values     []VariantCombinationValue `gorm:"foreignKey:CombinationID;constraint:OnDelete:CASCADE"`
	Images     []VariantCombinationImage `gorm:"foreignKey:CombinationID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

// VariantCombinationValue binds a combination to one option of one axis.
type VariantCombinationValue struct {
	CombinationID uuid.UUID `gorm:"column:combination_id;type:uuid;primaryKey"`
	AxisID        uuid.UUID `gorm:"column:axis_id;type:uuid;primaryKey"`
	Value         string    `gorm:"column:value;not null"`
}

// VariantCombinationImage stores an image path owned by a combination.
type VariantCombinationImage struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CombinationID uuid.UUID `gorm:"column:combination_id;type:uuid;not null"`
	Path          string    `gorm:"column:path;not null"`
	Position      int       `gorm:"column:position;not null;default:0"`
}
