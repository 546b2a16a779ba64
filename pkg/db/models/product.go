package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the catalog root. Price applies only when HasVariants is false;
// variant products are priced per combination.
type Product struct {
	ID           uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string               `gorm:"column:name;not null"`
	HasVariants  bool                 `gorm:"column:has_variants;not null;default:false"`
	Price        decimal.NullDecimal  `gorm:"column:price;type:numeric(12,2)"`
	Axes         []VariantAxis        `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Combinations []VariantCombination `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
