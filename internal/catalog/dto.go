package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// ProductDTO is the catalog view of a product with its variant structure.
type ProductDTO struct {
	ID           uuid.UUID        `json:"id"`
	Name         string           `json:"name"`
	HasVariants  bool             `json:"has_variants"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Axes         []AxisDTO        `json:"axes"`
	Combinations []CombinationDTO `json:"combinations"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// AxisDTO exposes one axis and its ordered options.
type AxisDTO struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Position int       `json:"position"`
	Options  []string  `json:"options"`
}

// RemoveOptionResult reports what is left after an option is removed. Axis is
// nil when the last option took the axis with it.
type RemoveOptionResult struct {
	Axis        *AxisDTO `json:"axis,omitempty"`
	AxisRemoved bool     `json:"axis_removed"`
}

// CombinationDTO exposes one variant combination.
type CombinationDTO struct {
	ID         uuid.UUID       `json:"id"`
	ProductID  uuid.UUID       `json:"product_id"`
	VariantKey string          `json:"variant_key"`
	Values     []AxisValue     `json:"values"`
	Price      decimal.Decimal `json:"price"`
	IsLocked   bool            `json:"is_locked"`
	Images     []string        `json:"images"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ValidOptionsDTO answers "which options of the next axis can still be
// picked" for a partial selection.
type ValidOptionsDTO struct {
	ProductID        uuid.UUID     `json:"product_id"`
	Prefix           []string      `json:"prefix"`
	NextAxis         *AxisDTO      `json:"next_axis,omitempty"`
	Options          []OptionState `json:"options"`
	CompletionsExist bool          `json:"completions_exist"`
}

// LineInfo is the resolved, priced identity of a purchasable line.
type LineInfo struct {
	ProductID     uuid.UUID
	ProductName   string
	CombinationID *uuid.UUID
	HasVariants   bool
	VariantKey    string
	UnitPrice     decimal.Decimal
	Priced        bool
}

// NewProductDTO maps a fully preloaded product.
func NewProductDTO(product *models.Product) *ProductDTO {
	if product == nil {
		return nil
	}
	dto := &ProductDTO{
		ID:           product.ID,
		Name:         product.Name,
		HasVariants:  product.HasVariants,
		Axes:         make([]AxisDTO, 0, len(product.Axes)),
		Combinations: make([]CombinationDTO, 0, len(product.Combinations)),
		CreatedAt:    product.CreatedAt,
		UpdatedAt:    product.UpdatedAt,
	}
	if product.Price.Valid {
		price := product.Price.Decimal
		dto.Price = &price
	}
	positions := make(map[uuid.UUID]int, len(product.Axes))
	for _, axis := range product.Axes {
		dto.Axes = append(dto.Axes, NewAxisDTO(axis))
		positions[axis.ID] = axis.Position
	}
	for i := range product.Combinations {
		dto.Combinations = append(dto.Combinations, NewCombinationDTO(&product.Combinations[i], positions))
	}
	return dto
}

// NewAxisDTO maps an axis with its options.
func NewAxisDTO(axis models.VariantAxis) AxisDTO {
	return AxisDTO{
		ID:       axis.ID,
		Name:     axis.Name,
		Position: axis.Position,
		Options:  axis.OptionValues(),
	}
}

// NewCombinationDTO maps a combination; positions orders its values.
func NewCombinationDTO(combo *models.VariantCombination, positions map[uuid.UUID]int) CombinationDTO {
	values := make([]AxisValue, 0, len(combo.Values))
	for _, v := range combo.Values {
		values = append(values, AxisValue{AxisID: v.AxisID, Value: v.Value})
	}
	values = orderValues(values, positions)
	images := make([]string, 0, len(combo.Images))
	for _, img := range combo.Images {
		images = append(images, img.Path)
	}
	return CombinationDTO{
		ID:         combo.ID,
		ProductID:  combo.ProductID,
		VariantKey: combo.VariantKey,
		Values:     values,
		Price:      combo.Price,
		IsLocked:   combo.IsLocked,
		Images:     images,
		CreatedAt:  combo.CreatedAt,
		UpdatedAt:  combo.UpdatedAt,
	}
}
