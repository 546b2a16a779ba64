package models

import "github.com/google/uuid"

// VariantAxis is a named dimension of product variation (e.g. Color).
type VariantAxis struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID uuid.UUID           `gorm:"column:product_id;type:uuid;not null"`
	Name      string              `gorm:"column:name;not null"`
	Position  int                 `gorm:"column:position;not null;default:0"`
	Options   []VariantAxisOption `gorm:"foreignKey:AxisID;constraint:OnDelete:CASCADE"`
}

// VariantAxisOption is one ordered value of an axis.
type VariantAxisOption struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AxisID   uuid.UUID `gorm:"column:axis_id;type:uuid;not null"`
	Value    string    `gorm:"column:value;not null"`
	Position int       `gorm:"column:position;not null;default:0"`
}

// OptionValues returns the axis options in position order.
func (a VariantAxis) OptionValues() []string {
	values := make([]string, 0, len(a.Options))
	for _, opt := range a.Options {
		values = append(values, opt.Value)
	}
	return values
}
