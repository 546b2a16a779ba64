package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository persists products, axes, and combinations.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(product).Error
}

func (r *Repository) SaveProduct(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", product.ID).
		Updates(map[string]any{
			"name":         product.Name,
			"has_variants": product.HasVariants,
			"price":        product.Price,
		}).Error
}

// FindProduct loads a product without associations.
func (r *Repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// LockProduct loads the product row FOR UPDATE so structural catalog edits on
// the same product serialize.
func (r *Repository) LockProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&product, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductDetail loads the product with ordered axes, options, and combinations.
func (r *Repository) GetProductDetail(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Axes", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Axes.Options", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Combinations", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }).
		Preload("Combinations.Values").
		Preload("Combinations.Images", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&product, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListAxes returns the product's axes with options, in position order.
func (r *Repository) ListAxes(ctx context.Context, productID uuid.UUID) ([]models.VariantAxis, error) {
	var axes []models.VariantAxis
	err := r.db.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("product_id = ?", productID).
		Order("position ASC").
		Find(&axes).Error
	return axes, err
}

func (r *Repository) FindAxis(ctx context.Context, axisID uuid.UUID) (*models.VariantAxis, error) {
	var axis models.VariantAxis
	err := r.db.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&axis, "id = ?", axisID).Error
	if err != nil {
		return nil, err
	}
	return &axis, nil
}

func (r *Repository) CreateAxis(ctx context.Context, axis *models.VariantAxis) error {
	if axis.ID == uuid.Nil {
		axis.ID = uuid.New()
	}
	for i := range axis.Options {
		if axis.Options[i].ID == uuid.Nil {
			axis.Options[i].ID = uuid.New()
		}
		axis.Options[i].AxisID = axis.ID
	}
	return r.db.WithContext(ctx).Create(axis).Error
}

func (r *Repository) RenameAxis(ctx context.Context, axisID uuid.UUID, name string) error {
	return r.db.WithContext(ctx).
		Model(&models.VariantAxis{}).
		Where("id = ?", axisID).
		Update("name", name).Error
}

func (r *Repository) DeleteAxis(ctx context.Context, axisID uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("axis_id = ?", axisID).Delete(&models.VariantAxisOption{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", axisID).Delete(&models.VariantAxis{}).Error
}

func (r *Repository) CreateOption(ctx context.Context, option *models.VariantAxisOption) error {
	if option.ID == uuid.Nil {
		option.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(option).Error
}

func (r *Repository) RenameOption(ctx context.Context, optionID uuid.UUID, value string) error {
	return r.db.WithContext(ctx).
		Model(&models.VariantAxisOption{}).
		Where("id = ?", optionID).
		Update("value", value).Error
}

func (r *Repository) DeleteOption(ctx context.Context, optionID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", optionID).Delete(&models.VariantAxisOption{}).Error
}

// CountCombinations counts the materialized combinations of a product.
func (r *Repository) CountCombinations(ctx context.Context, productID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.VariantCombination{}).
		Where("product_id = ?", productID).
		Count(&count).Error
	return count, err
}

// AxisReferenced reports whether any combination carries a value for the axis.
func (r *Repository) AxisReferenced(ctx context.Context, axisID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.VariantCombinationValue{}).
		Where("axis_id = ?", axisID).
		Count(&count).Error
	return count > 0, err
}

// OptionReferenced reports whether the (axis, value) pair participates in any combination.
func (r *Repository) OptionReferenced(ctx context.Context, axisID uuid.UUID, value string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.VariantCombinationValue{}).
		Where("axis_id = ? AND value = ?", axisID, value).
		Count(&count).Error
	return count > 0, err
}

// ListCombinations returns a product's combinations with their values.
func (r *Repository) ListCombinations(ctx context.Context, productID uuid.UUID) ([]models.VariantCombination, error) {
	var combos []models.VariantCombination
	err := r.db.WithContext(ctx).
		Preload("Values").
		Where("product_id = ?", productID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&combos).Error
	return combos, err
}

func (r *Repository) FindCombination(ctx context.Context, id uuid.UUID) (*models.VariantCombination, error) {
	var combo models.VariantCombination
	err := r.db.WithContext(ctx).
		Preload("Values").
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&combo, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &combo, nil
}

// LockCombination loads the combination FOR UPDATE.
func (r *Repository) LockCombination(ctx context.Context, id uuid.UUID) (*models.VariantCombination, error) {
	var combo models.VariantCombination
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&combo, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &combo, nil
}

func (r *Repository) CreateCombination(ctx context.Context, combo *models.VariantCombination) error {
	if combo.ID == uuid.Nil {
		combo.ID = uuid.New()
	}
	for i := range combo.Values {
		combo.Values[i].CombinationID = combo.ID
	}
	for i := range combo.Images {
		if combo.Images[i].ID == uuid.Nil {
			combo.Images[i].ID = uuid.New()
		}
		combo.Images[i].CombinationID = combo.ID
	}
	return r.db.WithContext(ctx).Create(combo).Error
}

// ReplaceCombinationValues swaps the tuple of an unlocked combination.
func (r *Repository) ReplaceCombinationValues(ctx context.Context, comboID uuid.UUID, variantKey string, values []models.VariantCombinationValue) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("combination_id = ?", comboID).Delete(&models.VariantCombinationValue{}).Error; err != nil {
		return err
	}
	for i := range values {
		values[i].CombinationID = comboID
	}
	if len(values) > 0 {
		if err := db.Create(&values).Error; err != nil {
			return err
		}
	}
	return db.Model(&models.VariantCombination{}).
		Where("id = ?", comboID).
		Update("variant_key", variantKey).Error
}

func (r *Repository) UpdateCombinationPrice(ctx context.Context, comboID uuid.UUID, price any) error {
	return r.db.WithContext(ctx).
		Model(&models.VariantCombination{}).
		Where("id = ?", comboID).
		Update("price", price).Error
}

func (r *Repository) AddImages(ctx context.Context, images []models.VariantCombinationImage) error {
	if len(images) == 0 {
		return nil
	}
	for i := range images {
		if images[i].ID == uuid.Nil {
			images[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&images).Error
}

func (r *Repository) DeleteImages(ctx context.Context, comboID uuid.UUID, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("combination_id = ? AND path IN ?", comboID, paths).
		Delete(&models.VariantCombinationImage{}).Error
}

func (r *Repository) DeleteCombination(ctx context.Context, comboID uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("combination_id = ?", comboID).Delete(&models.VariantCombinationImage{}).Error; err != nil {
		return err
	}
	if err := db.Where("combination_id = ?", comboID).Delete(&models.VariantCombinationValue{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", comboID).Delete(&models.VariantCombination{}).Error
}

// SetLocked writes the materialized lock flag and reports whether it changed.
func (r *Repository) SetLocked(ctx context.Context, comboID uuid.UUID, locked bool) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VariantCombination{}).
		Where("id = ? AND is_locked = ?", comboID, !locked).
		Update("is_locked", locked)
	return res.RowsAffected > 0, res.Error
}

// CountStockReferences counts stock entries pointing at the combination.
func (r *Repository) CountStockReferences(ctx context.Context, comboID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.StockEntry{}).
		Where("variant_combination_id = ?", comboID).
		Count(&count).Error
	return count, err
}
