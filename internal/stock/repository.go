package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Repository persists stock entries and their status history.
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

// ListFilter narrows ListBatches.
type ListFilter struct {
	ProductID     uuid.UUID
	CombinationID *uuid.UUID
	Status        *enums.BatchStatus
}

func (r *Repository) Create(ctx context.Context, entry *models.StockEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Omit("History").Create(entry).Error
}

func (r *Repository) AppendHistory(ctx context.Context, row *models.StockStatusHistory) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.ChangedAt.IsZero() {
		row.ChangedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.StockEntry, error) {
	var entry models.StockEntry
	err := r.db.WithContext(ctx).
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("changed_at ASC").Order("id ASC") }).
		First(&entry, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// LockByID loads the entry FOR UPDATE.
func (r *Repository) LockByID(ctx context.Context, id uuid.UUID) (*models.StockEntry, error) {
	var entry models.StockEntry
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&entry, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.StockEntry, error) {
	q := r.db.WithContext(ctx).Where("product_id = ?", filter.ProductID)
	if filter.CombinationID != nil {
		q = q.Where("variant_combination_id = ?", *filter.CombinationID)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	var entries []models.StockEntry
	err := q.Order("import_date ASC").Order("id ASC").Find(&entries).Error
	return entries, err
}

// BatchCodeExists reports whether the product already has a batch with the code.
func (r *Repository) BatchCodeExists(ctx context.Context, productID uuid.UUID, code string, exclude uuid.UUID) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).
		Model(&models.StockEntry{}).
		Where("product_id = ? AND batch_code = ?", productID, code)
	if exclude != uuid.Nil {
		q = q.Where("id <> ?", exclude)
	}
	err := q.Count(&count).Error
	return count > 0, err
}

// UpdateDraft writes edited draft fields and bumps the version.
func (r *Repository) UpdateDraft(ctx context.Context, entry *models.StockEntry) error {
	return r.db.WithContext(ctx).
		Model(&models.StockEntry{}).
		Where("id = ?", entry.ID).
		Updates(map[string]any{
			"batch_code":             entry.BatchCode,
			"variant_combination_id": entry.VariantCombinationID,
			"import_price":           entry.ImportPrice,
			"quantity":               entry.Quantity,
			"remaining_quantity":     entry.RemainingQuantity,
			"import_date":            entry.ImportDate,
			"note":                   entry.Note,
			"version":                gorm.Expr("version + 1"),
			"updated_at":             time.Now().UTC(),
		}).Error
}

// SetStatus moves the entry to status without touching remaining_quantity.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status enums.BatchStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.StockEntry{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("stock_entry_id = ?", id).Delete(&models.StockStatusHistory{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&models.StockEntry{}).Error
}

// LockAllocatable returns the key's imported batches with stock left, in FIFO
// order, locked FOR UPDATE.
func (r *Repository) LockAllocatable(ctx context.Context, key Key) ([]models.StockEntry, error) {
	var entries []models.StockEntry
	err := keyScope(r.db.WithContext(ctx), key).
		Where("status = ? AND remaining_quantity > 0", enums.BatchStatusImported).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Order("import_date ASC").
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

// DecrementCAS takes qty from the batch only if nobody changed it since it was
// read. The returned flag is false when the row moved underneath.
func (r *Repository) DecrementCAS(ctx context.Context, id uuid.UUID, version, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StockEntry{}).
		Where("id = ? AND version = ? AND remaining_quantity >= ?", id, version, qty).
		Updates(map[string]any{
			"remaining_quantity": gorm.Expr("remaining_quantity - ?", qty),
			"version":            gorm.Expr("version + 1"),
			"updated_at":         time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

// SumAvailable totals remaining_quantity over the key's imported batches.
func (r *Repository) SumAvailable(ctx context.Context, key Key) (int, error) {
	var total int64
	err := keyScope(r.db.WithContext(ctx).Model(&models.StockEntry{}), key).
		Where("status = ?", enums.BatchStatusImported).
		Select("COALESCE(SUM(remaining_quantity), 0)").
		Scan(&total).Error
	return int(total), err
}

func keyScope(db *gorm.DB, key Key) *gorm.DB {
	db = db.Where("product_id = ?", key.ProductID)
	if key.CombinationID == nil {
		return db.Where("variant_combination_id IS NULL")
	}
	return db.Where("variant_combination_id = ?", *key.CombinationID)
}
