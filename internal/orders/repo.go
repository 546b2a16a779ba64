package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository returns the gorm-backed orders repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	items := order.Items
	order.Items = nil
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		order.Items = items
		return err
	}
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
		items[i].OrderID = order.ID
	}
	order.Items = items
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit("Batches").Create(&items).Error
}

func (r *repository) OrderCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Order{}).Where("order_code = ?", code).Count(&count).Error
	return count > 0, err
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.load(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.load(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *repository) LockByCode(ctx context.Context, code string) (*models.Order, error) {
	return r.load(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_code = ?", code))
}

func (r *repository) load(q *gorm.DB) (*models.Order, error) {
	var order models.Order
	err := q.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Items.Batches", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("user_id = ?", userID)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.At, cursor.At, cursor.ID)
	}

	var rows []models.Order
	err = q.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Items.Batches").
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	rows, next := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{At: o.CreatedAt, ID: o.ID}
	})
	list := &OrderList{NextCursor: next}
	list.Orders = make([]OrderDTO, 0, len(rows))
	for i := range rows {
		list.Orders = append(list.Orders, *NewOrderDTO(&rows[i]))
	}
	return list, nil
}

func (r *repository) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) CreateItemBatches(ctx context.Context, rows []models.OrderItemBatch) error {
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range rows {
		if rows[i].ID == uuid.Nil {
			rows[i].ID = uuid.New()
		}
		if rows[i].CreatedAt.IsZero() {
			rows[i].CreatedAt = now
		}
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// OutstandingDemand sums quantities of pending order items for the key that
// have not been allocated yet.
func (r *repository) OutstandingDemand(ctx context.Context, productID uuid.UUID, combinationID *uuid.UUID) (int, error) {
	q := r.db.WithContext(ctx).
		Table("order_items AS oi").
		Joins("JOIN orders o ON o.id = oi.order_id").
		Where("o.status = ?", enums.OrderStatusPending).
		Where("oi.product_id = ?", productID).
		Where("NOT EXISTS (SELECT 1 FROM order_item_batches b WHERE b.order_item_id = oi.id)")
	if combinationID == nil {
		q = q.Where("oi.variant_combination_id IS NULL")
	} else {
		q = q.Where("oi.variant_combination_id = ?", *combinationID)
	}

	var total int64
	if err := q.Select("COALESCE(SUM(oi.quantity), 0)").Scan(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}

func (r *repository) FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	q := r.db.WithContext(ctx).
		Where("status = ?", enums.OrderStatusPending).
		Where("payment_status <> ?", enums.PaymentStatusPaid).
		Where("created_at < ?", cutoff.UTC()).
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}
