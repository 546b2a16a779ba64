package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Repository defines persistence operations for orders, their items and the
// batch allocation audit.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	OrderCodeExists(ctx context.Context, code string) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockByCode(ctx context.Context, code string) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	CreateItemBatches(ctx context.Context, rows []models.OrderItemBatch) error
	OutstandingDemand(ctx context.Context, productID uuid.UUID, combinationID *uuid.UUID) (int, error)
	FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}
