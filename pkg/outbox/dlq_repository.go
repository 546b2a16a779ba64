package outbox

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// DLQRepository stores outbox rows that will never be published.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ErrorMessage != nil {
		msg := truncate(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// FindByEventID returns nil without error when the event was never parked.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// DLQListParams filters a page of dead-lettered events, newest first.
type DLQListParams struct {
	Limit  int
	Cursor string
}

// DLQPage is one page of dead-lettered events.
type DLQPage struct {
	Entries    []models.OutboxDLQ
	NextCursor string
}

// List pages through parked rows ordered by (failed_at, id) descending.
func (r *DLQRepository) List(ctx context.Context, params DLQListParams) (DLQPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return DLQPage{}, err
	}
	limit := pagination.NormalizeLimit(params.Limit)

	q := r.db.WithContext(ctx).Model(&models.OutboxDLQ{})
	if cursor != nil {
		q = q.Where("(failed_at < ?) OR (failed_at = ? AND id < ?)", cursor.At, cursor.At, cursor.ID)
	}
	var rows []models.OutboxDLQ
	if err := q.Order("failed_at DESC").Order("id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error; err != nil {
		return DLQPage{}, err
	}

	rows, next := pagination.Trim(rows, limit, func(row models.OutboxDLQ) pagination.Cursor {
		return pagination.Cursor{At: row.FailedAt, ID: row.ID}
	})
	return DLQPage{Entries: rows, NextCursor: next}, nil
}
