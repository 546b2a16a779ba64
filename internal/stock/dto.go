package stock

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// BatchDTO is the admin view of a stock batch.
type BatchDTO struct {
	ID                uuid.UUID           `json:"id"`
	ProductID         uuid.UUID           `json:"product_id"`
	CombinationID     *uuid.UUID          `json:"combination_id,omitempty"`
	BatchCode         string              `json:"batch_code"`
	ImportPrice       decimal.Decimal     `json:"import_price"`
	Quantity          int                 `json:"quantity"`
	RemainingQuantity int                 `json:"remaining_quantity"`
	ImportDate        time.Time           `json:"import_date"`
	Status            enums.BatchStatus   `json:"status"`
	AllowedNext       []enums.BatchStatus `json:"allowed_next"`
	Note              *string             `json:"note,omitempty"`
	Version           int                 `json:"version"`
	History           []HistoryDTO        `json:"history,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// HistoryDTO is one status change of a batch.
type HistoryDTO struct {
	Status    enums.BatchStatus `json:"status"`
	ChangedAt time.Time         `json:"changed_at"`
	ChangedBy string            `json:"changed_by"`
	Reason    *string           `json:"reason,omitempty"`
}

// NewBatchDTO maps a stock entry and any preloaded history.
func NewBatchDTO(entry *models.StockEntry) *BatchDTO {
	if entry == nil {
		return nil
	}
	dto := &BatchDTO{
		ID:                entry.ID,
		ProductID:         entry.ProductID,
		CombinationID:     entry.VariantCombinationID,
		BatchCode:         entry.BatchCode,
		ImportPrice:       entry.ImportPrice,
		Quantity:          entry.Quantity,
		RemainingQuantity: entry.RemainingQuantity,
		ImportDate:        entry.ImportDate,
		Status:            entry.Status,
		AllowedNext:       AllowedTransitions(entry.Status),
		Note:              entry.Note,
		Version:           entry.Version,
		CreatedAt:         entry.CreatedAt,
		UpdatedAt:         entry.UpdatedAt,
	}
	for _, h := range entry.History {
		dto.History = append(dto.History, HistoryDTO{
			Status:    h.Status,
			ChangedAt: h.ChangedAt,
			ChangedBy: h.ChangedBy,
			Reason:    h.Reason,
		})
	}
	return dto
}
