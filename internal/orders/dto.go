package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderDTO is the API view of an order with its items and allocations.
type OrderDTO struct {
	ID            uuid.UUID           `json:"id"`
	UserID        uuid.UUID           `json:"user_id"`
	OrderCode     string              `json:"order_code"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	TotalPrice    decimal.Decimal     `json:"total_price"`
	Status        enums.OrderStatus   `json:"status"`
	AllowedNext   []enums.OrderStatus `json:"allowed_next"`
	Items         []OrderItemDTO      `json:"items"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// OrderItemDTO is one order line.
type OrderItemDTO struct {
	ID            uuid.UUID       `json:"id"`
	ProductID     uuid.UUID       `json:"product_id"`
	CombinationID *uuid.UUID      `json:"combination_id,omitempty"`
	Quantity      int             `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	Reviewed      bool            `json:"reviewed"`
	Batches       []ItemBatchDTO  `json:"batches"`
}

// ItemBatchDTO is one allocation audit row.
type ItemBatchDTO struct {
	StockEntryID uuid.UUID `json:"stock_entry_id"`
	BatchCode    string    `json:"batch_code"`
	Quantity     int       `json:"quantity"`
}

// OrderList is a cursor page of orders.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// NewOrderDTO maps an order with preloaded items.
func NewOrderDTO(order *models.Order) *OrderDTO {
	if order == nil {
		return nil
	}
	dto := &OrderDTO{
		ID:            order.ID,
		UserID:        order.UserID,
		OrderCode:     order.OrderCode,
		PaymentMethod: order.PaymentMethod,
		PaymentStatus: order.PaymentStatus,
		TotalPrice:    order.TotalPrice,
		Status:        order.Status,
		AllowedNext:   AllowedTransitions(order.Status),
		Items:         make([]OrderItemDTO, 0, len(order.Items)),
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
	for _, item := range order.Items {
		line := OrderItemDTO{
			ID:            item.ID,
			ProductID:     item.ProductID,
			CombinationID: item.VariantCombinationID,
			Quantity:      item.Quantity,
			Price:         item.Price,
			Reviewed:      item.Reviewed,
			Batches:       make([]ItemBatchDTO, 0, len(item.Batches)),
		}
		for _, b := range item.Batches {
			line.Batches = append(line.Batches, ItemBatchDTO{
				StockEntryID: b.StockEntryID,
				BatchCode:    b.BatchCode,
				Quantity:     b.Quantity,
			})
		}
		dto.Items = append(dto.Items, line)
	}
	return dto
}
