// Package availability answers read-only sellable-quantity questions for the
// storefront. Answers are hints: checkout admission and allocation are what
// actually guard stock.
package availability

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/stock"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Line reasons reported by Check.
const (
	ReasonInsufficient = "insufficient_stock"
	ReasonInvalid      = "invalid_selection"
)

type quantityReader interface {
	AvailableQuantity(ctx context.Context, tx *gorm.DB, key stock.Key) (int, error)
}

type lineResolver interface {
	ResolveLine(ctx context.Context, tx *gorm.DB, productID uuid.UUID, combinationID *uuid.UUID) (*catalog.LineInfo, error)
}

// Service reports whether selections can currently be sold.
type Service interface {
	IsAvailable(ctx context.Context, productID uuid.UUID, combinationID *uuid.UUID, qty int) (*Result, error)
	Check(ctx context.Context, lines []LineQuery) ([]LineReport, error)
}

// Result is the answer for a single key.
type Result struct {
	ProductID     uuid.UUID  `json:"product_id"`
	CombinationID *uuid.UUID `json:"combination_id,omitempty"`
	Requested     int        `json:"requested"`
	Available     int        `json:"available"`
	OK            bool       `json:"ok"`
}

// LineQuery is one selection to check.
type LineQuery struct {
	ProductID     uuid.UUID  `json:"product_id" validate:"required"`
	CombinationID *uuid.UUID `json:"combination_id,omitempty"`
	Quantity      int        `json:"quantity" validate:"min=1"`
}

// LineReport is the per-line answer returned by Check.
type LineReport struct {
	Line          int        `json:"line"`
	ProductID     uuid.UUID  `json:"product_id"`
	CombinationID *uuid.UUID `json:"combination_id,omitempty"`
	Requested     int        `json:"requested"`
	Available     int        `json:"available"`
	OK            bool       `json:"ok"`
	Reason        string     `json:"reason,omitempty"`
}

type service struct {
	stock   quantityReader
	catalog lineResolver
}

// NewService builds the availability service.
func NewService(stockReader quantityReader, resolver lineResolver) (Service, error) {
	if stockReader == nil {
		return nil, fmt.Errorf("stock reader required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("catalog required")
	}
	return &service{stock: stockReader, catalog: resolver}, nil
}

func (s *service) IsAvailable(ctx context.Context, productID uuid.UUID, combinationID *uuid.UUID, qty int) (*Result, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	if qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "qty must be at least 1")
	}
	// Variant products only hold stock per combination, so a product-level
	// question on one is rejected here along with unknown selections.
	if _, err := s.catalog.ResolveLine(ctx, nil, productID, combinationID); err != nil {
		return nil, err
	}
	key := stock.NewKey(productID, combinationID)
	available, err := s.stock.AvailableQuantity(ctx, nil, key)
	if err != nil {
		return nil, err
	}
	return &Result{
		ProductID:     key.ProductID,
		CombinationID: key.CombinationID,
		Requested:     qty,
		Available:     available,
		OK:            available >= qty,
	}, nil
}

// Check evaluates each line independently. Lines whose selection no longer
// resolves in the catalog are reported as invalid rather than failing the call.
func (s *service) Check(ctx context.Context, lines []LineQuery) ([]LineReport, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	cache := make(map[string]int, len(lines))
	reports := make([]LineReport, 0, len(lines))
	for i, line := range lines {
		key := stock.NewKey(line.ProductID, line.CombinationID)
		report := LineReport{
			Line:          i,
			ProductID:     key.ProductID,
			CombinationID: key.CombinationID,
			Requested:     line.Quantity,
		}
		if line.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
				WithDetails(map[string]any{"line": i})
		}
		if _, err := s.catalog.ResolveLine(ctx, nil, key.ProductID, key.CombinationID); err != nil {
			if !pkgerrors.HasCode(err, pkgerrors.CodeValidation, pkgerrors.CodeNotFound) {
				return nil, err
			}
			report.Reason = ReasonInvalid
			reports = append(reports, report)
			continue
		}

		available, ok := cache[key.String()]
		if !ok {
			var err error
			available, err = s.stock.AvailableQuantity(ctx, nil, key)
			if err != nil {
				return nil, err
			}
			cache[key.String()] = available
		}
		report.Available = available
		report.OK = available >= line.Quantity
		if !report.OK {
			report.Reason = ReasonInsufficient
		}
		reports = append(reports, report)
	}
	return reports, nil
}
