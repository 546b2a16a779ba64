package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/stock"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const maxNoteLength = 1000

type createBatchRequest struct {
	ProductID     uuid.UUID        `json:"product_id" validate:"required"`
	CombinationID *uuid.UUID       `json:"combination_id,omitempty"`
	BatchCode     string           `json:"batch_code" validate:"required,max=64"`
	ImportPrice   *decimal.Decimal `json:"import_price" validate:"required,money"`
	Quantity      int              `json:"quantity" validate:"min=1"`
	ImportDate    time.Time        `json:"import_date" validate:"required"`
	Note          *string          `json:"note,omitempty"`
}

type editBatchRequest struct {
	BatchCode     *string          `json:"batch_code,omitempty" validate:"omitempty,max=64"`
	CombinationID *uuid.UUID       `json:"combination_id,omitempty"`
	ImportPrice   *decimal.Decimal `json:"import_price,omitempty" validate:"omitempty,money"`
	Quantity      *int             `json:"quantity,omitempty" validate:"omitempty,min=1"`
	ImportDate    *time.Time       `json:"import_date,omitempty"`
	Note          *string          `json:"note,omitempty"`
}

type transitionBatchRequest struct {
	Status string  `json:"status" validate:"required"`
	Reason *string `json:"reason,omitempty"`
}

func sanitizeNote(note *string) *string {
	if note == nil {
		return nil
	}
	clean := validators.SanitizeString(*note, maxNoteLength)
	return &clean
}

func AdminCreateBatch(ledger stock.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createBatchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		batch, err := ledger.CreateBatch(r.Context(), middleware.UserIDFromContext(r.Context()), stock.CreateBatchInput{
			ProductID:     payload.ProductID,
			CombinationID: payload.CombinationID,
			BatchCode:     strings.TrimSpace(payload.BatchCode),
			ImportPrice:   *payload.ImportPrice,
			Quantity:      payload.Quantity,
			ImportDate:    payload.ImportDate.UTC(),
			Note:          sanitizeNote(payload.Note),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, batch)
	}
}

func AdminListBatches(ledger stock.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseQueryUUID(r, "product_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if productID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required"))
			return
		}
		combinationID, err := validators.ParseQueryUUID(r, "combination_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := stock.ListFilter{ProductID: *productID, CombinationID: combinationID}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseBatchStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filter.Status = &status
		}
		batches, err := ledger.ListBatches(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, batches)
	}
}

func AdminGetBatch(ledger stock.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batchID, err := uuidParam(r, "batchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		batch, err := ledger.GetBatch(r.Context(), batchID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, batch)
	}
}

func AdminEditBatch(ledger stock.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batchID, err := uuidParam(r, "batchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload editBatchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.ImportDate != nil {
			utc := payload.ImportDate.UTC()
			payload.ImportDate = &utc
		}
		batch, err := ledger.EditBatch(r.Context(), batchID, stock.EditBatchInput{
			BatchCode:     payload.BatchCode,
			CombinationID: payload.CombinationID,
			ImportPrice:   payload.ImportPrice,
			Quantity:      payload.Quantity,
			ImportDate:    payload.ImportDate,
			Note:          sanitizeNote(payload.Note),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, batch)
	}
}

func AdminDeleteBatch(ledger stock.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batchID, err := uuidParam(r, "batchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := ledger.DeleteBatch(r.Context(), batchID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func AdminTransitionBatch(ledger stock.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batchID, err := uuidParam(r, "batchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload transitionBatchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseBatchStatus(strings.TrimSpace(payload.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		batch, err := ledger.Transition(r.Context(), batchID, status, sanitizeNote(payload.Reason), middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, batch)
	}
}
