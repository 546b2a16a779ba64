package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/checkout/helpers"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type checkoutLineRequest struct {
	ProductID     uuid.UUID  `json:"product_id" validate:"required"`
	CombinationID *uuid.UUID `json:"combination_id,omitempty"`
	Quantity      int        `json:"quantity" validate:"min=1"`
}

type checkoutRequest struct {
	PaymentMethod string                `json:"payment_method" validate:"required"`
	Lines         []checkoutLineRequest `json:"lines" validate:"required,min=1,max=100,dive"`
}

// Checkout turns the caller's selection into a pending order.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(strings.TrimSpace(payload.PaymentMethod))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		lines := make([]helpers.Line, len(payload.Lines))
		for i, line := range payload.Lines {
			lines[i] = helpers.Line{
				ProductID:     line.ProductID,
				CombinationID: line.CombinationID,
				Quantity:      line.Quantity,
			}
		}

		order, err := svc.CreateOrderFromSelection(r.Context(), checkoutsvc.CheckoutInput{
			UserID:        userID,
			PaymentMethod: method,
			Lines:         lines,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}
