package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type paymentResultRequest struct {
	OrderCode string `json:"order_code" validate:"required,max=64"`
	Success   *bool  `json:"success" validate:"required"`
}

// PaymentResult records the gateway outcome for an order. A success commits
// stock and confirms the order; repeated reports are no-ops.
func PaymentResult(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload paymentResultRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.ReportPaymentResult(r.Context(), strings.TrimSpace(payload.OrderCode), *payload.Success)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
