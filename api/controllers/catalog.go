package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const maxNameLength = 200

// GetProduct returns the product with its axes and combinations.
func GetProduct(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := uuidParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := svc.GetProduct(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

// VariantOptions answers which options of the next axis remain purchasable
// after the comma separated prefix.
func VariantOptions(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := uuidParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		options, err := svc.ValidOptions(r.Context(), productID, validators.ParseQueryList(r, "prefix"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, options)
	}
}

type createProductRequest struct {
	Name        string           `json:"name" validate:"required,max=200"`
	HasVariants bool             `json:"has_variants"`
	Price       *decimal.Decimal `json:"price,omitempty" validate:"omitempty,money"`
}

type updateProductRequest struct {
	Name        *string          `json:"name,omitempty" validate:"omitempty,max=200"`
	HasVariants *bool            `json:"has_variants,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty" validate:"omitempty,money"`
}

func AdminCreateProduct(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := svc.CreateProduct(r.Context(), catalog.CreateProductInput{
			Name:        validators.SanitizeString(payload.Name, maxNameLength),
			HasVariants: payload.HasVariants,
			Price:       payload.Price,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, product)
	}
}

func AdminUpdateProduct(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := uuidParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.Name != nil {
			name := validators.SanitizeString(*payload.Name, maxNameLength)
			payload.Name = &name
		}
		product, err := svc.UpdateProduct(r.Context(), productID, catalog.UpdateProductInput{
			Name:        payload.Name,
			HasVariants: payload.HasVariants,
			Price:       payload.Price,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

type addAxisRequest struct {
	Name    string   `json:"name" validate:"required,max=100"`
	Options []string `json:"options" validate:"required,min=1,dive,required"`
}

type renameAxisRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type optionRequest struct {
	Value string `json:"value" validate:"required"`
}

type renameOptionRequest struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

func AdminAddAxis(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := uuidParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload addAxisRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		axis, err := svc.AddAxis(r.Context(), productID, catalog.AddAxisInput{Name: payload.Name, Options: payload.Options})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, axis)
	}
}

func AdminRenameAxis(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axisID, err := uuidParam(r, "axisId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload renameAxisRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		axis, err := svc.RenameAxis(r.Context(), axisID, payload.Name)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, axis)
	}
}

func AdminAddOption(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return axisOptionHandler(logg, func(r *http.Request, axisID uuid.UUID, payload optionRequest) (*catalog.AxisDTO, error) {
		return svc.AddOption(r.Context(), axisID, payload.Value)
	})
}

func AdminRemoveOption(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return axisOptionHandler(logg, func(r *http.Request, axisID uuid.UUID, payload optionRequest) (*catalog.RemoveOptionResult, error) {
		return svc.RemoveOption(r.Context(), axisID, payload.Value)
	})
}

func AdminRenameOption(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axisID, err := uuidParam(r, "axisId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload renameOptionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		axis, err := svc.RenameOption(r.Context(), axisID, payload.From, payload.To)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, axis)
	}
}

func axisOptionHandler[T any](logg *logger.Logger, apply func(*http.Request, uuid.UUID, optionRequest) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axisID, err := uuidParam(r, "axisId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload optionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := apply(r, axisID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type axisValueRequest struct {
	AxisID uuid.UUID `json:"axis_id" validate:"required"`
	Value  string    `json:"value" validate:"required"`
}

type addCombinationRequest struct {
	Values []axisValueRequest `json:"values" validate:"required,min=1,dive"`
	Price  *decimal.Decimal   `json:"price" validate:"required,money"`
	Images []string           `json:"images,omitempty"`
}

type updateCombinationRequest struct {
	Values        []axisValueRequest `json:"values,omitempty" validate:"omitempty,min=1,dive"`
	Price         *decimal.Decimal   `json:"price,omitempty" validate:"omitempty,money"`
	AddedImages   []string           `json:"added_images,omitempty"`
	DeletedImages []string           `json:"deleted_images,omitempty"`
}

func toAxisValues(values []axisValueRequest) []catalog.AxisValue {
	if values == nil {
		return nil
	}
	out := make([]catalog.AxisValue, len(values))
	for i, v := range values {
		out[i] = catalog.AxisValue{AxisID: v.AxisID, Value: v.Value}
	}
	return out
}

func AdminAddCombination(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := uuidParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload addCombinationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		combo, err := svc.AddCombination(r.Context(), productID, catalog.AddCombinationInput{
			Values: toAxisValues(payload.Values),
			Price:  *payload.Price,
			Images: payload.Images,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, combo)
	}
}

func AdminUpdateCombination(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		combinationID, err := uuidParam(r, "combinationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateCombinationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		combo, err := svc.UpdateCombination(r.Context(), combinationID, catalog.UpdateCombinationInput{
			Values:        toAxisValues(payload.Values),
			Price:         payload.Price,
			AddedImages:   payload.AddedImages,
			DeletedImages: payload.DeletedImages,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, combo)
	}
}

func AdminDeleteCombination(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		combinationID, err := uuidParam(r, "combinationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteCombination(r.Context(), combinationID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func AdminCombinationLock(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		combinationID, err := uuidParam(r, "combinationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		locked, err := svc.LockStatus(r.Context(), combinationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"combination_id": combinationID, "is_locked": locked})
	}
}
