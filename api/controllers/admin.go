package controllers

import (
	"net/http"

	"github.com/angelmondragon/digital-fulfillment/api/responses"
	"github.com/angelmondragon/digital-fulfillment/api/validators"
	"github.com/angelmondragon/digital-fulfillment/internal/admin"
	pkgerrors "github.com/angelmondragon/digital-fulfillment/pkg/errors"
	"github.com/angelmondragon/digital-fulfillment/pkg/logger"
)

const (
	maxCodesPerImport = 10000
	maxCodeLength     = 256
)

type createProductRequest struct {
	Title      string `json:"title" validate:"required,notblank,max=200"`
	ProductKey string `json:"productKey" validate:"required,notblank,max=120"`
}

type addCodesRequest struct {
	Codes []string `json:"codes" validate:"required,min=1,max=10000"`
}

type createOfferRequest struct {
	OfferID   string `json:"offerId" validate:"required,notblank,max=120"`
	ProductID string `json:"productId" validate:"required,uuid"`
}

type loginRequest struct {
	Password string `json:"password" validate:"required"`
}

func AdminStock(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.Stock(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

func AdminDeliveryLogs(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.QueryInt(r, "limit", validators.IntRange{Default: admin.DefaultDeliveryLogLimit, Min: 1, Max: admin.MaxDeliveryLogLimit})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.DeliveryLogs(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

func AdminListProducts(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.ListProducts(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

func AdminCreateProduct(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createProductRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := svc.CreateProduct(r.Context(), admin.CreateProductInput{
			Title:      validators.SanitizeString(payload.Title, 200),
			ProductKey: validators.SanitizeString(payload.ProductKey, 120),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, product)
	}
}

// AdminAddCodes appends codes to a product's pool. Blank and repeated lines in
// the request are dropped before import.
func AdminAddCodes(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.URLParamUUID(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload addCodesRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		codes := validators.SanitizeCodes(payload.Codes, maxCodeLength)
		if len(codes) == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "no codes provided"))
			return
		}
		if len(codes) > maxCodesPerImport {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "too many codes in one import"))
			return
		}

		result, err := svc.AddCodes(r.Context(), productID, codes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func AdminListOffers(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offers, err := svc.ListOffers(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, offers)
	}
}

func AdminCreateOffer(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createOfferRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := uuidFromString(payload.ProductID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offer, err := svc.CreateOffer(r.Context(), admin.CreateOfferInput{
			OfferID:   validators.SanitizeString(payload.OfferID, 120),
			ProductID: productID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, offer)
	}
}

func AdminLogin(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload loginRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Login(r.Context(), payload.Password)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
