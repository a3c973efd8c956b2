package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/lock"
	"github.com/noah-isme/toko-checkout/internal/pix"
	"github.com/noah-isme/toko-checkout/internal/promotion"
)

// Handler serves checkout submission and basket preview.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

func (h *Handler) validator() *validator.Validate {
	if h.Validate != nil {
		return h.Validate
	}
	return validator.New()
}

// Checkout creates an order for one store.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	var payload Request
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validator().Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
		return
	}
	out, err := h.Svc.Create(r.Context(), userID, payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": out})
}

// Preview prices the caller's persisted cart for one store.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	out, err := h.Svc.Preview(r.Context(), userID, chi.URLParam(r, "storeId"), nil)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	var appErr *common.AppError
	if !errors.As(err, &appErr) {
		appErr = classify(err)
	}
	common.WriteAppError(w, appErr)
}

func classify(err error) *common.AppError {
	var details any
	var lineErr *cart.LineError
	if errors.As(err, &lineErr) {
		details = map[string]string{"productId": lineErr.ProductID}
	}
	wrap := func(code, msg string, status int) *common.AppError {
		return common.NewAppError(code, msg, status, err).WithDetails(details)
	}
	switch {
	case errors.Is(err, catalog.ErrStoreNotFound):
		return wrap("STORE_NOT_FOUND", "store not found", http.StatusNotFound)
	case errors.Is(err, catalog.ErrProductNotFound):
		return wrap("PRODUCT_NOT_FOUND", "product not found", http.StatusNotFound)
	case errors.Is(err, cart.ErrProductUnavailable):
		return wrap("PRODUCT_UNAVAILABLE", "product is not available", http.StatusConflict)
	case errors.Is(err, cart.ErrInsufficientStock):
		return wrap("INSUFFICIENT_STOCK", "not enough stock", http.StatusConflict)
	case errors.Is(err, cart.ErrEmptyBasket):
		return wrap("EMPTY_BASKET", "no items for this store", http.StatusBadRequest)
	case errors.Is(err, cart.ErrInvalidQuantity):
		return wrap("INVALID_QUANTITY", "quantity must be positive", http.StatusBadRequest)
	case errors.Is(err, promotion.ErrInvalidDiscount), errors.Is(err, pix.ErrEncodingPrecondition):
		return wrap("BAD_REQUEST", err.Error(), http.StatusBadRequest)
	case errors.Is(err, lock.ErrBusy):
		return wrap("CHECKOUT_IN_PROGRESS", "another checkout for this store is in progress", http.StatusConflict)
	case errors.Is(err, ErrUnauthenticated):
		return wrap("UNAUTHORIZED", "authentication required", http.StatusUnauthorized)
	default:
		return wrap("INTERNAL", "checkout failed", http.StatusInternalServerError)
	}
}
