package promotion

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// ErrScopeUnsupported is returned by repositories whose storage can hold at most one product per promotion.
var ErrScopeUnsupported = errors.New("promotion scope not supported by storage")

// Handler exposes promotion endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type createPayload struct {
	Name       string          `json:"name" validate:"required,max=120"`
	ProductIDs []string        `json:"productIds" validate:"omitempty,dive,uuid"`
	Kind       string          `json:"kind" validate:"required,oneof=percentage fixed_amount free_shipping"`
	Value      decimal.Decimal `json:"value"`
	StartsAt   time.Time       `json:"startsAt" validate:"required"`
	EndsAt     time.Time       `json:"endsAt" validate:"required"`
	Active     *bool           `json:"active"`
	ShowTimer  bool            `json:"showTimer"`
}

func (h *Handler) validator() *validator.Validate {
	if h.Validate != nil {
		return h.Validate
	}
	return validator.New()
}

// Create registers a promotion for the store in the route.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promotion service not configured", nil)
		return
	}
	storeID := strings.TrimSpace(chi.URLParam(r, "storeId"))
	var payload createPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validator().Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
		return
	}
	active := true
	if payload.Active != nil {
		active = *payload.Active
	}
	created, err := h.Svc.Create(r.Context(), Promotion{
		StoreID:    storeID,
		Name:       payload.Name,
		ProductIDs: payload.ProductIDs,
		Discount:   pricing.Discount{Kind: pricing.Kind(payload.Kind), Value: payload.Value},
		StartsAt:   payload.StartsAt,
		EndsAt:     payload.EndsAt,
		Active:     active,
		ShowTimer:  payload.ShowTimer,
	})
	switch {
	case err == nil:
		common.JSON(w, http.StatusCreated, map[string]any{"data": created})
	case errors.Is(err, ErrInvalidDiscount):
		common.JSONError(w, http.StatusBadRequest, "INVALID_DISCOUNT", err.Error(), nil)
	case errors.Is(err, ErrScopeUnsupported):
		common.JSONError(w, http.StatusUnprocessableEntity, "SCOPE_UNSUPPORTED", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create promotion", nil)
	}
}

// ListRunning returns the store's currently running promotions.
func (h *Handler) ListRunning(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promotion service not configured", nil)
		return
	}
	promos, err := h.Svc.Running(r.Context(), chi.URLParam(r, "storeId"))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load promotions", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": promos})
}
