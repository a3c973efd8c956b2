package payment

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/order"
)

// Handler exposes payment endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

// Pix returns a fresh local PIX payload for one of the caller's orders.
func (h *Handler) Pix(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment service unavailable", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	ord, code, err := h.Svc.PixCode(r.Context(), chi.URLParam(r, "orderId"))
	if errors.Is(err, order.ErrNotFound) || (ord.ID != "" && ord.UserID != userID) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": Payload{
		Method:  order.MethodPix,
		Source:  SourceLocal,
		PixText: code,
	}})
}

type recordRequest struct {
	Status string `json:"status" validate:"required,oneof=paid failed refunded"`
	Note   string `json:"note" validate:"max=500"`
}

// Record lets a merchant confirm, fail or refund a payment.
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment service unavailable", nil)
		return
	}
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	v := h.Validate
	if v == nil {
		v = validator.New()
	}
	if err := v.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
		return
	}
	actor, _ := common.UserID(r.Context())
	ord, err := h.Svc.Record(r.Context(), chi.URLParam(r, "orderId"), order.PaymentStatus(req.Status), actor, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ord})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotPixOrder), errors.Is(err, ErrAlreadySettled):
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	case errors.Is(err, ErrNoPixKey):
		common.JSONError(w, http.StatusUnprocessableEntity, "PIX_UNAVAILABLE", "store does not accept pix", nil)
	default:
		order.WriteError(w, err)
	}
}
