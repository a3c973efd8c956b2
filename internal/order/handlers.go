package order

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/toko-checkout/internal/common"
)

// Handler serves customer order endpoints.
type Handler struct {
	Svc *Service
}

func (h *Handler) owned(w http.ResponseWriter, r *http.Request) (Order, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return Order{}, false
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return Order{}, false
	}
	ord, err := h.Svc.Get(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil || ord.UserID != userID {
		if err == nil || errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return Order{}, false
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return Order{}, false
	}
	return ord, true
}

// List returns the caller's orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	page := common.ParsePagination(r, 20, 100)
	orders, total, err := h.Svc.List(r.Context(), userID, page.PerPage, page.Offset())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list orders", nil)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       orders,
		"pagination": common.Pagination{Page: page.Page, PerPage: page.PerPage, TotalItems: total},
	})
}

// Get returns one of the caller's orders with items.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ord, ok := h.owned(w, r)
	if !ok {
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ord})
}

// History returns the status log of one of the caller's orders.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	ord, ok := h.owned(w, r)
	if !ok {
		return
	}
	entries, err := h.Svc.History(r.Context(), ord.ID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load history", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": entries})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel lets a customer cancel an order that has not been confirmed yet.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	ord, ok := h.owned(w, r)
	if !ok {
		return
	}
	if ord.Status != StatusPending {
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", "only pending orders can be cancelled by the customer", nil)
		return
	}
	var req cancelRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
			return
		}
	}
	updated, err := h.Svc.Advance(r.Context(), ord.ID, StatusCancelled, ord.UserID, req.Reason, nil)
	if err != nil {
		WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// AdminHandler provides merchant order management endpoints.
type AdminHandler struct {
	Svc      *Service
	Validate *validator.Validate
}

type patchStatusRequest struct {
	Status         string  `json:"status" validate:"required,oneof=confirmed processing shipped delivered cancelled"`
	TrackingNumber *string `json:"trackingNumber" validate:"omitempty,max=64"`
	Note           string  `json:"note" validate:"max=500"`
}

// PatchStatus advances the order status with state-machine validation.
func (h *AdminHandler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	var req patchStatusRequest
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
	ord, err := h.Svc.Advance(r.Context(), chi.URLParam(r, "orderId"), Status(req.Status), actor, req.Note, req.TrackingNumber)
	if err != nil {
		WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ord})
}

// WriteError maps order errors to HTTP responses.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
	case errors.Is(err, ErrInvalidTransition):
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	case errors.Is(err, ErrConflict):
		common.JSONError(w, http.StatusConflict, "CONFLICT", "order was modified concurrently, retry", nil)
	case errors.Is(err, ErrTrackingNotAllowed):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update order", nil)
	}
}
