package order

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/common"
)

func router(svc *Service) http.Handler {
	h := &Handler{Svc: svc}
	admin := &AdminHandler{Svc: svc}
	r := chi.NewRouter()
	r.Get("/orders", h.List)
	r.Get("/orders/{orderId}", h.Get)
	r.Get("/orders/{orderId}/history", h.History)
	r.Patch("/admin/orders/{orderId}/status", admin.PatchStatus)
	return r
}

func asUser(req *http.Request, id string) *http.Request {
	return req.WithContext(common.WithUserID(req.Context(), id))
}

func TestGetHidesOtherUsersOrders(t *testing.T) {
	t.Parallel()
	svc := newService(newMemoryRepo(pendingOrder("o1", "u1")), nil)

	rr := httptest.NewRecorder()
	router(svc).ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodGet, "/orders/o1", nil), "u2"))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	router(svc).ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodGet, "/orders/o1", nil), "u1"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"status":"pending"`)

	rr = httptest.NewRecorder()
	router(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestListOrders(t *testing.T) {
	t.Parallel()
	svc := newService(newMemoryRepo(pendingOrder("o1", "u1"), pendingOrder("o2", "u1"), pendingOrder("o3", "u2")), nil)
	rr := httptest.NewRecorder()
	router(svc).ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodGet, "/orders?limit=1", nil), "u1"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "2", rr.Header().Get("X-Total-Count"))
}

func TestPatchStatus(t *testing.T) {
	t.Parallel()
	repo := newMemoryRepo(pendingOrder("o1", "u1"))
	svc := newService(repo, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/admin/orders/o1/status", strings.NewReader(`{"status":"confirmed","note":"stock checked"}`))
	router(svc).ServeHTTP(rr, asUser(req, "merchant-1"))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPatch, "/admin/orders/o1/status", strings.NewReader(`{"status":"delivered"}`))
	router(svc).ServeHTTP(rr, asUser(req, "merchant-1"))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "INVALID_STATE")

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPatch, "/admin/orders/o1/status", strings.NewReader(`{"status":"pending"}`))
	router(svc).ServeHTTP(rr, asUser(req, "merchant-1"))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router(svc).ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodGet, "/orders/o1/history", nil), "u1"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "stock checked")
}

func TestCustomerCancel(t *testing.T) {
	t.Parallel()
	confirmed := pendingOrder("o2", "u1")
	confirmed.Status = StatusConfirmed
	svc := newService(newMemoryRepo(pendingOrder("o1", "u1"), confirmed), nil)
	r := chi.NewRouter()
	h := &Handler{Svc: svc}
	r.Post("/orders/{orderId}/cancel", h.Cancel)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders/o1/cancel", strings.NewReader(`{"reason":"wrong size"}`))
	r.ServeHTTP(rr, asUser(req, "u1"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"status":"cancelled"`)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodPost, "/orders/o2/cancel", nil), "u1"))
	require.Equal(t, http.StatusConflict, rr.Code)
}
