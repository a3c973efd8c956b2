package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/health"
)

type readyBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func probe(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func ready(t *testing.T, h health.Handler) (int, readyBody) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var body readyBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return rr.Code, body
}

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReadyStates(t *testing.T) {
	code, body := ready(t, health.Handler{Checks: []health.Check{
		{Name: "db", Probe: probe(nil), Critical: true},
		{Name: "redis", Probe: probe(nil), Critical: true},
	}})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body.Status)

	code, body = ready(t, health.Handler{Checks: []health.Check{
		{Name: "db", Probe: probe(nil), Critical: true},
		{Name: "payment_gateway", Probe: probe(errors.New("circuit open"))},
	}})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "degraded", body.Status)
	require.Equal(t, "circuit open", body.Checks["payment_gateway"])

	code, body = ready(t, health.Handler{Checks: []health.Check{
		{Name: "db", Probe: probe(errors.New("connection refused")), Critical: true},
		{Name: "payment_gateway", Probe: probe(errors.New("circuit open"))},
	}})
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "unavailable", body.Status)
}

func TestReadinessAfterShutdown(t *testing.T) {
	h := health.Handler{Checks: []health.Check{{Name: "db", Probe: probe(nil), Critical: true}}}
	health.SetReady(false)
	t.Cleanup(func() { health.SetReady(true) })

	code, body := ready(t, h)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "shutting_down", body.Status)
}
