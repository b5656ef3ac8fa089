package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/sheetpulse/internal/platform/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.get(t, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, version.Get().Version, body["version"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestHandleLiveness(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.get(t, "/health/live")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"uptime"`)
}

func TestHandleReadiness_WaitsForSnapshot(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.get(t, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","failed_check":"snapshot","error":"no snapshot available"}`, rec.Body.String())

	srv.refresh(t)

	rec = srv.get(t, "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestRunHealthChecks_StopsAtFirstFailure(t *testing.T) {
	srv := newTestServer(t)
	var ran []string
	check := func(name string, err error) HealthCheck {
		return HealthCheck{Name: name, Check: func(context.Context) error {
			ran = append(ran, name)
			return err
		}}
	}
	srv.healthChecks = []HealthCheck{
		check("first", nil),
		check("second", errors.New("down")),
		check("third", nil),
	}

	e := echo.New()
	rec := serveContext(e, func(c echo.Context) error {
		return srv.runHealthChecks(context.Background(), c)
	})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"failed_check":"second"`)
	assert.Equal(t, []string{"first", "second"}, ran)
}

func TestHandleVersion(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.get(t, "/version")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"service":"sheetpulse"`)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	srv.get(t, "/api/stats")

	rec := srv.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sheetpulse_http_requests_total")
	assert.Contains(t, rec.Body.String(), "sheetpulse_websocket_active_connections")
}
