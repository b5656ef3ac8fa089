package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{&Error{Type: TypeValidation}, http.StatusBadRequest},
		{&Error{Type: TypeNotFound}, http.StatusNotFound},
		{RateLimitedError("slow down"), http.StatusTooManyRequests},
		{&Error{Type: TypeUnavailable}, http.StatusServiceUnavailable},
		{InternalError("boom", nil), http.StatusInternalServerError},
		{&Error{Type: "unknown"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Type), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestError_MessageAndUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := InternalError("snapshot read failed", cause)

	assert.Equal(t, "internal: snapshot read failed: dial tcp: refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "rate_limited: slow down", RateLimitedError("slow down").Error())
}

func TestAsStructuredError(t *testing.T) {
	assert.Nil(t, AsStructuredError(nil))

	typed := RateLimitedError("slow down")
	assert.Same(t, typed, AsStructuredError(fmt.Errorf("wrapped: %w", typed)))

	plain := AsStructuredError(errors.New("oops"))
	assert.Equal(t, TypeInternal, plain.Type)
	assert.Equal(t, "internal server error", plain.Message)
}

func TestMiddleware_StructuredError(t *testing.T) {
	counter := newCounter()
	rec, err := serve(counter, func(echo.Context) error {
		return RateLimitedError("rate limit exceeded").WithContext("client_ip", "1.2.3.4")
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "rate limit exceeded", resp.Error)
	assert.Equal(t, TypeRateLimited, resp.Type)
	assert.Equal(t, "1.2.3.4", resp.Context["client_ip"])
	assert.InDelta(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("rate_limited")), 0)
}

func TestMiddleware_PlainErrorBecomesInternal(t *testing.T) {
	counter := newCounter()
	rec, err := serve(counter, func(echo.Context) error {
		return errors.New("standard error")
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.InDelta(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("internal")), 0)
}

func TestMiddleware_PassesEchoHTTPErrorThrough(t *testing.T) {
	counter := newCounter()
	_, err := serve(counter, func(echo.Context) error {
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
	})

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.Code)
	assert.InDelta(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("rate_limited")), 0)
}

func TestMiddleware_NoError(t *testing.T) {
	rec, err := serve(nil, func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestWrapHTTPError(t *testing.T) {
	wrapped := WrapHTTPError(echo.NewHTTPError(http.StatusServiceUnavailable))
	assert.Equal(t, TypeUnavailable, wrapped.Type)
	assert.Equal(t, "Service Unavailable", wrapped.Message)

	wrapped = WrapHTTPError(echo.NewHTTPError(http.StatusBadRequest, "bad query"))
	assert.Equal(t, TypeValidation, wrapped.Type)
	assert.Equal(t, "bad query", wrapped.Message)
}

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_http_errors_total"}, []string{"type"})
}

func serve(counter *prometheus.CounterVec, h echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	rec := httptest.NewRecorder()
	err := Middleware(counter)(h)(e.NewContext(req, rec))
	return rec, err
}
