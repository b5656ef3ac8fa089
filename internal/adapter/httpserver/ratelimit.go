package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/sheetpulse/internal/adapter/metrics"
	apperrors "github.com/pscheid92/sheetpulse/internal/platform/errors"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// newRateLimiter limits requests per client IP. Denials surface as
// rate_limited errors and are counted as websocket rejections when m is set.
func newRateLimiter(ratePerSecond float64, burst int, m *metrics.WebSocketMetrics) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			if m != nil {
				m.Rejections.WithLabelValues("rate_limit").Inc()
			}
			return apperrors.RateLimitedError("rate limit exceeded").WithContext("client_ip", identifier)
		},
	})
}
