package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/sheetpulse/internal/domain"
	apperrors "github.com/pscheid92/sheetpulse/internal/platform/errors"
)

const (
	messageDataRetrieved = "data retrieved"
	messageNoDataYet     = "no data available yet"
)

type dataResponse struct {
	Success      bool            `json:"success"`
	Data         []domain.Record `json:"data"`
	Message      *string         `json:"message"`
	Error        *string         `json:"error"`
	Timestamp    time.Time       `json:"timestamp"`
	TotalRecords int             `json:"total_records"`
}

func (s *Server) registerAPIRoutes() {
	s.echo.GET("/api/data", s.handleData)
	s.echo.GET("/api/stats", s.handleStats)
}

// handleData serves the cached snapshot; it never triggers a fetch.
func (s *Server) handleData(c echo.Context) error {
	snapshot, err := s.engine.Current()
	if errors.Is(err, domain.ErrNoSnapshot) {
		slog.DebugContext(c.Request().Context(), "Data requested before first refresh")
		return s.writeJSON(c, http.StatusServiceUnavailable, dataResponse{
			Success:   false,
			Message:   stringPtr(messageNoDataYet),
			Error:     stringPtr(err.Error()),
			Timestamp: s.clock.Now(),
		})
	}
	if err != nil {
		return apperrors.InternalError("failed to read snapshot", err)
	}

	return s.writeJSON(c, http.StatusOK, dataResponse{
		Success:      true,
		Data:         snapshot.Records(),
		Message:      stringPtr(messageDataRetrieved),
		Timestamp:    snapshot.CapturedAt(),
		TotalRecords: snapshot.TotalRecords(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	return s.writeJSON(c, http.StatusOK, s.engine.Stats())
}

func (s *Server) writeJSON(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

func stringPtr(s string) *string { return &s }
