package httpserver

import (
	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/sheetpulse/internal/broadcast"
)

// handleWebSocket upgrades the request, admits the session and then reads
// client frames until the connection goes away. Admission failures are
// reported to the client as a close frame, not as an HTTP error.
func (s *Server) handleWebSocket(c echo.Context) error {
	ctx := c.Request().Context()

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		if s.wsMetrics != nil {
			s.wsMetrics.Rejections.WithLabelValues("handshake").Inc()
		}
		slog.InfoContext(ctx, "WebSocket upgrade failed", "error", err)
		return nil
	}

	ch := broadcast.NewWSChannel(conn, s.clock)
	session, err := s.registry.Connect(ch, c.RealIP())
	if err != nil {
		return nil
	}

	s.engine.OnConnect(ctx, session)

	for {
		text, err := ch.ReadText()
		if err != nil {
			if session.Live() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.DebugContext(ctx, "WebSocket read failed", "session_id", session.ID.String(), "error", err)
			}
			s.registry.Disconnect(session, broadcast.ReasonClientDisconnected)
			return nil
		}
		s.broadcaster.HandleInbound(ctx, session, text)
	}
}
