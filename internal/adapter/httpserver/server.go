package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/sheetpulse/internal/adapter/metrics"
	"github.com/pscheid92/sheetpulse/internal/broadcast"
	"github.com/pscheid92/sheetpulse/internal/domain"
	"github.com/pscheid92/sheetpulse/internal/platform/config"
)

type engineService interface {
	Current() (domain.Snapshot, error)
	Stats() domain.Stats
	OnConnect(ctx context.Context, s *broadcast.Session)
}

// Deps are the collaborators the HTTP surface serves from.
type Deps struct {
	Engine       engineService
	Registry     *broadcast.Registry
	Broadcaster  *broadcast.Broadcaster
	Clock        clockwork.Clock
	Prometheus   *prometheus.Registry
	HTTPMetrics  *metrics.HTTPMetrics
	WSMetrics    *metrics.WebSocketMetrics
	HealthChecks []HealthCheck
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	engine      engineService
	registry    *broadcast.Registry
	broadcaster *broadcast.Broadcaster
	upgrader    websocket.Upgrader
	clock       clockwork.Clock

	prometheus   *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics
	wsMetrics    *metrics.WebSocketMetrics
	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	srv := &Server{
		echo:        e,
		config:      cfg,
		engine:      deps.Engine,
		registry:    deps.Registry,
		broadcaster: deps.Broadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment()),
		},
		clock:        clock,
		prometheus:   deps.Prometheus,
		httpMetrics:  deps.HTTPMetrics,
		wsMetrics:    deps.WSMetrics,
		healthChecks: deps.HealthChecks,
		startTime:    clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

// ServeHTTP lets the server be mounted directly, mostly for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones. Upgraded
// websocket connections are not tracked by echo; close them via the registry.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
