package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/sheetpulse/internal/adapter/metrics"
	"github.com/pscheid92/sheetpulse/internal/app"
	"github.com/pscheid92/sheetpulse/internal/broadcast"
	"github.com/pscheid92/sheetpulse/internal/platform/config"
	"github.com/pscheid92/sheetpulse/internal/sheet"
	"github.com/stretchr/testify/require"
)

const testSheet = "nome,valor,data_criacao\nAna,1234.5,2024-01-05\nBia,10,2024-01-06\n"

type stubSource struct {
	mu   sync.Mutex
	body string
	err  error
}

func (s *stubSource) Fetch(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body, s.err
}

type testServer struct {
	*Server
	engine   *app.Engine
	registry *broadcast.Registry
	source   *stubSource
	ws       *metrics.WebSocketMetrics
}

type testOption func(*config.Config)

func withCapacity(n int) testOption {
	return func(c *config.Config) { c.MaxConnections = n }
}

func withConnectRate(rate float64, burst int) testOption {
	return func(c *config.Config) {
		c.WSConnectRate = rate
		c.WSConnectBurst = burst
	}
}

func testConfig(opts ...testOption) *config.Config {
	cfg := &config.Config{
		AppEnv:         "development",
		Port:           "8000",
		AppURL:         "http://localhost:8000",
		MaxConnections: 10,
		WSConnectRate:  100,
		WSConnectBurst: 100,
		SendTimeout:    time.Second,
		ProbeTimeout:   time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func newTestServer(t *testing.T, opts ...testOption) *testServer {
	t.Helper()
	cfg := testConfig(opts...)

	reg := metrics.NewRegistry()
	wsMetrics := metrics.NewWebSocketMetrics(reg)
	clock := clockwork.NewRealClock()

	worker := sheet.NewWorker()
	t.Cleanup(worker.Stop)

	registry := broadcast.NewRegistry(cfg.MaxConnections, clock, wsMetrics)
	t.Cleanup(func() { registry.CloseAll(broadcast.ReasonShutdown) })
	broadcaster := broadcast.NewBroadcaster(registry, clock, cfg.SendTimeout, wsMetrics)
	source := &stubSource{body: testSheet}

	engine := app.NewEngine(app.EngineConfig{
		Source:       source,
		Normalizer:   worker,
		Cache:        sheet.NewSnapshotCache(),
		Registry:     registry,
		Broadcaster:  broadcaster,
		Clock:        clock,
		ProbeTimeout: cfg.ProbeTimeout,
		Metrics:      metrics.NewRefreshMetrics(reg),
	})

	srv := NewServer(cfg, Deps{
		Engine:      engine,
		Registry:    registry,
		Broadcaster: broadcaster,
		Clock:       clock,
		Prometheus:  reg,
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
		WSMetrics:   wsMetrics,
		HealthChecks: []HealthCheck{
			{Name: "snapshot", Check: func(context.Context) error {
				_, err := engine.Current()
				return err
			}},
		},
	})

	return &testServer{Server: srv, engine: engine, registry: registry, source: source, ws: wsMetrics}
}

func (ts *testServer) refresh(t *testing.T) {
	t.Helper()
	require.NoError(t, ts.engine.Refresh(context.Background()))
}

func (ts *testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	return serve(ts, newRequest(t, path))
}

func newRequest(t *testing.T, path string) *http.Request {
	t.Helper()
	return httptest.NewRequest(http.MethodGet, path, nil)
}

func serve(ts *testServer, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func serveContext(e *echo.Echo, handler echo.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	_ = handler(c)
	return rec
}
