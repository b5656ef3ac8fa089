package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/sheetpulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const readTimeout = 2 * time.Second

func startHTTP(t *testing.T, srv *testServer) string {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) domain.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	var msg domain.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func waitForSessions(t *testing.T, srv *testServer, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return srv.registry.Count() == n
	}, readTimeout, 5*time.Millisecond)
}

func TestWebSocket_InitialDataOnConnect(t *testing.T) {
	srv := newTestServer(t)
	srv.refresh(t)
	url := startHTTP(t, srv)

	conn := dial(t, url, nil)

	msg := readMessage(t, conn)
	assert.Equal(t, domain.MessageInitialData, msg.Type)
	require.Len(t, msg.Data, 2)
	name, _ := msg.Data[0].Get("nome")
	assert.Equal(t, "Ana", name)
}

func TestWebSocket_NoInitialDataWithoutSnapshot(t *testing.T) {
	srv := newTestServer(t)
	url := startHTTP(t, srv)

	conn := dial(t, url, nil)
	waitForSessions(t, srv, 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))

	// The pong is the first frame, so nothing was sent on connect.
	msg := readMessage(t, conn)
	assert.Equal(t, domain.MessagePong, msg.Type)
}

func TestWebSocket_PingPong(t *testing.T) {
	srv := newTestServer(t)
	srv.refresh(t)
	url := startHTTP(t, srv)

	conn := dial(t, url, nil)
	readMessage(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("  PING ")))
	msg := readMessage(t, conn)
	assert.Equal(t, domain.MessagePong, msg.Type)
	require.NotNil(t, msg.Message)
	assert.Equal(t, "pong", *msg.Message)
}

func TestWebSocket_ReceivesBroadcastUpdates(t *testing.T) {
	srv := newTestServer(t)
	srv.refresh(t)
	url := startHTTP(t, srv)

	conn := dial(t, url, nil)
	readMessage(t, conn)
	waitForSessions(t, srv, 1)

	srv.source.mu.Lock()
	srv.source.body = "nome\nZed\n"
	srv.source.mu.Unlock()
	srv.refresh(t)

	msg := readMessage(t, conn)
	assert.Equal(t, domain.MessageDataUpdate, msg.Type)
	require.Len(t, msg.Data, 1)
	name, _ := msg.Data[0].Get("nome")
	assert.Equal(t, "Zed", name)
}

func TestWebSocket_ServerFullClosesWith1008(t *testing.T) {
	srv := newTestServer(t, withCapacity(1))
	url := startHTTP(t, srv)

	dial(t, url, nil)
	waitForSessions(t, srv, 1)

	rejected := dial(t, url, nil)
	require.NoError(t, rejected.SetReadDeadline(time.Now().Add(readTimeout)))
	_, _, err := rejected.ReadMessage()

	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, "Server full", closeErr.Text)

	assert.Equal(t, 1, srv.registry.Count())
	assert.InDelta(t, 1, testutil.ToFloat64(srv.ws.Rejections.WithLabelValues("capacity")), 0)
}

func TestWebSocket_ClientCloseRemovesSession(t *testing.T) {
	srv := newTestServer(t)
	url := startHTTP(t, srv)

	conn := dial(t, url, nil)
	waitForSessions(t, srv, 1)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	waitForSessions(t, srv, 0)
	assert.InDelta(t, 1, testutil.ToFloat64(srv.ws.Disconnects), 0)
}

func TestWebSocket_ForeignOriginRejected(t *testing.T) {
	srv := newTestServer(t)
	url := startHTTP(t, srv)

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		_ = conn.Close()
	}
	require.Error(t, err)
	require.NotNil(t, resp)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, srv.registry.Count())
	assert.InDelta(t, 1, testutil.ToFloat64(srv.ws.Rejections.WithLabelValues("handshake")), 0)
}
