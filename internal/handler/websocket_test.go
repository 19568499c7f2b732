package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stealthy-realtime/internal/auth"
	"stealthy-realtime/internal/fanout"
	"stealthy-realtime/internal/hub"
	"stealthy-realtime/internal/realtime"
)

var wsTokenConfig = auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}

func newWSServer(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()
	return newWSServerWithOrigin(t, "")
}

func newWSServerWithOrigin(t *testing.T, allowedOrigin string) (*httptest.Server, *hub.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := hub.New()
	rt := realtime.NewHandler(realtime.Deps{
		Hub:         h,
		Broadcaster: fanout.New(h, nil),
		Verifier:    auth.NewVerifier(wsTokenConfig),
	}, realtime.Options{})
	ws := &WebSocketHandler{Handler: rt, Decoder: realtime.NewDecoder(), CookieName: "StealthyNoteToken", AllowedOrigin: allowedOrigin}

	r := gin.New()
	r.GET("/ws", ws.Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, h
}

func dialWS(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	tok, err := auth.CreateToken(userID, wsTokenConfig)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?token="+tok, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWebSocketPingPong(t *testing.T) {
	srv, _ := newWSServer(t)
	conn := dialWS(t, srv, "user-1")

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "ping"}))
	assert.Equal(t, "pong", readFrame(t, conn)["event"])
}

func TestWebSocketRequiresToken(t *testing.T) {
	srv, _ := newWSServer(t)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func cookieHeader(t *testing.T, userID, origin string) http.Header {
	t.Helper()
	tok, err := auth.CreateToken(userID, wsTokenConfig)
	require.NoError(t, err)
	header := http.Header{}
	header.Set("Cookie", "StealthyNoteToken="+tok)
	header.Set("Origin", origin)
	return header
}

func TestWebSocketRejectsCrossOriginUpgrade(t *testing.T) {
	srv, h := newWSServerWithOrigin(t, "https://app.example")

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", cookieHeader(t, "user-1", "https://evil.example"))
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	connections, _ := h.Stats()
	assert.Zero(t, connections)
}

func TestWebSocketAcceptsConfiguredOrigin(t *testing.T) {
	srv, h := newWSServerWithOrigin(t, "https://app.example")

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", cookieHeader(t, "user-1", "https://app.example"))
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		_, ok := h.ResolveOne("user-1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketRejectsInvalidToken(t *testing.T) {
	srv, h := newWSServer(t)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?token=bad", nil)
	require.NoError(t, err)
	defer conn.Close()

	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["event"])
	connections, _ := h.Stats()
	assert.Zero(t, connections)
}

func TestWebSocketJoinAndTyping(t *testing.T) {
	srv, h := newWSServer(t)
	alice := dialWS(t, srv, "alice")
	bob := dialWS(t, srv, "bob")
	require.Eventually(t, func() bool {
		connections, _ := h.Stats()
		return connections == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, alice.WriteJSON(map[string]any{
		"event": "JOIN_ROOM",
		"data":  map[string]any{"chatId": "c1", "members": []string{"alice", "bob"}},
	}))
	frame := readFrame(t, bob)
	assert.Equal(t, "ONLINE_USERS", frame["event"])
	assert.Equal(t, []any{"alice"}, frame["data"].(map[string]any)["onlineUsers"])
	assert.Equal(t, "ONLINE_USERS", readFrame(t, alice)["event"])

	require.NoError(t, alice.WriteJSON(map[string]any{
		"event": "START_TYPING",
		"data":  map[string]any{"chatId": "c1", "members": []string{"alice", "bob"}},
	}))
	frame = readFrame(t, bob)
	assert.Equal(t, "START_TYPING", frame["event"])
	assert.Equal(t, "alice", frame["data"].(map[string]any)["senderId"])
}

func TestWebSocketReportsInvalidEvents(t *testing.T) {
	srv, _ := newWSServer(t)
	conn := dialWS(t, srv, "alice")

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "UNKNOWN", "data": map[string]any{}}))
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["event"])
	assert.Equal(t, "UNKNOWN", frame["data"].(map[string]any)["event"])
}
