package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avvvet/skillbuddy-chat/internal/config"
	"github.com/avvvet/skillbuddy-chat/internal/handlers"
	"github.com/avvvet/skillbuddy-chat/internal/llm"
	"github.com/avvvet/skillbuddy-chat/internal/llm/llmtest"
	"github.com/avvvet/skillbuddy-chat/internal/memory"
	"github.com/avvvet/skillbuddy-chat/internal/models"
	"github.com/avvvet/skillbuddy-chat/internal/prompts"
	"github.com/avvvet/skillbuddy-chat/internal/retrieval"
	"github.com/avvvet/skillbuddy-chat/internal/transport"
)

const allowedOrigin = "http://allowed.test"

type staticSearcher struct{}

func (staticSearcher) Search(ctx context.Context, query string, k int) retrieval.Result {
	return retrieval.Result{Passages: []string{"Linux is the base of most DevOps work."}, Status: retrieval.StatusOK}
}

type testServer struct {
	*httptest.Server
	memory *memory.Manager
	path   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.json")
	return newTestServerWith(t, memory.NewFileStore(path), []string{allowedOrigin}, path)
}

func newTestServerWith(t *testing.T, store memory.Store, origins []string, path string) *testServer {
	t.Helper()
	mem := memory.NewManager(context.Background(), store)
	chat := handlers.NewChatHandler(staticSearcher{}, 3, prompts.NewBuilder(500),
		llm.NewAnswerService(llmtest.Always("Start with Linux.")), mem)

	cfg := &config.Config{Host: "127.0.0.1", CORSOrigins: origins}
	srv, err := transport.NewServer(cfg, chat, mem)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, memory: mem, path: path}
}

func (ts *testServer) dial(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func receive(t *testing.T, conn *websocket.Conn, n int) []models.Outbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	out := make([]models.Outbound, n)
	for i := range out {
		require.NoError(t, conn.ReadJSON(&out[i]))
	}
	return out
}

func TestWebSocket_ConversationFlow(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, nil)

	send(t, conn, models.Inbound{Type: models.TypeUserMessage, Text: "How do I start DevOps?"})
	first := receive(t, conn, 4)

	assert.Equal(t, models.TypeSessionStarted, first[0].Type)
	sessionID := first[0].SessionID
	require.NotEmpty(t, sessionID)
	assert.Equal(t, models.Status(sessionID, models.StatusThinking), first[1])
	assert.Equal(t, models.BotMessage(sessionID, "Start with Linux."), first[2])
	assert.Equal(t, models.Status(sessionID, models.StatusIdle), first[3])

	send(t, conn, models.Inbound{Type: models.TypeUserMessage, Text: "And then?", SessionID: sessionID})
	second := receive(t, conn, 3)
	assert.Equal(t, models.StatusThinking, second[0].Status)
	assert.Equal(t, models.TypeBotMessage, second[1].Type)
	assert.Equal(t, models.StatusIdle, second[2].Status)

	msgs, err := ts.memory.Messages(sessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "How do I start DevOps?", msgs[0].User)
	assert.Equal(t, "And then?", msgs[1].User)
}

func TestWebSocket_ErrorsKeepConnectionOpen(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, nil)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	send(t, conn, map[string]string{"type": "user_message", "text": "", "session_id": "x"})
	send(t, conn, map[string]string{"type": "dance"})
	send(t, conn, models.Inbound{Type: models.TypePing})

	out := receive(t, conn, 4)
	assert.Equal(t, models.ErrorInvalidJSON, out[0].Error)
	assert.Equal(t, models.ErrorEmptyText, out[1].Error)
	assert.Equal(t, models.ErrorUnknownType, out[2].Error)
	assert.Equal(t, "Unknown message type: dance", out[2].Message)
	assert.Equal(t, models.TypePong, out[3].Type)

	assert.False(t, ts.memory.SessionExists("x"))
	_, err := os.Stat(ts.path)
	assert.True(t, os.IsNotExist(err), "empty text must not touch the store")
}

func TestWebSocket_NewSession(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, nil)

	send(t, conn, models.Inbound{Type: models.TypeNewSession})
	out := receive(t, conn, 1)
	assert.Equal(t, models.TypeSessionStarted, out[0].Type)
	assert.True(t, ts.memory.SessionExists(out[0].SessionID))
}

func TestWebSocket_Origins(t *testing.T) {
	ts := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://evil.test"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn := ts.dial(t, http.Header{"Origin": {allowedOrigin}})
	send(t, conn, models.Inbound{Type: models.TypePing})
	assert.Equal(t, models.TypePong, receive(t, conn, 1)[0].Type)
}

func TestHTTP_Health(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body models.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
}

func TestHTTP_HealthReportsRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := memory.NewRedisStore("redis://"+mr.Addr()+"/0", "test:sessions")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ts := newTestServerWith(t, store, []string{allowedOrigin}, "")

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	mr.Close()

	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body models.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "unavailable", body.Status)
}

func TestHTTP_SessionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/session/new", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created models.NewSessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.True(t, strings.HasPrefix(created.SessionID, "session_"))

	ts.memory.AddMessage(context.Background(), created.SessionID, "q", "a")

	hist, err := http.Get(ts.URL + "/session/" + created.SessionID + "/history")
	require.NoError(t, err)
	defer hist.Body.Close()
	require.Equal(t, http.StatusOK, hist.StatusCode)

	var body struct {
		SessionID string           `json:"session_id"`
		Messages  []memory.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(hist.Body).Decode(&body))
	assert.Equal(t, created.SessionID, body.SessionID)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "a", body.Messages[0].AI)
}

func TestHTTP_UnknownSessionHistory(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/session/session_missing/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_CORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/session/new", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", allowedOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, allowedOrigin, resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://evil.test")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestHTTP_CORSSimpleRequest(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", allowedOrigin)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, allowedOrigin, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestHTTP_CORSWildcard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	ts := newTestServerWith(t, memory.NewFileStore(path), []string{"*"}, path)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://anywhere.test")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Credentials"))

	conn := ts.dial(t, http.Header{"Origin": {"http://anywhere.test"}})
	send(t, conn, models.Inbound{Type: models.TypePing})
	assert.Equal(t, models.TypePong, receive(t, conn, 1)[0].Type)
}

func TestHTTP_NoCORSOrigins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	ts := newTestServerWith(t, memory.NewFileStore(path), nil, path)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", allowedOrigin)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestNewServer_InvalidOrigin(t *testing.T) {
	cfg := &config.Config{Host: "127.0.0.1", CORSOrigins: []string{"not an origin"}}
	mem := memory.NewManager(context.Background(), memory.NewFileStore(filepath.Join(t.TempDir(), "s.json")))

	_, err := transport.NewServer(cfg, handlers.NewChatHandler(staticSearcher{}, 3, nil, nil, mem), mem)
	assert.ErrorContains(t, err, "CORS_ORIGINS")
}
