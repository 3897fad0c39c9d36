package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelichko/circlechat-server/internal/auth"
	"github.com/avelichko/circlechat-server/internal/config"
	"github.com/avelichko/circlechat-server/internal/core"
	"github.com/avelichko/circlechat-server/internal/service/messages"
	"github.com/avelichko/circlechat-server/internal/store/sqlite"
)

type testEnv struct {
	ts   *httptest.Server
	auth *auth.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	jwtCfg := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "circlechat",
		Audience: "circlechat",
		TTL:      time.Hour,
	}
	authService := auth.NewService(st, jwtCfg)

	logger := zerolog.Nop()
	hub := core.NewHub(st, &logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	msgService := messages.New(st, nil, hub)

	srv := NewServer(hub, authService, msgService, config.Config{Addr: ":0"}, &logger)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, auth: authService}
}

// register creates a user over the REST API and returns (token, userID).
func (e *testEnv) register(t *testing.T, username string) (string, string) {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"username": username, "password": "secret1"})
	resp, err := stdhttp.Post(e.ts.URL+"/api/register", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, stdhttp.StatusCreated, resp.StatusCode)

	var ar AuthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ar))

	claims, err := e.auth.ValidateToken(ar.Token)
	require.NoError(t, err)
	return ar.Token, claims.UserID
}

// dial opens an authenticated WebSocket session and joins.
func (e *testEnv) dial(t *testing.T, ctx context.Context, token string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })

	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"type": "join"}))
	return conn
}

type outboundEnvelope struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
}

// readEvent reads envelopes until one matches the wanted event name.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) outboundEnvelope {
	t.Helper()

	for {
		var env outboundEnvelope
		require.NoError(t, wsjson.Read(ctx, conn, &env), "waiting for %s", event)
		if env.Event == event || (event == "error" && env.Type == "error") {
			return env
		}
	}
}

func (e *testEnv) sendText(t *testing.T, token, toUserID, text string) *stdhttp.Response {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("to_user_id", toUserID))
	require.NoError(t, w.WriteField("text", text))
	require.NoError(t, w.Close())

	req, err := stdhttp.NewRequest(stdhttp.MethodPost, e.ts.URL+"/api/messages/send", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := stdhttp.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestRegisterLoginRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "secret1"})
	resp, err := stdhttp.Post(env.ts.URL+"/api/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, stdhttp.StatusOK, resp.StatusCode)

	body, _ = json.Marshal(map[string]string{"username": "alice", "password": "wrong1"})
	resp, err = stdhttp.Post(env.ts.URL+"/api/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, stdhttp.StatusUnauthorized, resp.StatusCode)
}

func TestWSRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, stdhttp.StatusUnauthorized, resp.StatusCode)
	}
}

func TestSendFansOutToBothParticipants(t *testing.T) {
	env := newTestEnv(t)
	aliceToken, aliceID := env.register(t, "alice")
	bobToken, bobID := env.register(t, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	aliceConn := env.dial(t, ctx, aliceToken)
	bobConn := env.dial(t, ctx, bobToken)
	readEvent(t, ctx, aliceConn, "onlineUsers")
	readEvent(t, ctx, bobConn, "onlineUsers")

	resp := env.sendText(t, aliceToken, bobID, "hello bob")
	defer resp.Body.Close()
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)

	var sent SendResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sent))
	assert.Equal(t, aliceID, sent.Message.FromUserID)
	assert.False(t, sent.Message.Seen)

	// Recipient and sender both receive the live copy.
	evt := readEvent(t, ctx, bobConn, "receiveMessage")
	var got map[string]any
	require.NoError(t, json.Unmarshal(evt.Data, &got))
	assert.Equal(t, "hello bob", got["text"])

	evt = readEvent(t, ctx, aliceConn, "receiveMessage")
	require.NoError(t, json.Unmarshal(evt.Data, &got))
	assert.Equal(t, "hello bob", got["text"])
}

func TestMarkSeenNotifiesSender(t *testing.T) {
	env := newTestEnv(t)
	aliceToken, aliceID := env.register(t, "alice")
	bobToken, bobID := env.register(t, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	aliceConn := env.dial(t, ctx, aliceToken)
	bobConn := env.dial(t, ctx, bobToken)

	resp := env.sendText(t, aliceToken, bobID, "see me")
	resp.Body.Close()
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	readEvent(t, ctx, bobConn, "receiveMessage")

	require.NoError(t, wsjson.Write(ctx, bobConn, map[string]any{
		"type": "markSeen",
		"data": map[string]string{"from_user_id": aliceID, "to_user_id": bobID},
	}))

	ev := readEvent(t, ctx, aliceConn, "updateSeen")
	var data struct {
		MessageIDs []int64 `json:"messageIds"`
	}
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	require.Len(t, data.MessageIDs, 1)
}

func TestMarkSeenForAnotherUserRejected(t *testing.T) {
	env := newTestEnv(t)
	aliceToken, aliceID := env.register(t, "alice")
	_, bobID := env.register(t, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	aliceConn := env.dial(t, ctx, aliceToken)

	// Alice cannot acknowledge on bob's behalf.
	require.NoError(t, wsjson.Write(ctx, aliceConn, map[string]any{
		"type": "markSeen",
		"data": map[string]string{"from_user_id": aliceID, "to_user_id": bobID},
	}))

	ev := readEvent(t, ctx, aliceConn, "error")
	require.NotNil(t, ev.Error)
	assert.Equal(t, core.ErrCodeUnauthorized, ev.Error.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	aliceToken, _ := env.register(t, "alice")
	_, bobID := env.register(t, "bob")

	for i := 0; i < 3; i++ {
		resp := env.sendText(t, aliceToken, bobID, fmt.Sprintf("msg %d", i))
		resp.Body.Close()
		require.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	}

	body, _ := json.Marshal(map[string]string{"to_user_id": bobID})
	req, err := stdhttp.NewRequest(stdhttp.MethodPost, env.ts.URL+"/api/messages/get", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+aliceToken)

	resp, err := stdhttp.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)

	var hr HistoryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&hr))
	require.Len(t, hr.Messages, 3)
	assert.Equal(t, "msg 0", hr.Messages[0].Text)
	assert.True(t, hr.Messages[0].CreatedAt.Before(hr.Messages[2].CreatedAt) ||
		hr.Messages[0].ID < hr.Messages[2].ID)
}

func TestSendValidationOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	aliceToken, aliceID := env.register(t, "alice")
	_, bobID := env.register(t, "bob")

	resp := env.sendText(t, aliceToken, aliceID, "talking to myself")
	resp.Body.Close()
	assert.Equal(t, stdhttp.StatusBadRequest, resp.StatusCode)

	resp = env.sendText(t, aliceToken, "no-such-user", "hello?")
	resp.Body.Close()
	assert.Equal(t, stdhttp.StatusNotFound, resp.StatusCode)

	resp = env.sendText(t, aliceToken, bobID, "")
	resp.Body.Close()
	assert.Equal(t, stdhttp.StatusBadRequest, resp.StatusCode)
}

func TestOnlineEndpoint(t *testing.T) {
	env := newTestEnv(t)
	aliceToken, aliceID := env.register(t, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn := env.dial(t, ctx, aliceToken)
	readEvent(t, ctx, conn, "onlineUsers")

	req, err := stdhttp.NewRequest(stdhttp.MethodGet, env.ts.URL+"/api/users/online", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+aliceToken)

	resp, err := stdhttp.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)

	var or OnlineResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&or))
	assert.Contains(t, or.Users, aliceID)
}
