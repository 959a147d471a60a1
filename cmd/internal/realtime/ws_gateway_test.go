package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duet/cmd/internal/chat"
)

type stubAuthorizer struct {
	allow map[string]bool
}

func (a stubAuthorizer) AuthorizeRequest(w http.ResponseWriter, _ *http.Request, username string) bool {
	if !a.allow[username] {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	http.SetCookie(w, &http.Cookie{Name: "access_token", Value: "rotated-" + username})
	return true
}

func startGateway(t *testing.T, auth Authorizer) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(nil, nil)
	cfg := DefaultGatewayConfig()
	cfg.RateEvents = 5
	cfg.RateWindow = time.Minute
	gw := NewWSGateway(nil, hub, auth, cfg, nil)

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dialWS(t *testing.T, base, origin, username, peer string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u, err := url.Parse(base)
	require.NoError(t, err)
	u.Scheme = "ws"
	u.Path = "/ws"
	q := url.Values{}
	if username != "" {
		q.Set("username", username)
	}
	if peer != "" {
		q.Set("peer", peer)
	}
	u.RawQuery = q.Encode()

	h := http.Header{}
	if origin != "" {
		h.Set("Origin", origin)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocolV1},
		HTTPHeader:   h,
	})
}

func readEnv(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, b, err := conn.Read(ctx)
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(b, &env))
	return env
}

func writeRaw(t *testing.T, conn *websocket.Conn, b []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, b))
}

func TestWSGateway_RejectsBeforeUpgrade(t *testing.T) {
	_, srv := startGateway(t, stubAuthorizer{allow: map[string]bool{"alice": true}})

	tests := []struct {
		name     string
		origin   string
		username string
		peer     string
		status   int
	}{
		{"missing origin", "", "alice", "bob", http.StatusForbidden},
		{"foreign origin", "https://evil.example", "alice", "bob", http.StatusForbidden},
		{"missing username", "http://localhost:3000", "", "bob", http.StatusBadRequest},
		{"missing peer", "http://localhost:3000", "alice", "", http.StatusBadRequest},
		{"unauthorized", "http://localhost:3000", "mallory", "bob", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conn, resp, err := dialWS(t, srv.URL, tc.origin, tc.username, tc.peer)
			if conn != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "")
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestWSGateway_NilAuthorizerRejects(t *testing.T) {
	_, srv := startGateway(t, nil)
	_, resp, err := dialWS(t, srv.URL, "http://localhost:3000", "alice", "bob")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWSGateway_SubscribesAndDeliversNotifications(t *testing.T) {
	hub, srv := startGateway(t, stubAuthorizer{allow: map[string]bool{"alice": true, "bob": true}})

	conn, resp, err := dialWS(t, srv.URL, "http://localhost:3000", "bob", "alice")
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var rotated bool
	for _, c := range resp.Cookies() {
		if c.Name == "access_token" && c.Value == "rotated-bob" {
			rotated = true
		}
	}
	assert.True(t, rotated, "authorizer cookies ride on the handshake response")

	sub := readEnv(t, conn)
	require.Equal(t, TypeSubscribed, sub.Type)
	assert.Equal(t, "alice bob", sub.Channel)
	assert.Equal(t, 1, hub.Subscribers(chat.ChannelKey("alice", "bob")))

	require.NoError(t, hub.Notify(context.Background(), chat.ChannelKey("alice", "bob"), chat.EventMessageNew,
		chat.MessageEvent{MessageID: "m1", Sender: "alice", SentAt: hubTestTime}))

	got := readEnv(t, conn)
	require.Equal(t, TypeMessageNew, got.Type)
	var ev chat.MessageEvent
	require.NoError(t, json.Unmarshal(got.Payload, &ev))
	assert.Equal(t, "m1", ev.MessageID)
	assert.Equal(t, "alice", ev.Sender)
}

func TestWSGateway_PingUnsupportedAndBadJSON(t *testing.T) {
	_, srv := startGateway(t, stubAuthorizer{allow: map[string]bool{"alice": true}})

	conn, _, err := dialWS(t, srv.URL, "http://localhost:3000", "alice", "bob")
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")
	require.Equal(t, TypeSubscribed, readEnv(t, conn).Type)

	writeRaw(t, conn, []byte(`{"v":"v1","type":"ping","payload":{"n":7}}`))
	pong := readEnv(t, conn)
	require.Equal(t, TypePong, pong.Type)
	assert.JSONEq(t, `{"n":7}`, string(pong.Payload))

	writeRaw(t, conn, []byte(`{"v":"v1","type":"message.send"}`))
	e := readEnv(t, conn)
	require.Equal(t, TypeError, e.Type)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(e.Payload, &p))
	assert.Equal(t, "unsupported", p.Code)

	writeRaw(t, conn, []byte(`{not json`))
	e = readEnv(t, conn)
	require.Equal(t, TypeError, e.Type)
	require.NoError(t, json.Unmarshal(e.Payload, &p))
	assert.Equal(t, "bad_json", p.Code)
}

func TestWSGateway_RateLimitClosesConnection(t *testing.T) {
	_, srv := startGateway(t, stubAuthorizer{allow: map[string]bool{"alice": true}})

	conn, _, err := dialWS(t, srv.URL, "http://localhost:3000", "alice", "bob")
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")
	require.Equal(t, TypeSubscribed, readEnv(t, conn).Type)

	for i := 0; i < 6; i++ {
		writeRaw(t, conn, []byte(`{"v":"v1","type":"ping"}`))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var closeErr error
	for closeErr == nil {
		_, _, closeErr = conn.Read(ctx)
	}
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(closeErr))
}

func TestWSGateway_DisconnectUnsubscribes(t *testing.T) {
	hub, srv := startGateway(t, stubAuthorizer{allow: map[string]bool{"alice": true}})

	conn, _, err := dialWS(t, srv.URL, "http://localhost:3000", "alice", "bob")
	require.NoError(t, err)
	require.Equal(t, TypeSubscribed, readEnv(t, conn).Type)
	require.Equal(t, 1, hub.Subscribers("alice bob"))

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "done"))

	require.Eventually(t, func() bool { return hub.Subscribers("alice bob") == 0 },
		3*time.Second, 10*time.Millisecond)
}
