package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"duet/cmd/identity"
	"duet/cmd/internal/auth/session"
	"duet/cmd/internal/chat"
	"duet/cmd/internal/keylock"
	"duet/cmd/internal/vote"
	"duet/cmd/security/password"
)

const testPassword = "correct-horse-battery"

type recordedEvent struct {
	channel string
	kind    string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) Notify(_ context.Context, channel, kind string, _ any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{channel: channel, kind: kind})
	return nil
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.kind)
	}
	return out
}

type testEnv struct {
	h        *Handler
	mux      *http.ServeMux
	now      time.Time
	messages *chat.MemoryStore
	voteLock *keylock.Registry
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	pwCfg := password.DefaultConfig()
	pwCfg.Params.MemoryKiB = 8 * 1024
	pwCfg.Params.Iterations = 1

	dir := identity.NewMemoryDirectory()
	sessions, err := session.NewService(session.DefaultConfig(), session.NewMemoryLedger(), dir)
	if err != nil {
		t.Fatalf("session.NewService: %v", err)
	}

	env := &testEnv{
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		messages: chat.NewMemoryStore(),
		voteLock: keylock.New(keylock.Options{Name: "vote", Timeout: 30 * time.Millisecond}),
		notifier: &recordingNotifier{},
	}

	cfg := DefaultConfig()
	cfg.CookieSecure = false
	cfg.CookieSameSite = http.SameSiteLaxMode
	cfg.LoginRate = 1000
	cfg.LoginBurst = 1000

	h, err := NewHandler(nil, cfg, Deps{
		Users:       dir,
		Credentials: identity.NewCredentials(pwCfg),
		Sessions:    sessions,
		Chats:       chat.NewService(env.messages, dir, env.notifier, nil),
		Votes:       vote.NewService(env.messages, env.voteLock, vote.WithNotifier(env.notifier)),
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	h.now = func() time.Time { return env.now }
	env.h = h

	env.mux = http.NewServeMux()
	h.Register(env.mux)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.10:5555"
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) signup(t *testing.T, username string) []*http.Cookie {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/create-account", map[string]string{"username": username, "password": testPassword}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("create-account %s: status=%d body=%s", username, rr.Code, rr.Body.String())
	}
	return sessionCookies(t, rr)
}

func sessionCookies(t *testing.T, rr *httptest.ResponseRecorder) []*http.Cookie {
	t.Helper()
	var out []*http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == AccessCookieName || c.Name == RefreshCookieName {
			out = append(out, c)
		}
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 session cookies, got %d", len(out))
	}
	return out
}

func cookieValue(cookies []*http.Cookie, name string) string {
	for _, c := range cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func assertCleared(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	for _, c := range sessionCookies(t, rr) {
		if c.Value != "" || c.MaxAge >= 0 {
			t.Fatalf("cookie %s not cleared: value=%q maxAge=%d", c.Name, c.Value, c.MaxAge)
		}
	}
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var er errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	return er.Error.Code
}

func TestCreateAccount(t *testing.T) {
	env := newTestEnv(t)

	cookies := env.signup(t, "alice")
	for _, c := range cookies {
		if !c.HttpOnly || c.Value == "" || c.MaxAge <= 0 {
			t.Fatalf("unexpected cookie %+v", c)
		}
	}

	rr := env.do(t, http.MethodPost, "/create-account", map[string]string{"username": "alice", "password": testPassword}, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate signup: status=%d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/create-account", map[string]string{"username": "bob", "password": "short"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("weak password: status=%d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/create-account", map[string]string{"username": "carol"}, nil)
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "bad_request" {
		t.Fatalf("missing password: status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestLogin_NoEnumeration(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice")

	unknown := env.do(t, http.MethodPost, "/login", map[string]string{"username": "nobody", "password": testPassword}, nil)
	wrong := env.do(t, http.MethodPost, "/login", map[string]string{"username": "alice", "password": "wrong-password-1"}, nil)

	if unknown.Code != http.StatusUnauthorized || wrong.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", unknown.Code, wrong.Code)
	}
	if unknown.Body.String() != wrong.Body.String() {
		t.Fatalf("bodies differ: %q vs %q", unknown.Body.String(), wrong.Body.String())
	}

	ok := env.do(t, http.MethodPost, "/login", map[string]string{"username": "alice", "password": testPassword}, nil)
	if ok.Code != http.StatusOK {
		t.Fatalf("login: status=%d body=%s", ok.Code, ok.Body.String())
	}
	sessionCookies(t, ok)
}

func TestAuthenticatedRoute_RejectsMissingAndForeignPair(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")
	env.signup(t, "bob")

	rr := env.do(t, http.MethodGet, "/get-chats/alice", nil, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("no cookies: status=%d", rr.Code)
	}
	assertCleared(t, rr)

	// Alice's pair does not authorize bob.
	rr = env.do(t, http.MethodGet, "/get-chats/bob", nil, alice)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("foreign pair: status=%d", rr.Code)
	}
	assertCleared(t, rr)

	rr = env.do(t, http.MethodGet, "/get-chats/alice", nil, alice)
	if rr.Code != http.StatusOK {
		t.Fatalf("own pair: status=%d", rr.Code)
	}
	if got := sessionCookies(t, rr); cookieValue(got, AccessCookieName) != cookieValue(alice, AccessCookieName) {
		t.Fatalf("valid pair should be echoed unchanged")
	}
}

func TestAuthenticatedRoute_RotatesInRefreshWindow(t *testing.T) {
	env := newTestEnv(t)
	old := env.signup(t, "alice")

	env.now = env.now.Add(30 * time.Minute)
	rr := env.do(t, http.MethodGet, "/get-chats/alice", nil, old)
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh window: status=%d body=%s", rr.Code, rr.Body.String())
	}
	fresh := sessionCookies(t, rr)
	if cookieValue(fresh, AccessCookieName) == cookieValue(old, AccessCookieName) ||
		cookieValue(fresh, RefreshCookieName) == cookieValue(old, RefreshCookieName) {
		t.Fatalf("expected a rotated pair")
	}

	rr = env.do(t, http.MethodGet, "/get-chats/alice", nil, old)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("replayed old pair: status=%d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/get-chats/alice", nil, fresh)
	if rr.Code != http.StatusOK {
		t.Fatalf("rotated pair: status=%d", rr.Code)
	}

	env.now = env.now.Add(3 * time.Hour)
	rr = env.do(t, http.MethodGet, "/get-chats/alice", nil, fresh)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expired pair: status=%d", rr.Code)
	}
	assertCleared(t, rr)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")

	rr := env.do(t, http.MethodPost, "/logout", map[string]string{"username": "alice"}, alice)
	if rr.Code != http.StatusOK {
		t.Fatalf("logout: status=%d", rr.Code)
	}
	assertCleared(t, rr)

	rr = env.do(t, http.MethodGet, "/get-chats/alice", nil, alice)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("pair after logout: status=%d", rr.Code)
	}

	// Logging out again is still 200.
	rr = env.do(t, http.MethodPost, "/logout", map[string]string{"username": "alice"}, alice)
	if rr.Code != http.StatusOK {
		t.Fatalf("second logout: status=%d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/logout", map[string]string{}, alice)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("logout without username: status=%d", rr.Code)
	}
}

func TestConversationFlow(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")
	bob := env.signup(t, "bob")

	rr := env.do(t, http.MethodPost, "/send-message",
		map[string]string{"sender": "alice", "recipient": "bob", "message": "hi bob"}, alice)
	if rr.Code != http.StatusOK {
		t.Fatalf("send-message: status=%d body=%s", rr.Code, rr.Body.String())
	}
	var sent valueResponse[messageResponse]
	if err := json.Unmarshal(rr.Body.Bytes(), &sent); err != nil {
		t.Fatalf("decode send: %v", err)
	}
	if sent.Value.ID == "" || sent.Value.Sender != "alice" {
		t.Fatalf("unexpected message %+v", sent.Value)
	}

	rr = env.do(t, http.MethodGet, "/get-chats/bob", nil, bob)
	var chats valueResponse[[]string]
	if err := json.Unmarshal(rr.Body.Bytes(), &chats); err != nil {
		t.Fatalf("decode chats: %v", err)
	}
	if len(chats.Value) != 1 || chats.Value[0] != "alice" {
		t.Fatalf("bob's chats = %v", chats.Value)
	}

	rr = env.do(t, http.MethodPost, "/update-like",
		map[string]string{"username": "bob", "message_id": sent.Value.ID, "username2": "alice"}, bob)
	if rr.Code != http.StatusOK {
		t.Fatalf("update-like: status=%d body=%s", rr.Code, rr.Body.String())
	}
	var v voteResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode vote: %v", err)
	}
	if !v.Member || v.Count != 1 {
		t.Fatalf("unexpected vote result %+v", v)
	}

	rr = env.do(t, http.MethodPost, "/get-messages", map[string]string{"sender": "bob", "recipient": "alice"}, bob)
	if rr.Code != http.StatusOK {
		t.Fatalf("get-messages: status=%d", rr.Code)
	}
	var hist valueResponse[[]messageResponse]
	if err := json.Unmarshal(rr.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist.Value) != 1 || hist.Value[0].Message != "hi bob" || len(hist.Value[0].Upvotes) != 1 {
		t.Fatalf("unexpected history %+v", hist.Value)
	}

	got := strings.Join(env.notifier.kinds(), ",")
	if got != chat.EventMessageNew+","+chat.EventVoteUpdate {
		t.Fatalf("notifications = %s", got)
	}
}

func TestGetMessages_EmptyConversation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")
	env.signup(t, "bob")

	rr := env.do(t, http.MethodPost, "/get-messages", map[string]string{"sender": "alice", "recipient": "bob"}, alice)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != `{"value":[]}` {
		t.Fatalf("body=%s", rr.Body.String())
	}
}

func TestNewChat(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")
	env.signup(t, "bob")

	rr := env.do(t, http.MethodPost, "/new-chat", map[string]string{"current_user": "alice", "new_user": "ghost"}, alice)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown partner: status=%d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/new-chat", map[string]string{"current_user": "alice", "new_user": "bob"}, alice)
	if rr.Code != http.StatusOK {
		t.Fatalf("new-chat: status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/get-chats/alice", nil, alice)
	if !strings.Contains(rr.Body.String(), `"bob"`) {
		t.Fatalf("alice's chats = %s", rr.Body.String())
	}
}

func TestUpdateLike_Errors(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")
	env.signup(t, "bob")

	rr := env.do(t, http.MethodPost, "/update-like", map[string]string{"username": "alice"}, alice)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing message_id: status=%d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/update-like", map[string]string{"username": "alice", "message_id": "nope"}, alice)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown message: status=%d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/send-message",
		map[string]string{"sender": "alice", "recipient": "bob", "message": "hello"}, alice)
	var sent valueResponse[messageResponse]
	if err := json.Unmarshal(rr.Body.Bytes(), &sent); err != nil {
		t.Fatalf("decode send: %v", err)
	}

	release, err := env.voteLock.Acquire(context.Background(), sent.Value.ID)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	rr = env.do(t, http.MethodPost, "/update-like", map[string]string{"username": "alice", "message_id": sent.Value.ID}, alice)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("contended lock: status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After on 503")
	}
}

func TestLogin_Throttled(t *testing.T) {
	env := newTestEnv(t)
	env.h.throttle = newIPThrottle(1, time.Minute, 2)

	for i := 0; i < 2; i++ {
		rr := env.do(t, http.MethodPost, "/login", map[string]string{"username": "nobody", "password": testPassword}, nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status=%d", i, rr.Code)
		}
	}

	rr := env.do(t, http.MethodPost, "/login", map[string]string{"username": "nobody", "password": testPassword}, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After")
	}
}

func TestAuthorizeRequest(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")

	req := httptest.NewRequest(http.MethodGet, "/ws?username=alice&peer=bob", nil)
	for _, c := range alice {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	rr := httptest.NewRecorder()
	if !env.h.AuthorizeRequest(rr, req, "alice") {
		t.Fatalf("expected authorized")
	}

	req = httptest.NewRequest(http.MethodGet, "/ws?username=alice&peer=bob", nil)
	rr = httptest.NewRecorder()
	if env.h.AuthorizeRequest(rr, req, "alice") {
		t.Fatalf("expected rejection without cookies")
	}
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", rr.Code)
	}
}
