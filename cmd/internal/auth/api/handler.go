package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"duet/cmd/identity"
	"duet/cmd/internal/auth/session"
	"duet/cmd/internal/chat"
	"duet/cmd/internal/keylock"
	"duet/cmd/internal/vote"
)

// Handler serves the account, session and conversation endpoints.
// Every authenticated response carries the caller's current token pair in
// cookies; an unauthorized response clears them.
type Handler struct {
	log *slog.Logger
	cfg Config
	now func() time.Time

	users    identity.Directory
	creds    *identity.Credentials
	sessions *session.Service
	sessCfg  session.Config
	chats    *chat.Service
	votes    *vote.Service

	throttle *ipThrottle
}

// Deps are the services the handler routes to. All are required.
type Deps struct {
	Users       identity.Directory
	Credentials *identity.Credentials
	Sessions    *session.Service
	Chats       *chat.Service
	Votes       *vote.Service
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, cfg Config, deps Deps) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if deps.Users == nil || deps.Credentials == nil || deps.Sessions == nil || deps.Chats == nil || deps.Votes == nil {
		return nil, errors.New("authapi: missing dependency")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	return &Handler{
		log:      log,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		users:    deps.Users,
		creds:    deps.Credentials,
		sessions: deps.Sessions,
		sessCfg:  deps.Sessions.Config(),
		chats:    deps.Chats,
		votes:    deps.Votes,
		throttle: newIPThrottle(cfg.LoginRate, cfg.LoginWindow, cfg.LoginBurst),
	}, nil
}

// Register wires routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /create-account", h.handleCreateAccount)
	mux.HandleFunc("POST /login", h.handleLogin)
	mux.HandleFunc("POST /logout", h.handleLogout)
	mux.HandleFunc("POST /update-like", h.handleUpdateLike)
	mux.HandleFunc("POST /send-message", h.handleSendMessage)
	mux.HandleFunc("POST /get-messages", h.handleGetMessages)
	mux.HandleFunc("GET /get-chats/{username}", h.handleGetChats)
	mux.HandleFunc("POST /new-chat", h.handleNewChat)
}

// ---- accounts ----

func (h *Handler) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	if !h.allowAttempt(w, r, "create-account") {
		return
	}

	var req credentialsRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	username, err := identity.CleanUsername(req.Username)
	if err != nil || req.Password == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "username and password are required")
		return
	}

	hash, err := h.creds.Hash(req.Password)
	if err != nil {
		var op identity.OpError
		if errors.As(err, &op) && identity.IsInvalidInput(err) {
			writeError(w, http.StatusBadRequest, "bad_request", op.Msg)
			return
		}
		h.log.Error("auth.signup.hash.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	ctx := r.Context()
	now := h.now()
	if _, err := h.users.Create(ctx, username, hash, now); err != nil {
		if identity.IsConflict(err) {
			writeError(w, http.StatusConflict, "conflict", "username already exists")
			return
		}
		h.log.Error("auth.signup.create.fail", "username", username, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	pair, err := h.sessions.Issue(ctx, now, username)
	if err != nil {
		h.log.Error("auth.signup.issue.fail", "username", username, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	h.auditSignup(ctx, username, clientIP(r, h.cfg.TrustProxy), r.UserAgent())
	h.writeSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, accountResponse{Username: username})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.allowAttempt(w, r, "login") {
		return
	}

	var req credentialsRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	username, err := identity.CleanUsername(req.Username)
	if err != nil || req.Password == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "username and password are required")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := r.UserAgent()

	u, err := h.users.Find(ctx, username)
	switch {
	case identity.IsNotFound(err):
		h.creds.VerifyAbsent(req.Password)
		h.auditLoginFailed(ctx, username, ip, ua, "not_found")
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	case err != nil:
		h.log.Error("auth.login.lookup.fail", "username", username, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	if !h.creds.Verify(u.PasswordHash, req.Password) {
		h.auditLoginFailed(ctx, username, ip, ua, "bad_password")
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}

	pair, err := h.sessions.Issue(ctx, h.now(), username)
	if err != nil {
		h.log.Error("auth.login.issue.fail", "username", username, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	h.auditLoginSuccess(ctx, username, ip, ua)
	h.writeSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, accountResponse{Username: username})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "username is required")
		return
	}

	ctx := r.Context()
	removed, err := h.sessions.Logout(ctx, pairFromCookies(r), username)
	if err != nil {
		h.log.Warn("auth.logout.fail", "username", username, "err", err)
	}
	h.auditLogout(ctx, username, removed, clientIP(r, h.cfg.TrustProxy), r.UserAgent())

	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, struct{}{})
}

// ---- conversations ----

func (h *Handler) handleUpdateLike(w http.ResponseWriter, r *http.Request) {
	var req updateLikeRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	req.MessageID = strings.TrimSpace(req.MessageID)
	if strings.TrimSpace(req.Username) == "" || req.MessageID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "username and message_id are required")
		return
	}
	username, ok := h.authenticate(w, r, req.Username)
	if !ok {
		return
	}

	res, err := h.votes.Toggle(r.Context(), req.MessageID, username)
	if err != nil {
		h.writeDomainError(w, "vote.toggle", err)
		return
	}
	writeJSON(w, http.StatusOK, voteResponse{MessageID: res.MessageID, Member: res.Member, Count: res.Count})
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	recipient, err := identity.CleanUsername(req.Recipient)
	if err != nil || strings.TrimSpace(req.Sender) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "sender, recipient and message are required")
		return
	}
	sender, ok := h.authenticate(w, r, req.Sender)
	if !ok {
		return
	}

	m, err := h.chats.Send(r.Context(), h.now(), sender, recipient, req.Message)
	if err != nil {
		h.writeDomainError(w, "chat.send", err)
		return
	}
	writeJSON(w, http.StatusOK, valueResponse[messageResponse]{Value: toMessageResponse(m)})
}

func (h *Handler) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	var req getMessagesRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	recipient, err := identity.CleanUsername(req.Recipient)
	if err != nil || strings.TrimSpace(req.Sender) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "sender and recipient are required")
		return
	}
	sender, ok := h.authenticate(w, r, req.Sender)
	if !ok {
		return
	}

	msgs, err := h.chats.History(r.Context(), sender, recipient)
	if err != nil {
		h.writeDomainError(w, "chat.history", err)
		return
	}
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	writeJSON(w, http.StatusOK, valueResponse[[]messageResponse]{Value: out})
}

func (h *Handler) handleGetChats(w http.ResponseWriter, r *http.Request) {
	username, ok := h.authenticate(w, r, r.PathValue("username"))
	if !ok {
		return
	}

	peers, err := h.chats.Chats(r.Context(), username)
	if err != nil {
		h.writeDomainError(w, "chat.list", err)
		return
	}
	if peers == nil {
		peers = []string{}
	}
	writeJSON(w, http.StatusOK, valueResponse[[]string]{Value: peers})
}

func (h *Handler) handleNewChat(w http.ResponseWriter, r *http.Request) {
	var req newChatRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	peer, err := identity.CleanUsername(req.NewUser)
	if err != nil || strings.TrimSpace(req.CurrentUser) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "current_user and new_user are required")
		return
	}
	username, ok := h.authenticate(w, r, req.CurrentUser)
	if !ok {
		return
	}

	if err := h.chats.Open(r.Context(), username, peer); err != nil {
		h.writeDomainError(w, "chat.open", err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

// ---- helpers ----

// authenticate checks the cookie pair for username and writes the resulting
// pair back. On failure it has already written a 401.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request, username string) (string, bool) {
	username = strings.TrimSpace(username)
	res := h.sessions.Authenticate(r.Context(), h.now(), pairFromCookies(r), username)
	h.writeSessionCookies(w, res.Tokens())
	if !res.Authorized() {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return "", false
	}
	return username, true
}

// AuthorizeRequest lets the websocket gateway reuse cookie authentication.
// Rotated cookies are set on w and travel with the upgrade response.
func (h *Handler) AuthorizeRequest(w http.ResponseWriter, r *http.Request, username string) bool {
	_, ok := h.authenticate(w, r, username)
	return ok
}

func (h *Handler) allowAttempt(w http.ResponseWriter, r *http.Request, route string) bool {
	ip := clientIP(r, h.cfg.TrustProxy)
	ok, wait := h.throttle.allow(ip, h.now())
	if ok {
		return true
	}
	h.auditRateLimited(r.Context(), route, ip, r.UserAgent())
	writeRateLimited(w, wait)
	return false
}

func (h *Handler) writeDomainError(w http.ResponseWriter, op string, err error) {
	var timeout *keylock.TimeoutError
	switch {
	case errors.As(err, &timeout):
		writeBusy(w, timeout.Waited)
	case errors.Is(err, vote.ErrNotFound),
		errors.Is(err, chat.ErrNotFound):
		writeError(w, http.StatusBadRequest, "bad_request", "unknown message")
	case errors.Is(err, chat.ErrUnknownUser):
		writeError(w, http.StatusBadRequest, "bad_request", "unknown user")
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrMessageTooLong):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case identity.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "user not found")
	default:
		h.log.Error(op+".fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func toMessageResponse(m chat.Message) messageResponse {
	up := m.Upvoters
	if up == nil {
		up = []string{}
	}
	return messageResponse{
		ID:        m.ID,
		Sender:    m.Sender,
		Message:   m.Text,
		Timestamp: m.SentAt,
		Upvotes:   up,
	}
}
