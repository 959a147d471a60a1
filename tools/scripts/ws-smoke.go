// Package main is a CI-friendly end-to-end smoke test against a running duet server.
//
// It validates:
//   - signup for two fresh users (session cookies issued)
//   - websocket handshake with cookies, subprotocol selection and the "subscribed" frame
//   - send-message over HTTP fans out message.new to the peer's socket
//   - update-like fans out vote.update and get-messages reflects the upvote
//   - ping/pong on the socket
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const (
	protocolVersion = "v1"
	subprotocol     = "duet.realtime.v1"
	maxReadBytes    = 1 << 20
)

// envelope mirrors the server's realtime frame.
type envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Channel string          `json:"channel,omitempty"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type message struct {
	ID      string   `json:"id"`
	Sender  string   `json:"sender"`
	Message string   `json:"message"`
	Upvotes []string `json:"upvotes"`
}

// user is one HTTP identity. Cookies are tracked by hand because the session
// cookies are Secure and a stdlib jar would withhold them over plain http.
type user struct {
	name    string
	cookies map[string]string
}

type smoke struct {
	base    *url.URL
	origin  string
	timeout time.Duration
	verbose bool
	http    *http.Client
}

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		origin   = flag.String("origin", "http://localhost:3000", "Origin header for the websocket handshake")
		password = flag.String("password", "smoke-test-password", "Password for the generated users")
		text     = flag.String("text", "hello duet 👋", "Message text to send")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	base, err := url.Parse(strings.TrimRight(*baseURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		fatalf("invalid -url %q", *baseURL)
	}

	s := &smoke{
		base:    base,
		origin:  *origin,
		timeout: *timeout,
		verbose: *verbose,
		http:    &http.Client{Timeout: *timeout},
	}

	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	alice := &user{name: "smoke-a-" + suffix, cookies: map[string]string{}}
	bob := &user{name: "smoke-b-" + suffix, cookies: map[string]string{}}

	for _, u := range []*user{alice, bob} {
		s.mustPost(u, "/create-account", map[string]string{"username": u.name, "password": *password}, nil)
	}

	root := context.Background()
	conn := s.mustConnect(root, bob, alice.name)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	var sent struct {
		Value message `json:"value"`
	}
	s.mustPost(alice, "/send-message", map[string]string{
		"sender": alice.name, "recipient": bob.name, "message": *text,
	}, &sent)
	if sent.Value.ID == "" {
		fatalf("send-message returned no id")
	}

	evt := s.mustReadType(root, conn, "message.new")
	var newPayload struct {
		MessageID string `json:"message_id"`
		Sender    string `json:"sender"`
	}
	mustUnmarshal(evt.Payload, &newPayload)
	if newPayload.MessageID != sent.Value.ID || newPayload.Sender != alice.name {
		fatalf("message.new mismatch: %+v", newPayload)
	}

	var vote struct {
		Member bool `json:"member"`
		Count  int  `json:"count"`
	}
	s.mustPost(alice, "/update-like", map[string]string{"username": alice.name, "message_id": sent.Value.ID}, &vote)
	if !vote.Member || vote.Count != 1 {
		fatalf("update-like: got %+v, want member with count 1", vote)
	}
	s.mustReadType(root, conn, "vote.update")

	var history struct {
		Value []message `json:"value"`
	}
	s.mustPost(bob, "/get-messages", map[string]string{"sender": bob.name, "recipient": alice.name}, &history)
	if len(history.Value) != 1 || !slices.Contains(history.Value[0].Upvotes, alice.name) {
		fatalf("get-messages: unexpected history %+v", history.Value)
	}

	s.mustWrite(root, conn, envelope{V: protocolVersion, Type: "ping", TS: time.Now().UTC(), Payload: json.RawMessage(`{"n":1}`)})
	s.mustReadType(root, conn, "pong")

	fmt.Printf("OK: users=%s,%s message_id=%s\n", alice.name, bob.name, sent.Value.ID)
}

func (s *smoke) mustPost(u *user, path string, body any, out any) {
	raw, err := json.Marshal(body)
	if err != nil {
		fatalf("marshal %s: %v", path, err)
	}
	req, err := http.NewRequest(http.MethodPost, s.base.String()+path, bytes.NewReader(raw))
	if err != nil {
		fatalf("request %s: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	u.attach(req.Header)

	resp, err := s.http.Do(req)
	if err != nil {
		fatalf("POST %s (%s): %v", path, u.name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	u.absorb(resp)

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if resp.StatusCode != http.StatusOK {
		fatalf("POST %s (%s): status %d: %s", path, u.name, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if s.verbose {
		fmt.Printf("POST %s (%s) -> %s\n", path, u.name, strings.TrimSpace(string(data)))
	}
	if out != nil {
		mustUnmarshal(data, out)
	}
}

func (s *smoke) mustConnect(parent context.Context, u *user, peer string) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	wsURL := *s.base
	if wsURL.Scheme == "https" {
		wsURL.Scheme = "wss"
	} else {
		wsURL.Scheme = "ws"
	}
	wsURL.Path = "/ws"
	wsURL.RawQuery = url.Values{"username": {u.name}, "peer": {peer}}.Encode()

	h := http.Header{}
	if strings.TrimSpace(s.origin) != "" {
		h.Set("Origin", s.origin)
	}
	u.attach(h)

	conn, resp, err := websocket.Dial(ctx, wsURL.String(), &websocket.DialOptions{
		Subprotocols: []string{subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil {
		u.absorb(resp)
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
	}
	if err != nil {
		fatalf("connect %s: %v", u.name, err)
	}
	if got := conn.Subprotocol(); got != subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)

	s.mustReadType(parent, conn, "subscribed")
	return conn
}

func (s *smoke) mustWrite(parent context.Context, conn *websocket.Conn, env envelope) {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	data, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal %s: %v", env.Type, err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		fatalf("write %s: %v", env.Type, err)
	}
}

// mustReadType reads frames until one of type want arrives; an error frame aborts.
func (s *smoke) mustReadType(parent context.Context, conn *websocket.Conn, want string) envelope {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				fatalf("timed out waiting for %s", want)
			}
			fatalf("read while waiting for %s: %v", want, err)
		}

		var env envelope
		mustUnmarshal(data, &env)
		if env.V != protocolVersion {
			fatalf("unexpected protocol version %q", env.V)
		}
		if s.verbose {
			fmt.Printf("ws <- %s %s\n", env.Type, string(env.Payload))
		}
		switch env.Type {
		case want:
			return env
		case "error":
			fatalf("server error while waiting for %s: %s", want, string(env.Payload))
		}
	}
}

func (u *user) attach(h http.Header) {
	for name, value := range u.cookies {
		h.Add("Cookie", (&http.Cookie{Name: name, Value: value}).String())
	}
}

func (u *user) absorb(resp *http.Response) {
	for _, c := range resp.Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(u.cookies, c.Name)
			continue
		}
		u.cookies[c.Name] = c.Value
	}
}

func mustUnmarshal(data []byte, dst any) {
	if err := json.Unmarshal(data, dst); err != nil {
		fatalf("unmarshal %T: %v", dst, err)
	}
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
