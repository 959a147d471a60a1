package authapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadJSON(t *testing.T) {
	h := &Handler{cfg: Config{MaxBodyBytes: 64}}

	cases := []struct {
		name   string
		body   string
		ok     bool
		status int
	}{
		{name: "valid", body: `{"username":"alice"}`, ok: true},
		{name: "empty", body: ``, status: http.StatusBadRequest},
		{name: "unknown field", body: `{"username":"alice","admin":true}`, status: http.StatusBadRequest},
		{name: "trailing data", body: `{"username":"alice"} {"username":"bob"}`, status: http.StatusBadRequest},
		{name: "too large", body: `{"username":"` + strings.Repeat("a", 128) + `"}`, status: http.StatusRequestEntityTooLarge},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/logout", strings.NewReader(tc.body))

			var dst logoutRequest
			ok := h.readJSON(rr, req, &dst)
			if ok != tc.ok {
				t.Fatalf("ok=%v want %v (status=%d body=%s)", ok, tc.ok, rr.Code, rr.Body.String())
			}
			if ok {
				if dst.Username != "alice" {
					t.Fatalf("decoded %+v", dst)
				}
				return
			}
			if rr.Code != tc.status {
				t.Fatalf("status=%d want %d", rr.Code, tc.status)
			}
		})
	}
}
