package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func runMiddleware(t *testing.T, req *http.Request) (string, *httptest.ResponseRecorder) {
	t.Helper()
	var seen string
	h := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionIDFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return seen, rec
}

func TestMiddlewarePrefersHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/session?session_id=from-query", nil)
	req.Header.Set(SessionHeaderName, "from-header")
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "from-cookie"})

	got, rec := runMiddleware(t, req)
	if got != "from-header" {
		t.Fatalf("session id = %q, want from-header", got)
	}
	if rec.Header().Get(SessionHeaderName) != "from-header" {
		t.Fatalf("expected the id to be echoed in %s", SessionHeaderName)
	}
}

func TestMiddlewareFallsBackToCookieThenQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/session?session_id=from-query", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "from-cookie"})
	if got, _ := runMiddleware(t, req); got != "from-cookie" {
		t.Fatalf("session id = %q, want from-cookie", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/ws/chat?session_id=from-query", nil)
	if got, _ := runMiddleware(t, req); got != "from-query" {
		t.Fatalf("session id = %q, want from-query", got)
	}
}

func TestMiddlewareMintsSessionID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set(SessionHeaderName, "bad id with spaces")

	got, rec := runMiddleware(t, req)
	if got == "" || got == "bad id with spaces" || !ValidSessionID(got) {
		t.Fatalf("expected a freshly minted id, got %q", got)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != SessionCookieName || cookies[0].Value != got {
		t.Fatalf("expected session cookie with minted id, got %+v", cookies)
	}
}
