// Package identity provides anonymous per-conversation identity primitives.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	SessionCookieName = "caspchat_session"
	SessionHeaderName = "X-Session-ID"
	sessionCookieAge  = 7 * 24 * time.Hour
)

type contextKey int

const sessionIDKey contextKey = iota

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// SessionIDFromContext extracts the conversation id from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// WithSessionID returns a copy of ctx carrying id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// NewSessionID mints a fresh conversation id.
func NewSessionID() string {
	return uuid.NewString()
}

// ValidSessionID reports whether id is acceptable as a conversation id.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// sessionIDFromRequest prefers the explicit header, then the cookie, then the
// session_id query parameter used by WebSocket clients.
func sessionIDFromRequest(r *http.Request) (string, bool) {
	if sid := strings.TrimSpace(r.Header.Get(SessionHeaderName)); ValidSessionID(sid) {
		return sid, true
	}
	if c, err := r.Cookie(SessionCookieName); err == nil && ValidSessionID(c.Value) {
		return c.Value, true
	}
	if sid := strings.TrimSpace(r.URL.Query().Get("session_id")); ValidSessionID(sid) {
		return sid, true
	}
	return "", false
}

func setSessionCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(sessionCookieAge.Seconds()),
		Expires:  time.Now().Add(sessionCookieAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// Middleware resolves the conversation id for every request, minting one
// when the client has none, and echoes it back in the header and cookie.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID, ok := sessionIDFromRequest(r)
			if !ok {
				sessionID = NewSessionID()
			}
			setSessionCookie(w, sessionID, isDev)
			w.Header().Set(SessionHeaderName, sessionID)

			next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), sessionID)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for rate limiting.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
