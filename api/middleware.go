package api

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/campus/rewards-engine/loyalty"
)

type ctxKey int

const userKey ctxKey = iota

// Authenticate resolves the bearer token to a user. The user is re-read on
// every request, so role changes apply immediately and the token's role
// claim is informational.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := h.Tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			fail(w, r, err)
			return
		}
		u, err := h.Store.GetUser(r.Context(), claims.UserID)
		if err != nil {
			fail(w, r, err)
			return
		}
		if u == nil {
			writeError(w, http.StatusUnauthorized, "unknown user")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, *u)))
	})
}

func currentUser(r *http.Request) loyalty.User {
	u, _ := r.Context().Value(userKey).(loyalty.User)
	return u
}

func actorOf(r *http.Request) loyalty.Actor {
	u := currentUser(r)
	return loyalty.Actor{UserID: u.ID, Role: u.Role}
}

// clientIP is the remote host after middleware.RealIP has applied any
// forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
