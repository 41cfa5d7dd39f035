package http

import (
	"context"
	"net/http"
	"strings"
	"unicode"

	"spendyze/internal/core"
	"spendyze/internal/log"
)

// Identity headers set by the authenticating gateway.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserName  = "X-User-Name"
	HeaderUserEmail = "X-User-Email"
)

type userKey struct{}

// requireUser rejects requests without an X-User-ID header.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := sanitizeInput(r.Header.Get(HeaderUserID))
		if id == "" {
			writeMessage(w, http.StatusUnauthorized, "Not authorized, no user")
			return
		}
		u := core.User{
			ID:    id,
			Name:  sanitizeInput(r.Header.Get(HeaderUserName)),
			Email: sanitizeInput(r.Header.Get(HeaderUserEmail)),
		}
		ctx := context.WithValue(r.Context(), userKey{}, u)
		ctx = log.NewContext(ctx, log.FromContext(ctx).WithUser(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFrom(ctx context.Context) core.User {
	u, _ := ctx.Value(userKey{}).(core.User)
	return u
}

// sanitizeInput removes control characters, CR and LF included, and trims
// whitespace. Identity values end up in mail headers.
func sanitizeInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
