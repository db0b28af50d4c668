package middleware

import (
	"context"
	"net/http"

	"example.com/socialfeed/internal/logger"
	"example.com/socialfeed/internal/session"
)

var logg = logger.New()

type contextKey string

const (
	UserCtxKey  = contextKey("username")
	TokenCtxKey = contextKey("session_token")
)

// SessionAuth resolves the session cookie to a username. Requests without a
// valid session pass through anonymously; handlers decide what needs auth.
func SessionAuth(sessions session.Store, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), TokenCtxKey, cookie.Value)

			username, ok, err := sessions.Get(r.Context(), cookie.Value)
			if err != nil {
				// a failing session lookup degrades to anonymous
				logg.Error("middleware", "Session lookup failed", err)
			} else if ok {
				ctx = context.WithValue(ctx, UserCtxKey, username)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UsernameFromContext returns the session owner, or "" when anonymous.
func UsernameFromContext(ctx context.Context) string {
	name, _ := ctx.Value(UserCtxKey).(string)
	return name
}

// TokenFromContext returns the raw session cookie value, if any.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenCtxKey).(string)
	return token, ok && token != ""
}
