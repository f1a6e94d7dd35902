package auth

import (
	"bookmark-manager/pkg/types"
	"context"
	"log"
	"net/http"
	"strings"
)

// HeaderSessionToken carries a re-issued token on responses
const HeaderSessionToken = "X-Session-Token"

type contextKey int

const (
	userKey contextKey = iota
	claimsKey
)

// WithUser returns a context carrying the session identity
func WithUser(ctx context.Context, user types.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFrom returns the session identity stored by Middleware
func UserFrom(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(userKey).(types.User)
	return user, ok
}

// ClaimsFrom returns the validated token claims stored by Middleware
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// TokenFromRequest reads a bearer token from the Authorization header, or the
// access_token query parameter for websocket upgrades.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

// Middleware rejects requests without a valid session token. Tokens close to
// expiry are re-issued in the X-Session-Token response header.
func Middleware(issuer *Issuer, logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := issuer.Parse(TokenFromRequest(r))
			if err != nil {
				logger.Printf("Rejected %s %s: %v", r.Method, r.URL.Path, err)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if issuer.NeedsRefresh(claims) {
				if token, err := issuer.Issue(claims.User()); err != nil {
					logger.Printf("Error refreshing session for %s: %v", claims.Subject, err)
				} else {
					w.Header().Set(HeaderSessionToken, token)
				}
			}

			ctx := WithUser(r.Context(), claims.User())
			ctx = context.WithValue(ctx, claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
