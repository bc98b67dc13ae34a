package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/toccatech/coffre"
)

// SessionCookie is the cookie carrying the session token when no
// Authorization header is present.
const SessionCookie = "session"

// IdentityResolver resolves a session token to a caller identity.
// Satisfied by auth.Resolver.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*coffre.Identity, error)
}

// ExtractToken pulls the session token from the Authorization header
// (Bearer scheme), falling back to the session cookie. An empty return
// means the request carried no credential.
func ExtractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
		return ""
	}

	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// ResolveIdentity runs the credential resolver once per request and stores
// the outcome in the request context. Anonymous is a valid outcome; only a
// strict-mode upstream failure aborts the request here.
func ResolveIdentity(resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := resolver.Resolve(r.Context(), ExtractToken(r))
			if err != nil {
				HandleError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireAuth rejects anonymous callers. Any stale session cookie is
// cleared alongside the 401, so the client does not keep replaying a dead
// credential.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFromContext(r.Context()) == nil {
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    "",
				Path:     "/",
				MaxAge:   -1,
				HttpOnly: true,
			})
			WriteError(w, http.StatusUnauthorized, "unauthenticated", "This route requires authentication")
			return
		}

		next.ServeHTTP(w, r)
	})
}
