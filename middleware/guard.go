package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/viridial/authcore"
)

type identityContextKey struct{}

// IdentityFromContext returns the identity Guard stored for the request.
func IdentityFromContext(ctx context.Context) (*authcore.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*authcore.Identity)
	return id, ok && id != nil
}

// WithIdentity stores id in ctx the way Guard does.
func WithIdentity(ctx context.Context, id *authcore.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// Guard rejects requests without a valid bearer access token. Expired and
// malformed tokens both produce 401; a missing signing secret produces 500.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, r, authcore.ErrEngineNotReady)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, r, authcore.ErrInvalidToken)
				return
			}

			id, err := engine.ValidateAccess(token)
			if err != nil {
				WriteError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole admits identities carrying at least one of roles. It must run
// behind Guard.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, r, authcore.ErrInvalidToken)
				return
			}
			if !id.HasRole(roles...) {
				WriteError(w, r, authcore.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
