package transport

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/heartlink/billing/pkg/token"
)

type userIDKey struct{}

// AuthClaims is the payload of the signed bearer token identifying the
// caller. Token issuance lives with the identity service; this layer
// only verifies and extracts.
type AuthClaims struct {
	UserID uuid.UUID `json:"uid"`
}

// MintAuthToken signs an auth token for userID. Used by the identity
// service and by tests.
func MintAuthToken(userID uuid.UUID, secret string) (string, error) {
	return token.Generate(AuthClaims{UserID: userID}, secret)
}

// Authenticate verifies the Authorization bearer token and stores the
// caller's user ID in the request context. Requests without a valid
// token get 401 and never reach the handler.
func Authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				respondError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			claims, err := token.Parse[AuthClaims](raw, secret)
			if err != nil || claims.UserID == uuid.Nil {
				respondError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey{}, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// userFromContext returns the authenticated caller set by Authenticate.
func userFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey{}).(uuid.UUID)
	return id, ok
}
