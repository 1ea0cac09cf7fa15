package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// GuestTokenHeader carries the token a guest received when taking a seat.
const GuestTokenHeader = "Guest-Token"

type contextKey string

const identityContextKey contextKey = "identity"

// Identity is what a request proved about its caller. Every field may be empty.
type Identity struct {
	UserID     string
	Role       string
	GuestToken string
}

// IsAdmin reports whether the caller holds the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext returns the identity stored by Middleware, or the zero Identity.
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityContextKey).(Identity)
	return id
}

// errorResponse uses the connect error shape so RPC clients see CodeUnauthenticated.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Middleware resolves the caller from the Authorization bearer token and the
// Guest-Token header. Requests without credentials pass through anonymously;
// requests with an invalid bearer token are rejected.
func Middleware(verifier *TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := Identity{GuestToken: strings.TrimSpace(r.Header.Get(GuestTokenHeader))}

			if header := r.Header.Get("Authorization"); header != "" {
				tokenString, ok := strings.CutPrefix(header, "Bearer ")
				if !ok {
					writeUnauthorized(w, "Invalid authorization header format. Use: Bearer <token>")
					return
				}
				claims, err := verifier.Verify(strings.TrimSpace(tokenString))
				if err != nil {
					log.Debug().Err(err).Msg("rejected bearer token")
					writeUnauthorized(w, "Invalid or expired token")
					return
				}
				id.UserID = claims.Subject
				id.Role = claims.Role
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errorResponse{Code: "unauthenticated", Message: msg})
}
