package apiauth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

type contextKey string

const claimsKey contextKey = "claims"

// ClaimsFromContext returns the claims stored by RequireBearer.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// RequireBearer is middleware that rejects requests without a valid Bearer ID token and
// stores the verified claims in the request context.
func RequireBearer(verifier TokenVerifier, logger zerolog.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, "Missing Authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				writeUnauthorized(w, "Invalid Authorization header format")
				return
			}
			token := strings.TrimSpace(parts[1])
			if token == "" {
				writeUnauthorized(w, "Empty token")
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.Debug().Err(err).Str("path", r.URL.Path).Msg("bearer token rejected")
				writeUnauthorized(w, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next(w, r.WithContext(ctx))
		}
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             "unauthorized",
		"error_description": description,
	})
}
