package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"sqlguard/internal/domain"
)

// Auth returns a middleware that authenticates each request with a
// Bearer token and stores the resulting CallerContext on the request
// context. Requests without a valid token get a 401.
func Auth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				writeUnauthorized(w, "provide a valid Bearer token")
				return
			}

			claims, err := validator.Validate(strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				logger.Debug("token rejected", "error", err, "request_id", RequestIDFromContext(r.Context()))
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			caller, err := CallerFromClaims(claims)
			if err != nil {
				logger.Debug("claims rejected", "error", err, "subject", claims.Subject)
				writeUnauthorized(w, "token claims are incomplete")
				return
			}

			ctx := domain.WithCaller(r.Context(), caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    http.StatusUnauthorized,
		"message": "unauthorized: " + message,
	})
}
