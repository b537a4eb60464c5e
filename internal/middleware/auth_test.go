package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlguard/internal/domain"
)

func authHandler(t *testing.T) (http.Handler, *domain.CallerContext) {
	t.Helper()
	v, err := NewHS256Validator(testSecret)
	require.NoError(t, err)

	var seen domain.CallerContext
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := domain.CallerFromContext(r.Context())
		require.True(t, ok)
		seen = caller
		w.WriteHeader(http.StatusNoContent)
	})
	return Auth(v, slog.New(slog.NewTextHandler(io.Discard, nil)))(inner), &seen
}

func TestAuth_ValidToken(t *testing.T) {
	t.Parallel()
	h, seen := authHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/policies", nil)
	req.Header.Set("Authorization", "Bearer "+makeToken(testSecret, validClaims()))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "user-123", seen.UserID)
	assert.Equal(t, domain.RoleOperator, seen.Role)
	assert.Equal(t, "prod", seen.Database)
}

func TestAuth_Rejections(t *testing.T) {
	t.Parallel()
	h, _ := authHandler(t)

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic abc"},
		{"bad signature", "Bearer " + makeToken("other-secret", validClaims())},
		{"unknown role", "Bearer " + makeToken(testSecret, func() map[string]interface{} {
			c := validClaims()
			c["role"] = "WIZARD"
			return c
		}())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Contains(t, rr.Body.String(), "unauthorized")
		})
	}
}
