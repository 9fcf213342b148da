package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/auth/keycloak"
	"github.com/turtacn/MetaNet-Generalizer/internal/testutil"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

type stubVerifier map[string]*keycloak.TokenClaims

func (s stubVerifier) VerifyToken(_ context.Context, raw string) (*keycloak.TokenClaims, error) {
	switch raw {
	case "expired":
		return nil, keycloak.ErrTokenExpired
	case "outage":
		return nil, errors.Wrap(context.DeadlineExceeded, errors.ErrCodeServiceUnavailable, "keycloak unavailable")
	}
	if claims, ok := s[raw]; ok {
		return claims, nil
	}
	return nil, keycloak.ErrTokenInvalidSignature
}

func newAuthEngine(role string, logger *testutil.MockLogger) *gin.Engine {
	verifier := stubVerifier{
		"reader": {Subject: "u1", Roles: []string{"reader"}},
		"admin":  {Subject: "u2", Roles: []string{"reader", "generalizer"}},
	}
	r := gin.New()
	r.Use(RequestID(), Auth(verifier, AuthConfig{RequiredRole: role, SkipPaths: []string{"/healthz"}}, logger))
	r.GET("/ok", func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, claims.Subject)
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func authRequest(path, header string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return req
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name   string
		role   string
		header string
		status int
		code   string
	}{
		{"valid token", "", "Bearer reader", http.StatusOK, ""},
		{"lowercase scheme", "", "bearer reader", http.StatusOK, ""},
		{"role granted", "generalizer", "Bearer admin", http.StatusOK, ""},
		{"role missing", "generalizer", "Bearer reader", http.StatusForbidden, string(errors.ErrCodeForbidden)},
		{"no header", "", "", http.StatusUnauthorized, string(errors.ErrCodeUnauthorized)},
		{"basic scheme", "", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, string(errors.ErrCodeUnauthorized)},
		{"expired", "", "Bearer expired", http.StatusUnauthorized, string(errors.ErrCodeUnauthorized)},
		{"unknown", "", "Bearer forged", http.StatusUnauthorized, string(errors.ErrCodeUnauthorized)},
		{"keycloak down", "", "Bearer outage", http.StatusServiceUnavailable, string(errors.ErrCodeServiceUnavailable)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(newAuthEngine(tt.role, testutil.NewMockLogger()), authRequest("/ok", tt.header))
			require.Equal(t, tt.status, w.Code)
			if tt.code == "" {
				return
			}
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["code"])
			assert.NotEmpty(t, body["request_id"])
		})
	}
}

func TestAuth_ExpiredMessageAndChallenge(t *testing.T) {
	logger := testutil.NewMockLogger()
	w := serve(newAuthEngine("", logger), authRequest("/ok", "Bearer expired"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
	assert.Contains(t, w.Body.String(), "token expired")
	assert.True(t, logger.HasMessage("warn", "Authentication failed"))
}

func TestAuth_SkipPaths(t *testing.T) {
	w := serve(newAuthEngine("generalizer", testutil.NewMockLogger()), authRequest("/healthz", ""))
	assert.Equal(t, http.StatusOK, w.Code)
}
