package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/auth/keycloak"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

const claimsKey = "auth_claims"

// AuthConfig configures Auth.
type AuthConfig struct {
	// RequiredRole, when set, rejects authenticated callers without it
	// with 403.
	RequiredRole string
	SkipPaths    []string
}

// Auth requires a valid bearer token and stores its claims on the context.
func Auth(verifier keycloak.TokenVerifier, config AuthConfig, logger logging.Logger) gin.HandlerFunc {
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		token, err := bearerToken(c.GetHeader("Authorization"))
		if err == nil {
			var claims *keycloak.TokenClaims
			if claims, err = verifier.VerifyToken(c.Request.Context(), token); err == nil {
				if config.RequiredRole != "" && !claims.HasRole(config.RequiredRole) {
					logger.Warn("Caller lacks required role",
						logging.String("subject", claims.Subject),
						logging.String("role", config.RequiredRole),
						logging.String("request_id", GetRequestID(c)))
					abortAuth(c, http.StatusForbidden, errors.ErrCodeForbidden, "missing role "+config.RequiredRole)
					return
				}
				c.Set(claimsKey, claims)
				c.Next()
				return
			}
		}

		logger.Warn("Authentication failed",
			logging.String("path", c.Request.URL.Path),
			logging.String("request_id", GetRequestID(c)),
			logging.Err(err))
		code := errors.GetCode(err)
		if code != errors.ErrCodeServiceUnavailable {
			code = errors.ErrCodeUnauthorized
			c.Header("WWW-Authenticate", `Bearer realm="metanet"`)
		}
		msg := errors.DefaultMessageForCode(code)
		var appErr *errors.AppError
		if code == errors.ErrCodeUnauthorized && errors.As(err, &appErr) {
			msg = appErr.Message
		}
		abortAuth(c, errors.HTTPStatusForCode(code), code, msg)
	}
}

// GetClaims returns the claims stored by Auth.
func GetClaims(c *gin.Context) (*keycloak.TokenClaims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*keycloak.TokenClaims)
	return claims, ok
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", keycloak.ErrTokenMissing
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", keycloak.ErrTokenMalformed
	}
	return strings.TrimSpace(token), nil
}

func abortAuth(c *gin.Context, status int, code errors.ErrorCode, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":       string(code),
		"message":    message,
		"request_id": GetRequestID(c),
	})
}
