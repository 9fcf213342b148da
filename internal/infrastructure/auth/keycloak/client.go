// Package keycloak verifies bearer tokens issued by a Keycloak realm.
package keycloak

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/MetaNet-Generalizer/internal/config"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

// TokenVerifier checks a raw bearer token and returns its claims.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, rawToken string) (*TokenClaims, error)
}

// TokenClaims are the claims the API relies on. Roles merges realm roles
// and the roles of every client.
type TokenClaims struct {
	Subject           string    `json:"sub"`
	PreferredUsername string    `json:"preferred_username"`
	Email             string    `json:"email"`
	Roles             []string  `json:"roles"`
	Issuer            string    `json:"iss"`
	Audience          []string  `json:"aud"`
	ExpiresAt         time.Time `json:"exp"`
}

// HasRole reports whether role was granted.
func (c *TokenClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

var (
	ErrTokenMissing          = errors.New(errors.ErrCodeUnauthorized, "missing bearer token")
	ErrTokenMalformed        = errors.New(errors.ErrCodeUnauthorized, "malformed token")
	ErrTokenExpired          = errors.New(errors.ErrCodeUnauthorized, "token expired")
	ErrTokenInvalidSignature = errors.New(errors.ErrCodeUnauthorized, "invalid token signature")
	ErrTokenInvalidIssuer    = errors.New(errors.ErrCodeUnauthorized, "invalid token issuer")
	ErrTokenInvalidAudience  = errors.New(errors.ErrCodeUnauthorized, "invalid token audience")
	ErrKeycloakUnavailable   = errors.New(errors.ErrCodeServiceUnavailable, "keycloak unavailable")
)

// Client verifies tokens against the realm's JSON Web Key Set, which it
// refreshes in the background.
type Client struct {
	cfg        config.AuthConfig
	issuer     string
	httpClient *http.Client
	keys       *jwksCache
	logger     logging.Logger
	stop       chan struct{}
	closeOnce  sync.Once
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for the JWKS endpoint.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient fetches the realm keys once and starts the refresh loop.
func NewClient(cfg config.AuthConfig, logger logging.Logger, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" || cfg.Realm == "" || cfg.ClientID == "" {
		return nil, errors.New(errors.ErrCodeValidation, "keycloak base_url, realm and client_id are required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = config.DefaultAuthRequestTimeout
	}
	if cfg.JWKSRefreshInterval <= 0 {
		cfg.JWKSRefreshInterval = config.DefaultJWKSRefreshInterval
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	issuer := fmt.Sprintf("%s/realms/%s", strings.TrimRight(cfg.BaseURL, "/"), cfg.Realm)
	c := &Client{
		cfg:        cfg,
		issuer:     issuer,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		logger:     logger.Named("keycloak"),
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.keys = &jwksCache{client: c.httpClient, url: issuer + "/protocol/openid-connect/certs", logger: c.logger}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	if err := c.keys.refresh(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to fetch JWKS").WithDetail(c.keys.url)
	}

	go c.refreshLoop()
	c.logger.Info("Keycloak verifier ready", logging.String("issuer", issuer), logging.Int("keys", c.keys.len()))
	return c, nil
}

func (c *Client) refreshLoop() {
	ticker := time.NewTicker(c.cfg.JWKSRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
			if err := c.keys.refresh(ctx); err != nil {
				c.logger.Error("Failed to refresh JWKS", logging.Err(err))
			}
			cancel()
		}
	}
}

// Close stops the refresh loop.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.stop) })
	return nil
}

// Health fetches the key set.
func (c *Client) Health(ctx context.Context) error {
	if err := c.keys.refresh(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, ErrKeycloakUnavailable.Message)
	}
	return nil
}

// VerifyToken checks signature, expiry, issuer and audience. The audience
// matches when it lists the client or the token was issued to it (azp).
func (c *Client) VerifyToken(ctx context.Context, rawToken string) (*TokenClaims, error) {
	if rawToken == "" {
		return nil, ErrTokenMissing
	}

	var keyErr error
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			keyErr = ErrTokenMalformed
			return nil, keyErr
		}
		key, err := c.keys.get(ctx, kid)
		if err != nil {
			keyErr = err
		}
		return key, err
	},
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
	)
	switch {
	case keyErr != nil:
		return nil, keyErr
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return nil, ErrTokenInvalidIssuer
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrTokenInvalidSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, ErrTokenMalformed
	default:
		return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "token verification failed")
	}

	aud, _ := claims.GetAudience()
	azp, _ := claims["azp"].(string)
	if !contains(aud, c.cfg.ClientID) && azp != c.cfg.ClientID {
		return nil, ErrTokenInvalidAudience
	}
	return toTokenClaims(claims), nil
}

func toTokenClaims(claims jwt.MapClaims) *TokenClaims {
	tc := &TokenClaims{}
	tc.Subject, _ = claims.GetSubject()
	tc.Issuer, _ = claims.GetIssuer()
	tc.Audience, _ = claims.GetAudience()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		tc.ExpiresAt = exp.Time
	}
	tc.PreferredUsername, _ = claims["preferred_username"].(string)
	tc.Email, _ = claims["email"].(string)

	if realm, ok := claims["realm_access"].(map[string]interface{}); ok {
		tc.Roles = append(tc.Roles, stringList(realm["roles"])...)
	}
	if resources, ok := claims["resource_access"].(map[string]interface{}); ok {
		for _, access := range resources {
			if m, ok := access.(map[string]interface{}); ok {
				tc.Roles = append(tc.Roles, stringList(m["roles"])...)
			}
		}
	}
	return tc
}

func stringList(v interface{}) []string {
	items, _ := v.([]interface{})
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type jwksCache struct {
	mu     sync.RWMutex
	keys   map[string]*rsa.PublicKey
	client *http.Client
	url    string
	logger logging.Logger
}

func (c *jwksCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

func (c *jwksCache) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch JWKS: %s", resp.Status)
	}

	var set struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			c.logger.Warn("Skipping key with invalid modulus", logging.String("kid", k.Kid), logging.Err(err))
			continue
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			c.logger.Warn("Skipping key with invalid exponent", logging.String("kid", k.Kid), logging.Err(err))
			continue
		}
		exp := 0
		for _, b := range e {
			exp = exp<<8 | int(b)
		}
		keys[k.Kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: exp}
	}

	c.mu.Lock()
	c.keys = keys
	c.mu.Unlock()
	c.logger.Debug("JWKS refreshed", logging.Int("keys", len(keys)))
	return nil
}

// get returns the key for kid, refreshing once on a miss so rotated keys
// are picked up before the next tick.
func (c *jwksCache) get(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	c.mu.RUnlock()
	if ok {
		return key, nil
	}
	if err := c.refresh(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, ErrKeycloakUnavailable.Message)
	}
	c.mu.RLock()
	key, ok = c.keys[kid]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrTokenInvalidSignature.WithDetail("unknown key id " + kid)
	}
	return key, nil
}
