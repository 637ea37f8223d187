// SPDX-License-Identifier: AGPL-3.0-or-later
package shared

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/triops/actioncore/internal/domain/models"
	"github.com/triops/actioncore/internal/infrastructure/signature"
	"github.com/triops/actioncore/pkg/logger"
)

// ContextKey represents a context key type
type ContextKey string

const (
	// ContextKeyRequestID is the context key for the request ID
	ContextKeyRequestID ContextKey = "request_id"
	// ContextKeyRawBody is the context key for the raw, unparsed request
	// body tee'd off before any JSON decoding so signature verification
	// always runs against the exact bytes the caller sent.
	ContextKeyRawBody ContextKey = "raw_body"
	// ContextKeyTenantID is the context key for the admin JWT's tenant claim.
	ContextKeyTenantID ContextKey = "tenant_id"
)

// Middleware bundles the stateless HTTP middleware the router wires in front
// of both the action-dispatch and admin route groups.
type Middleware struct {
	verifier        *signature.Verifier
	clientSecret    string
	jwtSigningKey   []byte
	externalBaseURL string
}

func NewMiddleware(clientSecret string, jwtSigningKey []byte, externalBaseURL string) *Middleware {
	return &Middleware{
		verifier:        signature.NewVerifier(),
		clientSecret:    clientSecret,
		jwtSigningKey:   jwtSigningKey,
		externalBaseURL: externalBaseURL,
	}
}

// VerifySignature authenticates an inbound action-dispatch request against
// the app-level client secret shared by every tenant installation (the
// automation platform signs with its app's client secret, not a per-tenant
// one). A failure here is the one case that breaks the always-200 contract:
// spec §4.1 fails the HTTP request itself (401), never a success=false
// output field.
func (m *Middleware) VerifySignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r.Context())

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, "failed to read request body", nil)
			return
		}
		r.Body.Close()

		fullURI := m.externalBaseURL + r.URL.RequestURI()
		sigReq := signature.FromHTTP(r, fullURI, body)

		if err := m.verifier.Verify(sigReq, m.clientSecret); err != nil {
			logger.Logger.Warn("signature verification failed",
				"request_id", requestID, "path", r.URL.Path, "error", err.Error())
			WriteError(w, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error(), nil)
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyRawBody, body)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RawBodyFromContext retrieves the raw body VerifySignature already
// authenticated, so handlers never need to re-read r.Body.
func RawBodyFromContext(ctx context.Context) ([]byte, bool) {
	body, ok := ctx.Value(ContextKeyRawBody).([]byte)
	return body, ok
}

// adminClaims is the JWT payload minted for operators of the admin API;
// TenantID scopes every admin query to one installation's rows.
type adminClaims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// RequireAdminJWT authenticates the admin API (executions/usage read
// endpoints) with a bearer JWT instead of the action-dispatch signature
// scheme, since operators call it directly rather than the platform.
func (m *Middleware) RequireAdminJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r.Context())
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			WriteUnauthorized(w, "missing bearer token")
			return
		}

		claims := &adminClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			return m.jwtSigningKey, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !parsed.Valid {
			logger.Logger.Debug("admin jwt rejected", "request_id", requestID, "error", errToString(err))
			WriteUnauthorized(w, "invalid token")
			return
		}

		tenantID, err := uuid.Parse(claims.TenantID)
		if err != nil {
			WriteUnauthorized(w, "invalid tenant claim")
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyTenantID, tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TenantIDFromContext retrieves the tenant the admin JWT scoped the request to.
func TenantIDFromContext(ctx context.Context) (models.TenantID, bool) {
	id, ok := ctx.Value(ContextKeyTenantID).(models.TenantID)
	return id, ok
}

// SecurityHeaders middleware adds security headers
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none';")
		next.ServeHTTP(w, r)
	})
}

// RateLimit represents a simple rate limiter
type RateLimit struct {
	attempts *sync.Map
	limit    int
	window   time.Duration
}

func NewRateLimit(limit int, window time.Duration) *RateLimit {
	return &RateLimit{attempts: &sync.Map{}, limit: limit, window: window}
}

func (rl *RateLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := GetClientIP(r)

		now := time.Now()
		if val, ok := rl.attempts.Load(ip); ok {
			attempts := val.([]time.Time)
			var valid []time.Time
			for _, t := range attempts {
				if now.Sub(t) < rl.window {
					valid = append(valid, t)
				}
			}
			if len(valid) >= rl.limit {
				WriteError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded", map[string]interface{}{
					"retryAfter": rl.window.Seconds(),
				})
				return
			}
			valid = append(valid, now)
			rl.attempts.Store(ip, valid)
		} else {
			rl.attempts.Store(ip, []time.Time{now})
		}
		next.ServeHTTP(w, r)
	})
}
