// SPDX-License-Identifier: AGPL-3.0-or-later
package shared

import (
	"crypto/sha256"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triops/actioncore/internal/infrastructure/signature"
)

const testBaseURL = "http://localhost:8080"
const testClientSecret = "test-client-secret"

func hashV1(secret, body string) string {
	sum := sha256.Sum256([]byte(secret + body))
	const hextable = "0123456789abcdef"
	out := make([]byte, len(sum)*2)
	for i, b := range sum {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0x0f]
	}
	return string(out)
}

func TestVerifySignature_AcceptsValidV1Signature(t *testing.T) {
	m := NewMiddleware(testClientSecret, []byte("jwt-key"), testBaseURL)
	body := `{"origin":{"portalId":1}}`

	var gotBody []byte
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, ok := RawBodyFromContext(r.Context())
		require.True(t, ok)
		gotBody = b
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/actions/format", strings.NewReader(body))
	req.Header.Set(signature.HeaderSignature, hashV1(testClientSecret, body))

	w := httptest.NewRecorder()
	m.VerifySignature(next).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, body, string(gotBody))
}

func TestVerifySignature_RejectsBadSignature(t *testing.T) {
	m := NewMiddleware(testClientSecret, []byte("jwt-key"), testBaseURL)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/v1/actions/format", strings.NewReader(`{}`))
	req.Header.Set(signature.HeaderSignature, "deadbeef")

	w := httptest.NewRecorder()
	m.VerifySignature(next).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAdminJWT_AcceptsValidToken(t *testing.T) {
	key := []byte("jwt-signing-key")
	m := NewMiddleware(testClientSecret, key, testBaseURL)
	tenantID := uuid.New()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, adminClaims{
		TenantID:         tenantID.String(),
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	var gotTenant uuid.UUID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := TenantIDFromContext(r.Context())
		require.True(t, ok)
		gotTenant = id
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/executions", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	w := httptest.NewRecorder()
	m.RequireAdminJWT(next).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tenantID, gotTenant)
}

func TestRequireAdminJWT_RejectsMissingToken(t *testing.T) {
	m := NewMiddleware(testClientSecret, []byte("jwt-key"), testBaseURL)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/executions", nil)
	w := httptest.NewRecorder()
	m.RequireAdminJWT(next).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
