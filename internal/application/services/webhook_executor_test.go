// SPDX-License-Identifier: AGPL-3.0-or-later
package services

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triops/actioncore/internal/domain/models"
	"github.com/triops/actioncore/internal/infrastructure/ssrf"
)

// loopbackGuard stands in for ssrf.Guard in tests, pinning directly to a
// local httptest.Server's own address. The guard's real loopback rejection
// is covered by ssrf/guard_test.go; this lets the executor's attempt/retry
// logic be exercised against a real server without that rejection firing.
type loopbackGuard struct {
	pinned *ssrf.Pinned
}

func (g loopbackGuard) Validate(ctx context.Context, rawURL string) (*ssrf.Pinned, error) {
	p := *g.pinned
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	p.URL = u
	return &p, nil
}

func (g loopbackGuard) CheckRedirect(ctx context.Context, onRevalidate func(*ssrf.Pinned)) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error { return http.ErrUseLastResponse }
}

func newGuardedExecutor(t *testing.T, srv *httptest.Server) *WebhookExecutor {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, _, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)

	e := NewWebhookExecutor(nil)
	e.guard = loopbackGuard{pinned: &ssrf.Pinned{URL: u, Addresses: []net.IP{net.ParseIP(host)}}}
	return e
}

func TestWebhookExecutor_SuccessOnFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	e := newGuardedExecutor(t, srv)
	result := e.Execute(context.Background(), WebhookConfig{Method: "POST", URL: srv.URL}, models.ActionObject{}, nil)

	assert.Equal(t, models.ActionResultSuccess, result.Kind)
	assert.Equal(t, http.StatusOK, result.Outputs["status_code"])
	assert.Equal(t, 0, result.Outputs["retries_used"])
}

func TestWebhookExecutor_RetriesOn503ThenSucceeds(t *testing.T) {
	var calls int32
	var deliveryIDs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deliveryIDs = append(deliveryIDs, r.Header.Get(headerDeliveryID))
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := newGuardedExecutor(t, srv)
	result := e.Execute(context.Background(), WebhookConfig{
		Method: "POST", URL: srv.URL, RetryOnFailure: true, MaxRetries: 2, InitialDelayMs: 1, MaxDelayMs: 5,
	}, models.ActionObject{}, nil)

	assert.Equal(t, models.ActionResultSuccess, result.Kind)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Len(t, result.Attempts, 2)
	assert.Equal(t, 1, result.Outputs["retries_used"])
	require.Len(t, deliveryIDs, 2)
	assert.NotEmpty(t, deliveryIDs[0])
	assert.Equal(t, deliveryIDs[0], deliveryIDs[1])
}

func TestWebhookExecutor_NonRetryable4xxFailsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	e := newGuardedExecutor(t, srv)
	result := e.Execute(context.Background(), WebhookConfig{
		Method: "POST", URL: srv.URL, RetryOnFailure: true, MaxRetries: 3,
	}, models.ActionObject{}, nil)

	assert.Equal(t, models.ActionResultUserError, result.Kind)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestWebhookExecutor_RejectsMissingURL(t *testing.T) {
	e := NewWebhookExecutor(ssrf.NewGuard(nil))
	result := e.Execute(context.Background(), WebhookConfig{Method: "POST", URL: ""}, models.ActionObject{}, nil)
	assert.Equal(t, models.ActionResultUserError, result.Kind)
	assert.Equal(t, models.ErrMissingURL.Error(), result.Message)
}
