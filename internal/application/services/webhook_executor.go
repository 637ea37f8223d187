// SPDX-License-Identifier: AGPL-3.0-or-later
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/triops/actioncore/internal/domain/models"
	"github.com/triops/actioncore/internal/infrastructure/breaker"
	"github.com/triops/actioncore/internal/infrastructure/ssrf"
	"github.com/triops/actioncore/pkg/crypto"
	"github.com/triops/actioncore/pkg/logger"
	"github.com/triops/actioncore/pkg/providers"
)

const (
	userAgent             = "ActionCore-Webhooks/1.0"
	maxResponseBody       = 100 * 1024
	auditResponseSnapshot = 10 * 1024
	outputResponseSnippet = 500
	maxAttemptTimeout     = 30 * time.Second
	maxTemplateDepth      = 20

	// headerDeliveryID carries one nonce per dispatch, identical across every
	// retry attempt, so a receiving endpoint can dedupe retried deliveries
	// instead of treating each attempt as a distinct event.
	headerDeliveryID = "X-Actioncore-Delivery-Id"
)

// WebhookConfig is the inputFields shape for POST /v1/actions/webhook
// (spec §4.3, §6.1).
type WebhookConfig struct {
	Method         string                 `json:"method"`
	URL            string                 `json:"url"`
	Headers        map[string]string      `json:"headers"`
	QueryParams    map[string]string      `json:"queryParams"`
	Body           map[string]interface{} `json:"body"`
	RetryOnFailure bool                   `json:"retry_on_failure"`
	MaxRetries     int                    `json:"max-retries"`
	InitialDelayMs int                    `json:"initial-delay"`
	MaxDelayMs     int                    `json:"max-delay"`
	Multiplier     float64                `json:"multiplier"`
}

// redactedHeaders are never copied into the Execution Record's audit
// snapshot (spec §4.3.3: "Authorization-bearing request headers are
// redacted").
var redactedHeaders = map[string]bool{
	"authorization": true,
	"proxy-authorization": true,
	"cookie": true,
}

// urlGuard is the subset of *ssrf.Guard the executor depends on, narrowed to
// an interface so tests can pin a loopback test server without going
// through DNS resolution or the guard's (correct) rejection of loopback
// addresses.
type urlGuard interface {
	Validate(ctx context.Context, rawURL string) (*ssrf.Pinned, error)
	CheckRedirect(ctx context.Context, onRevalidate func(*ssrf.Pinned)) func(req *http.Request, via []*http.Request) error
}

// WebhookExecutor performs the outbound HTTP call for a webhook action,
// guarding against SSRF and applying the retry engine. Grounded on the
// platform's async delivery worker's signing/request-assembly pattern,
// rewritten as a single synchronous in-request call chain per the
// "no queued execution" requirement.
type WebhookExecutor struct {
	guard      urlGuard
	dialer     *net.Dialer
	retryClock func() time.Time
	metrics    providers.MetricsRecorder
	breakers   *breaker.Manager
}

func NewWebhookExecutor(guard *ssrf.Guard) *WebhookExecutor {
	return &WebhookExecutor{
		guard:      guard,
		dialer:     &net.Dialer{Timeout: 10 * time.Second},
		retryClock: time.Now,
		breakers:   breaker.NewManager(),
	}
}

// WithMetrics attaches a MetricsRecorder; returns the executor for chaining
// at wiring time in the entrypoint.
func (e *WebhookExecutor) WithMetrics(m providers.MetricsRecorder) *WebhookExecutor {
	e.metrics = m
	return e
}

// Execute runs the configured webhook, honoring the configured retry
// budget, and returns the tagged ActionResult plus the per-attempt
// telemetry for the Execution Record.
func (e *WebhookExecutor) Execute(ctx context.Context, cfg WebhookConfig, object models.ActionObject, inputs []interface{}) models.ActionResult {
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}

	rawURL := SubstitutePlaceholders(cfg.URL, object.Properties, inputs)
	if rawURL == "" {
		return models.UserError(models.ErrMissingURL.Error())
	}

	pinned, err := e.guard.Validate(ctx, rawURL)
	if err != nil {
		return models.UserError(err.Error())
	}

	retryCfg := e.retryConfig(cfg)
	state := NewRetryState(retryCfg, e.retryClock())

	deliveryID, err := crypto.GenerateNonce()
	if err != nil {
		deliveryID = ""
	}

	var attempts []models.Attempt
	var lastResp *webhookResponse
	var lastErr error

	for {
		attemptCtx, cancel := context.WithTimeout(ctx, maxAttemptTimeout)
		start := e.retryClock()
		resp, doErr := e.doAttempt(attemptCtx, method, pinned, cfg, object, inputs, deliveryID)
		cancel()
		duration := e.retryClock().Sub(start)

		attempt := models.Attempt{Index: state.Attempt(), Duration: duration}
		retryable := false
		if doErr != nil {
			attempt.Error = doErr.Error()
			retryable = IsRetryableTransportError(doErr)
			attempt.Status = statusLabel(doErr, 0, retryable)
		} else {
			attempt.StatusCode = resp.statusCode
			retryable = IsRetryableStatus(resp.statusCode)
			attempt.Status = statusLabel(nil, resp.statusCode, retryable)
			lastResp = resp
		}
		attempts = append(attempts, attempt)
		lastErr = doErr
		if e.metrics != nil {
			e.metrics.ObserveAttempt(attempt.Status)
		}

		if !cfg.RetryOnFailure || !state.ShouldContinue(e.retryClock(), retryable) {
			break
		}

		delay := state.Advance()
		logger.Logger.Warn("webhook attempt retrying", "attempt", attempt.Index, "delay_ms", delay.Milliseconds())
		select {
		case <-ctx.Done():
			return timeoutResult(attempts)
		case <-time.After(delay):
		}
	}

	result := e.shapeResult(lastResp, lastErr, attempts)
	return result
}

func (e *WebhookExecutor) retryConfig(cfg WebhookConfig) RetryConfig {
	rc := DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		rc.MaxAttempts = cfg.MaxRetries + 1
	}
	if cfg.InitialDelayMs > 0 {
		rc.InitialDelay = time.Duration(cfg.InitialDelayMs) * time.Millisecond
	}
	if cfg.MaxDelayMs > 0 {
		rc.MaxDelay = time.Duration(cfg.MaxDelayMs) * time.Millisecond
	}
	if cfg.Multiplier > 0 {
		rc.Multiplier = cfg.Multiplier
	}
	return rc
}

type webhookResponse struct {
	statusCode int
	headers    http.Header
	body       []byte
}

func (e *WebhookExecutor) doAttempt(ctx context.Context, method string, pinned *ssrf.Pinned, cfg WebhookConfig, object models.ActionObject, inputs []interface{}, deliveryID string) (*webhookResponse, error) {
	substitutedBody := map[string]interface{}{}
	for k, v := range cfg.Body {
		substitutedBody[k] = substituteValue(v, object.Properties, inputs, 0)
	}

	reqURL := *pinned.URL
	query := reqURL.Query()
	for k, v := range cfg.QueryParams {
		query.Set(k, SubstitutePlaceholders(v, object.Properties, inputs))
	}

	var bodyReader io.Reader
	if method == http.MethodGet {
		for k, v := range substitutedBody {
			query.Set(k, stringify(v))
		}
	} else if len(substitutedBody) > 0 {
		encoded, err := json.Marshal(substitutedBody)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrOversizeInput, err)
		}
		bodyReader = bytes.NewReader(encoded)
	}
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if deliveryID != "" {
		req.Header.Set(headerDeliveryID, deliveryID)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, SubstitutePlaceholders(v, object.Properties, inputs))
	}

	client := e.newPinnedClient(pinned)
	result, err := e.breakers.Execute(reqURL.Hostname(), func() (interface{}, error) {
		return client.Do(req)
	})
	if err != nil {
		return nil, err
	}
	resp := result.(*http.Response)
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseBody)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	return &webhookResponse{statusCode: resp.StatusCode, headers: resp.Header, body: body}, nil
}

func (e *WebhookExecutor) newPinnedClient(pinned *ssrf.Pinned) *http.Client {
	transport := &http.Transport{DialContext: pinned.DialContext(e.dialer)}
	return &http.Client{
		Transport:     transport,
		Timeout:       maxAttemptTimeout,
		CheckRedirect: e.guard.CheckRedirect(context.Background(), func(p *ssrf.Pinned) { *pinned = *p }),
	}
}

func (e *WebhookExecutor) shapeResult(resp *webhookResponse, lastErr error, attempts []models.Attempt) models.ActionResult {
	retriesUsed := len(attempts) - 1
	if retriesUsed < 0 {
		retriesUsed = 0
	}

	if resp == nil {
		msg := "request failed"
		if lastErr != nil {
			msg = sanitizeTransportError(lastErr)
		}
		return models.ActionResult{
			Kind:     models.ActionResultUserError,
			Message:  msg,
			Attempts: attempts,
			Outputs: map[string]interface{}{
				"status_code":  0,
				"retries_used": retriesUsed,
			},
		}
	}

	snippet := resp.body
	if len(snippet) > outputResponseSnippet {
		snippet = snippet[:outputResponseSnippet]
	}

	success := resp.statusCode >= 200 && resp.statusCode < 300
	outputs := map[string]interface{}{
		"status_code":  resp.statusCode,
		"retries_used": retriesUsed,
	}
	if success {
		return models.ActionResult{Kind: models.ActionResultSuccess, Outputs: outputs, Attempts: attempts}
	}
	return models.ActionResult{
		Kind:     models.ActionResultUserError,
		Message:  fmt.Sprintf("upstream returned HTTP %d: %s", resp.statusCode, string(snippet)),
		Outputs:  outputs,
		Attempts: attempts,
	}
}

func timeoutResult(attempts []models.Attempt) models.ActionResult {
	return models.ActionResult{Kind: models.ActionResultTimeout, Attempts: attempts}
}

func statusLabel(err error, statusCode int, retryable bool) string {
	switch {
	case err != nil && retryable:
		return "retryable_failure"
	case err != nil:
		return "failure"
	case retryable:
		return "retryable_failure"
	case statusCode >= 200 && statusCode < 300:
		return "success"
	default:
		return "failure"
	}
}

func sanitizeTransportError(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx >= 0 {
		msg = msg[idx+2:]
	}
	return msg
}

func substituteValue(v interface{}, object map[string]interface{}, inputs []interface{}, depth int) interface{} {
	if depth > maxTemplateDepth {
		return v
	}
	switch t := v.(type) {
	case string:
		return SubstitutePlaceholders(t, object, inputs)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = substituteValue(val, object, inputs, depth+1)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = substituteValue(val, object, inputs, depth+1)
		}
		return out
	default:
		return v
	}
}

