// SPDX-License-Identifier: AGPL-3.0-or-later
package models

import "errors"

// Authentication-kind errors: fatal to the inbound HTTP request (401), never
// retried, never downgraded to a weaker signature scheme.
var (
	ErrSignatureMissing    = errors.New("signature missing")
	ErrSignatureInvalid    = errors.New("signature invalid")
	ErrTimestampOutOfRange = errors.New("timestamp outside tolerance")
	ErrUnknownScheme       = errors.New("unknown signature scheme")
)

// Tenant-kind errors: surfaced as success=false output fields, HTTP 200.
var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrTenantSuspended = errors.New("tenant suspended")
)

// Validation-kind errors: surfaced as success=false output fields, HTTP 200.
var (
	ErrMissingURL       = errors.New("missing webhook url")
	ErrInvalidSecretName = errors.New("invalid secret name")
	ErrOversizeInput    = errors.New("input exceeds size limit")
	ErrOversizeFormula  = errors.New("formula exceeds size limit")
	ErrOversizeSource   = errors.New("snippet source exceeds size limit")
	ErrSnippetNotFound  = errors.New("snippet not found")
	ErrUnknownActionKind = errors.New("unknown action kind")
)

// SSRF-kind errors: surfaced as success=false, never retried.
var (
	ErrSSRFSchemeRejected   = errors.New("url scheme not allowed")
	ErrSSRFUserinfoRejected = errors.New("url userinfo not allowed")
	ErrSSRFHostDenied       = errors.New("host denied")
	ErrSSRFAddressRejected  = errors.New("resolved address not allowed")
	ErrSSRFNoAddresses      = errors.New("host did not resolve to any address")
	ErrSSRFRedirectRejected = errors.New("redirect target not allowed")
)

// Sandbox/timeout-kind errors.
var (
	ErrSandboxThrew    = errors.New("sandbox code threw")
	ErrDeadlineExceeded = errors.New("deadline exceeded")
)

// Internal-kind errors: logged, never alter the caller's response.
var (
	ErrRecordWriteFailed = errors.New("execution record write failed")
	ErrUsageUpsertFailed = errors.New("usage counter upsert failed")
)
