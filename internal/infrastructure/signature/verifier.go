// SPDX-License-Identifier: AGPL-3.0-or-later
// Package signature authenticates inbound action invocations via HMAC and
// plain hash schemes, modeled on the three signature versions the
// automation platform has shipped over time.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/triops/actioncore/internal/domain/models"
)

// Scheme selects which of the three verification algorithms applies.
type Scheme string

const (
	SchemeV1 Scheme = "v1"
	SchemeV2 Scheme = "v2"
	SchemeV3 Scheme = "v3"
)

const (
	HeaderSignature        = "X-Hubspot-Signature"
	HeaderSignatureVersion = "X-Hubspot-Signature-Version"
	HeaderRequestTimestamp = "X-Hubspot-Request-Timestamp"
)

// Tolerance is the maximum allowed skew between the request's timestamp
// header and the verifier's clock, required only for v3 (spec §4.1).
const Tolerance = 300 * time.Second

// Request is the subset of an inbound HTTP request the verifier needs. The
// caller builds FullURI from the deployment's externally-visible URL, never
// from the (attacker-controlled) request Host header.
type Request struct {
	Method    string
	FullURI   string
	Body      []byte
	Signature string
	Scheme    Scheme
	Timestamp string // raw header value, unix milliseconds, v3 only
}

// FromHTTP extracts a Request from an *http.Request plus the externally
// visible base URL for the deployment. It does not read or consume r.Body;
// callers must supply the raw bytes already tee'd off the body reader, so
// parsing can never happen before verification.
func FromHTTP(r *http.Request, externalFullURI string, rawBody []byte) Request {
	scheme := Scheme(r.Header.Get(HeaderSignatureVersion))
	if scheme == "" {
		scheme = SchemeV1
	}
	return Request{
		Method:    r.Method,
		FullURI:   externalFullURI,
		Body:      rawBody,
		Signature: r.Header.Get(HeaderSignature),
		Scheme:    scheme,
		Timestamp: r.Header.Get(HeaderRequestTimestamp),
	}
}

// Verifier checks an inbound Request's signature against the tenant's
// client secret. All comparisons are constant-time to avoid leaking a
// timing oracle on the expected digest.
type Verifier struct {
	// now is overridable for tests; defaults to time.Now.
	now func() time.Time
}

func NewVerifier() *Verifier {
	return &Verifier{now: time.Now}
}

// Verify returns nil if req authenticates against secret, or one of
// models.ErrSignatureMissing / ErrSignatureInvalid / ErrTimestampOutOfRange /
// ErrUnknownScheme otherwise. Failure is always fatal to the request (401);
// the caller must not retry or fall back to a weaker scheme.
func (v *Verifier) Verify(req Request, secret string) error {
	if req.Signature == "" {
		return models.ErrSignatureMissing
	}

	switch req.Scheme {
	case SchemeV1:
		return v.verifyHashScheme(hashV1(secret, req.Body), req.Signature)
	case SchemeV2:
		return v.verifyHashScheme(hashV2(secret, req.Method, req.FullURI, req.Body), req.Signature)
	case SchemeV3:
		return v.verifyV3(req, secret)
	default:
		return models.ErrUnknownScheme
	}
}

func (v *Verifier) verifyHashScheme(expected [32]byte, givenHex string) error {
	given, err := hex.DecodeString(givenHex)
	if err != nil {
		return models.ErrSignatureInvalid
	}
	if subtle.ConstantTimeCompare(expected[:], given) != 1 {
		return models.ErrSignatureInvalid
	}
	return nil
}

func (v *Verifier) verifyV3(req Request, secret string) error {
	if req.Timestamp == "" {
		return models.ErrSignatureMissing
	}
	ts, err := strconv.ParseInt(req.Timestamp, 10, 64)
	if err != nil {
		return models.ErrSignatureInvalid
	}

	requestTime := time.UnixMilli(ts)
	now := v.now()
	skew := now.Sub(requestTime)
	if skew < 0 {
		skew = -skew
	}
	if skew > Tolerance {
		return models.ErrTimestampOutOfRange
	}

	expected := hmacV3(secret, req.Method, req.FullURI, req.Body, req.Timestamp)
	given, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		return models.ErrSignatureInvalid
	}
	if subtle.ConstantTimeCompare(expected, given) != 1 {
		return models.ErrSignatureInvalid
	}
	return nil
}

func hashV1(secret string, body []byte) [32]byte {
	return sha256.Sum256(concat([]byte(secret), body))
}

func hashV2(secret, method, fullURI string, body []byte) [32]byte {
	return sha256.Sum256(concat([]byte(secret), []byte(method), []byte(fullURI), body))
}

func hmacV3(secret, method, fullURI string, body []byte, timestamp string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(method))
	mac.Write([]byte(fullURI))
	mac.Write(body)
	mac.Write([]byte(timestamp))
	return mac.Sum(nil)
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
