// SPDX-License-Identifier: AGPL-3.0-or-later
package services

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/triops/actioncore/internal/domain/models"
)

// RetryConfig bounds a single webhook dispatch's retry budget (spec §4.3.4).
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	JitterFraction  float64 // e.g. 0.25 for ±25%
	OverallDeadline time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     4,
		InitialDelay:    1000 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		Multiplier:      2.0,
		JitterFraction:  0.25,
		OverallDeadline: 25 * time.Second,
	}
}

// retryableStatus is the fixed set of HTTP statuses that permit another
// attempt (spec §4.3.4).
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:     true,
	http.StatusTooManyRequests:    true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// IsRetryableStatus reports whether an HTTP response status permits a retry.
func IsRetryableStatus(status int) bool {
	return retryableStatus[status]
}

// IsRetryableTransportError reports whether a transport-level error (no HTTP
// response received at all) permits a retry: connection refused/reset,
// timeout, or a DNS failure that occurred despite pinning being already
// validated at the top of the request (spec §4.3.4).
func IsRetryableTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// RetryState tracks the explicit state machine an in-flight webhook dispatch
// threads through each attempt: attempt index, next delay, and the overall
// deadline budget (spec §9 Design Notes: "explicit state over implicit
// recursion for the retry loop").
type RetryState struct {
	cfg       RetryConfig
	attempt   int
	nextDelay time.Duration
	deadline  time.Time
	rand      func() float64
}

func NewRetryState(cfg RetryConfig, start time.Time) *RetryState {
	return &RetryState{
		cfg:       cfg,
		nextDelay: cfg.InitialDelay,
		deadline:  start.Add(cfg.OverallDeadline),
		rand:      rand.Float64,
	}
}

// Attempt returns the 0-based index of the attempt about to run.
func (s *RetryState) Attempt() int { return s.attempt }

// ShouldContinue reports whether another attempt is permitted given the
// outcome of the previous one: it must be retryable, attempts must remain,
// and the overall deadline budget must not be exhausted once the backoff
// delay is added.
func (s *RetryState) ShouldContinue(now time.Time, retryable bool) bool {
	if !retryable {
		return false
	}
	if s.attempt+1 >= s.cfg.MaxAttempts {
		return false
	}
	if now.Add(s.delayWithJitter()).After(s.deadline) {
		return false
	}
	return true
}

// Advance commits to the next attempt, consuming the current backoff delay
// and growing it for the attempt after that.
func (s *RetryState) Advance() time.Duration {
	delay := s.delayWithJitter()
	s.attempt++

	next := time.Duration(float64(s.nextDelay) * s.cfg.Multiplier)
	if next > s.cfg.MaxDelay {
		next = s.cfg.MaxDelay
	}
	s.nextDelay = next

	return delay
}

func (s *RetryState) delayWithJitter() time.Duration {
	if s.cfg.JitterFraction <= 0 {
		return s.nextDelay
	}
	jitter := 1 + (s.rand()*2-1)*s.cfg.JitterFraction
	return time.Duration(float64(s.nextDelay) * jitter)
}

// RemainingBudget is the time left in the overall deadline as of now,
// clamped to zero.
func (s *RetryState) RemainingBudget(now time.Time) time.Duration {
	remaining := s.deadline.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func attemptStatus(err error, statusCode int) models.ExecutionStatus {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.ExecutionStatusTimeout
		}
		return models.ExecutionStatusError
	}
	if statusCode >= 200 && statusCode < 300 {
		return models.ExecutionStatusSuccess
	}
	return models.ExecutionStatusError
}
