// SPDX-License-Identifier: AGPL-3.0-or-later
// Package breaker provides a per-host circuit breaker for outbound webhook
// calls, so a dead or consistently-failing destination stops being retried
// at full request cost once it trips (spec §4.3 supplemented features).
package breaker

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/triops/actioncore/pkg/logger"
)

// Manager lazily creates and caches one gobreaker.CircuitBreaker per
// destination host.
type Manager struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	settings func(host string) gobreaker.Settings
}

func NewManager() *Manager {
	return &Manager{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		settings: defaultSettings,
	}
}

func defaultSettings(host string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        host,
		MaxRequests: 2,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Logger.Warn("webhook circuit breaker state change", "host", name, "from", from.String(), "to", to.String())
		},
	}
}

func (m *Manager) forHost(host string) *gobreaker.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[host]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(m.settings(host))
	m.breakers[host] = cb
	return cb
}

// Execute runs fn through the breaker for host, translating gobreaker's
// open-circuit rejection into ErrCircuitOpen so the caller can treat it like
// any other transport failure without importing gobreaker itself.
func (m *Manager) Execute(host string, fn func() (interface{}, error)) (interface{}, error) {
	cb := m.forHost(host)
	result, err := cb.Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, ErrCircuitOpen
	}
	return result, err
}

// ErrCircuitOpen is returned instead of making the call when the breaker for
// the destination host is open or half-open and at its request cap.
var ErrCircuitOpen = circuitOpenError{}

type circuitOpenError struct{}

func (circuitOpenError) Error() string { return "destination host circuit breaker is open" }
