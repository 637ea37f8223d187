// SPDX-License-Identifier: AGPL-3.0-or-later
package breaker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ExecuteSuccess(t *testing.T) {
	m := NewManager()
	result, err := m.Execute("example.com", func() (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestManager_TripsAfterConsecutiveFailures(t *testing.T) {
	m := NewManager()
	boom := errors.New("boom")

	for i := 0; i < 5; i++ {
		_, err := m.Execute("flaky.example.com", func() (interface{}, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
	}

	_, err := m.Execute("flaky.example.com", func() (interface{}, error) {
		return "should not run", nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestManager_IsolatesBreakersPerHost(t *testing.T) {
	m := NewManager()
	boom := errors.New("boom")

	for i := 0; i < 5; i++ {
		_, _ = m.Execute("bad.example.com", func() (interface{}, error) { return nil, boom })
	}

	result, err := m.Execute("good.example.com", func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}
