// SPDX-License-Identifier: AGPL-3.0-or-later
package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triops/actioncore/internal/domain/models"
)

func TestWorker_SimpleOutput(t *testing.T) {
	w := NewWorker()
	res := w.Run(context.Background(), Job{
		Source:   `output.greeting = "hello " + inputs.name;`,
		Inputs:   map[string]interface{}{"name": "Ada"},
		Deadline: time.Second,
	})

	require.Equal(t, models.ExecutionStatusSuccess, res.Status)
	assert.Equal(t, "hello Ada", res.Outputs["greeting"])
}

func TestWorker_ThrowSurfacesAsError(t *testing.T) {
	w := NewWorker()
	res := w.Run(context.Background(), Job{
		Source:   `throw new Error("boom");`,
		Deadline: time.Second,
	})

	assert.Equal(t, models.ExecutionStatusError, res.Status)
	assert.Contains(t, res.Error, "boom")
}

func TestWorker_DeadlineExceeded(t *testing.T) {
	w := NewWorker()
	res := w.Run(context.Background(), Job{
		Source:   `while (true) {}`,
		Deadline: 50 * time.Millisecond,
	})

	assert.Equal(t, models.ExecutionStatusTimeout, res.Status)
}

func TestWorker_SecretsAreFrozenAndOnlyExplicitlyPassedOnesVisible(t *testing.T) {
	w := NewWorker()
	res := w.Run(context.Background(), Job{
		Source:   `secrets.API_KEY = "tampered"; output.key = secrets.API_KEY;`,
		Secrets:  map[string]string{"API_KEY": "real-value"},
		Deadline: time.Second,
	})

	require.Equal(t, models.ExecutionStatusSuccess, res.Status)
	assert.Equal(t, "real-value", res.Outputs["key"])
}

func TestWorker_OutputCappedAtFiveFields(t *testing.T) {
	w := NewWorker()
	res := w.Run(context.Background(), Job{
		Source: `for (var i = 0; i < 10; i++) { output["f"+i] = i; }`,
		Deadline: time.Second,
	})

	require.Equal(t, models.ExecutionStatusSuccess, res.Status)
	assert.LessOrEqual(t, len(res.Outputs), MaxOutputFields)
}

func TestWorker_ConsoleCapturesWithinBuffer(t *testing.T) {
	w := NewWorker()
	res := w.Run(context.Background(), Job{
		Source:   `console.log("one"); console.log("two");`,
		Deadline: time.Second,
	})

	require.Equal(t, models.ExecutionStatusSuccess, res.Status)
	assert.Len(t, res.Console, 2)
}

func TestWorker_ConstructorEscapeBlocked(t *testing.T) {
	w := NewWorker()
	res := w.Run(context.Background(), Job{
		Source:   `var g = (function(){}).constructor; output.hasEscape = String(g !== undefined);`,
		Deadline: time.Second,
	})

	require.Equal(t, models.ExecutionStatusSuccess, res.Status)
	assert.Equal(t, "false", res.Outputs["hasEscape"])
}
