// SPDX-License-Identifier: AGPL-3.0-or-later
package sandbox

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// consoleBuffer is the sandbox's buffered console, capped at
// MaxConsoleLines to bound memory even if user code logs in a loop (spec
// §4.4.2).
type consoleBuffer struct {
	lines []string
}

func newConsole() *consoleBuffer { return &consoleBuffer{} }

func (c *consoleBuffer) append(level string, call goja.FunctionCall) {
	if len(c.lines) >= MaxConsoleLines {
		return
	}
	parts := make([]string, len(call.Arguments))
	for i, a := range call.Arguments {
		parts[i] = a.String()
	}
	c.lines = append(c.lines, fmt.Sprintf("[%s] %s", level, strings.Join(parts, " ")))
}

// bind returns a goja object exposing log/warn/error, each a Go-backed
// function so arguments never re-enter the runtime as evaluated code.
func (c *consoleBuffer) bind(rt *goja.Runtime) *goja.Object {
	obj := rt.NewObject()
	for _, level := range []string{"log", "warn", "error"} {
		lvl := level
		_ = obj.Set(lvl, func(call goja.FunctionCall) goja.Value {
			c.append(lvl, call)
			return goja.Undefined()
		})
	}
	return obj
}
