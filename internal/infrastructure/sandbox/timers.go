// SPDX-License-Identifier: AGPL-3.0-or-later
package sandbox

import (
	"sort"

	"github.com/dop251/goja"
)

type scheduledTimer struct {
	id        int
	delayMs   int64
	fn        goja.Callable
	cancelled bool
}

// timerQueue is a bounded, synchronous stand-in for setTimeout/clearTimeout:
// the sandbox has no real event loop, so callbacks registered during the
// main script body are drained in delay order once the script returns,
// capped at MaxTimers to bound cost on adversarial code that schedules
// unboundedly (spec §4.4.2: "bounded setTimeout/clearTimeout capped at the
// deadline").
type timerQueue struct {
	max     int
	nextID  int
	pending []*scheduledTimer
}

func newTimerQueue(max int) *timerQueue {
	return &timerQueue{max: max}
}

func (q *timerQueue) setTimeout(rt *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(q.pending) >= q.max {
			return rt.ToValue(-1)
		}
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			return rt.ToValue(-1)
		}
		var delay int64
		if len(call.Arguments) > 1 {
			delay = call.Argument(1).ToInteger()
		}
		q.nextID++
		q.pending = append(q.pending, &scheduledTimer{id: q.nextID, delayMs: delay, fn: fn})
		return rt.ToValue(q.nextID)
	}
}

func (q *timerQueue) clearTimeout() func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		id := int(call.Argument(0).ToInteger())
		for _, t := range q.pending {
			if t.id == id {
				t.cancelled = true
			}
		}
		return goja.Undefined()
	}
}

// drain invokes every non-cancelled timer in ascending delay order, once,
// synchronously. Timers scheduled by a timer callback during the drain are
// queued but never invoked.
func (q *timerQueue) drain(rt *goja.Runtime) {
	sort.SliceStable(q.pending, func(i, j int) bool { return q.pending[i].delayMs < q.pending[j].delayMs })
	for _, t := range q.pending {
		if t.cancelled {
			continue
		}
		_, _ = t.fn(goja.Undefined())
	}
}
