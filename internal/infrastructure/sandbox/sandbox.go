// SPDX-License-Identifier: AGPL-3.0-or-later
// Package sandbox runs untrusted Code Action source inside a goja
// JavaScript runtime with a fixed allow-list of globals, standing in for
// the OS-worker isolation model described for the Code Executor: each Job
// gets its own goja.Runtime (no shared VM state between tenants) evaluated
// in a dedicated goroutine under a host-enforced hard deadline.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/triops/actioncore/internal/domain/models"
)

const (
	MaxConsoleLines  = 100
	MaxOutputFields  = 5
	MaxTimers        = 50
	HostGrace        = 500 * time.Millisecond
	MemoryLimitBytes = 64 * 1024 * 1024
)

// Job is the single inbound message the worker accepts: source plus the
// data it is allowed to see, and the deadline it must honor (spec §4.4.1).
type Job struct {
	Source   string
	Inputs   map[string]interface{}
	Secrets  map[string]string
	Context  map[string]interface{}
	Deadline time.Duration
}

// Result is the single outbound message the worker produces.
type Result struct {
	Status  models.ExecutionStatus
	Outputs map[string]string
	Console []string
	Error   string // sanitized; stack traces never leave the worker
}

// Worker evaluates one Job per call. A Worker is not reused across calls
// with shared state; callers construct one per execution.
type Worker struct{}

func NewWorker() *Worker { return &Worker{} }

// Run evaluates job.Source and returns its Result, enforcing both a
// synchronous in-VM watchdog (via goja.Runtime.Interrupt) and, independent
// of that, a host-side hard wall-clock deadline that terminates the
// goroutine's runtime even if the script is stuck in a way the in-VM
// watchdog cannot observe (spec §4.4.1).
func (w *Worker) Run(ctx context.Context, job Job) Result {
	rt := goja.New()
	rt.SetMaxCallStackSize(256)
	rt.SetMemoryLimit(MemoryLimitBytes)

	resultCh := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- Result{Status: models.ExecutionStatusError, Error: fmt.Sprintf("sandbox panic: %v", r)}
			}
		}()
		resultCh <- evaluate(rt, job)
	}()

	hostDeadline := job.Deadline + HostGrace
	timer := time.NewTimer(hostDeadline)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		return res
	case <-timer.C:
		rt.Interrupt(models.ErrDeadlineExceeded)
		return Result{Status: models.ExecutionStatusTimeout, Error: models.ErrDeadlineExceeded.Error()}
	case <-ctx.Done():
		rt.Interrupt(ctx.Err())
		return Result{Status: models.ExecutionStatusTimeout, Error: models.ErrDeadlineExceeded.Error()}
	}
}

func evaluate(rt *goja.Runtime, job Job) Result {
	console := newConsole()
	timers := newTimerQueue(MaxTimers)

	if err := bindGlobals(rt, job, console, timers); err != nil {
		return Result{Status: models.ExecutionStatusError, Error: err.Error(), Console: console.lines}
	}

	watchdog := time.AfterFunc(job.Deadline, func() {
		rt.Interrupt(models.ErrDeadlineExceeded)
	})
	defer watchdog.Stop()

	_, err := rt.RunString(bootstrapScript)
	if err != nil {
		if _, ok := err.(*goja.InterruptedError); ok {
			return Result{Status: models.ExecutionStatusTimeout, Error: models.ErrDeadlineExceeded.Error(), Console: console.lines}
		}
		return Result{Status: models.ExecutionStatusError, Error: sanitizeThrow(err), Console: console.lines}
	}

	timers.drain(rt)

	outputs := readOutput(rt)
	return Result{Status: models.ExecutionStatusSuccess, Outputs: outputs, Console: console.lines}
}

// bootstrapScript is fixed framework code, never concatenated with user
// source. It constructs the user function via a single Function
// constructor call with the source passed as a sandbox variable, then
// neutralizes the constructor-escape vector by clearing the constructor
// reference on the function's prototype, Function.prototype (spec §4.4.2).
const bootstrapScript = `
(function(inputs, secrets, context, output, console, setTimeout, clearTimeout) {
  "use strict";
  var fn = new Function("inputs", "secrets", "context", "output", "console", "setTimeout", "clearTimeout", __userSource);
  Object.getPrototypeOf(fn).constructor = undefined;
  return fn(inputs, secrets, context, output, console, setTimeout, clearTimeout);
})(__inputs, __secrets, __context, __output, __console, __setTimeout, __clearTimeout);
`

func bindGlobals(rt *goja.Runtime, job Job, console *consoleBuffer, timers *timerQueue) error {
	if err := rt.Set("__userSource", job.Source); err != nil {
		return err
	}

	frozenInputs, err := frozenValue(rt, job.Inputs)
	if err != nil {
		return err
	}
	frozenSecrets, err := frozenValue(rt, secretsToInterface(job.Secrets))
	if err != nil {
		return err
	}
	frozenContext, err := frozenValue(rt, job.Context)
	if err != nil {
		return err
	}
	if err := rt.Set("__inputs", frozenInputs); err != nil {
		return err
	}
	if err := rt.Set("__secrets", frozenSecrets); err != nil {
		return err
	}
	if err := rt.Set("__context", frozenContext); err != nil {
		return err
	}
	if err := rt.Set("__output", rt.NewObject()); err != nil {
		return err
	}
	if err := rt.Set("__console", console.bind(rt)); err != nil {
		return err
	}
	if err := rt.Set("__setTimeout", timers.setTimeout(rt)); err != nil {
		return err
	}
	if err := rt.Set("__clearTimeout", timers.clearTimeout()); err != nil {
		return err
	}
	return nil
}

// frozenValue converts a Go value into a goja value and deep-freezes it so
// user code cannot mutate the copy the host handed in (spec §4.4.2:
// "Frozen deep copies of inputs, secrets, context").
func frozenValue(rt *goja.Runtime, v interface{}) (goja.Value, error) {
	val := rt.ToValue(v)
	freeze, ok := goja.AssertFunction(rt.Get("Object").ToObject(rt).Get("freeze"))
	if !ok {
		return val, nil
	}
	deepFreeze(rt, freeze, val)
	return val, nil
}

func deepFreeze(rt *goja.Runtime, freeze goja.Callable, v goja.Value) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return
	}
	for _, key := range obj.Keys() {
		deepFreeze(rt, freeze, obj.Get(key))
	}
	_, _ = freeze(goja.Undefined(), v)
}

func secretsToInterface(secrets map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(secrets))
	for k, v := range secrets {
		out[k] = v
	}
	return out
}

func readOutput(rt *goja.Runtime) map[string]string {
	raw := rt.Get("__output")
	obj, ok := raw.(*goja.Object)
	if !ok {
		return nil
	}
	keys := obj.Keys()
	if len(keys) > MaxOutputFields {
		keys = keys[:MaxOutputFields]
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = obj.Get(k).String()
	}
	return out
}

func sanitizeThrow(err error) string {
	if ex, ok := err.(*goja.Exception); ok {
		return ex.Value().String()
	}
	return "script error"
}
