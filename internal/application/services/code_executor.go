// SPDX-License-Identifier: AGPL-3.0-or-later
package services

import (
	"context"
	"time"

	"github.com/triops/actioncore/internal/domain/models"
	"github.com/triops/actioncore/internal/infrastructure/sandbox"
	"github.com/triops/actioncore/pkg/providers"
)

// CodeConfig describes a snippetId inputField. The Dispatcher does not read
// it: a Code Action takes its source text from inputFields["source"].
type CodeConfig struct {
	SnippetID string `json:"snippetId"`
}

// CodeExecutor runs the source text it is given in the sandbox worker under
// the tenant's effective code timeout, decrypting only the secrets that
// source references. It does not look up a stored snippet by ID.
type CodeExecutor struct {
	secrets *SecretResolver
	worker  *sandbox.Worker
	metrics providers.MetricsRecorder
}

func NewCodeExecutor(secrets *SecretResolver, worker *sandbox.Worker) *CodeExecutor {
	return &CodeExecutor{secrets: secrets, worker: worker}
}

// WithMetrics attaches a MetricsRecorder for sandbox wall-time observation.
func (e *CodeExecutor) WithMetrics(m providers.MetricsRecorder) *CodeExecutor {
	e.metrics = m
	return e
}

// Execute runs source against object/inputs/context under deadline, after
// resolving the secrets it references.
func (e *CodeExecutor) Execute(ctx context.Context, tenantID models.TenantID, source string, object models.ActionObject, inputs map[string]interface{}, reqContext map[string]interface{}, deadline time.Duration) models.ActionResult {
	if len(source) > models.MaxSnippetSourceBytes {
		return models.UserError(models.ErrOversizeSource.Error())
	}

	secretValues, err := e.secrets.Resolve(ctx, tenantID, source)
	if err != nil {
		return models.Internal(err.Error())
	}

	job := sandbox.Job{
		Source:   source,
		Inputs:   mergeObjectInto(inputs, object),
		Secrets:  secretValues,
		Context:  reqContext,
		Deadline: deadline,
	}

	start := time.Now()
	res := e.worker.Run(ctx, job)
	if e.metrics != nil {
		e.metrics.ObserveSandboxDuration(time.Since(start).Seconds())
	}
	switch res.Status {
	case models.ExecutionStatusTimeout:
		return models.Timeout()
	case models.ExecutionStatusError:
		return models.UserError(res.Error)
	default:
		outputs := make(map[string]interface{}, len(res.Outputs))
		for k, v := range res.Outputs {
			outputs[k] = v
		}
		if len(outputs) == 0 {
			outputs["output_1"] = ""
		}
		return models.Success(outputs)
	}
}

func mergeObjectInto(inputs map[string]interface{}, object models.ActionObject) map[string]interface{} {
	merged := make(map[string]interface{}, len(inputs)+1)
	for k, v := range inputs {
		merged[k] = v
	}
	merged["object"] = object.Properties
	return merged
}
