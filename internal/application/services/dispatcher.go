// SPDX-License-Identifier: AGPL-3.0-or-later
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/triops/actioncore/internal/domain/models"
	"github.com/triops/actioncore/pkg/providers"
)

// Dispatcher is the single place the always-200 response contract is
// enforced: it loads the tenant, derives the effective timeout, routes to
// the handler for the action kind encoded in the route, and converts every
// downstream failure into a tagged, sanitized ActionResult (spec §4.2).
type Dispatcher struct {
	tenants  providers.TenantStore
	webhooks *WebhookExecutor
	code     *CodeExecutor
	formula  *FormulaEvaluator
	recorder *ExecutionRecorder
	quota    providers.QuotaEnforcer
	audit    providers.AuditLogger
	metrics  providers.MetricsRecorder
	rls      providers.TxRunner
	now      func() time.Time
}

func NewDispatcher(
	tenants providers.TenantStore,
	webhooks *WebhookExecutor,
	code *CodeExecutor,
	formula *FormulaEvaluator,
	recorder *ExecutionRecorder,
	quota providers.QuotaEnforcer,
	audit providers.AuditLogger,
	metrics providers.MetricsRecorder,
) *Dispatcher {
	return &Dispatcher{
		tenants: tenants, webhooks: webhooks, code: code, formula: formula,
		recorder: recorder, quota: quota, audit: audit, metrics: metrics, now: time.Now,
	}
}

// WithRLS attaches the collaborator that scopes every downstream store call
// made during Dispatch to one RLS transaction for the dispatched tenant.
// Without it (e.g. in unit tests backed by fakes), Dispatch runs against
// the bare context, unscoped.
func (d *Dispatcher) WithRLS(rls providers.TxRunner) *Dispatcher {
	d.rls = rls
	return d
}

// RequestedTimeout is read from the envelope's inputFields when the action
// configuration specifies one (e.g. a per-step custom timeout); absent it,
// the tenant's cap alone governs.
type RequestedTimeout struct {
	Milliseconds int64 `json:"timeoutMs"`
}

// Dispatch runs one action invocation end-to-end: tenant load → effective
// deadline → handler → Execution Record write, always returning a result
// the presentation layer can render as HTTP 200 (spec §9: "always-200
// response contract").
func (d *Dispatcher) Dispatch(ctx context.Context, kind models.ActionKind, tenantID models.TenantID, envelope models.ActionEnvelope) models.ActionResult {
	if d.rls == nil {
		return d.dispatch(ctx, kind, tenantID, envelope)
	}

	var result models.ActionResult
	if err := d.rls.RunInTenantTx(ctx, tenantID, func(txCtx context.Context) error {
		result = d.dispatch(txCtx, kind, tenantID, envelope)
		return nil
	}); err != nil {
		return models.Internal(SanitizeError(err.Error()))
	}
	return result
}

// dispatch is Dispatch's body, run either directly or inside the RLS
// transaction Dispatch opens via d.rls.
func (d *Dispatcher) dispatch(ctx context.Context, kind models.ActionKind, tenantID models.TenantID, envelope models.ActionEnvelope) models.ActionResult {
	start := d.now()

	tenant, err := d.tenants.Find(ctx, tenantID)
	if err != nil {
		return d.finish(ctx, kind, tenantID, envelope, models.UserError(SanitizeError(err.Error())), start)
	}
	if tenant == nil {
		return d.finish(ctx, kind, tenantID, envelope, models.UserError(models.ErrTenantNotFound.Error()), start)
	}
	if !tenant.IsActive() {
		return d.finish(ctx, kind, tenantID, envelope, models.UserError(models.ErrTenantSuspended.Error()), start)
	}

	if d.quota != nil {
		if err := d.quota.Check(ctx, tenantID, kind); err != nil {
			return d.finish(ctx, kind, tenantID, envelope, models.UserError(SanitizeError(err.Error())), start)
		}
	}

	requested := requestedTimeout(envelope.InputFields)
	deadline := tenant.EffectiveTimeout(kind, requested)
	dispatchCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var result models.ActionResult
	switch kind {
	case models.ActionKindWebhook:
		result = d.dispatchWebhook(dispatchCtx, envelope)
	case models.ActionKindCode:
		result = d.dispatchCode(dispatchCtx, tenantID, envelope, deadline)
	case models.ActionKindFormat:
		result = d.dispatchFormat(envelope)
	default:
		result = models.UserError(models.ErrUnknownActionKind.Error())
	}

	if dispatchCtx.Err() != nil {
		result = models.Timeout()
	}

	if d.quota != nil {
		_ = d.quota.Record(ctx, tenantID, kind)
	}
	if d.audit != nil {
		d.audit.Log(ctx, tenantID, "action.dispatch", map[string]interface{}{"kind": kind, "workflow_id": envelope.WorkflowID(), "success": result.Kind == models.ActionResultSuccess})
	}

	return d.finish(ctx, kind, tenantID, envelope, result, start)
}

func (d *Dispatcher) dispatchWebhook(ctx context.Context, envelope models.ActionEnvelope) models.ActionResult {
	var cfg WebhookConfig
	_ = remarshal(envelope.InputFields, &cfg)
	inputs := numberedInputs(envelope.InputFields)
	return d.webhooks.Execute(ctx, cfg, envelope.Object, inputs)
}

func (d *Dispatcher) dispatchCode(ctx context.Context, tenantID models.TenantID, envelope models.ActionEnvelope, deadline time.Duration) models.ActionResult {
	source, _ := envelope.InputFields["source"].(string)
	if source == "" {
		return models.UserError(models.ErrSnippetNotFound.Error())
	}
	return d.code.Execute(ctx, tenantID, source, envelope.Object, envelope.InputFields, envelope.Context, deadline)
}

func (d *Dispatcher) dispatchFormat(envelope models.ActionEnvelope) models.ActionResult {
	formula, _ := envelope.InputFields["formula"].(string)
	inputs := numberedInputs(envelope.InputFields)

	result, num, err := d.formula.Evaluate(formula, envelope.Object.Properties, inputs)
	if err != nil {
		return models.UserError(err.Error())
	}
	outputs := map[string]interface{}{"result": result}
	if num != nil {
		outputs["result_number"] = *num
	} else {
		outputs["result_number"] = nil
	}
	return models.Success(outputs)
}

func (d *Dispatcher) finish(ctx context.Context, kind models.ActionKind, tenantID models.TenantID, envelope models.ActionEnvelope, result models.ActionResult, start time.Time) models.ActionResult {
	result.Duration = int64(d.now().Sub(start))
	if d.recorder != nil {
		reqSnapshot, _ := json.Marshal(envelope)
		respSnapshot, _ := json.Marshal(result.Outputs)
		d.recorder.Record(ctx, tenantID, kind, envelope.WorkflowID(), envelope.ObjectRef(), result, string(reqSnapshot), string(respSnapshot))
	}
	if d.metrics != nil {
		d.metrics.ObserveDispatch(string(kind), string(result.Kind))
	}
	return result
}

func requestedTimeout(inputFields map[string]interface{}) time.Duration {
	var rt RequestedTimeout
	if err := remarshal(inputFields, &rt); err != nil || rt.Milliseconds <= 0 {
		return 0
	}
	return time.Duration(rt.Milliseconds) * time.Millisecond
}

// numberedInputs extracts a positional slice from an "inputs" array field,
// used to resolve [[inputN]] placeholders.
func numberedInputs(inputFields map[string]interface{}) []interface{} {
	raw, ok := inputFields["inputs"]
	if !ok {
		return nil
	}
	arr, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	return arr
}

func remarshal(src map[string]interface{}, dst interface{}) error {
	b, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("remarshal: %w", err)
	}
	return json.Unmarshal(b, dst)
}
