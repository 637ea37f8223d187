// SPDX-License-Identifier: AGPL-3.0-or-later
// Package actions implements the POST /v1/actions/{webhook,code,format}
// endpoints, the action-dispatch HTTP boundary described in spec §6.1: one
// handler per action kind, sharing envelope parsing, tenant resolution, and
// the always-200 response contract.
package actions

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/triops/actioncore/internal/application/services"
	"github.com/triops/actioncore/internal/domain/models"
	"github.com/triops/actioncore/internal/presentation/api/shared"
	"github.com/triops/actioncore/pkg/logger"
)

// TenantResolver resolves the platform's portal numbering to a tenant; the
// action-dispatch boundary only has origin.portalId until the envelope body
// is parsed (spec §6.1), so this runs unscoped, before the Dispatcher opens
// its own RLS transaction for the resolved tenant.
type TenantResolver interface {
	FindByPortalID(ctx context.Context, portalID int64) (*models.Tenant, error)
}

// Handler wires the three action-dispatch routes to a single Dispatcher.
// outputFieldPrefix is the opaque prefix MarshalOutputFields uses (spec §9
// Open Question: chosen at configuration time, not hardcoded).
type Handler struct {
	dispatcher        *services.Dispatcher
	tenants           TenantResolver
	outputFieldPrefix string
}

func NewHandler(dispatcher *services.Dispatcher, tenants TenantResolver, outputFieldPrefix string) *Handler {
	if outputFieldPrefix == "" {
		outputFieldPrefix = "hs"
	}
	return &Handler{dispatcher: dispatcher, tenants: tenants, outputFieldPrefix: outputFieldPrefix}
}

// HandleWebhook dispatches a Webhook Action invocation.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, models.ActionKindWebhook)
}

// HandleCode dispatches a Code Action invocation.
func (h *Handler) HandleCode(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, models.ActionKindCode)
}

// HandleFormat dispatches a Formula Evaluator invocation.
func (h *Handler) HandleFormat(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, models.ActionKindFormat)
}

// dispatch parses the already signature-verified raw body into an
// ActionEnvelope, resolves its tenant, and delegates the rest to the
// Dispatcher. Every outcome short of a malformed body renders as HTTP 200
// with a tagged outputFields payload (spec §9: "always-200 response
// contract"); only body parsing failures before a tenant is even known
// return a 4xx, since there is no tenant-scoped envelope to report
// success=false against yet.
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, kind models.ActionKind) {
	ctx := r.Context()

	body, ok := shared.RawBodyFromContext(ctx)
	if !ok {
		shared.WriteError(w, http.StatusInternalServerError, shared.ErrCodeInternal, "raw body missing from context", nil)
		return
	}

	var envelope models.ActionEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		shared.WriteError(w, http.StatusBadRequest, shared.ErrCodeBadRequest, "malformed action envelope", nil)
		return
	}

	tenant, err := h.tenants.FindByPortalID(ctx, envelope.Origin.PortalID)
	if err != nil {
		logger.Logger.Error("actions: tenant lookup failed", "portal_id", envelope.Origin.PortalID, "error", err.Error())
		h.writeResult(w, models.Internal("tenant lookup failed"))
		return
	}
	if tenant == nil {
		h.writeResult(w, models.UserError(models.ErrTenantNotFound.Error()))
		return
	}

	result := h.dispatcher.Dispatch(ctx, kind, tenant.ID, envelope)
	h.writeResult(w, result)
}

func (h *Handler) writeResult(w http.ResponseWriter, result models.ActionResult) {
	body, err := models.MarshalOutputFields(h.outputFieldPrefix, result)
	if err != nil {
		logger.Logger.Error("actions: failed to marshal output fields", "error", err.Error())
		shared.WriteError(w, http.StatusInternalServerError, shared.ErrCodeInternal, "failed to render result", nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
