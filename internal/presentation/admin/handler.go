// SPDX-License-Identifier: AGPL-3.0-or-later
// Package admin implements the JWT-authenticated, RLS-scoped operator API
// for reading back Execution Records and Usage Counters (spec §9
// supplemented features: admin read surface distinct from action-dispatch).
package admin

import (
	"net/http"
	"time"

	"github.com/triops/actioncore/internal/presentation/api/shared"
	"github.com/triops/actioncore/pkg/providers"
)

// Handler serves the read-only admin routes. Every method assumes it runs
// behind RequireAdminJWT + RLSMiddleware.Handler, so the tenant is already
// bound to both the request context and the RLS transaction.
type Handler struct {
	store providers.ExecutionQueryStore
}

func NewHandler(store providers.ExecutionQueryStore) *Handler {
	return &Handler{store: store}
}

// HandleListExecutions serves GET /v1/admin/executions, newest first,
// paginated via page and limit (or page_size) query params.
func (h *Handler) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantIDFromContext(r.Context())
	if !ok {
		shared.WriteError(w, http.StatusInternalServerError, shared.ErrCodeInternal, "missing tenant context", nil)
		return
	}

	params := shared.ParsePaginationParams(r, 50, 200)
	records, total, err := h.store.ListExecutions(r.Context(), tenantID, params.PageSize, params.Offset)
	if err != nil {
		shared.WriteInternalError(w)
		return
	}

	shared.WritePaginatedJSON(w, records, params.Page, params.PageSize, total)
}

// HandleUsage serves GET /v1/admin/usage?from=yyyy-mm-dd&to=yyyy-mm-dd,
// defaulting to the trailing 30 days when the range is omitted.
func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantIDFromContext(r.Context())
	if !ok {
		shared.WriteError(w, http.StatusInternalServerError, shared.ErrCodeInternal, "missing tenant context", nil)
		return
	}

	now := time.Now().UTC()
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if to == "" {
		to = now.Format("2006-01-02")
	}
	if from == "" {
		from = now.AddDate(0, 0, -30).Format("2006-01-02")
	}

	counters, err := h.store.ListUsage(r.Context(), tenantID, from, to)
	if err != nil {
		shared.WriteInternalError(w)
		return
	}

	shared.WriteJSON(w, http.StatusOK, counters)
}
