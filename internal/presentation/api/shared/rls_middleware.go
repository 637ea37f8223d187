// SPDX-License-Identifier: AGPL-3.0-or-later
package shared

import (
	"database/sql"
	"net/http"

	"github.com/triops/actioncore/internal/infrastructure/dbctx"
	"github.com/triops/actioncore/pkg/logger"
)

// RLSMiddleware provides Row Level Security context for the admin API,
// where the tenant is already known from the JWT by the time this runs
// (RequireAdminJWT must come first). Action-dispatch routes instead scope
// their RLS transaction inside the dispatcher itself, since the tenant is
// only known once the envelope body has been parsed (spec §6.1).
type RLSMiddleware struct {
	db *sql.DB
}

func NewRLSMiddleware(db *sql.DB) *RLSMiddleware {
	return &RLSMiddleware{db: db}
}

// Handler wraps the request in a transaction with app.tenant_id set via
// set_config, committing on 2xx/3xx and rolling back otherwise or on panic.
func (m *RLSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := getRequestID(ctx)

		tenantID, ok := TenantIDFromContext(ctx)
		if !ok {
			WriteError(w, http.StatusInternalServerError, ErrCodeInternal, "missing tenant context", nil)
			return
		}

		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			logger.Logger.Error("rls_middleware: failed to begin transaction", "request_id", requestID, "error", err.Error())
			WriteError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to start database transaction", nil)
			return
		}

		if _, err := tx.ExecContext(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID.String()); err != nil {
			_ = tx.Rollback()
			logger.Logger.Error("rls_middleware: failed to set tenant context", "request_id", requestID, "tenant_id", tenantID, "error", err.Error())
			WriteError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to set tenant context", nil)
			return
		}

		ctxWithTx := dbctx.WithTx(ctx, tx)
		wrapped := &statusCapturingResponseWriter{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if rec := recover(); rec != nil {
				_ = tx.Rollback()
				logger.Logger.Error("rls_middleware: panic recovered, transaction rolled back", "request_id", requestID, "panic", rec)
				panic(rec)
			}
		}()

		next.ServeHTTP(wrapped, r.WithContext(ctxWithTx))

		if wrapped.status >= 200 && wrapped.status < 400 {
			if err := tx.Commit(); err != nil {
				logger.Logger.Error("rls_middleware: failed to commit transaction", "request_id", requestID, "error", err.Error())
			}
		} else {
			if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
				logger.Logger.Error("rls_middleware: failed to rollback transaction", "request_id", requestID, "error", err.Error())
			}
		}
	})
}

type statusCapturingResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusCapturingResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusCapturingResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
