// SPDX-License-Identifier: AGPL-3.0-or-later
package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triops/actioncore/internal/domain/models"
	"github.com/triops/actioncore/internal/infrastructure/sandbox"
	"github.com/triops/actioncore/internal/infrastructure/ssrf"
)

type fakeTenantStore struct {
	tenant *models.Tenant
	err    error
}

func (f *fakeTenantStore) Find(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	return f.tenant, f.err
}
func (f *fakeTenantStore) FindByPortalID(ctx context.Context, portalID int64) (*models.Tenant, error) {
	return f.tenant, f.err
}
func (f *fakeTenantStore) UpdateTokens(ctx context.Context, tenantID uuid.UUID, encryptedTokens, iv []byte) error {
	return nil
}
func (f *fakeTenantStore) TouchActivity(ctx context.Context, tenantID uuid.UUID) error { return nil }

type noopQuota struct{}

func (noopQuota) Check(ctx context.Context, tenantID uuid.UUID, kind models.ActionKind) error {
	return nil
}
func (noopQuota) Record(ctx context.Context, tenantID uuid.UUID, kind models.ActionKind) error {
	return nil
}

type noopAudit struct{}

func (noopAudit) Log(ctx context.Context, tenantID uuid.UUID, action string, metadata map[string]interface{}) {
}

func newTestDispatcher(t *testing.T, tenant *models.Tenant, srv *httptest.Server) (*Dispatcher, *fakeExecutionStore) {
	t.Helper()
	tenants := &fakeTenantStore{tenant: tenant}
	store := &fakeExecutionStore{}
	recorder := NewExecutionRecorder(store)
	formula := NewFormulaEvaluator()
	codeExec := NewCodeExecutor(NewSecretResolver(&fakeSecretStore{}, fakeEncryptor{}), sandbox.NewWorker())

	webhookExec := NewWebhookExecutor(ssrf.NewGuard(nil))
	if srv != nil {
		webhookExec.guard = loopbackGuardFor(t, srv)
	}

	return NewDispatcher(tenants, webhookExec, codeExec, formula, recorder, noopQuota{}, noopAudit{}, nil), store
}

func loopbackGuardFor(t *testing.T, srv *httptest.Server) urlGuard {
	t.Helper()
	e := newGuardedExecutor(t, srv)
	return e.guard
}

func activeTenant() *models.Tenant {
	return &models.Tenant{ID: uuid.New(), Status: models.TenantStatusActive, Caps: models.DefaultTenantCaps()}
}

func TestDispatcher_RejectsUnknownTenant(t *testing.T) {
	d, _ := newTestDispatcher(t, nil, nil)
	result := d.Dispatch(context.Background(), models.ActionKindFormat, uuid.New(), models.ActionEnvelope{})
	assert.Equal(t, models.ActionResultUserError, result.Kind)
	assert.Equal(t, models.ErrTenantNotFound.Error(), result.Message)
}

func TestDispatcher_RejectsSuspendedTenant(t *testing.T) {
	tenant := activeTenant()
	tenant.Status = models.TenantStatusSuspended
	d, _ := newTestDispatcher(t, tenant, nil)

	result := d.Dispatch(context.Background(), models.ActionKindFormat, tenant.ID, models.ActionEnvelope{})
	assert.Equal(t, models.ActionResultUserError, result.Kind)
	assert.Equal(t, models.ErrTenantSuspended.Error(), result.Message)
}

func TestDispatcher_FormatActionSuccess(t *testing.T) {
	tenant := activeTenant()
	d, store := newTestDispatcher(t, tenant, nil)

	envelope := models.ActionEnvelope{
		Context:     map[string]interface{}{"workflowId": "wf-1"},
		Object:      models.ActionObject{ObjectType: "contact", ObjectID: "1", Properties: map[string]interface{}{}},
		InputFields: map[string]interface{}{"formula": "upper(hello)"},
	}
	result := d.Dispatch(context.Background(), models.ActionKindFormat, tenant.ID, envelope)

	require.Equal(t, models.ActionResultSuccess, result.Kind)
	assert.Equal(t, "HELLO", result.Outputs["result"])
	assert.Len(t, store.inserted, 1)
}

func TestDispatcher_WebhookActionSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tenant := activeTenant()
	d, _ := newTestDispatcher(t, tenant, srv)

	envelope := models.ActionEnvelope{
		Context:     map[string]interface{}{"workflowId": "wf-2"},
		Object:      models.ActionObject{Properties: map[string]interface{}{}},
		InputFields: map[string]interface{}{"method": "POST", "url": srv.URL},
	}
	result := d.Dispatch(context.Background(), models.ActionKindWebhook, tenant.ID, envelope)
	assert.Equal(t, models.ActionResultSuccess, result.Kind)
}

func TestDispatcher_UnknownActionKind(t *testing.T) {
	tenant := activeTenant()
	d, _ := newTestDispatcher(t, tenant, nil)
	result := d.Dispatch(context.Background(), models.ActionKind("bogus"), tenant.ID, models.ActionEnvelope{})
	assert.Equal(t, models.ActionResultUserError, result.Kind)
}

func TestDispatcher_EffectiveTimeoutCapsRequestedDuration(t *testing.T) {
	tenant := activeTenant()
	tenant.Caps.CodeTimeout = 5 * time.Millisecond
	d, _ := newTestDispatcher(t, tenant, nil)

	envelope := models.ActionEnvelope{
		InputFields: map[string]interface{}{"source": "while(true){}", "timeoutMs": 60000},
	}
	result := d.Dispatch(context.Background(), models.ActionKindCode, tenant.ID, envelope)
	assert.Equal(t, models.ActionResultTimeout, result.Kind)
}
