// SPDX-License-Identifier: AGPL-3.0-or-later
package actions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triops/actioncore/internal/application/services"
	"github.com/triops/actioncore/internal/domain/models"
	"github.com/triops/actioncore/internal/infrastructure/sandbox"
	"github.com/triops/actioncore/internal/infrastructure/ssrf"
	"github.com/triops/actioncore/internal/presentation/api/shared"
)

type fakeTenantResolver struct {
	tenant *models.Tenant
	err    error
}

func (f *fakeTenantResolver) Find(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	return f.tenant, f.err
}
func (f *fakeTenantResolver) FindByPortalID(ctx context.Context, portalID int64) (*models.Tenant, error) {
	return f.tenant, f.err
}
func (f *fakeTenantResolver) UpdateTokens(ctx context.Context, tenantID uuid.UUID, encryptedTokens, iv []byte) error {
	return nil
}
func (f *fakeTenantResolver) TouchActivity(ctx context.Context, tenantID uuid.UUID) error { return nil }

type fakeExecutionStore struct{}

func (fakeExecutionStore) InsertExecution(ctx context.Context, rec models.ExecutionRecord) error {
	return nil
}
func (fakeExecutionStore) UpsertUsage(ctx context.Context, tenantID models.TenantID, day string, delta models.UsageDelta) error {
	return nil
}

func newTestHandler(tenant *models.Tenant) *Handler {
	tenants := &fakeTenantResolver{tenant: tenant}
	recorder := services.NewExecutionRecorder(fakeExecutionStore{})
	formula := services.NewFormulaEvaluator()
	webhookExec := services.NewWebhookExecutor(ssrf.NewGuard(nil))
	codeExec := services.NewCodeExecutor(nil, sandbox.NewWorker())
	dispatcher := services.NewDispatcher(tenants, webhookExec, codeExec, formula, recorder, nil, nil, nil)
	return NewHandler(dispatcher, tenants, "hs")
}

func withRawBody(req *http.Request, body []byte) *http.Request {
	ctx := context.WithValue(req.Context(), shared.ContextKeyRawBody, body)
	return req.WithContext(ctx)
}

func TestHandleFormat_ReturnsAlways200OnUserError(t *testing.T) {
	h := newTestHandler(nil)

	envelope := models.ActionEnvelope{Origin: models.ActionOrigin{PortalID: 1}}
	body, err := json.Marshal(envelope)
	require.NoError(t, err)

	req := withRawBody(httptest.NewRequest(http.MethodPost, "/v1/actions/format", nil), body)
	rec := httptest.NewRecorder()

	h.HandleFormat(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		OutputFields map[string]interface{} `json:"outputFields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, false, payload.OutputFields["hs_success"])
}

func TestHandleFormat_SuccessPath(t *testing.T) {
	tenant := &models.Tenant{ID: uuid.New(), Status: models.TenantStatusActive, Caps: models.DefaultTenantCaps()}
	h := newTestHandler(tenant)

	envelope := models.ActionEnvelope{
		Origin:      models.ActionOrigin{PortalID: 42},
		Object:      models.ActionObject{Properties: map[string]interface{}{}},
		InputFields: map[string]interface{}{"formula": "upper(hello)"},
	}
	body, err := json.Marshal(envelope)
	require.NoError(t, err)

	req := withRawBody(httptest.NewRequest(http.MethodPost, "/v1/actions/format", nil), body)
	rec := httptest.NewRecorder()

	h.HandleFormat(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		OutputFields map[string]interface{} `json:"outputFields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, true, payload.OutputFields["hs_success"])
	assert.Equal(t, "HELLO", payload.OutputFields["result"])
}

func TestDispatch_MissingRawBodyIsInternalError(t *testing.T) {
	h := newTestHandler(nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/actions/format", nil)
	rec := httptest.NewRecorder()

	h.HandleFormat(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDispatch_MalformedBodyReturns400(t *testing.T) {
	h := newTestHandler(nil)
	req := withRawBody(httptest.NewRequest(http.MethodPost, "/v1/actions/format", nil), []byte("not json"))
	rec := httptest.NewRecorder()

	h.HandleFormat(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
