// SPDX-License-Identifier: AGPL-3.0-or-later
package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triops/actioncore/internal/domain/models"
	"github.com/triops/actioncore/internal/infrastructure/sandbox"
	"github.com/triops/actioncore/pkg/providers"
)

func TestCodeExecutor_Success(t *testing.T) {
	store := &fakeSecretStore{secrets: []providers.ResolvedSecret{
		{ID: "1", Name: "API_KEY", Ciphertext: []byte("shh")},
	}}
	resolver := NewSecretResolver(store, fakeEncryptor{})
	executor := NewCodeExecutor(resolver, sandbox.NewWorker())

	result := executor.Execute(context.Background(), uuid.New(),
		`output.token = secrets.API_KEY;`,
		models.ActionObject{Properties: map[string]interface{}{}},
		map[string]interface{}{}, map[string]interface{}{}, time.Second)

	require.Equal(t, models.ActionResultSuccess, result.Kind)
	assert.Equal(t, "shh", result.Outputs["token"])
	assert.Equal(t, []string{"1"}, store.incrementedIDs)
}

func TestCodeExecutor_ThrowBecomesUserError(t *testing.T) {
	resolver := NewSecretResolver(&fakeSecretStore{}, fakeEncryptor{})
	executor := NewCodeExecutor(resolver, sandbox.NewWorker())

	result := executor.Execute(context.Background(), uuid.New(),
		`throw new Error("bad input");`,
		models.ActionObject{}, nil, nil, time.Second)

	assert.Equal(t, models.ActionResultUserError, result.Kind)
	assert.Contains(t, result.Message, "bad input")
}

func TestCodeExecutor_OversizeSourceRejected(t *testing.T) {
	resolver := NewSecretResolver(&fakeSecretStore{}, fakeEncryptor{})
	executor := NewCodeExecutor(resolver, sandbox.NewWorker())

	huge := make([]byte, models.MaxSnippetSourceBytes+1)
	result := executor.Execute(context.Background(), uuid.New(), string(huge), models.ActionObject{}, nil, nil, time.Second)

	assert.Equal(t, models.ActionResultUserError, result.Kind)
}
