// SPDX-License-Identifier: AGPL-3.0-or-later
package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triops/actioncore/pkg/providers"
)

type fakeSecretStore struct {
	secrets      []providers.ResolvedSecret
	incrementedIDs []string
}

func (f *fakeSecretStore) List(ctx context.Context, tenantID uuid.UUID) ([]providers.ResolvedSecret, error) {
	return f.secrets, nil
}

func (f *fakeSecretStore) BulkIncrementUsage(ctx context.Context, secretIDs []string) error {
	f.incrementedIDs = secretIDs
	return nil
}

type fakeEncryptor struct{}

func (fakeEncryptor) Encrypt(plaintext []byte) ([]byte, []byte, []byte, error) {
	return plaintext, nil, nil, nil
}

func (fakeEncryptor) Decrypt(ciphertext, iv, tag []byte) ([]byte, error) {
	return ciphertext, nil
}

func TestReferencedNames_AllThreeSyntaxForms(t *testing.T) {
	src := `const k = secrets.API_KEY; const s = secrets['SIGNING_SECRET']; const t = secrets["TOKEN"]; secrets.API_KEY;`
	names := ReferencedNames(src)
	assert.Equal(t, []string{"API_KEY", "SIGNING_SECRET", "TOKEN"}, names)
}

func TestSecretResolver_OnlyDecryptsReferenced(t *testing.T) {
	store := &fakeSecretStore{secrets: []providers.ResolvedSecret{
		{ID: "1", Name: "API_KEY", Ciphertext: []byte("secret-value")},
		{ID: "2", Name: "UNUSED_SECRET", Ciphertext: []byte("never-touched")},
	}}
	resolver := NewSecretResolver(store, fakeEncryptor{})

	resolved, err := resolver.Resolve(context.Background(), uuid.New(), `fetch(secrets.API_KEY)`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"API_KEY": "secret-value"}, resolved)
	assert.Equal(t, []string{"1"}, store.incrementedIDs)
}

func TestSecretResolver_NoReferencesSkipsListing(t *testing.T) {
	resolver := NewSecretResolver(&fakeSecretStore{}, fakeEncryptor{})
	resolved, err := resolver.Resolve(context.Background(), uuid.New(), `console.log("hello")`)
	require.NoError(t, err)
	assert.Empty(t, resolved)
}
