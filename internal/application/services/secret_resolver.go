// SPDX-License-Identifier: AGPL-3.0-or-later
package services

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/triops/actioncore/internal/domain/models"
	"github.com/triops/actioncore/internal/infrastructure/cache"
	"github.com/triops/actioncore/pkg/providers"
)

// secretReference matches secrets.NAME, secrets['NAME'], secrets["NAME"]
// (spec §4.4.3).
var secretReference = regexp.MustCompile(`secrets(?:\.([A-Za-z_][A-Za-z0-9_]*)|\[['"]([^'"\]]+)['"]\])`)

// negativeLookupTTL bounds how long a "secret name doesn't exist for this
// tenant" result is trusted before re-checking the store, so a secret added
// shortly after a failed lookup becomes resolvable without a restart.
const negativeLookupTTL = 30 * time.Second

// SecretResolver decrypts only the secrets a given source textually
// references, limiting blast radius if a sandbox escape ever occurs, and
// increments usage for all resolved secrets in a single bulk update (spec
// §4.4.3).
type SecretResolver struct {
	store     providers.SecretStore
	encryptor providers.EncryptionPrimitive
	cache     cache.Cache
}

func NewSecretResolver(store providers.SecretStore, encryptor providers.EncryptionPrimitive) *SecretResolver {
	return &SecretResolver{store: store, encryptor: encryptor, cache: cache.NewMemoryCache()}
}

// WithCache swaps in a shared cache (e.g. Redis-backed) for the negative
// secret-name lookup, so repeated invocations of a misconfigured workflow
// referencing a nonexistent secret don't re-list and re-scan every tenant
// secret on every dispatch across replicas.
func (r *SecretResolver) WithCache(c cache.Cache) *SecretResolver {
	r.cache = c
	return r
}

func negativeLookupKey(tenantID models.TenantID, name string) string {
	return "secret-miss:" + tenantID.String() + ":" + name
}

// ReferencedNames returns the distinct secret names textually referenced in
// source, in first-appearance order.
func ReferencedNames(source string) []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range secretReference.FindAllStringSubmatch(source, -1) {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// Resolve loads and decrypts only the secrets referenced by source, and
// bulk-increments their usage counters in one call.
func (r *SecretResolver) Resolve(ctx context.Context, tenantID models.TenantID, source string) (map[string]string, error) {
	names := ReferencedNames(source)
	if len(names) == 0 {
		return map[string]string{}, nil
	}

	pending := make([]string, 0, len(names))
	for _, n := range names {
		if _, known := r.cache.Get(ctx, negativeLookupKey(tenantID, n)); !known {
			pending = append(pending, n)
		}
	}
	if len(pending) == 0 {
		return map[string]string{}, nil
	}

	all, err := r.store.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}

	wanted := make(map[string]bool, len(pending))
	for _, n := range pending {
		wanted[n] = true
	}

	resolved := make(map[string]string, len(pending))
	var usedIDs []string
	for _, s := range all {
		if !wanted[s.Name] {
			continue
		}
		plaintext, err := r.encryptor.Decrypt(s.Ciphertext, s.IV, s.AuthTag)
		if err != nil {
			return nil, fmt.Errorf("decrypt secret %q: %w", s.Name, err)
		}
		resolved[s.Name] = string(plaintext)
		usedIDs = append(usedIDs, s.ID)
		delete(wanted, s.Name)
	}

	for missing := range wanted {
		r.cache.Set(ctx, negativeLookupKey(tenantID, missing), "1", negativeLookupTTL)
	}

	if len(usedIDs) > 0 {
		if err := r.store.BulkIncrementUsage(ctx, usedIDs); err != nil {
			return nil, fmt.Errorf("bulk increment secret usage: %w", err)
		}
	}

	return resolved, nil
}
