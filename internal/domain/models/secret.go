// SPDX-License-Identifier: AGPL-3.0-or-later
package models

import (
	"regexp"
	"time"
)

// MaxSecretNameLength bounds a secret's name (spec §3: ≤ 128 chars).
const MaxSecretNameLength = 128

// SecretNamePattern is the allowed shape of a secret name: an upper-case
// identifier, matching how user code references it as secrets.NAME.
var SecretNamePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// Secret is a tenant-scoped, name-addressable encrypted string. The core
// never persists or logs its plaintext (I1); it decrypts on demand and
// increments the usage counter in bulk for every name referenced in a
// dispatched Code Action's source.
type Secret struct {
	Name         string
	TenantID     TenantID
	Ciphertext   []byte
	IV           []byte
	AuthTag      []byte
	UsageCount   int64
	LastUsedAt   time.Time
	CreatedAt    time.Time
}

// ValidSecretName reports whether the secret's name matches the required pattern
// and length cap.
func ValidSecretName(name string) bool {
	return len(name) > 0 && len(name) <= MaxSecretNameLength && SecretNamePattern.MatchString(name)
}
