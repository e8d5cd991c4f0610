// SPDX-License-Identifier: GPL-3.0-or-later

package connmgr

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCredential is a minimal [Credential] for tests.
type fakeCredential struct {
	id     string
	config *tls.Config
}

func (c fakeCredential) Identity() any                { return c.id }
func (c fakeCredential) ClientTLSConfig() *tls.Config { return c.config }

// NoCredential's identity compares equal to itself, and calling
// ClientTLSConfig on it panics: it must never be TLS-wrapped.
func TestNoCredential(t *testing.T) {
	assert.Equal(t, NoCredential.Identity(), NoCredential.Identity())
	assert.Panics(t, func() { NoCredential.ClientTLSConfig() })
}

// resolveCredential normalizes the {none, true, explicit} tri-state.
func TestResolveCredential(t *testing.T) {
	explicit := fakeCredential{id: "alice"}
	ambient := fakeCredential{id: "ambient"}

	tests := []struct {
		name       string
		credential any
		ambient    Credential
		want       Credential
	}{
		{"nil means no credential", nil, ambient, NoCredential},
		{"false means no credential", false, ambient, NoCredential},
		{"true means the ambient default", true, ambient, ambient},
		{"true with no ambient default falls back to no credential", true, nil, NoCredential},
		{"an explicit credential is used as-is", explicit, ambient, explicit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveCredential(tt.credential, tt.ambient)
			require.Equal(t, tt.want, got)
		})
	}
}

// UseDefaultCredential and WithCredential build the tri-state argument
// GetConnection expects.
func TestCredentialSugar(t *testing.T) {
	assert.Equal(t, true, UseDefaultCredential())

	explicit := fakeCredential{id: "bob"}
	assert.Equal(t, Credential(explicit), WithCredential(explicit))
}
