// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: original_source/connection_mgr.py (Protected, NULL_PROTECTED)
//

package connmgr

import "crypto/tls"

// Credential is an opaque holder of client-side TLS configuration and an
// identity used to partition [SockPool]s. It corresponds to the
// "Protected" collaborator: accessed only as a TLS
// context factory and as a comparable key, never inspected further by
// this package.
type Credential interface {
	// Identity returns a comparable value used as the key selecting this
	// credential's [SockPool]. Two Credentials that should share a pool
	// must return equal identities.
	Identity() any

	// ClientTLSConfig returns the [*tls.Config] used to TLS-wrap
	// connections dialed under this credential.
	ClientTLSConfig() *tls.Config
}

// noCredential is the sentinel "no-credential" key: it compares equal
// only to itself, and TLS-wrapping is never attempted while it is in
// effect.
type noCredential struct{}

// NoCredential is the zero credential: connections dialed under it are
// never TLS-wrapped, and it selects the pool shared by all unauthenticated
// callers.
var NoCredential Credential = noCredential{}

func (noCredential) Identity() any { return noCredential{} }

func (noCredential) ClientTLSConfig() *tls.Config {
	panic("connmgr: ClientTLSConfig called on NoCredential")
}

// resolveCredential normalizes the tri-state {none, true, explicit}
// credential argument accepted by [ConnectionManager.GetConnection]
// into a concrete [Credential].
//
//   - nil or false               -> [NoCredential]
//   - true                       -> defaultCredential (the ambient default)
//   - a [Credential] value       -> that value
func resolveCredential(credential any, defaultCredential Credential) Credential {
	switch v := credential.(type) {
	case nil:
		return NoCredential
	case bool:
		if v {
			if defaultCredential != nil {
				return defaultCredential
			}
			return NoCredential
		}
		return NoCredential
	case Credential:
		return v
	default:
		return NoCredential
	}
}

// UseDefaultCredential is sugar for the "true" tri-state value accepted
// by [ConnectionManager.GetConnection], for callers who prefer a typed
// constant to a raw bool.
func UseDefaultCredential() any { return true }

// WithCredential is sugar for passing an explicit [Credential] to
// [ConnectionManager.GetConnection].
func WithCredential(c Credential) any { return c }
