// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: original_source/connection_mgr.py (self.sockpools = weakref.WeakKeyDictionary())
//

package connmgr

import (
	"sync"
)

// CredentialPoolRegistry routes a credential identity to its [*SockPool],
// creating pools lazily. One [*SockPool] exists per distinct credential
// identity.
//
// Go has no weak map, but the registry only ever grows by a bounded,
// slowly-changing set of identities in practice (one per distinct
// credential object a process uses), so — unlike Python's
// weakref.WeakKeyDictionary — entries are retained for the life of the
// process rather than pruned when a credential is collected. This keeps
// the common case (a handful of long-lived ambient credentials) simple;
// see DESIGN.md for the tradeoff against a weak-keying alternative.
type CredentialPoolRegistry struct {
	mu    sync.Mutex
	pools map[any]*SockPool
}

// NewCredentialPoolRegistry returns an empty [*CredentialPoolRegistry].
func NewCredentialPoolRegistry() *CredentialPoolRegistry {
	return &CredentialPoolRegistry{pools: make(map[any]*SockPool)}
}

// Get returns the [*SockPool] for identity, creating one with default
// caps on first reference.
func (r *CredentialPoolRegistry) Get(identity any) *SockPool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pool, ok := r.pools[identity]; ok {
		return pool
	}
	pool := NewSockPool(DefaultIdleTimeout, DefaultGlobalCap)
	r.pools[identity] = pool
	return pool
}
