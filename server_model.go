// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: original_source/connection_mgr.py (ServerModel, ServerModelDirectory)
//

package connmgr

import (
	"sync"
	"time"
)

// ServerModel holds observational state for one endpoint: an estimate of
// how many connections are currently open to it, and the last time a
// dial to it failed past its retry budget.
//
// ServerModel does not own any connection in a resource sense; it only
// counts [MonitoredTransport] registrations. It is safe for concurrent
// use.
type ServerModel struct {
	address Address

	mu        sync.Mutex
	lastError time.Time
	active    map[transportID]struct{}
}

// newServerModel returns a [*ServerModel] with a zero last-error and an
// empty active set.
func newServerModel(address Address) *ServerModel {
	return &ServerModel{
		address: address,
		active:  make(map[transportID]struct{}),
	}
}

// Address returns the endpoint this model tracks.
func (s *ServerModel) Address() Address {
	return s.address
}

// LastError returns the last time a dial to this endpoint exhausted its
// retry budget, or the zero [time.Time] if that has never happened.
func (s *ServerModel) LastError() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// markFailed records now as the last-failure time. Monotonic
// non-decreasing with respect to wall time: it is only ever overwritten
// with the current time, never rolled back.
func (s *ServerModel) markFailed(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = now
}

// ActiveCount returns the number of [MonitoredTransport]s currently
// registered as in-use against this endpoint.
func (s *ServerModel) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// register adds id to the active set.
//
// The active set stores transports by a non-owning [transportID], never
// by a strong pointer: a MonitoredTransport must remain collectible by
// the garbage collector while registered, so its finalizer-equivalent
// cleanup can still fire if the caller abandons it without closing.
func (s *ServerModel) register(id transportID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[id] = struct{}{}
}

// deregister removes id from the active set. Idempotent: removing an
// absent entry is a no-op.
func (s *ServerModel) deregister(id transportID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}

// ServerModelDirectory maps an [Address] to its [*ServerModel], creating
// entries lazily on first reference and retaining them for the life of
// the process. Safe for concurrent use.
type ServerModelDirectory struct {
	mu     sync.Mutex
	models map[Address]*ServerModel
}

// NewServerModelDirectory returns an empty [*ServerModelDirectory].
func NewServerModelDirectory() *ServerModelDirectory {
	return &ServerModelDirectory{models: make(map[Address]*ServerModel)}
}

// Get returns the [*ServerModel] for address, creating and inserting a
// fresh one (zero last-error, empty active set) on first reference.
func (d *ServerModelDirectory) Get(address Address) *ServerModel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if model, ok := d.models[address]; ok {
		return model
	}
	model := newServerModel(address)
	d.models[address] = model
	return model
}
