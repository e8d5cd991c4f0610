// SPDX-License-Identifier: GPL-3.0-or-later

package connmgr

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A freshly created ServerModel has a zero LastError and no active
// registrations.
func TestNewServerModelZeroValue(t *testing.T) {
	addr := netip.MustParseAddrPort("10.0.0.1:443")
	model := newServerModel(addr)

	assert.Equal(t, addr, model.Address())
	assert.True(t, model.LastError().IsZero())
	assert.Equal(t, 0, model.ActiveCount())
}

// markFailed records the given time as LastError.
func TestServerModelMarkFailed(t *testing.T) {
	model := newServerModel(netip.MustParseAddrPort("10.0.0.1:443"))
	now := time.Now()
	model.markFailed(now)
	assert.Equal(t, now, model.LastError())
}

// register/deregister maintain ActiveCount, and deregistering an absent
// id is a harmless no-op.
func TestServerModelRegisterDeregister(t *testing.T) {
	model := newServerModel(netip.MustParseAddrPort("10.0.0.1:443"))

	id1 := newTransportID()
	id2 := newTransportID()
	model.register(id1)
	model.register(id2)
	assert.Equal(t, 2, model.ActiveCount())

	model.deregister(id1)
	assert.Equal(t, 1, model.ActiveCount())

	model.deregister(id1)
	assert.Equal(t, 1, model.ActiveCount())
}

// ServerModelDirectory.Get creates an entry lazily and returns the same
// instance on subsequent calls for the same address.
func TestServerModelDirectoryGetIsStable(t *testing.T) {
	dir := NewServerModelDirectory()
	addr := netip.MustParseAddrPort("10.0.0.1:443")

	first := dir.Get(addr)
	second := dir.Get(addr)
	require.Same(t, first, second)

	other := dir.Get(netip.MustParseAddrPort("10.0.0.2:443"))
	assert.NotSame(t, first, other)
}
