// SPDX-License-Identifier: GPL-3.0-or-later

package connmgr

import (
	"net/netip"
	"testing"
	"time"

	"github.com/bassosimone/netstub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMonitoredTransport registers the transport in the model's active
// set immediately.
func TestNewMonitoredTransportRegisters(t *testing.T) {
	model := newServerModel(netip.MustParseAddrPort("10.0.0.1:443"))
	conn := newMinimalConn()
	now := time.Now()

	transport := newMonitoredTransport(conn, model, "alice", now)
	require.NotNil(t, transport)

	assert.Equal(t, 1, model.ActiveCount())
	assert.Equal(t, "alice", transport.CredentialIdentity())
	assert.Equal(t, now, transport.CreatedAt())
}

// Close deregisters from the active set exactly once and forwards to the
// underlying connection, even across repeated calls.
func TestMonitoredTransportCloseIsIdempotent(t *testing.T) {
	model := newServerModel(netip.MustParseAddrPort("10.0.0.1:443"))
	closeCount := 0
	conn := newMinimalConn()
	conn.CloseFunc = func() error {
		closeCount++
		return nil
	}

	transport := newMonitoredTransport(conn, model, nil, time.Now())
	require.Equal(t, 1, model.ActiveCount())

	require.NoError(t, transport.Close())
	assert.Equal(t, 0, model.ActiveCount())
	assert.Equal(t, 1, closeCount)

	require.NoError(t, transport.Close())
	assert.Equal(t, 0, model.ActiveCount())
	assert.Equal(t, 1, closeCount)
}

// ShutdownRead and ShutdownWrite deregister from the active set and
// forward to the underlying connection when it supports a half-close.
func TestMonitoredTransportShutdown(t *testing.T) {
	model := newServerModel(netip.MustParseAddrPort("10.0.0.1:443"))
	var readClosed, writeClosed bool
	conn := &halfCloseableConn{
		FuncConn: netstub.FuncConn{},
		closeReadFunc: func() error {
			readClosed = true
			return nil
		},
		closeWriteFunc: func() error {
			writeClosed = true
			return nil
		},
	}

	transport := newMonitoredTransport(conn, model, nil, time.Now())
	require.NoError(t, transport.ShutdownRead())
	assert.True(t, readClosed)
	assert.Equal(t, 0, model.ActiveCount())

	transport2 := newMonitoredTransport(conn, model, nil, time.Now())
	require.NoError(t, transport2.ShutdownWrite())
	assert.True(t, writeClosed)
	assert.Equal(t, 0, model.ActiveCount())
}

// halfCloseableConn adds CloseRead/CloseWrite to netstub.FuncConn, which
// does not model a half-closeable connection.
type halfCloseableConn struct {
	netstub.FuncConn
	closeReadFunc  func() error
	closeWriteFunc func() error
}

func (c *halfCloseableConn) CloseRead() error  { return c.closeReadFunc() }
func (c *halfCloseableConn) CloseWrite() error { return c.closeWriteFunc() }

// Distinct MonitoredTransports receive distinct transportIDs.
func TestTransportIDsAreDistinct(t *testing.T) {
	id1 := newTransportID()
	id2 := newTransportID()
	assert.NotEqual(t, id1, id2)
}
