// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: original_source/connection_mgr.py (MonitoredSocket)
//

package connmgr

import (
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// transportID is a non-owning handle identifying a [MonitoredTransport]
// inside a [ServerModel]'s active set. Using a generation counter rather
// than the transport's own pointer as the set's key means the active set
// never strongly references the transport, so an abandoned transport
// remains collectible and its cleanup still runs. See the design
// notes on avoiding a strong cycle between MonitoredTransport and its
// owning ServerModel.
type transportID uint64

var nextTransportID atomic.Uint64

func newTransportID() transportID {
	return transportID(nextTransportID.Add(1))
}

// MonitoredTransport wraps a [net.Conn] and keeps its owning
// [ServerModel]'s active set accurate: it deregisters itself from that
// set on Close, on Shutdown-equivalent teardown, and — if the caller
// abandoned it without closing — on garbage collection.
//
// MonitoredTransport embeds [net.Conn], so all I/O methods other than
// Close are forwarded unchanged.
type MonitoredTransport struct {
	net.Conn

	id         transportID
	model      *ServerModel
	credential any
	created    time.Time

	closeOnce sync.Once
}

// newMonitoredTransport wraps conn, registers it in model's active set,
// and arranges for it to deregister itself on garbage collection even if
// the caller never calls Close.
func newMonitoredTransport(conn net.Conn, model *ServerModel, credential any, now time.Time) *MonitoredTransport {
	id := newTransportID()
	t := &MonitoredTransport{
		Conn:       conn,
		id:         id,
		model:      model,
		credential: credential,
		created:    now,
	}
	model.register(id)
	// The cleanup argument carries only the model pointer and the plain
	// transportID value, never t itself, so registering this cleanup
	// does not keep t reachable.
	runtime.AddCleanup(t, deregisterOnGC, cleanupArgs{model: model, id: id})
	return t
}

type cleanupArgs struct {
	model *ServerModel
	id    transportID
}

// deregisterOnGC is the finalizer-equivalent registered via
// [runtime.AddCleanup]. It must never panic: a transport leaked by a
// caller must not be able to corrupt accounting or crash the process.
func deregisterOnGC(args cleanupArgs) {
	args.model.deregister(args.id)
}

// CredentialIdentity returns the identity key of the credential this
// transport was dialed under, or [NoCredential]'s identity if none.
func (t *MonitoredTransport) CredentialIdentity() any {
	return t.credential
}

// CreatedAt returns the time this transport was dialed.
func (t *MonitoredTransport) CreatedAt() time.Time {
	return t.created
}

// Close removes t from its [ServerModel]'s active set (idempotent) and
// closes the inner connection.
func (t *MonitoredTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.model.deregister(t.id)
		err = t.Conn.Close()
	})
	return err
}

// transportShutdowner is implemented by connections that support a
// half-close, e.g. [*net.TCPConn]. Half-open retention is not modeled:
// Shutdown always also deregisters from the active set, exactly like
// Close.
type transportShutdowner interface {
	CloseRead() error
	CloseWrite() error
}

// ShutdownRead removes t from its [ServerModel]'s active set (idempotent)
// and shuts down the read half of the inner connection, if supported.
func (t *MonitoredTransport) ShutdownRead() error {
	t.model.deregister(t.id)
	if sd, ok := t.Conn.(transportShutdowner); ok {
		return sd.CloseRead()
	}
	return nil
}

// ShutdownWrite removes t from its [ServerModel]'s active set
// (idempotent) and shuts down the write half of the inner connection, if
// supported.
func (t *MonitoredTransport) ShutdownWrite() error {
	t.model.deregister(t.id)
	if sd, ok := t.Conn.(transportShutdowner); ok {
		return sd.CloseWrite()
	}
	return nil
}
