// SPDX-License-Identifier: GPL-3.0-or-later

package connmgr

import (
	"fmt"
	"net/netip"
)

// TransportError is implemented by every error this package raises, so
// that callers doing a type switch on "any connmgr error" can catch the
// whole taxonomy with a single interface check, matching the behavior
// of callers that already catch "any socket error".
type TransportError interface {
	error
	isTransportError()
}

// NameNotFound is raised when a logical name has no [AddressGroup].
type NameNotFound struct {
	Name string
}

func (e *NameNotFound) Error() string {
	return fmt.Sprintf("connmgr: no address found for name %q", e.Name)
}

func (*NameNotFound) isTransportError() {}

var _ TransportError = (*NameNotFound)(nil)

// OutOfSockets is raised when the process-wide active-connection cap
// ([ConnectionManager.MaxConnections]) has been reached.
type OutOfSockets struct {
	Name    string
	InUse   int
	MaxSize int
}

func (e *OutOfSockets) Error() string {
	return fmt.Sprintf("connmgr: maximum sockets for %q already in use: %d", e.Name, e.InUse)
}

func (*OutOfSockets) isTransportError() {}

var _ TransportError = (*OutOfSockets)(nil)

// MarkedDownError is raised when an endpoint is within its transient
// markdown window ([TransientMarkdownDuration]) and markdown is enabled.
type MarkedDownError struct {
	Address Address
}

func (e *MarkedDownError) Error() string {
	return fmt.Sprintf("connmgr: %s is marked down", e.Address)
}

func (*MarkedDownError) isTransportError() {}

var _ TransportError = (*MarkedDownError)(nil)

// AddressError pairs a candidate [Address] with the error encountered
// while attempting to connect to it.
type AddressError struct {
	Address Address
	Err     error
}

// MultiConnectFailure is raised when every candidate address of a
// multi-candidate attempt failed to connect.
type MultiConnectFailure struct {
	Errors []AddressError
}

func (e *MultiConnectFailure) Error() string {
	return fmt.Sprintf("connmgr: all %d candidates failed: %s", len(e.Errors), e.Errors[0].Err)
}

func (*MultiConnectFailure) isTransportError() {}

var _ TransportError = (*MultiConnectFailure)(nil)

// InvalidAddressGroup is raised by [NewAddressGroup] when every tier is
// empty.
type InvalidAddressGroup struct {
	Name string
}

func (e *InvalidAddressGroup) Error() string {
	return fmt.Sprintf("connmgr: address group %q has no addresses", e.Name)
}

func (*InvalidAddressGroup) isTransportError() {}

var _ TransportError = (*InvalidAddressGroup)(nil)

// Address identifies a single transport endpoint. It is a type alias
// for [netip.AddrPort], which is already exactly the (ip, port) value
// type this module's data model calls for.
type Address = netip.AddrPort
