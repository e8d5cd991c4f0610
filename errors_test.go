// SPDX-License-Identifier: GPL-3.0-or-later

package connmgr

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Every error type in the taxonomy satisfies TransportError, so a caller
// can catch the whole family with one interface check.
func TestErrorsImplementTransportError(t *testing.T) {
	addr := netip.MustParseAddrPort("10.0.0.1:443")

	errs := []error{
		&NameNotFound{Name: "origin"},
		&OutOfSockets{Name: "origin", InUse: 800, MaxSize: 800},
		&MarkedDownError{Address: addr},
		&MultiConnectFailure{Errors: []AddressError{{Address: addr, Err: errors.New("refused")}}},
		&InvalidAddressGroup{Name: "origin"},
	}

	for _, err := range errs {
		var transportErr TransportError
		assert.ErrorAs(t, err, &transportErr, "%T should satisfy TransportError", err)
		assert.NotEmpty(t, err.Error())
	}
}

// MultiConnectFailure's message surfaces the first candidate's error.
func TestMultiConnectFailureMessage(t *testing.T) {
	addr := netip.MustParseAddrPort("10.0.0.1:443")
	err := &MultiConnectFailure{Errors: []AddressError{
		{Address: addr, Err: errors.New("connection refused")},
	}}
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, err.Error(), "1")
}
