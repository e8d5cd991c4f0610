// SPDX-License-Identifier: GPL-3.0-or-later

// Package errclass classifies network errors into short categorical
// strings suitable for structured logging and telemetry.
package errclass

import (
	"context"
	"errors"
	"net"
	"os"
)

// Categorical error classes returned by [New].
const (
	EADDRNOTAVAIL   = "EADDRNOTAVAIL"
	EADDRINUSE      = "EADDRINUSE"
	ECONNABORTED    = "ECONNABORTED"
	ECONNREFUSED    = "ECONNREFUSED"
	ECONNRESET      = "ECONNRESET"
	EHOSTUNREACH    = "EHOSTUNREACH"
	EINVAL          = "EINVAL"
	EINTR           = "EINTR"
	ENETDOWN        = "ENETDOWN"
	ENETUNREACH     = "ENETUNREACH"
	ENOBUFS         = "ENOBUFS"
	ENOTCONN        = "ENOTCONN"
	EPROTONOSUPPORT = "EPROTONOSUPPORT"
	ETIMEDOUT       = "ETIMEDOUT"
	EGENERIC        = "EGENERIC"
)

// New classifies err into one of the categorical strings above.
//
// Returns the empty string for a nil error, and [EGENERIC] for any
// error this function does not otherwise recognize. The per-OS errno
// constants it compares against are supplied by unix.go / windows.go.
func New(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, errETIMEDOUT):
		return ETIMEDOUT
	case errors.Is(err, net.ErrClosed), errors.Is(err, errECONNABORTED):
		return ECONNABORTED
	case errors.Is(err, errEADDRNOTAVAIL):
		return EADDRNOTAVAIL
	case errors.Is(err, errEADDRINUSE):
		return EADDRINUSE
	case errors.Is(err, errECONNREFUSED):
		return ECONNREFUSED
	case errors.Is(err, errECONNRESET):
		return ECONNRESET
	case errors.Is(err, errEHOSTUNREACH):
		return EHOSTUNREACH
	case errors.Is(err, errEINVAL):
		return EINVAL
	case errors.Is(err, errEINTR):
		return EINTR
	case errors.Is(err, errENETDOWN):
		return ENETDOWN
	case errors.Is(err, errENETUNREACH):
		return ENETUNREACH
	case errors.Is(err, errENOBUFS):
		return ENOBUFS
	case errors.Is(err, errENOTCONN):
		return ENOTCONN
	case errors.Is(err, errEPROTONOSUPPORT):
		return EPROTONOSUPPORT
	default:
		return EGENERIC
	}
}
