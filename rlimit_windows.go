//go:build windows

// SPDX-License-Identifier: GPL-3.0-or-later

package connmgr

// softFileDescriptorLimit always reports ok == false on Windows, which
// has no RLIMIT_NOFILE equivalent; callers fall back to the static
// default.
func softFileDescriptorLimit() (limit uint64, ok bool) {
	return 0, false
}
