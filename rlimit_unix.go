//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package connmgr

import "golang.org/x/sys/unix"

// softFileDescriptorLimit returns the process's current RLIMIT_NOFILE
// soft limit, or ok == false if the kernel call fails.
func softFileDescriptorLimit() (limit uint64, ok bool) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlimit); err != nil {
		return 0, false
	}
	return rlimit.Cur, true
}
