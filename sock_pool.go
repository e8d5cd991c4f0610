// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: original_source/sockpool.py
//

package connmgr

import (
	"errors"
	"net"
	"net/netip"
	"sync"
	"time"
)

// Default caps.
const (
	// DefaultIdleTimeout is how long an idle connection is retained
	// before [SockPool.cull] drops it.
	DefaultIdleTimeout = 250 * time.Millisecond

	// DefaultPerAddrCap is the maximum idle connections retained per
	// address, unless overridden via [SockPool.SetPerAddrCap].
	DefaultPerAddrCap = 50

	// DefaultGlobalCap is the maximum idle connections retained across
	// all addresses in one [SockPool].
	DefaultGlobalCap = 800
)

// Killer closes a connection asynchronously, fire-and-forget. The
// default is a goroutine running [net.Conn.Close] and discarding the
// result: cull itself must not block on socket close.
type Killer func(conn net.Conn)

// defaultKiller closes conn in its own goroutine, ignoring the result:
// close errors during cull/release are never surfaced.
func defaultKiller(conn net.Conn) {
	go func() { _ = conn.Close() }()
}

// idleEntry is one idle connection plus the time it was released.
type idleEntry struct {
	conn       net.Conn
	idleSince  time.Time
}

// SockPool is a per-credential-identity cache of idle, reusable
// connections. It culls broken, stale, or surplus connections and
// enforces per-address and global idle caps. Safe for concurrent use.
type SockPool struct {
	Killer Killer

	mu          sync.Mutex
	idleTimeout time.Duration
	globalCap   int
	perAddrCap  map[Address]int
	freeByAddr  map[Address][]idleEntry
	totalIdle   int

	now func() time.Time
}

// NewSockPool returns a [*SockPool] with the given idle timeout and
// global cap; per-address caps default to [DefaultPerAddrCap] and may be
// overridden with [SockPool.SetPerAddrCap].
func NewSockPool(idleTimeout time.Duration, globalCap int) *SockPool {
	return &SockPool{
		Killer:      defaultKiller,
		idleTimeout: idleTimeout,
		globalCap:   globalCap,
		perAddrCap:  make(map[Address]int),
		freeByAddr:  make(map[Address][]idleEntry),
		now:         time.Now,
	}
}

// SetPerAddrCap overrides the idle cap for a specific address.
func (p *SockPool) SetPerAddrCap(addr Address, cap int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.perAddrCap[addr] = cap
}

func (p *SockPool) perAddrCapLocked(addr Address) int {
	if cap, ok := p.perAddrCap[addr]; ok {
		return cap
	}
	return DefaultPerAddrCap
}

// TotalIdle returns the total number of idle connections retained across
// all addresses.
func (p *SockPool) TotalIdle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalIdle
}

// Acquire returns a free connection for addr, if one is available.
// cull runs first (its errors are swallowed — pool hygiene must
// never deny service), then the most recently released connection for
// addr is popped LIFO ("most recently released is warmest").
func (p *SockPool) Acquire(addr Address) net.Conn {
	p.safeCull()

	p.mu.Lock()
	defer p.mu.Unlock()
	entries := p.freeByAddr[addr]
	if len(entries) == 0 {
		return nil
	}
	last := entries[len(entries)-1]
	p.freeByAddr[addr] = entries[:len(entries)-1]
	p.totalIdle--
	return last.conn
}

// safeCull invokes cull and discards any panic, so that pool hygiene can
// never deny an acquire. Culling itself does not return errors, but
// guards against an unexpected panic in a [Killer] or readability check
// the same way the original swallows cull exceptions.
func (p *SockPool) safeCull() {
	defer func() { _ = recover() }()
	p.cull()
}

// Release hands a connection back to the pool, or kills it if it is
// unfit for reuse.
func (p *SockPool) Release(conn net.Conn) {
	result := checkReadable(conn, p.now())
	switch result {
	case readinessReadable:
		// Either peer-closed, or unconsumed bytes remain that would
		// poison the next caller: kill it asynchronously.
		p.Killer(conn)
		return
	case readinessCheckFailed:
		// The check itself raised (e.g. bad descriptor): drop without
		// retaining and without attempting to close.
		return
	}

	peer, ok := safePeerAddr(conn)
	if !ok {
		p.Killer(conn)
		return
	}

	p.mu.Lock()
	now := p.now()
	p.freeByAddr[peer] = append(p.freeByAddr[peer], idleEntry{conn: conn, idleSince: now})
	p.totalIdle++

	var evicted net.Conn
	capForPeer := p.perAddrCapLocked(peer)
	if len(p.freeByAddr[peer]) > capForPeer {
		evicted = p.evictOldestAtLocked(peer)
	} else if p.totalIdle > p.globalCap {
		evicted = p.evictOldestGloballyLocked()
	}
	p.mu.Unlock()

	if evicted != nil {
		p.Killer(evicted)
	}
}

// evictOldestAtLocked removes and returns the idle connection at addr
// with the maximum idle_since (the most recently released one). Per the
// "oldest idle" design note, this module resolves the open question as
// reading (b): evicting the freshest surplus so long-lived hot
// connections survive, rather than (a) a latent min/max bug. Caller
// holds p.mu.
func (p *SockPool) evictOldestAtLocked(addr Address) net.Conn {
	entries := p.freeByAddr[addr]
	if len(entries) == 0 {
		return nil
	}
	idx := indexOfMaxIdleSince(entries)
	victim := entries[idx]
	p.freeByAddr[addr] = removeAt(entries, idx)
	p.totalIdle--
	return victim.conn
}

// evictOldestGloballyLocked removes and returns the idle connection with
// the maximum idle_since across all addresses. Caller holds p.mu.
func (p *SockPool) evictOldestGloballyLocked() net.Conn {
	var (
		victimAddr Address
		victimIdx  = -1
		maxSince   time.Time
	)
	for addr, entries := range p.freeByAddr {
		idx := indexOfMaxIdleSince(entries)
		if idx < 0 {
			continue
		}
		if victimIdx < 0 || entries[idx].idleSince.After(maxSince) {
			victimAddr, victimIdx, maxSince = addr, idx, entries[idx].idleSince
		}
	}
	if victimIdx < 0 {
		return nil
	}
	entries := p.freeByAddr[victimAddr]
	victim := entries[victimIdx]
	p.freeByAddr[victimAddr] = removeAt(entries, victimIdx)
	p.totalIdle--
	return victim.conn
}

func indexOfMaxIdleSince(entries []idleEntry) int {
	if len(entries) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(entries); i++ {
		if entries[i].idleSince.After(entries[best].idleSince) {
			best = i
		}
	}
	return best
}

func removeAt(entries []idleEntry, idx int) []idleEntry {
	entries[idx] = entries[len(entries)-1]
	return entries[:len(entries)-1]
}

// cull performs the single age-out + readability sweep. It is
// amortized at acquire time rather than run on a timer, so an idle
// process performs no background work.
func (p *SockPool) cull() {
	now := p.now()

	p.mu.Lock()
	addrs := make([]Address, 0, len(p.freeByAddr))
	for addr := range p.freeByAddr {
		addrs = append(addrs, addr)
	}
	snapshot := make(map[Address][]idleEntry, len(addrs))
	for _, addr := range addrs {
		snapshot[addr] = append([]idleEntry(nil), p.freeByAddr[addr]...)
	}
	idleTimeout := p.idleTimeout
	p.mu.Unlock()

	survivorsByAddr := make(map[Address][]idleEntry, len(addrs))
	var killed []net.Conn

	for addr, entries := range snapshot {
		// Phase 1 — age-out, and drop descriptors that are no longer valid.
		var live []idleEntry
		for _, e := range entries {
			if now.Sub(e.idleSince) > idleTimeout {
				killed = append(killed, e.conn)
				continue
			}
			if !connAlive(e.conn) {
				continue
			}
			live = append(live, e)
		}

		// Phase 2 — readability sweep over the survivors.
		var survivors []idleEntry
		for _, e := range live {
			if checkReadable(e.conn, now) == readinessReadable {
				killed = append(killed, e.conn)
				continue
			}
			survivors = append(survivors, e)
		}
		if len(survivors) > 0 {
			survivorsByAddr[addr] = survivors
		}
	}

	p.mu.Lock()
	total := 0
	p.freeByAddr = survivorsByAddr
	for _, entries := range survivorsByAddr {
		total += len(entries)
	}
	p.totalIdle = total
	p.mu.Unlock()

	for _, conn := range killed {
		p.Killer(conn)
	}
}

// connAlive reports whether conn's descriptor still looks usable. Go's
// net.Conn has no direct fileno-validity probe equivalent to the
// original's sock.fileno(); a failing SetDeadline call is the closest
// portable signal that the descriptor is already torn down.
func connAlive(conn net.Conn) bool {
	return conn.SetDeadline(time.Time{}) == nil
}

// readiness is the outcome of [checkReadable].
type readiness int

const (
	readinessNotReadable readiness = iota
	readinessReadable
	readinessCheckFailed
)

// checkReadable performs the zero-timeout readability check: a
// connection that is readable while idle is corrupted,
// either because the peer closed it or because unconsumed bytes remain
// that would poison the next caller.
func checkReadable(conn net.Conn, now time.Time) readiness {
	if err := conn.SetReadDeadline(now); err != nil {
		return readinessCheckFailed
	}
	var buf [1]byte
	n, err := conn.Read(buf[:])
	_ = conn.SetReadDeadline(time.Time{})

	if n > 0 {
		return readinessReadable
	}
	if err == nil {
		return readinessNotReadable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return readinessNotReadable
	}
	// EOF or a non-timeout error: corrupted, same as a readable socket.
	return readinessReadable
}

// safePeerAddr returns conn's peer address, reporting false if the
// underlying call panics or the connection has no usable remote address.
func safePeerAddr(conn net.Conn) (addr Address, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	remote := conn.RemoteAddr()
	if remote == nil {
		return Address{}, false
	}
	tcpAddr, ok2 := remote.(*net.TCPAddr)
	if !ok2 {
		return Address{}, false
	}
	ip, ok3 := netip.AddrFromSlice(tcpAddr.IP)
	if !ok3 {
		return Address{}, false
	}
	return netip.AddrPortFrom(ip.Unmap(), uint16(tcpAddr.Port)), true
}
