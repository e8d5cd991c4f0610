// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: original_source/connection_mgr.py (ConnectionManager.get_connection,
// ConnectionManager._connect_to_address, ConnectionManager.release_connection)
//

package connmgr

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// TransientMarkdownDuration is how long an endpoint stays marked down
// after its dial retry budget is exhausted.
const TransientMarkdownDuration = 10 * time.Second

// defaultMaxConnections returns 80% of the process's soft file-descriptor
// limit when the platform exposes one, else the static fallback of 800.
func defaultMaxConnections() int {
	if limit, ok := softFileDescriptorLimit(); ok {
		if capped := int(limit * 80 / 100); capped > 0 {
			return capped
		}
	}
	return 800
}

// ConnectionManager is the public entry point composing [AddressGroup],
// [ServerModelDirectory], [SockPool], [OpsConfig], and markdown policy
// into [GetConnection] and [ReleaseConnection].
//
// All fields are safe to modify after construction but before first use.
type ConnectionManager struct {
	// Context supplies address groups, ops config, the default
	// credential, reverse address lookup, telemetry counters, and the
	// event sink.
	Context Context

	// Models tracks per-endpoint health and active-connection counts.
	Models *ServerModelDirectory

	// Pools routes a credential identity to its idle-connection pool.
	Pools *CredentialPoolRegistry

	// Config holds the dial/handshake configuration shared by every
	// candidate address.
	Config *Config

	// Logger receives structured lifecycle logging for dial attempts.
	Logger SLogger

	// MaxConnections is the process-wide cap on simultaneously open
	// connections admitted by [GetConnection].
	MaxConnections int

	// TimeNow returns the current time (configurable for testing).
	TimeNow func() time.Time
}

// NewConnectionManager returns a [*ConnectionManager] with sensible
// defaults: a fresh [ServerModelDirectory] and [CredentialPoolRegistry],
// [NewConfig]'s dial defaults, a discarding [SLogger], and
// [defaultMaxConnections].
func NewConnectionManager(ctx Context) *ConnectionManager {
	return &ConnectionManager{
		Context:        ctx,
		Models:         NewServerModelDirectory(),
		Pools:          NewCredentialPoolRegistry(),
		Config:         NewConfig(),
		Logger:         DefaultSLogger(),
		MaxConnections: defaultMaxConnections(),
		TimeNow:        time.Now,
	}
}

// GetConnection returns a transport for nameOrAddr, reusing a pooled
// connection when one is available.
//
// nameOrAddr is either a logical name (string) looked up through
// [Context.AddressGroup], or a pre-resolved [Address].
//
// credential is one of: nil or false (no credential), true (the ambient
// default from [Context.DefaultCredential]), or an explicit [Credential]
// value. [UseDefaultCredential] and [WithCredential] build this argument
// without relying on an untyped bool.
func (m *ConnectionManager) GetConnection(ctx context.Context, nameOrAddr any, credential any) (net.Conn, error) {
	name, candidates, err := m.resolve(nameOrAddr)
	if err != nil {
		return nil, err
	}

	cfg := m.Context.OpsConfig().EndpointConfig(name)

	if err := m.checkAdmission(name, candidates); err != nil {
		return nil, err
	}

	if len(candidates) == 1 {
		return m.connectToAddress(ctx, candidates[0], name, credential, cfg)
	}

	var failures []AddressError
	for _, addr := range candidates {
		conn, err := m.connectToAddress(ctx, addr, name, credential, cfg)
		if err == nil {
			return conn, nil
		}
		failures = append(failures, AddressError{Address: addr, Err: err})
	}
	return nil, &MultiConnectFailure{Errors: failures}
}

// ReleaseConnection returns a transport obtained from [GetConnection] to
// its credential's pool. conn must be the exact value [GetConnection]
// returned.
//
// The transport stays registered in its [ServerModel]'s active set while
// it sits idle in the pool, so it still counts toward the
// [ConnectionManager.MaxConnections] admission check; it leaves the set
// only when it is closed, shut down, or garbage collected.
func (m *ConnectionManager) ReleaseConnection(conn net.Conn) error {
	transport, ok := conn.(*MonitoredTransport)
	if !ok {
		return fmt.Errorf("connmgr: ReleaseConnection requires a transport returned by GetConnection")
	}
	pool := m.Pools.Get(transport.CredentialIdentity())
	pool.Release(transport)
	return nil
}

// resolve turns nameOrAddr into a logical name (possibly empty, for an
// address with no known reverse mapping) and an ordered candidate list.
func (m *ConnectionManager) resolve(nameOrAddr any) (name string, candidates []Address, err error) {
	switch v := nameOrAddr.(type) {
	case string:
		group, ok := m.Context.AddressGroup(v)
		if !ok {
			return "", nil, &NameNotFound{Name: v}
		}
		return v, group.AttemptOrder(), nil
	case Address:
		name, _ := m.Context.ReverseLookup(v)
		return name, []Address{v}, nil
	default:
		return "", nil, &NameNotFound{Name: fmt.Sprintf("%v", nameOrAddr)}
	}
}

// safeTick looks up and ticks the counter keyed by name, recovering any
// panic so a faulty caller-supplied [Context] can never abort
// [GetConnection]'s call path.
func (m *ConnectionManager) safeTick(name string) {
	defer func() { recover() }()
	m.Context.Counter(name).Tick()
}

// safeEvent emits an event through the configured [EventSink], recovering
// any panic so a faulty caller-supplied sink can never abort
// [GetConnection]'s call path.
func (m *ConnectionManager) safeEvent(severity, code, version string, kv map[string]any) {
	defer func() { recover() }()
	m.Context.Events().Event(severity, code, version, kv)
}

// checkAdmission sums the active-connection counts of every candidate's
// [ServerModel] and raises [OutOfSockets] at or above [MaxConnections].
func (m *ConnectionManager) checkAdmission(name string, candidates []Address) error {
	inUse := 0
	for _, addr := range candidates {
		inUse += m.Models.Get(addr).ActiveCount()
	}
	if inUse >= m.MaxConnections {
		m.safeTick("net.out_of_sockets")
		m.safeTick("net.out_of_sockets." + name)
		return &OutOfSockets{Name: name, InUse: inUse, MaxSize: m.MaxConnections}
	}
	return nil
}

// connectToAddress implements the acquire-or-dial decision for a single
// candidate address: pool hit, markdown gate, bounded-retry TCP dial, and
// — outside the retry and markdown path — an optional TLS handshake,
// followed by monitored registration.
func (m *ConnectionManager) connectToAddress(
	ctx context.Context, addr Address, name string, credential any, cfg EndpointConfig) (net.Conn, error) {
	model := m.Models.Get(addr)
	cred := resolveCredential(credential, m.Context.DefaultCredential())
	pool := m.Pools.Get(cred.Identity())

	if conn := pool.Acquire(addr); conn != nil {
		m.applyResponseDeadline(conn, cfg)
		return conn, nil
	}

	now := m.TimeNow()
	if cfg.TransientMarkdownEnabled {
		if last := model.LastError(); !last.IsZero() && now.Sub(last) < TransientMarkdownDuration {
			return nil, &MarkedDownError{Address: addr}
		}
	}

	conn, err := m.dialWithRetry(ctx, addr, cfg)
	if err != nil {
		model.markFailed(now)
		if cfg.TransientMarkdownEnabled {
			m.safeTick("net.markdowns")
			m.safeTick("net.markdowns." + name)
			m.safeEvent("error", "TMARKDOWN", "v1", map[string]any{
				"address": addr.String(),
				"err":     err.Error(),
				"name":    name,
			})
		}
		return nil, err
	}

	// The TLS handshake runs once, outside the retry loop: it is not a
	// property of the endpoint's reachability, so a handshake failure
	// never marks the endpoint down or burns a retry.
	final, err := m.handshake(ctx, conn, cred, cfg)
	if err != nil {
		return nil, err
	}

	transport := newMonitoredTransport(final, model, cred.Identity(), now)
	m.applyResponseDeadline(transport, cfg)
	return transport, nil
}

// dialWithRetry attempts the TCP connect-and-observe pipeline up to
// cfg.MaxConnectRetry+1 times, retrying immediately on failure and
// returning the last error once the budget is exhausted.
func (m *ConnectionManager) dialWithRetry(ctx context.Context, addr Address, cfg EndpointConfig) (net.Conn, error) {
	span := NewSpanID()
	// addr is fixed across every attempt in this loop, so bind it once
	// with NewEndpointFunc and drive the pipeline as a niladic Func
	// rather than threading addr through each Call.
	start := NewEndpointFunc(addr)
	dial := Compose2[Unit, Address, net.Conn](start, m.buildDialer())
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxConnectRetry; attempt++ {
		m.Logger.Debug("connectAttempt",
			slog.String("span", span),
			slog.String("remoteAddr", addr.String()),
			slog.Int("attempt", attempt),
		)
		dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		conn, err := dial.Call(dialCtx, Unit{})
		if err != nil {
			cancel()
			lastErr = err
			continue
		}
		// The attempt succeeded: the connection's lifetime is now the
		// pool's concern, not this attempt's context, so stop the watch
		// before it fires.
		if watched, ok := conn.(*cancelWatchedConn); ok {
			watched.stop()
		}
		cancel()
		return conn, nil
	}
	return nil, lastErr
}

// buildDialer composes the per-attempt TCP dial pipeline: connect,
// observe, and a cancellation watch that closes the raw descriptor if
// ctx ends while the attempt is still in flight.
func (m *ConnectionManager) buildDialer() Func[Address, net.Conn] {
	connect := NewConnectFunc(m.Config, "tcp", m.Logger)
	observe := NewObserveConnFunc(m.Config, m.Logger)
	watch := NewCancelWatchFunc()
	base := Compose2[Address, net.Conn, net.Conn](connect, observe)
	return Compose2[Address, net.Conn, net.Conn](base, watch)
}

// handshake performs a single, non-retried TLS handshake over conn using
// cred's TLS configuration, returning conn unchanged for [NoCredential].
// Any other credential is handshaked; one whose ClientTLSConfig returns
// nil makes [NewTLSHandshakeFunc] panic. The handshake is watched against ctx so a cancellation
// or deadline expiry while it is in flight closes the partial transport,
// without that watch outliving the handshake itself.
func (m *ConnectionManager) handshake(ctx context.Context, conn net.Conn, cred Credential, cfg EndpointConfig) (net.Conn, error) {
	if _, noCred := cred.(noCredential); noCred {
		return conn, nil
	}

	handshakeCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	// conn is fixed for this single attempt, so bind it with Apply and
	// drive the handshake pipeline as a niladic Func, the same idiom
	// dialWithRetry uses for its fixed addr.
	attempt := Apply(m.buildHandshakeFunc(cred), conn)
	return attempt.Call(handshakeCtx, Unit{})
}

// buildHandshakeFunc composes the single-attempt TLS handshake stage: a
// cancellation watch around the handshake, widened back to [net.Conn]
// and defused once the handshake succeeds so the watch does not outlive
// the attempt.
func (m *ConnectionManager) buildHandshakeFunc(cred Credential) Func[net.Conn, net.Conn] {
	watch := NewCancelWatchFunc()
	tlsFunc := NewTLSHandshakeFunc(m.Config, cred.ClientTLSConfig(), m.Logger)
	return FuncAdapter[net.Conn, net.Conn](func(ctx context.Context, conn net.Conn) (net.Conn, error) {
		watched, err := watch.Call(ctx, conn)
		if err != nil {
			return nil, err
		}
		tconn, err := tlsFunc.Call(ctx, watched)
		if err != nil {
			return nil, err
		}
		if w, ok := watched.(*cancelWatchedConn); ok {
			w.stop()
		}
		return tconn, nil
	})
}

// applyResponseDeadline sets conn's combined read/write deadline to
// cfg.ResponseTimeout from now, ignoring an error from a connection that
// does not support deadlines.
func (m *ConnectionManager) applyResponseDeadline(conn net.Conn, cfg EndpointConfig) {
	_ = conn.SetDeadline(m.TimeNow().Add(cfg.ResponseTimeout))
}
