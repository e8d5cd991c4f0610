// SPDX-License-Identifier: GPL-3.0-or-later

// Package connmgr turns a logical upstream service name into a live,
// pooled, timeout-configured, optionally TLS-wrapped [net.Conn].
//
// # Core Abstraction
//
// [*ConnectionManager] is the single entry point: [ConnectionManager.GetConnection]
// resolves a name (or a pre-resolved address) through an [AddressGroup],
// checks fleet-wide and per-endpoint limits, consults a [SockPool] for a
// reusable connection, and otherwise dials a fresh one, gated by
// per-endpoint transient markdown and bounded retry.
// [ConnectionManager.ReleaseConnection] returns a connection to its pool,
// which decides whether to retain or kill it.
//
// # Components
//
//   - [AddressGroup]: tiered, weighted endpoints for one logical name;
//     produces a priority-weighted attempt order per call.
//   - [ServerModel] / [ServerModelDirectory]: per-endpoint health state
//     (in-use set, last-failure timestamp).
//   - [MonitoredTransport]: wraps a dialed [net.Conn] and deregisters
//     itself from its [ServerModel]'s active set on close or finalization.
//   - [SockPool]: per-credential-identity idle-connection cache with
//     age-based and readability-based culling, and per-address/global caps.
//   - [CredentialPoolRegistry]: routes credentials to their [SockPool],
//     keyed by credential identity; a pool, once created, is retained
//     for the registry's lifetime.
//
// # Dial Pipeline
//
// A fresh dial is composed from the same [Func] primitives this package
// exposes for connection establishment and TLS handshake: [ConnectFunc],
// [ObserveConnFunc], and [CancelWatchFunc] for each TCP dial attempt,
// then — when a credential is in effect — a single [TLSHandshakeFunc]
// run once a dial attempt has succeeded; the handshake is not retried.
// [Compose2] through [Compose8] chain Funcs into pipelines.
//
// # Observability
//
// All primitives support structured logging via [SLogger] (compatible
// with [log/slog]). By default, logging is disabled. Error
// classification is configurable via [ErrClassifier]; the default
// classifies using this module's errclass subpackage.
//
// Primitives emit two kinds of structured log events:
//
//   - Span events (*Start/*Done pairs): operation lifecycle including
//     timing and success/failure.
//
//   - I/O observations: read, write, and deadline changes on pooled
//     connections.
//
// Span and I/O events share a common set of fields: remoteAddr,
// protocol, and t (timestamp); all of them except connectStart also
// carry localAddr. Completion events (*Done) additionally include t0
// (start time), err, and errClass. I/O-level events, and the
// per-attempt connectAttempt event of [ConnectionManager] (which carries
// only span, remoteAddr, and attempt), are emitted at [slog.LevelDebug];
// all other events use [slog.LevelInfo].
//
// Use [NewSpanID] to generate a unique, time-ordered identifier (UUIDv7)
// for each acquire, then attach it to the logger with [*slog.Logger.With].
//
// # Out of Scope
//
// This package does not perform DNS resolution: it consumes
// already-resolved [AddressGroup] values supplied by the ambient
// [Context]. It does not retry at the protocol level: a pooled
// connection may be in any protocol state on return, and only callers
// know how to reset it. It does not multiplex requests over one
// connection.
package connmgr
