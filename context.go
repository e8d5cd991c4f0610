// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: original_source/connection_mgr.py (context.get_context(), ctx.intervals, ctx.cal)
//

package connmgr

import "sync"

// Context is the ambient execution context collaborator: it
// supplies resolved [AddressGroup]s, the [OpsConfig] source, the default
// [Credential], a reverse address-to-name map (for config/telemetry
// keying when callers pass a pre-resolved address), telemetry counters,
// and a structured event sink.
type Context interface {
	// AddressGroup returns the resolved address group for name, or
	// ok == false if name has no known group.
	AddressGroup(name string) (group *AddressGroup, ok bool)

	// OpsConfig returns the ambient endpoint-configuration source.
	OpsConfig() OpsConfig

	// DefaultCredential returns the credential used when a caller passes
	// the "true" tri-state value to GetConnection.
	DefaultCredential() Credential

	// ReverseLookup returns the logical name known for addr, if any.
	// Used only for config/telemetry keying when a caller passes a
	// pre-resolved [Address] instead of a name.
	ReverseLookup(addr Address) (name string, ok bool)

	// Counter returns the telemetry counter keyed by name, creating one
	// on first reference.
	Counter(name string) Counter

	// Events returns the structured event sink (the "CAL" collaborator
	// of the external event pipeline).
	Events() EventSink
}

// Counter is a monotonic telemetry tick, corresponding to
// an interval counter's tick() method.
type Counter interface {
	Tick()
}

// EventSink is the structured operational-alarm sink (the "CAL"
// collaborator).
type EventSink interface {
	Event(severity, code, version string, kv map[string]any)
}

// AmbientContext is a concrete, in-memory [Context] suitable as the
// process-wide default and for tests. All methods are safe for
// concurrent use.
type AmbientContext struct {
	opsConfig         OpsConfig
	defaultCredential Credential

	mu            sync.Mutex
	addressGroups map[string]*AddressGroup
	reverse       map[Address]string
	counters      map[string]*tickCounter
	events        EventSink
}

// NewAmbientContext returns an [*AmbientContext] with the given address
// groups, ops config, and default credential, and records every address
// of those groups in the reverse map. A nil opsConfig defaults to
// [NewStaticOpsConfig] with no per-name overrides. The event sink starts
// as [DiscardEventSink]; use [AmbientContext.SetEvents] to replace it.
func NewAmbientContext(addressGroups map[string]*AddressGroup, opsConfig OpsConfig, defaultCredential Credential) *AmbientContext {
	if opsConfig == nil {
		opsConfig = NewStaticOpsConfig(nil)
	}
	groups := addressGroups
	if groups == nil {
		groups = make(map[string]*AddressGroup)
	}
	reverse := make(map[Address]string, len(groups))
	for name, group := range groups {
		for _, tier := range group.tiers {
			for _, w := range tier {
				reverse[w.Address] = name
			}
		}
	}
	return &AmbientContext{
		opsConfig:         opsConfig,
		defaultCredential: defaultCredential,
		addressGroups:     groups,
		reverse:           reverse,
		counters:          make(map[string]*tickCounter),
		events:            DiscardEventSink{},
	}
}

var _ Context = (*AmbientContext)(nil)

// AddressGroup implements [Context].
func (c *AmbientContext) AddressGroup(name string) (*AddressGroup, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	group, ok := c.addressGroups[name]
	return group, ok
}

// SetAddressGroup installs or replaces the address group for name, and
// records its addresses in the reverse map for telemetry keying.
func (c *AmbientContext) SetAddressGroup(name string, group *AddressGroup) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addressGroups[name] = group
	for _, tier := range group.tiers {
		for _, w := range tier {
			c.reverse[w.Address] = name
		}
	}
}

// OpsConfig implements [Context].
func (c *AmbientContext) OpsConfig() OpsConfig {
	return c.opsConfig
}

// DefaultCredential implements [Context].
func (c *AmbientContext) DefaultCredential() Credential {
	return c.defaultCredential
}

// ReverseLookup implements [Context].
func (c *AmbientContext) ReverseLookup(addr Address) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.reverse[addr]
	return name, ok
}

// SetEvents installs a custom [EventSink], e.g. one that forwards to CAL.
func (c *AmbientContext) SetEvents(sink EventSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = sink
}

// Events implements [Context].
func (c *AmbientContext) Events() EventSink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

// Counter implements [Context].
func (c *AmbientContext) Counter(name string) Counter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if counter, ok := c.counters[name]; ok {
		return counter
	}
	counter := &tickCounter{}
	c.counters[name] = counter
	return counter
}

// Snapshot returns the current tick count for name, for tests; returns 0
// for a name never ticked.
func (c *AmbientContext) Snapshot(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if counter, ok := c.counters[name]; ok {
		return counter.value()
	}
	return 0
}

// tickCounter is the default in-memory [Counter].
type tickCounter struct {
	mu sync.Mutex
	n  int64
}

func (t *tickCounter) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.n++
}

func (t *tickCounter) value() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.n
}

// DiscardEventSink discards every event. It is the default [EventSink].
type DiscardEventSink struct{}

var _ EventSink = DiscardEventSink{}

// Event implements [EventSink].
func (DiscardEventSink) Event(severity, code, version string, kv map[string]any) {}
