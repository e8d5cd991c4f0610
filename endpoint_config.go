// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: original_source/connection_mgr.py (sock_config, ops_config.get_endpoint_config)
//

package connmgr

import "time"

// EndpointConfig holds the per-name operational parameters fetched fresh
// from [OpsConfig] on every acquire.
type EndpointConfig struct {
	ConnectTimeout           time.Duration
	ResponseTimeout          time.Duration
	MaxConnectRetry          int
	TransientMarkdownEnabled bool
}

// DefaultEndpointConfig is used for endpoints that have no specific entry
// in the [OpsConfig] source.
func DefaultEndpointConfig() EndpointConfig {
	return EndpointConfig{
		ConnectTimeout:           1 * time.Second,
		ResponseTimeout:          5 * time.Second,
		MaxConnectRetry:          2,
		TransientMarkdownEnabled: true,
	}
}

// OpsConfig is the external endpoint-configuration source, consumed only
// through this interface.
type OpsConfig interface {
	// EndpointConfig returns the configuration for name. Implementations
	// should return a sensible default rather than an error for an
	// unknown name rather than an error.
	EndpointConfig(name string) EndpointConfig
}

// StaticOpsConfig is a reference [OpsConfig] backed by a fixed map, for
// tests and for callers whose configuration does not change at runtime.
type StaticOpsConfig struct {
	Default   EndpointConfig
	Endpoints map[string]EndpointConfig
}

var _ OpsConfig = (*StaticOpsConfig)(nil)

// NewStaticOpsConfig returns a [*StaticOpsConfig] using
// [DefaultEndpointConfig] as the fallback.
func NewStaticOpsConfig(endpoints map[string]EndpointConfig) *StaticOpsConfig {
	return &StaticOpsConfig{
		Default:   DefaultEndpointConfig(),
		Endpoints: endpoints,
	}
}

// EndpointConfig implements [OpsConfig].
func (c *StaticOpsConfig) EndpointConfig(name string) EndpointConfig {
	if cfg, ok := c.Endpoints[name]; ok {
		return cfg
	}
	return c.Default
}
