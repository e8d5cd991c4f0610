// SPDX-License-Identifier: GPL-3.0-or-later

package connmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// NewStaticOpsConfig falls back to DefaultEndpointConfig for unknown names.
func TestStaticOpsConfigFallsBackToDefault(t *testing.T) {
	cfg := NewStaticOpsConfig(nil)
	assert.Equal(t, DefaultEndpointConfig(), cfg.EndpointConfig("unknown.example.com"))
}

// NewStaticOpsConfig returns the configured override when present.
func TestStaticOpsConfigReturnsOverride(t *testing.T) {
	override := EndpointConfig{MaxConnectRetry: 5}
	cfg := NewStaticOpsConfig(map[string]EndpointConfig{
		"origin.example.com": override,
	})
	assert.Equal(t, override, cfg.EndpointConfig("origin.example.com"))
	assert.Equal(t, DefaultEndpointConfig(), cfg.EndpointConfig("other.example.com"))
}
