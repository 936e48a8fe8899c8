// Package policy decides whether an MQTT topic may be routed over the overlay network.
package policy

import (
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/config"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/overlay"
)

// IsAllowed applies the allow/deny expressions of cfg to topic. With neither
// set every topic is allowed; with both set the topic must match allow and
// must not match deny.
func IsAllowed(topic string, cfg *config.BridgeConfig) bool {
	if cfg == nil {
		return true
	}
	switch {
	case cfg.Allow == nil && cfg.Deny == nil:
		return true
	case cfg.Deny == nil:
		return cfg.Allow.MatchString(topic)
	case cfg.Allow == nil:
		return !cfg.Deny.MatchString(topic)
	default:
		return cfg.Allow.MatchString(topic) && !cfg.Deny.MatchString(topic)
	}
}

// Locality maps the allow decision to the overlay visibility used for both
// subscriptions and publications.
func Locality(topic string, cfg *config.BridgeConfig) overlay.Locality {
	if IsAllowed(topic, cfg) {
		return overlay.Any
	}
	return overlay.SessionLocal
}
