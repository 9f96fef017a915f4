package sse

import (
	"log/slog"
	"time"
)

// DefaultRefreshInterval is how often the manager re-arms directory TTLs for
// its local clients. A third of the default TTL keeps two refresh attempts
// of headroom before an entry could expire under a live stream.
const DefaultRefreshInterval = 20 * time.Minute

// DefaultSender labels messages originated by the service itself.
const DefaultSender = "system"

// Config holds connection manager settings, loadable from the environment
// via core/config.
type Config struct {
	InstanceID        string        `env:"SSE_INSTANCE_ID"`
	StreamTimeout     time.Duration `env:"SSE_STREAM_TIMEOUT" envDefault:"30m"`
	KeepAliveInterval time.Duration `env:"SSE_KEEPALIVE_INTERVAL" envDefault:"30s"`
	RefreshInterval   time.Duration `env:"SSE_REFRESH_INTERVAL" envDefault:"20m"`
	Sender            string        `env:"SSE_SENDER" envDefault:"system"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithBroker selects the message broker. Defaults to a LocalBroker, which is
// correct for single-instance deployments only.
func WithBroker(broker MessageBroker) Option {
	return func(m *Manager) {
		if broker != nil {
			m.broker = broker
		}
	}
}

// WithInstanceID overrides the generated process instance identifier.
func WithInstanceID(instanceID string) Option {
	return func(m *Manager) {
		if instanceID != "" {
			m.instanceID = instanceID
		}
	}
}

// WithLogger configures structured logging for the manager.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithStreamTimeout bounds the lifetime of created streams.
func WithStreamTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.streamTimeout = timeout
		}
	}
}

// WithKeepAliveInterval sets the idle keepalive interval for created
// streams. Zero disables keepalives.
func WithKeepAliveInterval(interval time.Duration) Option {
	return func(m *Manager) {
		if interval >= 0 {
			m.keepAlive = interval
		}
	}
}

// WithRefreshInterval sets how often directory registrations are re-armed
// when the broker supports it. Zero disables the refresh loop.
func WithRefreshInterval(interval time.Duration) Option {
	return func(m *Manager) {
		if interval >= 0 {
			m.refreshInterval = interval
		}
	}
}

// WithSender sets the sender label stamped on outgoing envelopes.
func WithSender(sender string) Option {
	return func(m *Manager) {
		if sender != "" {
			m.sender = sender
		}
	}
}

// WithConfig applies every non-zero field of cfg.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		WithInstanceID(cfg.InstanceID)(m)
		WithStreamTimeout(cfg.StreamTimeout)(m)
		WithSender(cfg.Sender)(m)
		if cfg.KeepAliveInterval > 0 {
			m.keepAlive = cfg.KeepAliveInterval
		}
		if cfg.RefreshInterval > 0 {
			m.refreshInterval = cfg.RefreshInterval
		}
	}
}
