package sse

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ssekit/ssekit/core/logger"
)

// Manager unifies the per-instance connection registry and the cross-instance
// message broker into one addressing and delivery model: callers send to a
// client id and the manager delivers locally when it owns the stream or
// routes through the broker when another instance does.
//
// Construct one manager per process and shut it down when the process stops:
//
//	// Single instance.
//	manager := sse.NewManager()
//
//	// Horizontally scaled, behind a shared Redis.
//	manager := sse.NewManager(
//		sse.WithBroker(sse.NewRedisBroker(client)),
//		sse.WithInstanceID(cfg.InstanceID),
//	)
//	defer manager.Shutdown(ctx)
type Manager struct {
	broker   MessageBroker
	registry *Registry
	log      *slog.Logger

	instanceID      string
	streamTimeout   time.Duration
	keepAlive       time.Duration
	refreshInterval time.Duration
	sender          string

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a connection manager and wires its broker
// subscriptions. The instance and broadcast channels are subscribed before
// NewManager returns, so a routed message can never arrive on a channel this
// instance is not yet listening to.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		registry:        NewRegistry(),
		log:             slog.New(slog.NewTextHandler(io.Discard, nil)),
		streamTimeout:   DefaultStreamTimeout,
		keepAlive:       DefaultKeepAliveInterval,
		refreshInterval: DefaultRefreshInterval,
		sender:          DefaultSender,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.broker == nil {
		m.broker = NewLocalBroker()
	}
	if m.instanceID == "" {
		m.instanceID = defaultInstanceID()
	}

	m.broker.Subscribe(m.instanceID, m.handleClientMessage)
	m.broker.SubscribeBroadcast(m.handleBroadcast)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	if refresher, ok := m.broker.(ClientRefresher); ok && m.refreshInterval > 0 {
		m.wg.Add(1)
		go m.refreshLoop(ctx, refresher)
	}

	m.log.Info("connection manager initialized", logger.InstanceID(m.instanceID))
	return m
}

// CreateStream opens a stream for clientID and registers the client with the
// broker. An existing stream for the same client is retired first, so at
// most one stream per client is ever reachable on this instance. The initial
// message is delivered synchronously before the stream is returned for the
// transport layer to serve.
func (m *Manager) CreateStream(ctx context.Context, clientID, initialMessage string) (*Stream, error) {
	if err := validateClientID(clientID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	m.mu.Unlock()

	connectionID, stream := m.registry.Create(clientID, m.streamTimeout, m.keepAlive)

	// A registration failure degrades cross-instance routing only; the
	// stream still serves local sends.
	if err := m.broker.RegisterClient(ctx, clientID, m.instanceID); err != nil {
		m.log.Error("failed to register client with broker",
			logger.Error(err), logger.ClientID(clientID))
	}

	stream.OnComplete(func() {
		m.log.Info("stream completed", logger.ClientID(clientID), logger.ConnectionID(connectionID))
		m.cleanup(clientID, connectionID)
	})
	stream.OnTimeout(func() {
		m.log.Info("stream timed out", logger.ClientID(clientID), logger.ConnectionID(connectionID))
		m.cleanup(clientID, connectionID)
	})
	stream.OnError(func(err error) {
		m.log.Error("stream error", logger.Error(err),
			logger.ClientID(clientID), logger.ConnectionID(connectionID))
		m.cleanup(clientID, connectionID)
	})

	m.sendToLocalClient(clientID, initialMessage)
	return stream, nil
}

// SendToClient delivers a message to clientID wherever its stream lives.
// Local clients are written directly and the result reflects the write.
// Remote clients are routed through the broker and true means routed, not
// received. Unknown clients are dropped and reported as false, never as an
// error.
func (m *Manager) SendToClient(ctx context.Context, clientID, message string) bool {
	if strings.TrimSpace(clientID) == "" {
		return false
	}

	if m.registry.Contains(clientID) {
		return m.sendToLocalClient(clientID, message)
	}

	if _, ok := m.broker.ClientInstance(ctx, clientID); ok {
		if err := m.broker.PublishToClient(ctx, clientID, message); err != nil {
			m.log.Error("failed to route message", logger.Error(err), logger.ClientID(clientID))
			return false
		}
		return true
	}

	return false
}

// Broadcast publishes a message to every connected client across all
// instances. Each subscribed instance, this one included, fans out to its
// own local clients independently.
func (m *Manager) Broadcast(ctx context.Context, message string) {
	if err := m.broker.PublishBroadcast(ctx, message); err != nil {
		m.log.Error("failed to publish broadcast", logger.Error(err))
	}
}

// BroadcastLocal delivers a message to this instance's clients only,
// bypassing the broker. A client whose delivery fails is closed rather than
// left half-registered.
func (m *Manager) BroadcastLocal(message string) {
	for _, clientID := range m.registry.ClientIDs() {
		if !m.sendToLocalClient(clientID, message) {
			m.CloseClient(context.Background(), clientID)
		}
	}
}

// CloseClient tears down clientID's local stream and broker registration.
// Closing an unknown client is a no-op.
func (m *Manager) CloseClient(ctx context.Context, clientID string) {
	if m.registry.Remove(clientID) {
		if err := m.broker.UnregisterClient(ctx, clientID); err != nil {
			m.log.Error("failed to unregister client from broker",
				logger.Error(err), logger.ClientID(clientID))
		}
	}
}

// IsLocalClient reports whether clientID's stream terminates on this
// instance.
func (m *Manager) IsLocalClient(clientID string) bool {
	return m.registry.Contains(clientID)
}

// IsClientConnected reports whether clientID is connected on this instance
// or, per the broker directory, anywhere else.
func (m *Manager) IsClientConnected(ctx context.Context, clientID string) bool {
	if m.registry.Contains(clientID) {
		return true
	}
	_, ok := m.broker.ClientInstance(ctx, clientID)
	return ok
}

// LocalCount returns the number of open streams on this instance.
func (m *Manager) LocalCount() int {
	return m.registry.Count()
}

// LocalClientIDs returns a snapshot of the client ids connected to this
// instance.
func (m *Manager) LocalClientIDs() []string {
	return m.registry.ClientIDs()
}

// InstanceID returns this process's instance identifier.
func (m *Manager) InstanceID() string {
	return m.instanceID
}

// Broker returns the configured message broker.
func (m *Manager) Broker() MessageBroker {
	return m.broker
}

// Shutdown closes every local stream, unregisters their clients, stops
// background work and closes the broker. The manager cannot be used after.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	for _, clientID := range m.registry.ClientIDs() {
		m.CloseClient(ctx, clientID)
	}
	// Sweep anything a racing CreateStream slipped in after the flag flip.
	m.registry.Clear()
	m.wg.Wait()

	m.log.Info("connection manager shut down", logger.InstanceID(m.instanceID))
	return m.broker.Close()
}

// handleClientMessage delivers a broker-routed message to the local stream.
func (m *Manager) handleClientMessage(clientID, message string) {
	m.sendToLocalClient(clientID, message)
}

// handleBroadcast fans a broker broadcast out to every local client.
func (m *Manager) handleBroadcast(message string) {
	m.BroadcastLocal(message)
}

// sendToLocalClient wraps message in an envelope and writes it to the local
// stream. A failed write means the client is gone: the stream is terminated
// with the error, which triggers the same cleanup as any transport failure.
func (m *Manager) sendToLocalClient(clientID, message string) bool {
	stream, ok := m.registry.Get(clientID)
	if !ok {
		return false
	}

	msg := NewMessage(message, m.sender, MessageTypeText)
	if err := stream.Send(msg); err != nil {
		m.log.Error("failed to deliver message to local client",
			logger.Error(err), logger.ClientID(clientID))
		stream.Error(err)
		return false
	}
	return true
}

// cleanup tears down one connection's registry mapping and broker
// registration together. The guarded remove makes it idempotent and keeps a
// late callback for a superseded connection from touching its successor's
// state, including the successor's broker registration.
func (m *Manager) cleanup(clientID, connectionID string) {
	if m.registry.RemoveConnection(clientID, connectionID) {
		if err := m.broker.UnregisterClient(context.Background(), clientID); err != nil {
			m.log.Error("failed to unregister client from broker",
				logger.Error(err), logger.ClientID(clientID))
		}
	}
}

// refreshLoop re-arms directory TTLs for local clients so a long-lived
// stream cannot outlive its registration.
func (m *Manager) refreshLoop(ctx context.Context, refresher ClientRefresher) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, clientID := range m.registry.ClientIDs() {
				if err := refresher.RefreshClient(ctx, clientID); err != nil {
					m.log.Warn("failed to refresh client registration",
						logger.Error(err), logger.ClientID(clientID))
				}
			}
		}
	}
}

func validateClientID(clientID string) error {
	if strings.TrimSpace(clientID) == "" {
		return ErrInvalidClientID
	}
	if strings.Contains(clientID, messageSeparator) {
		return ErrInvalidClientID
	}
	return nil
}

// defaultInstanceID derives a process-wide identifier from the host name
// plus a random suffix, so replicas on one host stay distinguishable.
func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "instance"
	}
	return host + "-" + uuid.NewString()[:8]
}
